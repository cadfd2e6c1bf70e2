package settings

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"

	"github.com/google/uuid"

	"guardian/internal/apperr"
	"guardian/internal/models"
)

const (
	KeyAPI           = "hubsoftConfig"
	KeySimulator     = "simulatorConfig"
	KeySystem        = "systemPreferences"
	KeyNotifications = "notificationPreferences"
	KeyIntegrations  = "otherIntegrations"
	KeyTelegram      = "telegramConfig"
)

// RefreshIntervals are the polling periods offered on the settings page, in
// seconds.
var RefreshIntervals = []int{5, 60, 300}

const maxRefreshInterval = 3600

func DefaultSystemPreferences() models.SystemPreferences {
	return models.SystemPreferences{Language: "pt", RefreshInterval: 300, TimeFormat: "24h"}
}

func DefaultNotificationPreferences() models.NotificationPreferences {
	return models.NotificationPreferences{
		Email: true,
		Popup: true,
		Events: models.NotificationEvents{
			Failures:            true,
			CriticalPredictions: true,
			Disconnections:      false,
		},
	}
}

// Store is the application state shared by every consumer of configuration.
type Store struct {
	API           *Record[models.APICredentials]
	Simulator     *Record[models.SimulatorCredentials]
	System        *Record[models.SystemPreferences]
	Notifications *Record[models.NotificationPreferences]
	Integrations  *Record[[]models.Integration]
	Telegram      *Record[models.TelegramSettings]

	entries map[string]Entry
}

// Open builds every record and loads its stored value once.
func Open(ctx context.Context, p Persister, logger *slog.Logger) (*Store, error) {
	s := &Store{
		API:           newRecord(KeyAPI, models.APICredentials{}, p, logger, withValidate(validateAPI)),
		Simulator:     newRecord(KeySimulator, models.SimulatorCredentials{}, p, logger),
		System:        newRecord(KeySystem, DefaultSystemPreferences(), p, logger, withValidate(validateSystem)),
		Notifications: newRecord(KeyNotifications, DefaultNotificationPreferences(), p, logger),
		Integrations: newRecord(KeyIntegrations, []models.Integration{}, p, logger,
			withClone(func(v []models.Integration) []models.Integration { return slices.Clone(v) }),
			withNormalize(assignIntegrationIDs),
			withValidate(validateIntegrations),
		),
		Telegram: newRecord(KeyTelegram, models.TelegramSettings{}, p, logger, withValidate(validateTelegram)),
	}
	s.entries = map[string]Entry{
		KeyAPI:           s.API,
		KeySimulator:     s.Simulator,
		KeySystem:        s.System,
		KeyNotifications: s.Notifications,
		KeyIntegrations:  s.Integrations,
		KeyTelegram:      s.Telegram,
	}
	loaders := []interface{ load(context.Context) error }{s.API, s.Simulator, s.System, s.Notifications, s.Integrations, s.Telegram}
	for _, l := range loaders {
		if err := l.load(ctx); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) Lookup(key string) (Entry, bool) {
	e, ok := s.entries[key]
	return e, ok
}

func (s *Store) Keys() []string {
	return []string{KeyAPI, KeySimulator, KeySystem, KeyNotifications, KeyIntegrations, KeyTelegram}
}

func validateAPI(v models.APICredentials) error {
	for name, raw := range map[string]string{"graphqlUrl": v.GraphQLURL, "restUrl": v.RESTURL} {
		if raw == "" {
			continue
		}
		if err := checkURL(raw); err != nil {
			return apperr.Invalid("The API address is not a valid URL.", fmt.Sprintf("%s: %v", name, err))
		}
	}
	return nil
}

func validateSystem(v models.SystemPreferences) error {
	if v.RefreshInterval < 1 || v.RefreshInterval > maxRefreshInterval {
		return apperr.Invalid("Refresh interval is out of range.", fmt.Sprintf("refreshInterval=%d", v.RefreshInterval))
	}
	switch v.Language {
	case "pt", "en", "es":
	default:
		return apperr.Invalid("Unsupported language.", "language="+v.Language)
	}
	switch v.TimeFormat {
	case "12h", "24h":
	default:
		return apperr.Invalid("Unsupported time format.", "timeFormat="+v.TimeFormat)
	}
	return nil
}

func assignIntegrationIDs(v []models.Integration) []models.Integration {
	for i := range v {
		if v[i].ID == "" {
			v[i].ID = uuid.NewString()
		}
	}
	return v
}

func validateIntegrations(v []models.Integration) error {
	seen := make(map[string]bool, len(v))
	for _, it := range v {
		if strings.TrimSpace(it.Name) == "" {
			return apperr.Invalid("Every integration needs a name.", "integration "+it.ID+" has no name")
		}
		if err := checkURL(it.URL); err != nil {
			return apperr.Invalid("The integration address is not a valid URL.", it.Name+": "+err.Error())
		}
		if seen[it.ID] {
			return apperr.Invalid("Duplicate integration.", "id "+it.ID)
		}
		seen[it.ID] = true
	}
	return nil
}

func validateTelegram(v models.TelegramSettings) error {
	if (strings.TrimSpace(v.BotToken) == "") != (strings.TrimSpace(v.ChatID) == "") {
		return apperr.Invalid("Telegram needs both a bot token and a chat id.", "botToken and chatId must be set together")
	}
	return nil
}

func checkURL(raw string) error {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return nil
}
