package settings

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guardian/internal/apperr"
	"guardian/internal/db"
	"guardian/internal/models"
)

type memPersister struct {
	mu      sync.Mutex
	data    map[string]string
	saves   int
	failErr error
}

func newMemPersister() *memPersister {
	return &memPersister{data: map[string]string{}}
}

func (m *memPersister) LoadSetting(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memPersister) SaveSetting(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	m.saves++
	m.data[key] = value
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenUsesDefaultsWhenNothingStored(t *testing.T) {
	s, err := Open(context.Background(), newMemPersister(), discardLogger())
	require.NoError(t, err)
	assert.Equal(t, DefaultSystemPreferences(), s.System.Value())
	assert.Equal(t, DefaultNotificationPreferences(), s.Notifications.Value())
	assert.Equal(t, models.APICredentials{}, s.API.Value())
	assert.Empty(t, s.Integrations.Value())
}

func TestCommitPersistsAndIsIdempotent(t *testing.T) {
	p := newMemPersister()
	s, err := Open(context.Background(), p, discardLogger())
	require.NoError(t, err)

	prefs := models.SystemPreferences{Language: "en", RefreshInterval: 5, TimeFormat: "12h"}
	require.NoError(t, s.System.Commit(context.Background(), prefs))
	first := p.data[KeySystem]
	require.NoError(t, s.System.Commit(context.Background(), prefs))

	assert.Equal(t, prefs, s.System.Value())
	assert.Equal(t, first, p.data[KeySystem])
	assert.JSONEq(t, `{"language":"en","refreshInterval":5,"timeFormat":"12h"}`, first)

	reopened, err := Open(context.Background(), p, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, prefs, reopened.System.Value())
}

func TestCommitFailureKeepsCommittedValue(t *testing.T) {
	p := newMemPersister()
	s, err := Open(context.Background(), p, discardLogger())
	require.NoError(t, err)

	p.failErr = errors.New("disk full")
	notified := false
	s.System.Subscribe(func(models.SystemPreferences) { notified = true })

	err = s.System.Commit(context.Background(), models.SystemPreferences{Language: "pt", RefreshInterval: 60, TimeFormat: "24h"})
	require.Error(t, err)
	assert.Equal(t, 300, s.System.Value().RefreshInterval)
	assert.False(t, notified)
}

func TestCommitRejectsInvalidValue(t *testing.T) {
	p := newMemPersister()
	s, err := Open(context.Background(), p, discardLogger())
	require.NoError(t, err)

	err = s.System.Commit(context.Background(), models.SystemPreferences{Language: "pt", RefreshInterval: 0, TimeFormat: "24h"})
	assert.True(t, apperr.IsKind(err, apperr.KindInvalid))
	err = s.API.Commit(context.Background(), models.APICredentials{GraphQLURL: "not a url"})
	assert.True(t, apperr.IsKind(err, apperr.KindInvalid))
	assert.Zero(t, p.saves)
}

func TestShapeMismatchFallsBackToDefault(t *testing.T) {
	p := newMemPersister()
	p.data[KeySystem] = `{"refreshInterval":"fast"}`
	p.data[KeyNotifications] = `{"email":false,"legacyField":1}`

	s, err := Open(context.Background(), p, discardLogger())
	require.NoError(t, err)

	assert.Equal(t, DefaultSystemPreferences(), s.System.Value())
	assert.Equal(t, `{"refreshInterval":"fast"}`, p.data[KeySystem], "storage is left alone until the next commit")

	n := s.Notifications.Value()
	assert.False(t, n.Email)
	assert.True(t, n.Popup, "missing fields keep their defaults")
	assert.True(t, n.Events.Failures)
}

func TestDraftIsLocalUntilSaved(t *testing.T) {
	s, err := Open(context.Background(), newMemPersister(), discardLogger())
	require.NoError(t, err)

	d := s.API.Draft()
	d.Value.GraphQLURL = "https://hubsoft.example/graphql"
	assert.True(t, d.Dirty())
	assert.Empty(t, s.API.Value().GraphQLURL)

	require.NoError(t, d.Save(context.Background()))
	assert.Equal(t, "https://hubsoft.example/graphql", s.API.Value().GraphQLURL)
	assert.False(t, d.Dirty())

	d.Value.GraphQLURL = "https://other.example"
	d.Reset()
	assert.False(t, d.Dirty())
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	s, err := Open(context.Background(), newMemPersister(), discardLogger())
	require.NoError(t, err)

	var got []int
	unsubscribe := s.System.Subscribe(func(p models.SystemPreferences) { got = append(got, p.RefreshInterval) })
	require.NoError(t, s.System.Commit(context.Background(), models.SystemPreferences{Language: "pt", RefreshInterval: 5, TimeFormat: "24h"}))
	unsubscribe()
	unsubscribe()
	require.NoError(t, s.System.Commit(context.Background(), models.SystemPreferences{Language: "pt", RefreshInterval: 60, TimeFormat: "24h"}))

	assert.Equal(t, []int{5}, got)
}

func TestIntegrationsGetIDsAndCopies(t *testing.T) {
	s, err := Open(context.Background(), newMemPersister(), discardLogger())
	require.NoError(t, err)

	err = s.Integrations.Commit(context.Background(), []models.Integration{{Name: "Zabbix", URL: "https://zabbix.example", Type: "monitoring"}})
	require.NoError(t, err)
	v := s.Integrations.Value()
	require.Len(t, v, 1)
	assert.NotEmpty(t, v[0].ID)

	v[0].Name = "changed"
	assert.Equal(t, "Zabbix", s.Integrations.Value()[0].Name)
}

func TestCommitJSONRejectsUnknownFields(t *testing.T) {
	s, err := Open(context.Background(), newMemPersister(), discardLogger())
	require.NoError(t, err)

	e, ok := s.Lookup(KeyNotifications)
	require.True(t, ok)
	err = e.CommitJSON(context.Background(), []byte(`{"sms":true}`))
	assert.True(t, apperr.IsKind(err, apperr.KindInvalid))

	require.NoError(t, e.CommitJSON(context.Background(), []byte(`{"email":false}`)))
	assert.False(t, s.Notifications.Value().Email)
	assert.True(t, s.Notifications.Value().Popup)
}

func TestStoreOnSQLite(t *testing.T) {
	sqldb, err := db.Open(t.TempDir() + "/settings.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqldb.Close() })
	require.NoError(t, db.Migrate(sqldb))
	repo := db.NewRepository(sqldb)

	s, err := Open(context.Background(), repo, discardLogger())
	require.NoError(t, err)
	creds := models.APICredentials{GraphQLURL: "https://api.example/graphql", CompanyID: "7", AuthToken: "t"}
	require.NoError(t, s.API.Commit(context.Background(), creds))

	again, err := Open(context.Background(), repo, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, creds, again.API.Value())
}

func TestTelegramRecordNeedsBothFields(t *testing.T) {
	s, err := Open(context.Background(), newMemPersister(), discardLogger())
	require.NoError(t, err)

	err = s.Telegram.Commit(context.Background(), models.TelegramSettings{BotToken: "123:abc"})
	assert.True(t, apperr.IsKind(err, apperr.KindInvalid))
	assert.Equal(t, models.TelegramSettings{}, s.Telegram.Value())

	require.NoError(t, s.Telegram.Commit(context.Background(), models.TelegramSettings{BotToken: "123:abc", ChatID: "-100"}))
	_, ok := s.Lookup(KeyTelegram)
	assert.True(t, ok)
}
