package models

// APICredentials is the committed HubSoft integration record.
type APICredentials struct {
	GraphQLURL string `json:"graphqlUrl"`
	RESTURL    string `json:"restUrl"`
	CompanyID  string `json:"companyId"`
	AuthToken  string `json:"authToken"`
}

type SimulatorCredentials struct {
	Host         string `json:"host"`
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	Username     string `json:"username"`
	Password     string `json:"password,omitempty"`
}

type SystemPreferences struct {
	Language        string `json:"language"`
	RefreshInterval int    `json:"refreshInterval"`
	TimeFormat      string `json:"timeFormat"`
}

type NotificationEvents struct {
	Failures            bool `json:"failures"`
	CriticalPredictions bool `json:"criticalPredictions"`
	Disconnections      bool `json:"disconnections"`
}

type NotificationPreferences struct {
	Email  bool               `json:"email"`
	Popup  bool               `json:"popup"`
	Events NotificationEvents `json:"events"`
}

type Integration struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	URL   string `json:"url"`
	Type  string `json:"type"`
	Token string `json:"token"`
}

// TelegramSettings overrides the bot credentials from the environment when
// both fields are set.
type TelegramSettings struct {
	BotToken string `json:"botToken"`
	ChatID   string `json:"chatId"`
}
