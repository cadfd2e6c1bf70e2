package models

import "time"

type PaginatorInfo struct {
	CurrentPage int `json:"currentPage"`
	LastPage    int `json:"lastPage"`
	Total       int `json:"total"`
}

type Page[T any] struct {
	Data          []T           `json:"data"`
	PaginatorInfo PaginatorInfo `json:"paginatorInfo"`
}

type Client struct {
	ID       int    `json:"id_cliente"`
	Code     string `json:"codigo_cliente"`
	Name     string `json:"nome_razaosocial"`
	Document string `json:"cpf_cnpj"`
	Status   string `json:"status"`
}

type ServiceOrder struct {
	ID           int    `json:"id"`
	Protocol     string `json:"protocol"`
	ClientName   string `json:"client_name"`
	Service      string `json:"service"`
	Status       string `json:"status"`
	CreationDate string `json:"creation_date"`
}

type SNMPDevice struct {
	ID     string `json:"id"`
	Host   string `json:"host"`
	Model  string `json:"model"`
	Status string `json:"status"`
}

const (
	SyncOK    = "OK"
	SyncError = "Error"
)

// SyncLog is the immutable outcome of a single fetch attempt.
type SyncLog struct {
	Timestamp      time.Time `json:"timestamp"`
	Dataset        string    `json:"dataset"`
	ResponseTimeMS int64     `json:"responseTime"`
	Status         string    `json:"status"`
	HTTPStatus     int       `json:"httpStatus,omitempty"`
	Error          string    `json:"error,omitempty"`
}

type TelemetryPoint struct {
	Time           time.Time `json:"time"`
	OpticalPower   float64   `json:"opticalPower"`
	LatencyMS      float64   `json:"latency"`
	Disconnections int       `json:"disconnections"`
}

type FeatureContribution struct {
	Feature      string  `json:"feature"`
	Value        string  `json:"value"`
	Contribution float64 `json:"contribution"`
}

type Explanation struct {
	BaseValue       float64               `json:"baseValue"`
	FinalPrediction float64               `json:"finalPrediction"`
	Contributions   []FeatureContribution `json:"contributions"`
}

type Prediction struct {
	ID             string      `json:"id"`
	Entity         string      `json:"entity"`
	RiskPercentage int         `json:"riskPercentage"`
	Timeframe      string      `json:"timeframe"`
	Details        string      `json:"details"`
	Explanation    Explanation `json:"shapValues"`
}

type ModelMetrics struct {
	Version      string    `json:"version"`
	Algorithm    string    `json:"algorithm"`
	TrainingDate time.Time `json:"trainingDate"`
	Accuracy     float64   `json:"accuracy"`
	F1Score      float64   `json:"f1Score"`
	RocAUC       float64   `json:"rocAuc"`
}

type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

type PredictionHistory struct {
	Date      string `json:"date"`
	Predicted int    `json:"predicted"`
	Actual    int    `json:"actual"`
}

type DriftPoint struct {
	Date     time.Time `json:"date"`
	Value    float64   `json:"value"`
	Baseline float64   `json:"baseline"`
}

const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

type Alert struct {
	ID        int64      `json:"id"`
	Rule      string     `json:"rule"`
	Severity  string     `json:"severity"`
	Status    string     `json:"status"`
	Message   string     `json:"message"`
	Value     float64    `json:"value"`
	StartedAt time.Time  `json:"timestamp"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
}

type ReportHistory struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	GeneratedAt time.Time `json:"generatedAt"`
	GeneratedBy string    `json:"generatedBy"`
	Filters     string    `json:"filters"`
	FileName    string    `json:"fileName"`
}

type User struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	LastLogin time.Time `json:"lastLogin"`
}

type AlertRule struct {
	ID              int64   `json:"id"`
	Name            string  `json:"name"`
	MetricKey       string  `json:"metricKey"`
	Operator        string  `json:"operator"`
	Threshold       float64 `json:"threshold"`
	Severity        string  `json:"severity"`
	Event           string  `json:"event"`
	ForSeconds      int     `json:"forSeconds"`
	CooldownSeconds int     `json:"cooldownSeconds"`
	Enabled         bool    `json:"enabled"`
}
