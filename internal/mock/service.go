package mock

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"guardian/internal/apperr"
	"guardian/internal/models"
	"guardian/internal/paginate"
)

const (
	PageSize          = 10
	clientCount       = 50
	serviceOrderCount = 30
	predictionCount   = 8
	driftDays         = 14
	historyDays       = 7
	failToken         = "fail"
)

var features = []string{
	"optical_power_trend",
	"latency_p95",
	"disconnections_7d",
	"olt_temperature",
	"fiber_age_years",
	"splitter_ratio",
}

type Options struct {
	Seed    uint64
	Latency time.Duration
	Now     func() time.Time
}

// Service stands in for the HubSoft API and the inference backend. Shapes are
// fixed; values are drawn from a seeded source.
type Service struct {
	latency time.Duration
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error

	mu          sync.Mutex
	rng         *rand.Rand
	generation  int
	clients     []models.Client
	orders      []models.ServiceOrder
	metrics     models.ModelMetrics
	predictions []models.Prediction
}

func New(opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s := &Service{
		latency: opts.Latency,
		now:     now,
		sleep:   sleepContext,
		rng:     rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)),
	}
	s.clients = buildClients()
	s.orders = buildServiceOrders(now())
	s.generation = 1
	s.metrics = s.buildMetrics(now())
	s.predictions = s.buildPredictions()
	return s
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// delay simulates network latency with up to 50% jitter.
func (s *Service) delay(ctx context.Context, factor float64) error {
	d := time.Duration(float64(s.latency) * factor)
	if d > 0 {
		s.mu.Lock()
		jitter := time.Duration(s.rng.Int64N(int64(d)/2 + 1))
		s.mu.Unlock()
		d += jitter
	}
	return s.sleep(ctx, d)
}

func checkAPICredentials(creds models.APICredentials) error {
	if strings.TrimSpace(creds.GraphQLURL) == "" {
		return apperr.Config("HubSoft API host is not configured.", "graphqlUrl is empty")
	}
	if creds.AuthToken == failToken {
		return apperr.Transport("Invalid credentials.", "mock hubsoft rejected the auth token", http.StatusUnauthorized)
	}
	return nil
}

type ConnectionResult struct {
	Success   bool   `json:"success"`
	CompanyID string `json:"companyId,omitempty"`
	Endpoint  string `json:"endpoint"`
}

func (s *Service) TestConnection(ctx context.Context, creds models.APICredentials) (ConnectionResult, error) {
	if err := s.delay(ctx, 2); err != nil {
		return ConnectionResult{}, err
	}
	if creds.GraphQLURL == "" || creds.CompanyID == "" || creds.AuthToken == "" {
		return ConnectionResult{}, apperr.Config("Connection parameters are missing.", "graphqlUrl, companyId and authToken are required")
	}
	if err := checkAPICredentials(creds); err != nil {
		return ConnectionResult{}, err
	}
	return ConnectionResult{Success: true, CompanyID: creds.CompanyID, Endpoint: creds.GraphQLURL}, nil
}

func (s *Service) TestSimulator(ctx context.Context, creds models.SimulatorCredentials) (ConnectionResult, error) {
	if err := s.delay(ctx, 2); err != nil {
		return ConnectionResult{}, err
	}
	if creds.Host == "" || creds.ClientID == "" || creds.ClientSecret == "" || creds.Username == "" {
		return ConnectionResult{}, apperr.Config("Connection parameters are missing.", "host, clientId, clientSecret and username are required")
	}
	if creds.ClientSecret == failToken {
		return ConnectionResult{}, apperr.Transport("Invalid credentials.", "simulator rejected client secret", http.StatusUnauthorized)
	}
	return ConnectionResult{Success: true, Endpoint: creds.Host}, nil
}

func (s *Service) FetchClients(ctx context.Context, creds models.APICredentials, page int) (models.Page[models.Client], error) {
	if err := s.delay(ctx, 1); err != nil {
		return models.Page[models.Client]{}, err
	}
	if err := checkAPICredentials(creds); err != nil {
		return models.Page[models.Client]{}, err
	}
	return paginate.Slice(s.clients, page, PageSize), nil
}

func (s *Service) FetchServiceOrders(ctx context.Context, creds models.APICredentials, page int) (models.Page[models.ServiceOrder], error) {
	if err := s.delay(ctx, 1); err != nil {
		return models.Page[models.ServiceOrder]{}, err
	}
	if err := checkAPICredentials(creds); err != nil {
		return models.Page[models.ServiceOrder]{}, err
	}
	return paginate.Slice(s.orders, page, PageSize), nil
}

func (s *Service) FetchModelMetrics(ctx context.Context) (models.ModelMetrics, error) {
	if err := s.delay(ctx, 1); err != nil {
		return models.ModelMetrics{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics, nil
}

func (s *Service) FetchPredictions(ctx context.Context) ([]models.Prediction, error) {
	if err := s.delay(ctx, 1); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Prediction, len(s.predictions))
	for i, p := range s.predictions {
		p.Explanation.Contributions = append([]models.FeatureContribution(nil), p.Explanation.Contributions...)
		out[i] = p
	}
	return out, nil
}

func (s *Service) FetchFeatureImportance(ctx context.Context) ([]models.FeatureImportance, error) {
	if err := s.delay(ctx, 1); err != nil {
		return nil, err
	}
	s.mu.Lock()
	weights := make([]float64, len(features))
	var sum float64
	for i := range weights {
		weights[i] = 0.05 + s.rng.Float64()
		sum += weights[i]
	}
	s.mu.Unlock()

	out := make([]models.FeatureImportance, len(features))
	for i, f := range features {
		out[i] = models.FeatureImportance{Feature: f, Importance: weights[i] / sum}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Importance > out[j].Importance })
	return out, nil
}

func (s *Service) FetchPredictionHistory(ctx context.Context) ([]models.PredictionHistory, error) {
	if err := s.delay(ctx, 1); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	start := s.now().UTC().AddDate(0, 0, -historyDays+1)
	out := make([]models.PredictionHistory, historyDays)
	for i := range out {
		predicted := 2 + s.rng.IntN(8)
		actual := max(0, predicted+s.rng.IntN(5)-2)
		out[i] = models.PredictionHistory{
			Date:      start.AddDate(0, 0, i).Format("2006-01-02"),
			Predicted: predicted,
			Actual:    actual,
		}
	}
	return out, nil
}

// FetchModelDrift returns daily accuracy against the training baseline.
func (s *Service) FetchModelDrift(ctx context.Context) ([]models.DriftPoint, error) {
	if err := s.delay(ctx, 1); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	baseline := s.metrics.Accuracy
	return s.driftSeries(baseline, func(day int) float64 {
		return baseline - float64(day)*0.002 + (s.rng.Float64()-0.5)*0.03
	}), nil
}

// FetchDataDrift returns the daily mean optical power against its baseline.
func (s *Service) FetchDataDrift(ctx context.Context) ([]models.DriftPoint, error) {
	if err := s.delay(ctx, 1); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	const baseline = -20.0
	return s.driftSeries(baseline, func(day int) float64 {
		return baseline - float64(day)*0.05 + (s.rng.Float64()-0.5)*0.8
	}), nil
}

func (s *Service) driftSeries(baseline float64, value func(day int) float64) []models.DriftPoint {
	start := s.now().UTC().Truncate(24*time.Hour).AddDate(0, 0, -driftDays+1)
	out := make([]models.DriftPoint, driftDays)
	for i := range out {
		out[i] = models.DriftPoint{
			Date:     start.AddDate(0, 0, i),
			Value:    round(value(i), 4),
			Baseline: baseline,
		}
	}
	return out
}

func (s *Service) FetchRealTimeTelemetry(ctx context.Context) (models.TelemetryPoint, error) {
	if err := s.delay(ctx, 0.2); err != nil {
		return models.TelemetryPoint{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.TelemetryPoint{
		Time:           s.now().UTC(),
		OpticalPower:   round(-30+s.rng.Float64()*15, 2),
		LatencyMS:      round(5+s.rng.Float64()*75, 2),
		Disconnections: s.rng.IntN(6),
	}, nil
}

func (s *Service) FetchAlerts(ctx context.Context) ([]models.Alert, error) {
	if err := s.delay(ctx, 1); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	return []models.Alert{
		{ID: 1, Rule: "optical_power_low", Severity: models.SeverityCritical, Status: "firing", Message: "ONU-ZTE-4A2B1C optical power at -28.4 dBm", Value: -28.4, StartedAt: now.Add(-12 * time.Minute)},
		{ID: 2, Rule: "latency_high", Severity: models.SeverityWarning, Status: "firing", Message: "OLT-02 PON 3 latency above 50 ms", Value: 63.2, StartedAt: now.Add(-40 * time.Minute)},
		{ID: 3, Rule: "prediction_critical", Severity: models.SeverityInfo, Status: "firing", Message: "New critical failure prediction for Client 1042", Value: 87, StartedAt: now.Add(-2 * time.Hour)},
	}, nil
}

func (s *Service) FetchUsers(ctx context.Context) ([]models.User, error) {
	if err := s.delay(ctx, 1); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	return []models.User{
		{ID: 1, Name: "Admin", Email: "admin@ftth.local", Role: "Admin", LastLogin: now.Add(-1 * time.Hour)},
		{ID: 2, Name: "NOC Operator", Email: "noc@ftth.local", Role: "Operator", LastLogin: now.Add(-3 * time.Hour)},
		{ID: 3, Name: "Director", Email: "board@ftth.local", Role: "Executive", LastLogin: now.AddDate(0, 0, -2)},
		{ID: 4, Name: "Auditor", Email: "guest@ftth.local", Role: "Guest", LastLogin: now.AddDate(0, 0, -9)},
	}, nil
}

// Retrain simulates a training run: the model version is bumped and
// predictions are regenerated.
func (s *Service) Retrain(ctx context.Context) (models.ModelMetrics, error) {
	if err := s.delay(ctx, 6); err != nil {
		return models.ModelMetrics{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.metrics = s.buildMetrics(s.now())
	s.predictions = s.buildPredictions()
	return s.metrics, nil
}

func buildClients() []models.Client {
	out := make([]models.Client, clientCount)
	for i := range out {
		status := "active"
		if i%10 == 0 {
			status = "inactive"
		}
		out[i] = models.Client{
			ID:       1000 + i,
			Code:     fmt.Sprintf("C%d", 1000+i),
			Name:     fmt.Sprintf("Mock Client %d", i+1),
			Document: fmt.Sprintf("000.000.000-%02d", i),
			Status:   status,
		}
	}
	return out
}

func buildServiceOrders(now time.Time) []models.ServiceOrder {
	statuses := []string{"open", "in_progress", "closed", "canceled"}
	out := make([]models.ServiceOrder, serviceOrderCount)
	for i := range out {
		service := "Fiber installation"
		if i%2 == 1 {
			service = "Network maintenance"
		}
		out[i] = models.ServiceOrder{
			ID:           5000 + i,
			Protocol:     fmt.Sprintf("OS2023%d", 5000+i),
			ClientName:   fmt.Sprintf("Mock Client %d", i+3),
			Service:      service,
			Status:       statuses[i%len(statuses)],
			CreationDate: now.UTC().AddDate(0, 0, -i).Format("2006-01-02"),
		}
	}
	return out
}

// buildMetrics must be called with s.mu held or before s is shared.
func (s *Service) buildMetrics(now time.Time) models.ModelMetrics {
	return models.ModelMetrics{
		Version:      fmt.Sprintf("v2.%d.0", s.generation),
		Algorithm:    "XGBoost",
		TrainingDate: now.UTC().Truncate(time.Second),
		Accuracy:     round(0.9+s.rng.Float64()*0.06, 4),
		F1Score:      round(0.85+s.rng.Float64()*0.08, 2),
		RocAUC:       round(0.9+s.rng.Float64()*0.07, 2),
	}
}

func (s *Service) buildPredictions() []models.Prediction {
	timeframes := []string{"24h", "48h", "72h"}
	causes := []string{
		"Optical power degradation",
		"Latency spikes on PON",
		"Recurring disconnections",
		"OLT port overheating",
	}
	out := make([]models.Prediction, predictionCount)
	for i := range out {
		const base = 20.0
		contribs := make([]models.FeatureContribution, 0, 4)
		sum := 0.0
		for _, f := range features[:4] {
			c := round(-10+s.rng.Float64()*30, 2)
			sum += c
			contribs = append(contribs, models.FeatureContribution{Feature: f, Value: featureValue(f, s.rng), Contribution: c})
		}
		final := clamp(base+sum, 0, 100)
		entity := fmt.Sprintf("ONU-ZTE-%06X", s.rng.IntN(0xFFFFFF))
		if i%2 == 1 {
			entity = fmt.Sprintf("Client %d", 1000+s.rng.IntN(clientCount))
		}
		out[i] = models.Prediction{
			ID:             fmt.Sprintf("pred-%d-%d", s.generation, i+1),
			Entity:         entity,
			RiskPercentage: int(math.Round(final)),
			Timeframe:      timeframes[s.rng.IntN(len(timeframes))],
			Details:        causes[s.rng.IntN(len(causes))],
			Explanation: models.Explanation{
				BaseValue:       base,
				FinalPrediction: round(final, 2),
				Contributions:   contribs,
			},
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RiskPercentage > out[j].RiskPercentage })
	return out
}

func featureValue(feature string, rng *rand.Rand) string {
	switch feature {
	case "optical_power_trend":
		return fmt.Sprintf("%.1f dBm/day", -rng.Float64())
	case "latency_p95":
		return fmt.Sprintf("%.0f ms", 10+rng.Float64()*80)
	case "disconnections_7d":
		return fmt.Sprintf("%d", rng.IntN(12))
	case "olt_temperature":
		return fmt.Sprintf("%.0f C", 35+rng.Float64()*30)
	default:
		return ""
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
