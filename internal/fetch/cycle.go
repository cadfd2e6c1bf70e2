package fetch

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"guardian/internal/apperr"
	"guardian/internal/metrics"
	"guardian/internal/models"
)

type Dataset string

const (
	Clients       Dataset = "hubsoft_clients"
	ServiceOrders Dataset = "hubsoft_service_orders"
	SNMPDevices   Dataset = "snmp_devices"
)

func ParseDataset(v string) (Dataset, bool) {
	switch d := Dataset(v); d {
	case Clients, ServiceOrders, SNMPDevices:
		return d, true
	}
	return "", false
}

type Trigger string

const (
	Mount      Trigger = "mount"
	TabChange  Trigger = "tab_change"
	PageChange Trigger = "page_change"
	Refresh    Trigger = "refresh"
)

func ParseTrigger(v string) Trigger {
	switch t := Trigger(v); t {
	case Mount, TabChange, PageChange, Refresh:
		return t
	}
	return Refresh
}

type State string

const (
	Idle    State = "idle"
	Loading State = "loading"
	Success State = "success"
	Failure State = "failure"
)

const missingHostMessage = "Configure the HubSoft API URL on the settings page before fetching data."

// Source is the remote API a cycle reads from.
type Source interface {
	FetchClients(ctx context.Context, creds models.APICredentials, page int) (models.Page[models.Client], error)
	FetchServiceOrders(ctx context.Context, creds models.APICredentials, page int) (models.Page[models.ServiceOrder], error)
}

// Credentials yields the committed API record at call time.
type Credentials interface {
	Value() models.APICredentials
}

type Recorder interface {
	InsertSyncLog(ctx context.Context, l models.SyncLog) error
}

type Notification struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Snapshot is the observable state of the cycle.
type Snapshot struct {
	State        State                `json:"state"`
	Loading      bool                 `json:"loading"`
	Dataset      Dataset              `json:"dataset"`
	Trigger      Trigger              `json:"trigger,omitempty"`
	Page         int                  `json:"page"`
	Rows         any                  `json:"rows"`
	Raw          json.RawMessage      `json:"raw,omitempty"`
	Paginator    models.PaginatorInfo `json:"paginatorInfo"`
	Error        string               `json:"error,omitempty"`
	LastSync     *models.SyncLog      `json:"lastSync,omitempty"`
	Notification *Notification        `json:"notification,omitempty"`
}

// Cycle runs fetches for the data explorer. Each trigger issues a fresh call
// and nothing orders overlapping calls: results are applied in completion
// order, so a slow earlier response can overwrite a newer one.
type Cycle struct {
	src   Source
	creds Credentials
	rec   Recorder
	log   *slog.Logger
	now   func() time.Time

	mu   sync.Mutex
	snap Snapshot
}

func NewCycle(src Source, creds Credentials, rec Recorder, logger *slog.Logger) *Cycle {
	return &Cycle{
		src:   src,
		creds: creds,
		rec:   rec,
		log:   logger,
		now:   time.Now,
		snap:  Snapshot{State: Idle, Dataset: Clients, Page: 1, Rows: []any{}},
	}
}

func (c *Cycle) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

type result struct {
	rows      any
	raw       json.RawMessage
	paginator models.PaginatorInfo
	notice    *Notification
}

// Run performs one fetch for dataset and returns the state it settled in.
// The call is not cancelled when ctx is.
func (c *Cycle) Run(ctx context.Context, dataset Dataset, trigger Trigger, page int) Snapshot {
	ctx = context.WithoutCancel(ctx)
	if page < 1 {
		page = 1
	}
	creds := c.creds.Value()
	if strings.TrimSpace(creds.GraphQLURL) == "" {
		metrics.FetchCyclesTotal.WithLabelValues(string(dataset), "guarded").Inc()
		c.log.Warn("fetch skipped, api url not configured", "dataset", dataset, "trigger", trigger)
		c.mu.Lock()
		c.snap.Loading = false
		c.snap.Dataset = dataset
		c.snap.Trigger = trigger
		c.snap.Notification = &Notification{Level: "error", Message: missingHostMessage}
		snap := c.snap
		c.mu.Unlock()
		return snap
	}

	c.mu.Lock()
	c.snap.State = Loading
	c.snap.Loading = true
	c.snap.Error = ""
	c.snap.Notification = nil
	c.snap.Dataset = dataset
	c.snap.Trigger = trigger
	c.snap.Page = page
	c.mu.Unlock()
	start := c.now()

	res, err := c.call(ctx, dataset, creds, page)
	elapsed := c.now().Sub(start)
	metrics.FetchDuration.WithLabelValues(string(dataset)).Observe(elapsed.Seconds())

	entry := models.SyncLog{
		Timestamp:      c.now().UTC(),
		Dataset:        string(dataset),
		ResponseTimeMS: elapsed.Milliseconds(),
	}
	c.mu.Lock()
	c.snap.Loading = false
	if err != nil {
		msg := apperr.UserMessage(err, c.log)
		entry.Status = models.SyncError
		entry.HTTPStatus = apperr.HTTPStatus(err)
		entry.Error = msg
		raw, _ := json.Marshal(map[string]string{"error": msg, "details": apperr.Details(err)})
		c.snap.State = Failure
		c.snap.Error = msg
		c.snap.Rows = []any{}
		c.snap.Raw = raw
		c.snap.Paginator = models.PaginatorInfo{}
		c.snap.Notification = &Notification{Level: "error", Message: msg}
	} else {
		entry.Status = models.SyncOK
		entry.HTTPStatus = http.StatusOK
		c.snap.State = Success
		c.snap.Rows = res.rows
		c.snap.Raw = res.raw
		c.snap.Paginator = res.paginator
		c.snap.Page = res.paginator.CurrentPage
		c.snap.Notification = res.notice
	}
	logged := entry
	c.snap.LastSync = &logged
	snap := c.snap
	c.mu.Unlock()

	metrics.FetchCyclesTotal.WithLabelValues(string(dataset), entry.Status).Inc()
	if err := c.rec.InsertSyncLog(ctx, entry); err != nil {
		c.log.Error("persist sync log", "err", err, "dataset", dataset)
	}
	return snap
}

func (c *Cycle) call(ctx context.Context, dataset Dataset, creds models.APICredentials, page int) (result, error) {
	switch dataset {
	case Clients:
		p, err := c.src.FetchClients(ctx, creds, page)
		if err != nil {
			return result{}, err
		}
		return pageResult(p)
	case ServiceOrders:
		p, err := c.src.FetchServiceOrders(ctx, creds, page)
		if err != nil {
			return result{}, err
		}
		return pageResult(p)
	case SNMPDevices:
		r, err := pageResult(models.Page[models.SNMPDevice]{Data: []models.SNMPDevice{}, PaginatorInfo: models.PaginatorInfo{CurrentPage: 1}})
		r.notice = &Notification{Level: "info", Message: "SNMP device listing is not implemented yet."}
		return r, err
	default:
		return result{}, apperr.Invalid("Unknown dataset.", "dataset="+string(dataset))
	}
}

func pageResult[T any](p models.Page[T]) (result, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return result{}, apperr.Transport("The response could not be read.", err.Error(), http.StatusInternalServerError)
	}
	return result{rows: p.Data, raw: raw, paginator: p.PaginatorInfo}, nil
}
