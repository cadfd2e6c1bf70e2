package poller

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"guardian/internal/metrics"
	"guardian/internal/models"
)

type Fetcher interface {
	FetchRealTimeTelemetry(ctx context.Context) (models.TelemetryPoint, error)
}

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type stdTicker struct{ t *time.Ticker }

func (s stdTicker) C() <-chan time.Time { return s.t.C }
func (s stdTicker) Stop()               { s.t.Stop() }

func newStdTicker(d time.Duration) Ticker { return stdTicker{t: time.NewTicker(d)} }

// Interval converts the preference value (seconds) into a polling period.
func Interval(p models.SystemPreferences) time.Duration {
	if p.RefreshInterval <= 0 {
		return 300 * time.Second
	}
	return time.Duration(p.RefreshInterval) * time.Second
}

// Handle controls one running poll loop.
type Handle struct {
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
	once     sync.Once
}

// Stop cancels the loop and waits for it to exit. Calling it again is a no-op.
func (h *Handle) Stop() {
	h.once.Do(h.cancel)
	<-h.done
}

func (h *Handle) Interval() time.Duration { return h.interval }

func (h *Handle) Done() <-chan struct{} { return h.done }

// Poller owns at most one loop at a time.
type Poller struct {
	src       Fetcher
	window    *Window
	log       *slog.Logger
	newTicker func(time.Duration) Ticker
	timeout   time.Duration

	mu      sync.Mutex
	parent  context.Context
	current *Handle

	lmu       sync.RWMutex
	listeners []func(models.TelemetryPoint)
}

func New(src Fetcher, window *Window, logger *slog.Logger) *Poller {
	return &Poller{
		src:       src,
		window:    window,
		log:       logger,
		newTicker: newStdTicker,
		timeout:   10 * time.Second,
	}
}

func (p *Poller) Window() *Window { return p.window }

// OnPoint registers fn to receive every appended point, in tick order.
func (p *Poller) OnPoint(fn func(models.TelemetryPoint)) {
	p.lmu.Lock()
	p.listeners = append(p.listeners, fn)
	p.lmu.Unlock()
}

// OnPointAsync registers fn behind a queue of the given size, drained by a
// worker bound to ctx. A tick never waits for fn; points that find the queue
// full are dropped.
func (p *Poller) OnPointAsync(ctx context.Context, buffer int, fn func(models.TelemetryPoint)) {
	if buffer < 1 {
		buffer = 1
	}
	queue := make(chan models.TelemetryPoint, buffer)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case pt := <-queue:
				fn(pt)
			}
		}
	}()
	p.OnPoint(func(pt models.TelemetryPoint) {
		select {
		case queue <- pt:
		default:
			metrics.TelemetryTicksTotal.WithLabelValues("listener_dropped").Inc()
			p.log.Warn("telemetry listener queue full, point dropped", "time", pt.Time)
		}
	})
}

// Start stops any running loop and starts a new one bound to ctx.
func (p *Poller) Start(ctx context.Context, interval time.Duration) *Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.parent = ctx
	if p.current != nil {
		p.current.Stop()
	}
	p.current = p.spawn(ctx, interval)
	return p.current
}

// SetInterval restarts the loop with a new period. The old timer is fully
// stopped before the new one exists.
func (p *Poller) SetInterval(interval time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil || p.current.interval == interval {
		return
	}
	p.log.Info("poll interval changed", "from", p.current.interval, "to", interval)
	p.current.Stop()
	p.current = p.spawn(p.parent, interval)
}

// Stop ends the running loop, if any.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil {
		p.current.Stop()
		p.current = nil
	}
}

func (p *Poller) spawn(parent context.Context, interval time.Duration) *Handle {
	ctx, cancel := context.WithCancel(parent)
	h := &Handle{interval: interval, cancel: cancel, done: make(chan struct{})}
	t := p.newTicker(interval)
	metrics.PollIntervalSeconds.Set(interval.Seconds())
	go p.loop(ctx, t, h.done)
	return h
}

func (p *Poller) loop(ctx context.Context, t Ticker, done chan struct{}) {
	defer close(done)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C():
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	fctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	point, err := p.src.FetchRealTimeTelemetry(fctx)
	if err != nil {
		if ctx.Err() == nil {
			p.log.Warn("telemetry fetch failed", "err", err)
		}
		metrics.TelemetryTicksTotal.WithLabelValues("error").Inc()
		return
	}
	n := p.window.Append(point)
	metrics.TelemetryTicksTotal.WithLabelValues("ok").Inc()
	metrics.TelemetryWindowSize.Set(float64(n))

	p.lmu.RLock()
	listeners := slices.Clone(p.listeners)
	p.lmu.RUnlock()
	for _, fn := range listeners {
		fn(point)
	}
}
