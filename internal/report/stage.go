package report

import (
	"sync"
	"time"
)

type Bar struct {
	Label string
	Value float64
}

type Series struct {
	Name   string
	Times  []time.Time
	Values []float64
}

// Widget is a chart laid out on the off-screen stage, waiting to be
// rasterized. It carries either bars or time series.
type Widget struct {
	ID     string
	Title  string
	Width  int
	Height int
	Bars   []Bar
	Series []Series
}

// Stage holds widgets that are rendered but never shown.
type Stage struct {
	mu      sync.Mutex
	order   []string
	widgets map[string]Widget
}

func NewStage() *Stage {
	return &Stage{widgets: map[string]Widget{}}
}

func (s *Stage) Mount(w Widget) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.widgets[w.ID]; !ok {
		s.order = append(s.order, w.ID)
	}
	s.widgets[w.ID] = w
}

// Mounted returns the widgets in mount order.
func (s *Stage) Mounted() []Widget {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Widget, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.widgets[id])
	}
	return out
}

func (s *Stage) Teardown() {
	s.mu.Lock()
	s.order = nil
	s.widgets = map[string]Widget{}
	s.mu.Unlock()
}
