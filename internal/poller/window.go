package poller

import (
	"sync"

	"guardian/internal/models"
)

const WindowSize = 60

// Window is the rolling telemetry buffer. Points are only appended; once full
// the oldest one is dropped.
type Window struct {
	mu       sync.RWMutex
	buffer   []models.TelemetryPoint
	capacity int
}

func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = WindowSize
	}
	return &Window{
		buffer:   make([]models.TelemetryPoint, 0, capacity),
		capacity: capacity,
	}
}

func (w *Window) Append(p models.TelemetryPoint) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buffer) >= w.capacity {
		copy(w.buffer, w.buffer[1:])
		w.buffer = w.buffer[:len(w.buffer)-1]
	}
	w.buffer = append(w.buffer, p)
	return len(w.buffer)
}

// Points returns the window oldest first.
func (w *Window) Points() []models.TelemetryPoint {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]models.TelemetryPoint, len(w.buffer))
	copy(out, w.buffer)
	return out
}

func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.buffer)
}
