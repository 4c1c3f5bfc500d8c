package state

import (
	"context"
	"sync"
	"time"

	"github.com/thatsimonsguy/grow-controller/internal/model"
)

type LoopState string

const (
	LoopStarting LoopState = "starting"
	LoopRunning  LoopState = "running"
	LoopStopped  LoopState = "stopped"
)

// Status is a point-in-time copy of what the controller is doing.
type Status struct {
	Loop         LoopState          `json:"loop"`
	StartedAt    time.Time          `json:"started_at"`
	SafeMode     bool               `json:"safe_mode"`
	Cycles       int64              `json:"cycles"`
	Delivered    int64              `json:"delivered"`
	Failed       int64              `json:"failed"`
	Skipped      int64              `json:"skipped"`
	LastCycle    *model.CycleRecord `json:"last_cycle,omitempty"`
	LastReported *model.CycleRecord `json:"last_reported,omitempty"`
}

// Tracker is written by the control loop and read by the API.
type Tracker struct {
	mu     sync.RWMutex
	status Status
}

func NewTracker(startedAt time.Time, safeMode bool) *Tracker {
	return &Tracker{status: Status{
		Loop:      LoopStarting,
		StartedAt: startedAt,
		SafeMode:  safeMode,
	}}
}

func (t *Tracker) SetLoopState(s LoopState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.Loop = s
}

func (t *Tracker) ObserveCycle(_ context.Context, rec model.CycleRecord) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.Loop = LoopRunning
	t.status.Cycles++
	switch {
	case rec.Skipped:
		t.status.Skipped++
	case rec.Outcome.Success:
		t.status.Delivered++
	default:
		t.status.Failed++
	}

	t.status.LastCycle = &rec
	if !rec.Skipped {
		t.status.LastReported = &rec
	}
	return nil
}

// Snapshot returns a copy safe to use without holding the lock.
func (t *Tracker) Snapshot() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := t.status
	if out.LastCycle != nil {
		rec := *out.LastCycle
		out.LastCycle = &rec
	}
	if out.LastReported != nil {
		rec := *out.LastReported
		out.LastReported = &rec
	}
	return out
}
