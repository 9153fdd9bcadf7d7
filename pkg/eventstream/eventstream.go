// Package eventstream records per-layer pipeline events for observability
// and replay: one structured log line per layer transition via zap, plus
// an in-memory append-only trace consumed by callers that want the raw
// event list (the run API, tests, the eventual TailoringArtifact.Trace).
package eventstream

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/harlowdata/tailorcore/pkg/domain"
)

// Event is one layer transition in a tailoring run.
type Event struct {
	JobID            string
	Layer            string
	Status           string // "started", "completed", "failed", "degraded"
	DurationMillis   int64
	Tokens           int
	CostUSD          float64
	DegradationFlags []string
	Err              string

	at time.Time
}

// Sink collects events for a single job and mirrors each one to a
// structured logger. It is safe for concurrent use by the bounded
// worker pool that runs per-role sub-tasks.
type Sink struct {
	logger *zap.Logger
	jobID  string

	mu     sync.Mutex
	events []Event
}

// New builds a Sink for jobID. logger may not be nil; callers typically
// pass a request-scoped logger already tagged with other fields.
func New(logger *zap.Logger, jobID string) *Sink {
	return &Sink{logger: logger, jobID: jobID}
}

// Record appends ev to the trace and emits a structured log line.
func (s *Sink) Record(ev Event) {
	ev.JobID = s.jobID
	ev.at = time.Now()

	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()

	fields := []zap.Field{
		zap.String("job_id", ev.JobID),
		zap.String("layer", ev.Layer),
		zap.String("status", ev.Status),
		zap.Int64("duration_ms", ev.DurationMillis),
		zap.Int("tokens", ev.Tokens),
		zap.Float64("cost_usd", ev.CostUSD),
	}
	if len(ev.DegradationFlags) > 0 {
		fields = append(fields, zap.Strings("degradation_flags", ev.DegradationFlags))
	}

	switch ev.Status {
	case "failed":
		s.logger.Error("layer failed", append(fields, zap.String("error", ev.Err))...)
	case "degraded":
		s.logger.Warn("layer degraded", fields...)
	default:
		s.logger.Info("layer event", fields...)
	}
}

// Timed records a started/completed (or failed) pair around fn, returning
// whatever error fn returns.
func (s *Sink) Timed(layer string, fn func() (tokens int, cost float64, flags []string, err error)) error {
	start := time.Now()
	s.Record(Event{Layer: layer, Status: "started"})

	tokens, cost, flags, err := fn()
	dur := time.Since(start).Milliseconds()

	status := "completed"
	errText := ""
	if err != nil {
		status = "failed"
		errText = err.Error()
	} else if len(flags) > 0 {
		status = "degraded"
	}

	s.Record(Event{
		Layer:            layer,
		Status:           status,
		DurationMillis:   dur,
		Tokens:           tokens,
		CostUSD:          cost,
		DegradationFlags: flags,
		Err:              errText,
	})
	return err
}

// Events returns a copy of the recorded trace in order.
func (s *Sink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Trace converts the recorded events into domain.TraceEvent entries
// suitable for embedding in a TailoringArtifact.
func (s *Sink) Trace() []domain.TraceEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.TraceEvent, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, domain.TraceEvent{
			JobID:           ev.JobID,
			Layer:           ev.Layer,
			Status:          ev.Status,
			At:              ev.at,
			DurationMS:      ev.DurationMillis,
			Tokens:          ev.Tokens,
			CostUSD:         ev.CostUSD,
			DegradationFlag: strings.Join(ev.DegradationFlags, ","),
		})
	}
	return out
}
