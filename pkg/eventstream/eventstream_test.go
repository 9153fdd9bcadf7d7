package eventstream

import (
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestTimedRecordsCompletedEvent(t *testing.T) {
	s := New(zaptest.NewLogger(t), "job-1")

	err := s.Timed("jd_structurer", func() (int, float64, []string, error) {
		return 100, 0.01, nil, nil
	})
	if err != nil {
		t.Fatalf("Timed: %v", err)
	}

	events := s.Events()
	if len(events) != 2 {
		t.Fatalf("expected started+completed events, got %d", len(events))
	}
	if events[0].Status != "started" || events[1].Status != "completed" {
		t.Fatalf("unexpected event sequence: %+v", events)
	}
	if events[1].Tokens != 100 {
		t.Fatalf("expected tokens recorded, got %d", events[1].Tokens)
	}
}

func TestTimedRecordsFailedEvent(t *testing.T) {
	s := New(zaptest.NewLogger(t), "job-2")

	err := s.Timed("bullets", func() (int, float64, []string, error) {
		return 0, 0, nil, errors.New("gateway unavailable")
	})
	if err == nil {
		t.Fatal("expected the wrapped error to propagate")
	}

	events := s.Events()
	if events[len(events)-1].Status != "failed" {
		t.Fatalf("expected a failed event, got %s", events[len(events)-1].Status)
	}
}

func TestTimedRecordsDegradedEvent(t *testing.T) {
	s := New(zaptest.NewLogger(t), "job-3")

	_ = s.Timed("stitch", func() (int, float64, []string, error) {
		return 10, 0, []string{"role dropped below minimum bullet count"}, nil
	})

	trace := s.Trace()
	last := trace[len(trace)-1]
	if last.Status != "degraded" {
		t.Fatalf("expected degraded status, got %s", last.Status)
	}
	if last.DegradationFlag == "" {
		t.Fatal("expected a non-empty degradation flag")
	}
}
