package store

import (
	"context"
	"testing"
	"time"

	"github.com/slonigiraf/slonledger/internal/record"
)

func TestScheduledEvents_DeadlineOrdering(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	late, err := s.InsertScheduledEvent(ctx, record.EventTypeLog, base.Add(2*time.Hour), "late")
	if err != nil {
		t.Fatalf("InsertScheduledEvent() failed: %v", err)
	}
	early, err := s.InsertScheduledEvent(ctx, record.EventTypeLog, base.Add(time.Hour), "early")
	if err != nil {
		t.Fatalf("InsertScheduledEvent() failed: %v", err)
	}
	if late == early {
		t.Fatal("two events share an id")
	}

	// Before either deadline: nothing is due.
	_, ok, err := s.EarliestDueEvent(ctx, record.EventTypeLog, base)
	if err != nil {
		t.Fatalf("EarliestDueEvent() failed: %v", err)
	}
	if ok {
		t.Error("event reported due before its deadline")
	}

	// After both: the earlier deadline wins regardless of insert order.
	ev, ok, err := s.EarliestDueEvent(ctx, record.EventTypeLog, base.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("EarliestDueEvent() failed: %v", err)
	}
	if !ok {
		t.Fatal("no event due after both deadlines")
	}
	if ev.Data != "early" {
		t.Errorf("due event data = %q, want %q", ev.Data, "early")
	}
}

func TestEarliestDueEvent_FiltersByType(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	if _, err := s.InsertScheduledEvent(ctx, record.EventTypeBan, base, "ban"); err != nil {
		t.Fatalf("InsertScheduledEvent() failed: %v", err)
	}

	_, ok, err := s.EarliestDueEvent(ctx, record.EventTypeLog, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("EarliestDueEvent() failed: %v", err)
	}
	if ok {
		t.Error("LOG poll returned a BAN event")
	}
}

func TestDeleteScheduledEvent_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	id, err := s.InsertScheduledEvent(ctx, record.EventTypeLog, time.Now(), "x")
	if err != nil {
		t.Fatalf("InsertScheduledEvent() failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := s.DeleteScheduledEvent(ctx, id); err != nil {
			t.Fatalf("DeleteScheduledEvent() iteration %d failed: %v", i, err)
		}
	}

	pending, err := s.AllScheduledEvents(ctx)
	if err != nil {
		t.Fatalf("AllScheduledEvents() failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("got %d pending events, want 0", len(pending))
	}
}

func TestNextDeadline(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, ok, err := s.NextDeadline(ctx)
	if err != nil {
		t.Fatalf("NextDeadline() failed: %v", err)
	}
	if ok {
		t.Error("empty table reported a deadline")
	}

	deadline := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	if _, err := s.InsertScheduledEvent(ctx, record.EventTypeLog, deadline, "x"); err != nil {
		t.Fatalf("InsertScheduledEvent() failed: %v", err)
	}

	got, ok, err := s.NextDeadline(ctx)
	if err != nil {
		t.Fatalf("NextDeadline() failed: %v", err)
	}
	if !ok {
		t.Fatal("no deadline after insert")
	}
	if !got.Equal(deadline) {
		t.Errorf("NextDeadline() = %v, want %v", got, deadline)
	}
}

func TestInsertScheduledEvent_FiresChangeHook(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	fired := make(chan struct{}, 1)
	s.SetChangeHook(func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})

	if _, err := s.InsertScheduledEvent(ctx, record.EventTypeLog, time.Now(), "x"); err != nil {
		t.Fatalf("InsertScheduledEvent() failed: %v", err)
	}

	select {
	case <-fired:
	default:
		t.Error("change hook did not fire on insert")
	}
}
