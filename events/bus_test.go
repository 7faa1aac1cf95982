package events_test

import (
	"context"
	"testing"

	"github.com/pop-os/upgrade-daemon/events"
)

func TestBus_SendThenDrainPreservesOrder(t *testing.T) {
	bus := events.NewBus()
	ctx := context.Background()

	bus.Send(ctx, events.Fetching("a"))
	bus.Send(ctx, events.Fetched("a", 1, 2))
	bus.Send(ctx, events.Fetching("b"))

	got := bus.Drain()
	if len(got) != 3 {
		t.Fatalf("Drain() returned %d events, want 3", len(got))
	}
	if got[0].PackageName != "a" || got[0].Kind != events.KindFetching {
		t.Errorf("event 0 = %+v, want Fetching(a)", got[0])
	}
	if got[1].PackageName != "a" || got[1].Kind != events.KindFetched {
		t.Errorf("event 1 = %+v, want Fetched(a)", got[1])
	}
	if got[2].PackageName != "b" || got[2].Kind != events.KindFetching {
		t.Errorf("event 2 = %+v, want Fetching(b)", got[2])
	}
}

func TestBus_DrainEmptyReturnsNil(t *testing.T) {
	bus := events.NewBus()
	if got := bus.Drain(); len(got) != 0 {
		t.Errorf("Drain() on empty bus = %v, want empty", got)
	}
}

func TestBus_CloseDropsFurtherSends(t *testing.T) {
	bus := events.NewBus()
	ctx := context.Background()

	bus.Send(ctx, events.NoConnection())
	bus.Close()
	bus.Send(ctx, events.NoConnection())

	got := bus.Drain()
	if len(got) != 1 {
		t.Errorf("Drain() after Close = %d events, want 1 (send-before-close only)", len(got))
	}
}
