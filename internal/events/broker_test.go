package events

import (
	"context"
	"testing"
	"time"

	"estatehub.org/internal/community"
)

func receive(t *testing.T, ch <-chan Event) (Event, bool) {
	t.Helper()
	select {
	case evt := <-ch:
		return evt, true
	case <-time.After(50 * time.Millisecond):
		return Event{}, false
	}
}

func TestBrokerFiltersByTenant(t *testing.T) {
	b := NewBroker(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tenantA := b.Subscribe(ctx, community.TenantScope("tenant-a"))
	platform := b.Subscribe(ctx, community.PlatformScope())

	b.Publish(Event{Type: "sticker.decided", TenantID: "tenant-b", ResourceID: "stk-9"})
	b.Publish(Event{Type: "sticker.decided", TenantID: "tenant-a", ResourceID: "stk-1"})

	evt, ok := receive(t, tenantA)
	if !ok || evt.ResourceID != "stk-1" {
		t.Fatalf("tenant subscriber got %+v (ok=%v)", evt, ok)
	}
	if evt, ok := receive(t, tenantA); ok {
		t.Fatalf("tenant subscriber must not see foreign events, got %+v", evt)
	}

	first, _ := receive(t, platform)
	second, _ := receive(t, platform)
	if first.ResourceID != "stk-9" || second.ResourceID != "stk-1" {
		t.Fatalf("platform subscriber got %+v, %+v", first, second)
	}
}

func TestBrokerClosesOnCancel(t *testing.T) {
	b := NewBroker(1)
	ctx, cancel := context.WithCancel(context.Background())
	ch := b.Subscribe(ctx, community.PlatformScope())
	cancel()

	select {
	case _, open := <-ch:
		if open {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("subscription not closed")
	}
	if n := b.Subscribers(); n != 0 {
		t.Fatalf("expected no subscribers, got %d", n)
	}
}

func TestBrokerDropsForSlowSubscriber(t *testing.T) {
	b := NewBroker(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := b.Subscribe(ctx, community.PlatformScope())

	b.Publish(Event{ResourceID: "one"})
	b.Publish(Event{ResourceID: "two"})

	evt, _ := receive(t, ch)
	if evt.ResourceID != "one" {
		t.Fatalf("unexpected event %+v", evt)
	}
	if _, ok := receive(t, ch); ok {
		t.Fatal("second event should have been dropped")
	}
}
