package ids

import (
	"testing"
	"time"
)

func TestNewIsSortableAndValid(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := NewAt(base)
	b := NewAt(base.Add(time.Millisecond))
	if a >= b {
		t.Fatalf("expected %s < %s", a, b)
	}
	if !Valid(a) || !Valid(b) {
		t.Fatalf("generated ids must validate")
	}
	if Valid("not-an-id") {
		t.Fatalf("garbage must not validate")
	}
}
