package eventbus

import "testing"

func TestPublishFansOutSynchronously(t *testing.T) {
	b := New("sess-test")
	var got []Kind
	b.Subscribe(func(e Event) { got = append(got, e.Kind) })
	b.Subscribe(func(e Event) { got = append(got, e.Kind) })

	b.Publish(BetPlaced, nil)

	if len(got) != 2 {
		t.Fatalf("expected both subscribers to have run synchronously, got %d calls", len(got))
	}
	if got[0] != BetPlaced || got[1] != BetPlaced {
		t.Fatalf("unexpected kinds delivered: %v", got)
	}
}

func TestHistoryRingEviction(t *testing.T) {
	b := New("sess-test")
	for i := 0; i < ringCapacity+10; i++ {
		b.Publish(CheckpointWritten, i)
	}
	hist := b.History()
	if len(hist) != ringCapacity {
		t.Fatalf("expected ring capped at %d, got %d", ringCapacity, len(hist))
	}
	first := hist[0].Payload.(int)
	if first != 10 {
		t.Fatalf("expected oldest retained event payload 10 (first 10 evicted), got %d", first)
	}
	if b.Total() != uint64(ringCapacity+10) {
		t.Fatalf("expected total count to track all published events, got %d", b.Total())
	}
}

func TestNoPackageGlobalBus(t *testing.T) {
	a := New("sess-a")
	c := New("sess-c")
	a.Publish(SessionStart, nil)
	if c.Total() != 0 {
		t.Fatalf("expected independent buses to not share state")
	}
}
