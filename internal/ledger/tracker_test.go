package ledger

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestTracker_RecordAndLookup(t *testing.T) {
	tracker := NewTracker(10)

	tracker.Record(Confirmation{TxRef: "tx1", Nonce: "n1", From: "a", To: "b", Amount: 5})

	conf, ok := tracker.Lookup("n1")
	if !ok {
		t.Fatal("expected n1 to be tracked")
	}
	if conf.TxRef != "tx1" {
		t.Errorf("expected tx1, got %s", conf.TxRef)
	}

	if _, ok := tracker.Lookup("unknown"); ok {
		t.Error("expected unknown nonce to be absent")
	}
}

func TestTracker_IgnoresEmptyNonce(t *testing.T) {
	tracker := NewTracker(10)

	tracker.Record(Confirmation{TxRef: "tx1"})

	if _, ok := tracker.Lookup(""); ok {
		t.Error("expected empty nonce to be ignored")
	}
}

func TestTracker_EvictsOldest(t *testing.T) {
	tracker := NewTracker(3)

	for i := 0; i < 5; i++ {
		nonce := fmt.Sprintf("n%d", i)
		tracker.Record(Confirmation{TxRef: "tx-" + nonce, Nonce: nonce})
	}

	if _, ok := tracker.Lookup("n0"); ok {
		t.Error("expected n0 to be evicted")
	}
	if _, ok := tracker.Lookup("n1"); ok {
		t.Error("expected n1 to be evicted")
	}
	for i := 2; i < 5; i++ {
		if _, ok := tracker.Lookup(fmt.Sprintf("n%d", i)); !ok {
			t.Errorf("expected n%d to be retained", i)
		}
	}
}

func TestTracker_Run(t *testing.T) {
	tracker := NewTracker(10)
	ch := make(chan Confirmation, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		tracker.Run(ctx, ch)
		close(done)
	}()

	ch <- Confirmation{TxRef: "tx1", Nonce: "n1"}
	ch <- Confirmation{TxRef: "tx2", Nonce: "n2"}
	close(ch)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after channel close")
	}

	if _, ok := tracker.Lookup("n1"); !ok {
		t.Error("expected n1 to be tracked")
	}
	if _, ok := tracker.Lookup("n2"); !ok {
		t.Error("expected n2 to be tracked")
	}
}
