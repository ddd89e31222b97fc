package memory

import (
	"context"
	"errors"
	"testing"

	"game-token-engine/internal/domain"
	"game-token-engine/internal/storage"
)

func pendingEvent(id string, createdAt int64) *domain.MintEvent {
	return &domain.MintEvent{
		EventID:          id,
		Amount:           100,
		PoolShare:        80,
		StakeholderShare: 20,
		Status:           domain.MintStatusPending,
		CreatedAt:        createdAt,
	}
}

func TestMintEventStore_InsertAndGet(t *testing.T) {
	store := NewMintEventStore()
	ctx := context.Background()

	e := pendingEvent("evt1", 1704067200000)
	if err := store.Insert(ctx, e); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByID(ctx, "evt1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Amount != 100 || got.PoolShare != 80 || got.StakeholderShare != 20 {
		t.Errorf("event fields mismatch: %+v", got)
	}
	if got.Status != domain.MintStatusPending {
		t.Errorf("expected PENDING, got %s", got.Status)
	}
}

func TestMintEventStore_DuplicateKey(t *testing.T) {
	store := NewMintEventStore()
	ctx := context.Background()

	e := pendingEvent("evt1", 1704067200000)
	if err := store.Insert(ctx, e); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}

	err := store.Insert(ctx, e)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestMintEventStore_TerminalIsImmutable(t *testing.T) {
	store := NewMintEventStore()
	ctx := context.Background()

	e := pendingEvent("evt1", 1704067200000)
	if err := store.Insert(ctx, e); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.MarkCompleted(ctx, "evt1", 1704067201000); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}

	if err := store.MarkCompleted(ctx, "evt1", 1704067202000); !errors.Is(err, storage.ErrInvalidTransition) {
		t.Errorf("second MarkCompleted: expected ErrInvalidTransition, got %v", err)
	}
	if err := store.MarkFailed(ctx, "evt1", domain.LegPool, "boom", 1704067202000); !errors.Is(err, storage.ErrInvalidTransition) {
		t.Errorf("MarkFailed on terminal: expected ErrInvalidTransition, got %v", err)
	}
	if err := store.SetLegTxRef(ctx, "evt1", domain.LegPool, "tx-late"); !errors.Is(err, storage.ErrInvalidTransition) {
		t.Errorf("SetLegTxRef on terminal: expected ErrInvalidTransition, got %v", err)
	}
}

func TestMintEventStore_GetPending(t *testing.T) {
	store := NewMintEventStore()
	ctx := context.Background()

	if err := store.Insert(ctx, pendingEvent("evt2", 2000)); err != nil {
		t.Fatal(err)
	}
	if err := store.Insert(ctx, pendingEvent("evt1", 1000)); err != nil {
		t.Fatal(err)
	}
	if err := store.Insert(ctx, pendingEvent("evt3", 3000)); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkCompleted(ctx, "evt2", 2500); err != nil {
		t.Fatal(err)
	}

	pending, err := store.GetPending(ctx)
	if err != nil {
		t.Fatalf("GetPending failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending events, got %d", len(pending))
	}
	if pending[0].EventID != "evt1" || pending[1].EventID != "evt3" {
		t.Errorf("wrong order: %s, %s", pending[0].EventID, pending[1].EventID)
	}
}

func TestMintEventStore_Sums(t *testing.T) {
	store := NewMintEventStore()
	ctx := context.Background()

	// Completed event: both legs confirmed.
	if err := store.Insert(ctx, pendingEvent("evt1", 1000)); err != nil {
		t.Fatal(err)
	}
	if err := store.SetLegTxRef(ctx, "evt1", domain.LegPool, "tx-p1"); err != nil {
		t.Fatal(err)
	}
	if err := store.SetLegTxRef(ctx, "evt1", domain.LegStakeholder, "tx-s1"); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkCompleted(ctx, "evt1", 1500); err != nil {
		t.Fatal(err)
	}

	// Partially failed event: pool leg confirmed, stakeholder leg failed.
	// The pool credit still counts because the funds moved.
	if err := store.Insert(ctx, pendingEvent("evt2", 2000)); err != nil {
		t.Fatal(err)
	}
	if err := store.SetLegTxRef(ctx, "evt2", domain.LegPool, "tx-p2"); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkFailed(ctx, "evt2", domain.LegStakeholder, "invalid account", 2500); err != nil {
		t.Fatal(err)
	}

	poolTotal, err := store.SumPoolCredits(ctx)
	if err != nil {
		t.Fatalf("SumPoolCredits failed: %v", err)
	}
	if poolTotal != 160 {
		t.Errorf("expected pool credits 160, got %d", poolTotal)
	}

	stakeTotal, err := store.SumStakeholderCredits(ctx)
	if err != nil {
		t.Fatalf("SumStakeholderCredits failed: %v", err)
	}
	if stakeTotal != 20 {
		t.Errorf("expected stakeholder credits 20, got %d", stakeTotal)
	}
}

func TestMintEventStore_NotFound(t *testing.T) {
	store := NewMintEventStore()
	ctx := context.Background()

	if _, err := store.GetByID(ctx, "nonexistent"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
