package memory

import (
	"context"
	"errors"
	"testing"

	"game-token-engine/internal/domain"
	"game-token-engine/internal/storage"
)

func reservedClaim(key, player string, amount, createdAt int64) *domain.ClaimRequest {
	return &domain.ClaimRequest{
		IdempotencyKey: key,
		PlayerID:       player,
		Amount:         amount,
		Status:         domain.ClaimStatusReserved,
		CreatedAt:      createdAt,
	}
}

func TestClaimRequestStore_InsertAndGet(t *testing.T) {
	store := NewClaimRequestStore()
	ctx := context.Background()

	c := reservedClaim("key1", "player1", 50, 1704067200000)
	if err := store.Insert(ctx, c); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByKey(ctx, "key1")
	if err != nil {
		t.Fatalf("GetByKey failed: %v", err)
	}
	if got.PlayerID != "player1" || got.Amount != 50 {
		t.Errorf("claim fields mismatch: %+v", got)
	}
}

func TestClaimRequestStore_DuplicateKey(t *testing.T) {
	store := NewClaimRequestStore()
	ctx := context.Background()

	c := reservedClaim("key1", "player1", 50, 1704067200000)
	if err := store.Insert(ctx, c); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}

	err := store.Insert(ctx, c)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestClaimRequestStore_ResolveOnce(t *testing.T) {
	store := NewClaimRequestStore()
	ctx := context.Background()

	if err := store.Insert(ctx, reservedClaim("key1", "player1", 50, 1000)); err != nil {
		t.Fatal(err)
	}

	txRef := "tx-abc"
	if err := store.Resolve(ctx, "key1", domain.ClaimStatusCompleted, "", &txRef, 2000); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	// A terminal request never transitions again.
	err := store.Resolve(ctx, "key1", domain.ClaimStatusFailed, domain.ReasonTransferFailed, nil, 3000)
	if !errors.Is(err, storage.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}

	got, err := store.GetByKey(ctx, "key1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.ClaimStatusCompleted {
		t.Errorf("expected COMPLETED, got %s", got.Status)
	}
	if got.TxRef == nil || *got.TxRef != "tx-abc" {
		t.Errorf("expected txRef tx-abc, got %v", got.TxRef)
	}
	if got.ResolvedAt == nil || *got.ResolvedAt != 2000 {
		t.Errorf("expected resolvedAt 2000, got %v", got.ResolvedAt)
	}
}

func TestClaimRequestStore_ResolveNonTerminalStatus(t *testing.T) {
	store := NewClaimRequestStore()
	ctx := context.Background()

	if err := store.Insert(ctx, reservedClaim("key1", "player1", 50, 1000)); err != nil {
		t.Fatal(err)
	}

	err := store.Resolve(ctx, "key1", domain.ClaimStatusReserved, "", nil, 2000)
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestClaimRequestStore_QueriesAndSums(t *testing.T) {
	store := NewClaimRequestStore()
	ctx := context.Background()

	if err := store.Insert(ctx, reservedClaim("key1", "player1", 50, 1000)); err != nil {
		t.Fatal(err)
	}
	if err := store.Insert(ctx, reservedClaim("key2", "player1", 30, 2000)); err != nil {
		t.Fatal(err)
	}
	if err := store.Insert(ctx, reservedClaim("key3", "player2", 20, 3000)); err != nil {
		t.Fatal(err)
	}

	tx1, tx3 := "tx-1", "tx-3"
	if err := store.Resolve(ctx, "key1", domain.ClaimStatusCompleted, "", &tx1, 1500); err != nil {
		t.Fatal(err)
	}
	if err := store.Resolve(ctx, "key2", domain.ClaimStatusRejected, domain.ReasonInsufficientPool, nil, 2500); err != nil {
		t.Fatal(err)
	}
	if err := store.Resolve(ctx, "key3", domain.ClaimStatusCompleted, "", &tx3, 3500); err != nil {
		t.Fatal(err)
	}

	byPlayer, err := store.GetByPlayer(ctx, "player1")
	if err != nil {
		t.Fatalf("GetByPlayer failed: %v", err)
	}
	if len(byPlayer) != 2 {
		t.Fatalf("expected 2 requests for player1, got %d", len(byPlayer))
	}
	if byPlayer[0].IdempotencyKey != "key1" {
		t.Errorf("wrong order: first is %s", byPlayer[0].IdempotencyKey)
	}

	rejected, err := store.GetByStatus(ctx, domain.ClaimStatusRejected)
	if err != nil {
		t.Fatalf("GetByStatus failed: %v", err)
	}
	if len(rejected) != 1 || rejected[0].IdempotencyKey != "key2" {
		t.Errorf("expected key2 rejected, got %+v", rejected)
	}

	total, err := store.SumCompleted(ctx)
	if err != nil {
		t.Fatalf("SumCompleted failed: %v", err)
	}
	if total != 70 {
		t.Errorf("expected completed total 70, got %d", total)
	}

	playerTotal, err := store.SumCompletedByPlayer(ctx, "player1")
	if err != nil {
		t.Fatalf("SumCompletedByPlayer failed: %v", err)
	}
	if playerTotal != 50 {
		t.Errorf("expected player1 total 50, got %d", playerTotal)
	}
}
