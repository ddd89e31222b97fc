package reconcile

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"game-token-engine/internal/domain"
	"game-token-engine/internal/ledger/stub"
	"game-token-engine/internal/storage/memory"
)

const baseMs = int64(1700000000000)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func fixedClock() func() time.Time {
	at := time.UnixMilli(baseMs + 3600_000).UTC()
	return func() time.Time { return at }
}

func strPtr(s string) *string { return &s }

func seedMint(t *testing.T, store *memory.MintEventStore, id string, amount, poolShare int64, poolTx, stakeholderTx string, fail bool) {
	t.Helper()
	ctx := context.Background()

	event := &domain.MintEvent{
		EventID:          id,
		Amount:           amount,
		PoolShare:        poolShare,
		StakeholderShare: amount - poolShare,
		Status:           domain.MintStatusPending,
		CreatedAt:        baseMs,
	}
	require.NoError(t, store.Insert(ctx, event))

	if poolTx != "" {
		require.NoError(t, store.SetLegTxRef(ctx, id, domain.LegPool, poolTx))
	}
	if stakeholderTx != "" {
		require.NoError(t, store.SetLegTxRef(ctx, id, domain.LegStakeholder, stakeholderTx))
	}
	if fail {
		require.NoError(t, store.MarkFailed(ctx, id, domain.LegStakeholder, "account frozen", baseMs+1))
	} else if poolTx != "" && stakeholderTx != "" {
		require.NoError(t, store.MarkCompleted(ctx, id, baseMs+1))
	}
}

func TestReconciler_ConsistentReplay(t *testing.T) {
	ctx := context.Background()
	mints := memory.NewMintEventStore()
	claims := memory.NewClaimRequestStore()

	seedMint(t, mints, "evt-1", 100, 80, "tx-p1", "tx-s1", false)
	seedMint(t, mints, "evt-2", 100, 80, "tx-p2", "tx-s2", false)

	require.NoError(t, claims.Insert(ctx, &domain.ClaimRequest{
		IdempotencyKey: "key-1", PlayerID: "player-1", Amount: 50,
		Status: domain.ClaimStatusReserved, CreatedAt: baseMs,
	}))
	require.NoError(t, claims.Resolve(ctx, "key-1", domain.ClaimStatusCompleted, "", strPtr("tx-c1"), baseMs+2))

	rejectedAt := baseMs
	require.NoError(t, claims.Insert(ctx, &domain.ClaimRequest{
		IdempotencyKey: "key-2", PlayerID: "player-2", Amount: 500,
		Status: domain.ClaimStatusRejected, Reason: domain.ReasonInsufficientPool,
		CreatedAt: baseMs, ResolvedAt: &rejectedAt,
	}))

	r := New(Options{MintEventStore: mints, ClaimRequestStore: claims, Logger: testLogger()}).
		WithClock(fixedClock())

	report, err := r.Run(ctx)
	require.NoError(t, err)

	assert.True(t, report.Consistent())
	assert.Equal(t, int64(160), report.Pool.TotalMinted)
	assert.Equal(t, int64(40), report.Stakeholder.TotalMinted)
	assert.Equal(t, int64(50), report.Pool.TotalClaimed)
	assert.Equal(t, int64(110), report.Pool.Balance)

	assert.Equal(t, 2, report.Mints.Total)
	assert.Equal(t, 2, report.Mints.Completed)
	assert.Equal(t, 2, report.Claims.Total)
	assert.Equal(t, 1, report.Claims.Completed)
	assert.Equal(t, 1, report.Claims.Rejected)

	assert.Len(t, report.MintRows, 2)
	assert.Len(t, report.ClaimRows, 2)
}

func TestReconciler_PartialFailureCountsConfirmedLeg(t *testing.T) {
	ctx := context.Background()
	mints := memory.NewMintEventStore()
	claims := memory.NewClaimRequestStore()

	// Pool leg confirmed, stakeholder leg failed.
	seedMint(t, mints, "evt-1", 100, 80, "tx-p1", "", true)

	r := New(Options{MintEventStore: mints, ClaimRequestStore: claims, Logger: testLogger()}).
		WithClock(fixedClock())

	report, err := r.Run(ctx)
	require.NoError(t, err)

	assert.True(t, report.Consistent())
	assert.Equal(t, int64(80), report.Pool.TotalMinted)
	assert.Equal(t, int64(0), report.Stakeholder.TotalMinted)
	assert.Equal(t, 1, report.Mints.Failed)
}

func TestReconciler_StaleReservedClaims(t *testing.T) {
	ctx := context.Background()
	mints := memory.NewMintEventStore()
	claims := memory.NewClaimRequestStore()

	// Reserved an hour before the reconciliation run: stale.
	require.NoError(t, claims.Insert(ctx, &domain.ClaimRequest{
		IdempotencyKey: "key-old", PlayerID: "player-1", Amount: 10,
		Status: domain.ClaimStatusReserved, CreatedAt: baseMs,
	}))
	// Reserved just now: still in flight.
	require.NoError(t, claims.Insert(ctx, &domain.ClaimRequest{
		IdempotencyKey: "key-new", PlayerID: "player-2", Amount: 10,
		Status: domain.ClaimStatusReserved, CreatedAt: baseMs + 3590_000,
	}))

	r := New(Options{
		MintEventStore:    mints,
		ClaimRequestStore: claims,
		StaleAfter:        10 * time.Minute,
		Logger:            testLogger(),
	}).WithClock(fixedClock())

	report, err := r.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"key-old"}, report.StaleClaimsResolved)
	assert.Equal(t, 1, report.Claims.Failed)
	assert.Equal(t, 1, report.Claims.Reserved)

	resolved, err := claims.GetByKey(ctx, "key-old")
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimStatusFailed, resolved.Status)
	assert.Equal(t, domain.ReasonStale, resolved.Reason)
}

func TestReconciler_DetectsOverdraw(t *testing.T) {
	ctx := context.Background()
	mints := memory.NewMintEventStore()
	claims := memory.NewClaimRequestStore()

	seedMint(t, mints, "evt-1", 100, 80, "tx-p1", "tx-s1", false)

	// A claim larger than all pool credits should never exist; if it does,
	// reconciliation must flag it.
	require.NoError(t, claims.Insert(ctx, &domain.ClaimRequest{
		IdempotencyKey: "key-1", PlayerID: "player-1", Amount: 200,
		Status: domain.ClaimStatusReserved, CreatedAt: baseMs,
	}))
	require.NoError(t, claims.Resolve(ctx, "key-1", domain.ClaimStatusCompleted, "", strPtr("tx-c1"), baseMs+1))

	r := New(Options{MintEventStore: mints, ClaimRequestStore: claims, Logger: testLogger()}).
		WithClock(fixedClock())

	report, err := r.Run(ctx)
	require.NoError(t, err)

	assert.False(t, report.Consistent())
	assert.NotEmpty(t, report.Discrepancies)
}

func TestReconciler_LedgerComparison(t *testing.T) {
	ctx := context.Background()
	mints := memory.NewMintEventStore()
	claims := memory.NewClaimRequestStore()

	seedMint(t, mints, "evt-1", 100, 80, "tx-p1", "tx-s1", false)

	stubLedger := stub.New()
	stubLedger.Fund("reward-pool", 80)
	stubLedger.Fund("stakeholder", 20)

	r := New(Options{
		MintEventStore:     mints,
		ClaimRequestStore:  claims,
		Client:             stubLedger,
		PoolAccount:        "reward-pool",
		StakeholderAccount: "stakeholder",
		Logger:             testLogger(),
	}).WithClock(fixedClock())

	report, err := r.Run(ctx)
	require.NoError(t, err)

	assert.True(t, report.Consistent())
	require.NotNil(t, report.Pool.LedgerBalance)
	assert.Equal(t, int64(80), *report.Pool.LedgerBalance)
	require.NotNil(t, report.Stakeholder.LedgerBalance)
	assert.Equal(t, int64(20), *report.Stakeholder.LedgerBalance)
}

func TestReconciler_LedgerMismatchFlagged(t *testing.T) {
	ctx := context.Background()
	mints := memory.NewMintEventStore()
	claims := memory.NewClaimRequestStore()

	seedMint(t, mints, "evt-1", 100, 80, "tx-p1", "tx-s1", false)

	stubLedger := stub.New()
	stubLedger.Fund("reward-pool", 75) // someone moved funds out of band

	r := New(Options{
		MintEventStore:    mints,
		ClaimRequestStore: claims,
		Client:            stubLedger,
		PoolAccount:       "reward-pool",
		Logger:            testLogger(),
	}).WithClock(fixedClock())

	report, err := r.Run(ctx)
	require.NoError(t, err)

	assert.False(t, report.Consistent())
}
