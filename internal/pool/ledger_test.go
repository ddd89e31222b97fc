package pool

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"game-token-engine/internal/domain"
	"game-token-engine/internal/storage/memory"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestLedger_ReserveCommit(t *testing.T) {
	l := New(testLogger())
	l.Credit(100)

	res, err := l.TryReserve(40)
	require.NoError(t, err)

	snap := l.Snapshot()
	assert.Equal(t, int64(60), snap.Available)
	assert.Equal(t, int64(40), snap.Reserved)

	require.NoError(t, l.Commit(res))

	snap = l.Snapshot()
	assert.Equal(t, int64(60), snap.Available)
	assert.Equal(t, int64(0), snap.Reserved)
	assert.Equal(t, int64(100), snap.TotalMinted)
	assert.Equal(t, int64(40), snap.TotalClaimed)
}

func TestLedger_ReserveRelease(t *testing.T) {
	l := New(testLogger())
	l.Credit(100)

	res, err := l.TryReserve(40)
	require.NoError(t, err)
	require.NoError(t, l.Release(res))

	snap := l.Snapshot()
	assert.Equal(t, int64(100), snap.Available)
	assert.Equal(t, int64(0), snap.Reserved)
	assert.Equal(t, int64(0), snap.TotalClaimed)
}

func TestLedger_InsufficientBalance(t *testing.T) {
	l := New(testLogger())
	l.Credit(30)

	_, err := l.TryReserve(31)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	// A failed reservation leaves no trace.
	snap := l.Snapshot()
	assert.Equal(t, int64(30), snap.Available)
	assert.Equal(t, int64(0), snap.Reserved)
}

func TestLedger_ReservedFundsNotAvailable(t *testing.T) {
	l := New(testLogger())
	l.Credit(30)

	_, err := l.TryReserve(20)
	require.NoError(t, err)

	// 10 available, 20 reserved: a second 20 must fail.
	_, err = l.TryReserve(20)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	_, err = l.TryReserve(10)
	assert.NoError(t, err)
}

func TestLedger_SettleTwice(t *testing.T) {
	l := New(testLogger())
	l.Credit(50)

	res, err := l.TryReserve(10)
	require.NoError(t, err)
	require.NoError(t, l.Commit(res))

	assert.ErrorIs(t, l.Commit(res), ErrUnknownReservation)
	assert.ErrorIs(t, l.Release(res), ErrUnknownReservation)

	snap := l.Snapshot()
	assert.Equal(t, int64(10), snap.TotalClaimed)
}

func TestLedger_InvalidReserveAmount(t *testing.T) {
	l := New(testLogger())
	l.Credit(50)

	_, err := l.TryReserve(0)
	assert.Error(t, err)
	_, err = l.TryReserve(-5)
	assert.Error(t, err)
}

func TestLedger_ConcurrentReservationsNeverOverdraw(t *testing.T) {
	l := New(testLogger())
	l.Credit(30)

	const claimants = 8
	var wg sync.WaitGroup
	results := make(chan error, claimants)

	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.TryReserve(20)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrInsufficientBalance)
		}
	}

	// Only one 20-unit reservation fits in a 30-unit pool.
	assert.Equal(t, 1, succeeded)

	snap := l.Snapshot()
	assert.Equal(t, int64(10), snap.Available)
	assert.Equal(t, int64(20), snap.Reserved)
}

func TestRebuild(t *testing.T) {
	ctx := context.Background()
	mints := memory.NewMintEventStore()
	claims := memory.NewClaimRequestStore()

	poolTx := "tx-pool-1"
	now := int64(1700000000000)
	require.NoError(t, mints.Insert(ctx, &domain.MintEvent{
		EventID:          "evt-1",
		Amount:           100,
		PoolShare:        80,
		StakeholderShare: 20,
		Status:           domain.MintStatusPending,
		CreatedAt:        now,
	}))
	require.NoError(t, mints.SetLegTxRef(ctx, "evt-1", domain.LegPool, poolTx))

	require.NoError(t, claims.Insert(ctx, &domain.ClaimRequest{
		IdempotencyKey: "key-1",
		PlayerID:       "player-1",
		Amount:         30,
		Status:         domain.ClaimStatusReserved,
		CreatedAt:      now,
	}))
	claimTx := "tx-claim-1"
	require.NoError(t, claims.Resolve(ctx, "key-1", domain.ClaimStatusCompleted, "", &claimTx, now+1))

	l, err := Rebuild(ctx, mints, claims, testLogger())
	require.NoError(t, err)

	snap := l.Snapshot()
	assert.Equal(t, int64(50), snap.Available)
	assert.Equal(t, int64(80), snap.TotalMinted)
	assert.Equal(t, int64(30), snap.TotalClaimed)
	assert.Equal(t, int64(0), snap.Reserved)
}
