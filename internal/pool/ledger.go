// Package pool tracks the reward pool balance with two-phase claim
// accounting: claims reserve funds before the payout transfer and settle by
// commit or release afterwards.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"game-token-engine/internal/storage"
)

// ErrInsufficientBalance means the available balance cannot cover a
// reservation. Already-reserved funds are not available.
var ErrInsufficientBalance = errors.New("insufficient pool balance")

// ErrUnknownReservation means commit or release was called with a
// reservation that does not exist or was already settled.
var ErrUnknownReservation = errors.New("unknown or settled reservation")

// Reservation is a hold on pool funds. Exactly one of Commit or Release
// settles it.
type Reservation struct {
	ID     string
	Amount int64
}

// Snapshot is a point-in-time view of the pool accounting.
type Snapshot struct {
	Available    int64
	Reserved     int64
	TotalMinted  int64
	TotalClaimed int64
}

// Balance returns minted minus claimed minus open reservations.
func (s Snapshot) Balance() int64 {
	return s.Available
}

// Ledger is the in-memory pool account. It is the single gate for claim
// funds: a reservation that succeeds here is guaranteed not to overdraw the
// pool no matter how many claims run concurrently.
type Ledger struct {
	mu           sync.Mutex
	available    int64
	reserved     int64
	totalMinted  int64
	totalClaimed int64
	open         map[string]int64 // reservation id -> amount
	logger       *log.Logger
}

// New creates an empty pool ledger.
func New(logger *log.Logger) *Ledger {
	if logger == nil {
		logger = log.Default()
	}
	return &Ledger{
		open:   make(map[string]int64),
		logger: logger,
	}
}

// Rebuild reconstructs the pool state from the durable stores: confirmed
// mint credits minus completed claim debits. Reservations do not survive a
// restart; interrupted claims settle through reconciliation.
func Rebuild(ctx context.Context, mints storage.MintEventStore, claims storage.ClaimRequestStore, logger *log.Logger) (*Ledger, error) {
	minted, err := mints.SumPoolCredits(ctx)
	if err != nil {
		return nil, fmt.Errorf("sum pool credits: %w", err)
	}

	claimed, err := claims.SumCompleted(ctx)
	if err != nil {
		return nil, fmt.Errorf("sum completed claims: %w", err)
	}

	l := New(logger)
	l.totalMinted = minted
	l.totalClaimed = claimed
	l.available = minted - claimed
	if l.available < 0 {
		return nil, fmt.Errorf("rebuilt pool balance is negative: minted=%d claimed=%d", minted, claimed)
	}

	l.logger.Printf("[POOL] Rebuilt ledger: minted=%d claimed=%d available=%d", minted, claimed, l.available)
	return l, nil
}

// Credit adds confirmed mint funds to the pool.
func (l *Ledger) Credit(amount int64) {
	if amount <= 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.available += amount
	l.totalMinted += amount
}

// TryReserve places a hold on amount. Fails without side effects when the
// available balance is short.
func (l *Ledger) TryReserve(amount int64) (Reservation, error) {
	if amount <= 0 {
		return Reservation{}, fmt.Errorf("reservation amount must be positive, got %d", amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.available < amount {
		return Reservation{}, fmt.Errorf("%w: available=%d requested=%d", ErrInsufficientBalance, l.available, amount)
	}

	res := Reservation{ID: uuid.NewString(), Amount: amount}
	l.available -= amount
	l.reserved += amount
	l.open[res.ID] = amount
	return res, nil
}

// Commit settles a reservation as claimed. The funds leave the pool.
func (l *Ledger) Commit(res Reservation) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	amount, ok := l.open[res.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownReservation, res.ID)
	}

	delete(l.open, res.ID)
	l.reserved -= amount
	l.totalClaimed += amount
	return nil
}

// Release settles a reservation as abandoned. The funds return to the pool.
func (l *Ledger) Release(res Reservation) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	amount, ok := l.open[res.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownReservation, res.ID)
	}

	delete(l.open, res.ID)
	l.reserved -= amount
	l.available += amount
	return nil
}

// Snapshot returns the current accounting view.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	return Snapshot{
		Available:    l.available,
		Reserved:     l.reserved,
		TotalMinted:  l.totalMinted,
		TotalClaimed: l.totalClaimed,
	}
}
