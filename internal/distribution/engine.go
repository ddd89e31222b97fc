// Package distribution executes scheduled mints: one fixed-amount emission
// split between the reward pool and the stakeholder account, recorded
// durably before any transfer is attempted.
package distribution

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"game-token-engine/internal/authority"
	"game-token-engine/internal/domain"
	"game-token-engine/internal/idhash"
	"game-token-engine/internal/ledger"
	"game-token-engine/internal/observability"
	"game-token-engine/internal/pool"
	"game-token-engine/internal/storage"
)

// Config holds the distribution parameters.
type Config struct {
	// MintAmount is the fixed emission per cycle, in smallest units.
	MintAmount int64

	// PoolRatioBps is the pool's share in basis points of MintAmount.
	// The stakeholder leg absorbs the integer remainder.
	PoolRatioBps int64

	// Account addresses. MintAuthorityAccount is the source of emissions.
	MintAuthorityAccount string
	PoolAccount          string
	StakeholderAccount   string

	// MaxSupply caps lifetime emissions when positive. A cycle that would
	// exceed it is clamped to the remainder, or skipped at zero.
	MaxSupply int64

	// Per-leg transfer retry budget.
	LegRetries    int
	LegRetryDelay time.Duration
}

func (c Config) validate() error {
	if c.MintAmount <= 0 {
		return fmt.Errorf("mint amount must be positive, got %d", c.MintAmount)
	}
	if c.PoolRatioBps < 0 || c.PoolRatioBps > domain.BpsDenominator {
		return fmt.Errorf("pool ratio %d out of range [0, %d]", c.PoolRatioBps, domain.BpsDenominator)
	}
	if c.MintAuthorityAccount == "" || c.PoolAccount == "" || c.StakeholderAccount == "" {
		return errors.New("mint authority, pool and stakeholder accounts are required")
	}
	return nil
}

// ActivitySink receives resolved mint events for analytics aggregation.
// Implementations must not block.
type ActivitySink interface {
	RecordMint(units int64)
}

// Engine runs mint cycles. One cycle runs at a time; the scheduler enforces
// single-flight.
type Engine struct {
	cfg      Config
	store    storage.MintEventStore
	client   ledger.Client
	keys     *authority.KeyStore
	pool     *pool.Ledger
	tracker  *ledger.Tracker
	logger   *log.Logger
	activity ActivitySink
	nowMs    func() int64
}

// New creates a distribution engine. The tracker is optional; without it the
// engine relies on GetTransferByNonce alone to detect applied-but-lost
// transfers.
func New(cfg Config, store storage.MintEventStore, client ledger.Client, keys *authority.KeyStore, poolLedger *pool.Ledger, tracker *ledger.Tracker, logger *log.Logger) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("distribution config: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}
	if cfg.LegRetries < 0 {
		cfg.LegRetries = 0
	}
	if cfg.LegRetryDelay <= 0 {
		cfg.LegRetryDelay = time.Second
	}

	return &Engine{
		cfg:     cfg,
		store:   store,
		client:  client,
		keys:    keys,
		pool:    poolLedger,
		tracker: tracker,
		logger:  logger,
		nowMs:   func() int64 { return time.Now().UnixMilli() },
	}, nil
}

// WithActivity attaches an activity sink. Resolved events report the units
// their confirmed legs moved.
func (e *Engine) WithActivity(sink ActivitySink) *Engine {
	e.activity = sink
	return e
}

// ExecuteMint runs one mint cycle for the given tick. The event record is
// written before any transfer; rerunning the same tick resumes the existing
// record instead of minting twice.
func (e *Engine) ExecuteMint(ctx context.Context, scheduledAt int64, sequence uint64) error {
	started := time.Now()
	defer func() {
		observability.DefaultMetrics.MintCycleDuration.Observe(time.Since(started).Seconds())
	}()

	amount, err := e.cycleAmount(ctx)
	if err != nil {
		return err
	}
	if amount == 0 {
		e.logger.Printf("[DISTRIBUTION] Supply cap %d reached, skipping mint cycle", e.cfg.MaxSupply)
		return nil
	}

	poolShare, stakeholderShare := domain.SplitBps(amount, e.cfg.PoolRatioBps)
	event := &domain.MintEvent{
		EventID:          idhash.ComputeMintEventID(scheduledAt, amount, sequence),
		Amount:           amount,
		PoolShare:        poolShare,
		StakeholderShare: stakeholderShare,
		Status:           domain.MintStatusPending,
		CreatedAt:        e.nowMs(),
	}

	if err := e.store.Insert(ctx, event); err != nil {
		if !errors.Is(err, storage.ErrDuplicateKey) {
			return fmt.Errorf("record mint event: %w", err)
		}

		existing, getErr := e.store.GetByID(ctx, event.EventID)
		if getErr != nil {
			return fmt.Errorf("load existing mint event %s: %w", event.EventID, getErr)
		}
		if existing.Status.Terminal() {
			return nil
		}
		e.logger.Printf("[DISTRIBUTION] Resuming pending mint event %s", existing.EventID)
		event = existing
	}

	return e.resolve(ctx, event)
}

// cycleAmount applies the supply cap to the configured emission.
func (e *Engine) cycleAmount(ctx context.Context) (int64, error) {
	if e.cfg.MaxSupply <= 0 {
		return e.cfg.MintAmount, nil
	}

	poolMinted, err := e.store.SumPoolCredits(ctx)
	if err != nil {
		return 0, fmt.Errorf("sum pool credits: %w", err)
	}
	stakeholderMinted, err := e.store.SumStakeholderCredits(ctx)
	if err != nil {
		return 0, fmt.Errorf("sum stakeholder credits: %w", err)
	}

	remaining := e.cfg.MaxSupply - poolMinted - stakeholderMinted
	if remaining <= 0 {
		return 0, nil
	}
	if remaining < e.cfg.MintAmount {
		return remaining, nil
	}
	return e.cfg.MintAmount, nil
}

// resolve drives a pending event to a terminal state. Each leg retries
// independently; a leg that confirmed in an earlier attempt is not repeated.
func (e *Engine) resolve(ctx context.Context, event *domain.MintEvent) error {
	type legSpec struct {
		name   string
		to     string
		amount int64
	}

	legs := []legSpec{
		{name: domain.LegPool, to: e.cfg.PoolAccount, amount: event.PoolShare},
		{name: domain.LegStakeholder, to: e.cfg.StakeholderAccount, amount: event.StakeholderShare},
	}

	var failedLegs []string
	var failureReason string
	var settledUnits int64

	for _, leg := range legs {
		if leg.amount == 0 || event.LegConfirmed(leg.name) {
			continue
		}

		txRef, err := e.transferLeg(ctx, event.EventID, leg.name, leg.to, leg.amount)
		if err != nil {
			e.logger.Printf("[DISTRIBUTION] Mint event %s leg %s failed: %v", event.EventID, leg.name, err)
			failedLegs = append(failedLegs, leg.name)
			if failureReason == "" {
				failureReason = err.Error()
			}
			continue
		}

		if err := e.store.SetLegTxRef(ctx, event.EventID, leg.name, txRef); err != nil {
			return fmt.Errorf("record %s leg txRef for %s: %w", leg.name, event.EventID, err)
		}
		if leg.name == domain.LegPool {
			event.PoolTxRef = &txRef
			e.pool.Credit(leg.amount)
		} else {
			event.StakeholderTxRef = &txRef
		}
		observability.RecordMintedUnits(leg.name, leg.amount)
		settledUnits += leg.amount
		e.logger.Printf("[DISTRIBUTION] Mint event %s leg %s confirmed: %d units -> %s (tx %s)", event.EventID, leg.name, leg.amount, leg.to, txRef)
	}

	resolvedAt := e.nowMs()
	if len(failedLegs) == 0 {
		if err := e.store.MarkCompleted(ctx, event.EventID, resolvedAt); err != nil {
			return fmt.Errorf("complete mint event %s: %w", event.EventID, err)
		}
		observability.RecordMintEvent(string(domain.MintStatusCompleted))
		observability.DefaultMetrics.LastSuccessfulMint.Set(float64(resolvedAt) / 1000)
		if e.activity != nil {
			e.activity.RecordMint(settledUnits)
		}
		return nil
	}

	if err := e.store.MarkFailed(ctx, event.EventID, strings.Join(failedLegs, ","), failureReason, resolvedAt); err != nil {
		return fmt.Errorf("fail mint event %s: %w", event.EventID, err)
	}
	observability.RecordMintEvent(string(domain.MintStatusFailed))
	if e.activity != nil {
		e.activity.RecordMint(settledUnits)
	}
	return fmt.Errorf("mint event %s failed on %s: %s", event.EventID, strings.Join(failedLegs, ","), failureReason)
}

// transferLeg submits one leg with retries. The nonce is derived from the
// event and leg, so a retry or a resumed event resubmits the identical
// instruction and the ledger deduplicates it.
func (e *Engine) transferLeg(ctx context.Context, eventID, leg, to string, amount int64) (string, error) {
	nonce := legNonce(eventID, leg)
	instr := ledger.TransferInstruction{
		From:   e.cfg.MintAuthorityAccount,
		To:     to,
		Amount: amount,
		Nonce:  nonce,
	}

	var lastErr error
	for attempt := 0; attempt <= e.cfg.LegRetries; attempt++ {
		if attempt > 0 {
			observability.RecordLegRetry(leg)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(e.cfg.LegRetryDelay):
			}
		}

		signed, err := e.keys.Sign(authority.RoleMint, instr)
		if err != nil {
			// No credential, no point retrying.
			return "", err
		}

		txRef, err := e.client.SubmitTransfer(ctx, signed)
		if err == nil {
			return txRef, nil
		}
		lastErr = err

		if !ledger.IsRetryable(err) {
			return "", err
		}

		// A transient submit error leaves the outcome unknown. Check
		// whether the transfer actually landed before retrying.
		if txRef, ok := e.lookupApplied(ctx, nonce); ok {
			return txRef, nil
		}
	}

	if txRef, ok := e.lookupApplied(ctx, nonce); ok {
		return txRef, nil
	}
	return "", lastErr
}

// lookupApplied checks the confirmation tracker and the ledger for a
// transfer whose submit response was lost.
func (e *Engine) lookupApplied(ctx context.Context, nonce string) (string, bool) {
	if e.tracker != nil {
		if conf, ok := e.tracker.Lookup(nonce); ok {
			return conf.TxRef, true
		}
	}

	status, err := e.client.GetTransferByNonce(ctx, nonce)
	if err != nil || status == nil || !status.Confirmed {
		return "", false
	}
	return status.TxRef, true
}

// RecoverPending resumes mint events interrupted by a crash. Called once at
// startup before the scheduler starts.
func (e *Engine) RecoverPending(ctx context.Context) error {
	pending, err := e.store.GetPending(ctx)
	if err != nil {
		return fmt.Errorf("load pending mint events: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	e.logger.Printf("[DISTRIBUTION] Recovering %d pending mint event(s)", len(pending))
	for _, event := range pending {
		if err := e.resolve(ctx, event); err != nil {
			e.logger.Printf("[DISTRIBUTION] Recovery of %s did not complete: %v", event.EventID, err)
		}
	}
	return nil
}

func legNonce(eventID, leg string) string {
	return eventID + "-" + strings.ToLower(leg)
}
