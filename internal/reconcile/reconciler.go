// Package reconcile replays the mint and claim audit log into account
// balances, verifies conservation, and resolves reservations abandoned by a
// crash.
package reconcile

import (
	"context"
	"fmt"
	"log"
	"time"

	"game-token-engine/internal/domain"
	"game-token-engine/internal/ledger"
	"game-token-engine/internal/reporting"
	"game-token-engine/internal/storage"
)

// Options for creating a Reconciler.
type Options struct {
	MintEventStore    storage.MintEventStore
	ClaimRequestStore storage.ClaimRequestStore

	// Client is optional. When set, on-chain balances are fetched and
	// compared with the replayed accounts.
	Client             ledger.Client
	PoolAccount        string
	StakeholderAccount string

	// StaleAfter marks RESERVED claims older than this as failed.
	// Zero disables stale resolution.
	StaleAfter time.Duration

	Logger *log.Logger
}

// Reconciler rebuilds account state from the durable stores.
type Reconciler struct {
	opts  Options
	now   func() time.Time
	nowMs func() int64
}

// New creates a Reconciler.
func New(opts Options) *Reconciler {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Reconciler{
		opts:  opts,
		now:   func() time.Time { return time.Now().UTC() },
		nowMs: func() int64 { return time.Now().UnixMilli() },
	}
}

// WithClock sets a custom clock for deterministic output.
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	r.nowMs = func() int64 { return now().UnixMilli() }
	return r
}

// Run replays the audit log and produces a reconciliation report. Stale
// RESERVED claims are transitioned to FAILED as a side effect; their pool
// reservations died with the crashed process, so no funds move.
func (r *Reconciler) Run(ctx context.Context) (*reporting.Report, error) {
	nowMs := r.nowMs()

	report := &reporting.Report{
		GeneratedAt: r.now(),
		WindowStart: 0,
		WindowEnd:   nowMs,
	}

	if err := r.replayMints(ctx, report); err != nil {
		return nil, err
	}

	stale, err := r.resolveStaleClaims(ctx, nowMs)
	if err != nil {
		return nil, err
	}
	report.StaleClaimsResolved = stale

	if err := r.replayClaims(ctx, report); err != nil {
		return nil, err
	}

	r.check(report)
	r.compareLedger(ctx, report)

	return report, nil
}

func (r *Reconciler) replayMints(ctx context.Context, report *reporting.Report) error {
	events, err := r.opts.MintEventStore.GetByTimeRange(ctx, 0, report.WindowEnd)
	if err != nil {
		return fmt.Errorf("load mint events: %w", err)
	}

	for _, e := range events {
		report.Mints.Total++
		switch e.Status {
		case domain.MintStatusCompleted:
			report.Mints.Completed++
		case domain.MintStatusFailed:
			report.Mints.Failed++
		case domain.MintStatusPending:
			report.Mints.Pending++
		}

		// Only confirmed legs moved funds. A failed event may still have
		// one confirmed leg whose credit stands.
		if e.LegConfirmed(domain.LegPool) {
			report.Pool.TotalMinted += e.PoolShare
		}
		if e.LegConfirmed(domain.LegStakeholder) {
			report.Stakeholder.TotalMinted += e.StakeholderShare
		}

		if e.PoolShare+e.StakeholderShare != e.Amount {
			report.Discrepancies = append(report.Discrepancies,
				fmt.Sprintf("mint event %s: shares %d+%d do not sum to amount %d",
					e.EventID, e.PoolShare, e.StakeholderShare, e.Amount))
		}

		report.MintRows = append(report.MintRows, mintRow(e))
	}
	return nil
}

// resolveStaleClaims fails RESERVED claims that outlived the stale window.
// Runs before replay so the replayed counts reflect the resolution.
func (r *Reconciler) resolveStaleClaims(ctx context.Context, nowMs int64) ([]string, error) {
	if r.opts.StaleAfter <= 0 {
		return nil, nil
	}

	reserved, err := r.opts.ClaimRequestStore.GetByStatus(ctx, domain.ClaimStatusReserved)
	if err != nil {
		return nil, fmt.Errorf("load reserved claims: %w", err)
	}

	var stale []string
	cutoff := nowMs - r.opts.StaleAfter.Milliseconds()
	for _, c := range reserved {
		if c.CreatedAt >= cutoff {
			continue
		}
		if err := r.opts.ClaimRequestStore.Resolve(ctx, c.IdempotencyKey, domain.ClaimStatusFailed, domain.ReasonStale, nil, nowMs); err != nil {
			r.opts.Logger.Printf("[RECONCILE] Resolve stale claim %s: %v", c.IdempotencyKey, err)
			continue
		}
		r.opts.Logger.Printf("[RECONCILE] Marked stale claim %s as failed (reserved at %d)", c.IdempotencyKey, c.CreatedAt)
		stale = append(stale, c.IdempotencyKey)
	}
	return stale, nil
}

func (r *Reconciler) replayClaims(ctx context.Context, report *reporting.Report) error {
	for _, status := range []domain.ClaimStatus{
		domain.ClaimStatusCompleted,
		domain.ClaimStatusFailed,
		domain.ClaimStatusRejected,
		domain.ClaimStatusReserved,
	} {
		claims, err := r.opts.ClaimRequestStore.GetByStatus(ctx, status)
		if err != nil {
			return fmt.Errorf("load %s claims: %w", status, err)
		}

		for _, c := range claims {
			report.Claims.Total++
			switch c.Status {
			case domain.ClaimStatusCompleted:
				report.Claims.Completed++
				report.Claims.CompletedUnits += c.Amount
				if c.TxRef == nil || *c.TxRef == "" {
					report.Discrepancies = append(report.Discrepancies,
						fmt.Sprintf("claim %s: completed without a transfer reference", c.IdempotencyKey))
				}
			case domain.ClaimStatusFailed:
				report.Claims.Failed++
			case domain.ClaimStatusRejected:
				report.Claims.Rejected++
			case domain.ClaimStatusReserved:
				report.Claims.Reserved++
			}

			report.ClaimRows = append(report.ClaimRows, claimRow(c))
		}
	}

	report.Pool.TotalClaimed = report.Claims.CompletedUnits
	report.Pool.Balance = report.Pool.TotalMinted - report.Pool.TotalClaimed
	return nil
}

// check validates conservation on the replayed accounts.
func (r *Reconciler) check(report *reporting.Report) {
	if report.Pool.Balance < 0 {
		report.Discrepancies = append(report.Discrepancies,
			fmt.Sprintf("pool overdrawn: minted %d < claimed %d", report.Pool.TotalMinted, report.Pool.TotalClaimed))
	}

	account := domain.PoolAccount{
		Balance:      report.Pool.Balance,
		TotalMinted:  report.Pool.TotalMinted,
		TotalClaimed: report.Pool.TotalClaimed,
	}
	if !account.Consistent() {
		report.Discrepancies = append(report.Discrepancies, "pool account identity violated: balance != minted - claimed")
	}
}

// compareLedger fetches on-chain balances when a client is configured. A
// mismatch is a discrepancy; an unreachable ledger is only logged.
func (r *Reconciler) compareLedger(ctx context.Context, report *reporting.Report) {
	if r.opts.Client == nil {
		return
	}

	if r.opts.PoolAccount != "" {
		balance, err := r.opts.Client.GetBalance(ctx, r.opts.PoolAccount)
		if err != nil {
			r.opts.Logger.Printf("[RECONCILE] Pool balance unavailable: %v", err)
		} else {
			report.Pool.LedgerBalance = &balance
			if balance != report.Pool.Balance {
				report.Discrepancies = append(report.Discrepancies,
					fmt.Sprintf("pool ledger balance %d != replayed balance %d", balance, report.Pool.Balance))
			}
		}
	}

	if r.opts.StakeholderAccount != "" {
		balance, err := r.opts.Client.GetBalance(ctx, r.opts.StakeholderAccount)
		if err != nil {
			r.opts.Logger.Printf("[RECONCILE] Stakeholder balance unavailable: %v", err)
		} else {
			report.Stakeholder.LedgerBalance = &balance
		}
	}
}

func mintRow(e *domain.MintEvent) reporting.MintRow {
	row := reporting.MintRow{
		EventID:          e.EventID,
		Amount:           e.Amount,
		PoolShare:        e.PoolShare,
		StakeholderShare: e.StakeholderShare,
		Status:           string(e.Status),
		FailedLeg:        e.FailedLeg,
		CreatedAt:        e.CreatedAt,
	}
	if e.PoolTxRef != nil {
		row.PoolTxRef = *e.PoolTxRef
	}
	if e.StakeholderTxRef != nil {
		row.StakeholderTxRef = *e.StakeholderTxRef
	}
	if e.ResolvedAt != nil {
		row.ResolvedAt = *e.ResolvedAt
	}
	return row
}

func claimRow(c *domain.ClaimRequest) reporting.ClaimRow {
	row := reporting.ClaimRow{
		IdempotencyKey: c.IdempotencyKey,
		PlayerID:       c.PlayerID,
		Amount:         c.Amount,
		Status:         string(c.Status),
		Reason:         c.Reason,
		CreatedAt:      c.CreatedAt,
	}
	if c.TxRef != nil {
		row.TxRef = *c.TxRef
	}
	if c.ResolvedAt != nil {
		row.ResolvedAt = *c.ResolvedAt
	}
	return row
}
