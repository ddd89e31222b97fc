// Package claims processes player claim requests against the reward pool.
// Every request is resolved idempotently: a given idempotency key maps to at
// most one terminal outcome, and resubmitting the key returns that outcome.
package claims

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"game-token-engine/internal/authority"
	"game-token-engine/internal/domain"
	"game-token-engine/internal/ledger"
	"game-token-engine/internal/observability"
	"game-token-engine/internal/pool"
	"game-token-engine/internal/ratelimit"
	"game-token-engine/internal/storage"
)

// ErrInProgress means another request with the same idempotency key is
// still being processed.
var ErrInProgress = errors.New("claim with this idempotency key is in progress")

// Request is one claim attempt. PlayerID doubles as the player's ledger
// account address.
type Request struct {
	IdempotencyKey string
	PlayerID       string
	Amount         int64
}

// Result is the resolved outcome of a claim. Replayed marks results served
// from a previously recorded resolution rather than fresh processing.
type Result struct {
	Status   domain.ClaimStatus
	TxRef    string
	Reason   string
	Replayed bool

	// NewPoolBalance is the available pool balance after a completed claim
	// settled. On replays of completed claims it carries the balance at
	// replay time. Zero-valued for any other status.
	NewPoolBalance int64
}

// RateLimited carries the retry hint for a throttled request. Throttled
// requests are not recorded; the same key may be retried after the hint.
type RateLimited struct {
	RetryAfter time.Duration
}

func (e *RateLimited) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter.Round(time.Millisecond))
}

// Config holds the claim processing parameters.
type Config struct {
	// PoolAccount is the source of claim payouts.
	PoolAccount string

	// MaxClaimAmount rejects claims above this size. Zero disables the
	// check.
	MaxClaimAmount int64

	// ValidateAddresses requires PlayerID to be a valid ledger address.
	// Disabled in memory mode where accounts are plain names.
	ValidateAddresses bool
}

// Gateway validates, rate limits and settles claims.
// ActivitySink receives resolved claims for analytics aggregation.
// Implementations must not block.
type ActivitySink interface {
	RecordClaim(units int64)
}

type Gateway struct {
	cfg      Config
	store    storage.ClaimRequestStore
	client   ledger.Client
	keys     *authority.KeyStore
	pool     *pool.Ledger
	limiter  *ratelimit.Limiter
	tracker  *ledger.Tracker
	logger   *log.Logger
	activity ActivitySink
	nowMs    func() int64
}

// New creates a claim gateway.
func New(cfg Config, store storage.ClaimRequestStore, client ledger.Client, keys *authority.KeyStore, poolLedger *pool.Ledger, limiter *ratelimit.Limiter, tracker *ledger.Tracker, logger *log.Logger) (*Gateway, error) {
	if cfg.PoolAccount == "" {
		return nil, errors.New("claims config: pool account is required")
	}
	if logger == nil {
		logger = log.Default()
	}

	return &Gateway{
		cfg:     cfg,
		store:   store,
		client:  client,
		keys:    keys,
		pool:    poolLedger,
		limiter: limiter,
		tracker: tracker,
		logger:  logger,
		nowMs:   func() int64 { return time.Now().UnixMilli() },
	}, nil
}

// WithActivity attaches an activity sink. Every durably resolved claim is
// reported; units are nonzero only when funds moved.
func (g *Gateway) WithActivity(sink ActivitySink) *Gateway {
	g.activity = sink
	return g
}

// Process resolves one claim request.
//
// The idempotency check runs before anything else: replays of resolved keys
// return the recorded outcome without consuming rate budget or pool funds.
// A *RateLimited error means the request was throttled and not recorded.
func (g *Gateway) Process(ctx context.Context, req Request) (Result, error) {
	started := time.Now()
	defer func() {
		observability.DefaultMetrics.ClaimDuration.Observe(time.Since(started).Seconds())
	}()

	if req.IdempotencyKey == "" {
		return Result{}, errors.New("idempotency key is required")
	}
	if req.PlayerID == "" {
		return Result{}, errors.New("player id is required")
	}

	existing, err := g.store.GetByKey(ctx, req.IdempotencyKey)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return Result{}, fmt.Errorf("idempotency lookup: %w", err)
	}
	if existing != nil {
		return g.replay(existing)
	}

	if reason := g.validate(req); reason != "" {
		return g.recordRejection(ctx, req, reason)
	}

	if g.limiter != nil {
		if decision := g.limiter.Check(req.PlayerID); !decision.Allowed {
			observability.DefaultMetrics.ClaimsRateLimited.Inc()
			return Result{}, &RateLimited{RetryAfter: decision.RetryAfter}
		}
	}

	claim := &domain.ClaimRequest{
		IdempotencyKey: req.IdempotencyKey,
		PlayerID:       req.PlayerID,
		Amount:         req.Amount,
		Status:         domain.ClaimStatusReserved,
		CreatedAt:      g.nowMs(),
	}
	if err := g.store.Insert(ctx, claim); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			// Lost the race with a concurrent request for the same key.
			winner, getErr := g.store.GetByKey(ctx, req.IdempotencyKey)
			if getErr != nil {
				return Result{}, fmt.Errorf("idempotency lookup after race: %w", getErr)
			}
			return g.replay(winner)
		}
		return Result{}, fmt.Errorf("record claim: %w", err)
	}

	reservation, err := g.pool.TryReserve(req.Amount)
	if err != nil {
		if errors.Is(err, pool.ErrInsufficientBalance) {
			return g.resolve(ctx, req, domain.ClaimStatusRejected, domain.ReasonInsufficientPool, nil)
		}
		return Result{}, fmt.Errorf("reserve pool funds: %w", err)
	}

	txRef, transferErr := g.transfer(ctx, req)
	if transferErr != nil {
		if releaseErr := g.pool.Release(reservation); releaseErr != nil {
			g.logger.Printf("[CLAIMS] Release reservation for %s: %v", req.IdempotencyKey, releaseErr)
		}

		reason := domain.ReasonTransferFailed
		if errors.Is(transferErr, authority.ErrAuthorityUnavailable) {
			reason = domain.ReasonAuthority
		}
		g.logger.Printf("[CLAIMS] Claim %s transfer failed: %v", req.IdempotencyKey, transferErr)
		return g.resolve(ctx, req, domain.ClaimStatusFailed, reason, nil)
	}

	if err := g.pool.Commit(reservation); err != nil {
		g.logger.Printf("[CLAIMS] Commit reservation for %s: %v", req.IdempotencyKey, err)
	}
	result, err := g.resolve(ctx, req, domain.ClaimStatusCompleted, "", &txRef)
	if err == nil {
		result.NewPoolBalance = g.pool.Snapshot().Available
	}
	return result, err
}

// validate returns a rejection reason code, or "" for a valid request.
func (g *Gateway) validate(req Request) string {
	if req.Amount <= 0 {
		return domain.ReasonInvalidAmount
	}
	if g.cfg.MaxClaimAmount > 0 && req.Amount > g.cfg.MaxClaimAmount {
		return domain.ReasonClaimTooLarge
	}
	if g.cfg.ValidateAddresses {
		if err := authority.ValidateAddress(req.PlayerID); err != nil {
			return domain.ReasonInvalidAddress
		}
	}
	return ""
}

// replay maps a stored claim row onto a Result.
func (g *Gateway) replay(claim *domain.ClaimRequest) (Result, error) {
	if !claim.Status.Terminal() {
		return Result{}, ErrInProgress
	}

	observability.DefaultMetrics.IdempotencyReplays.Inc()
	result := Result{
		Status:   claim.Status,
		Reason:   claim.Reason,
		Replayed: true,
	}
	if claim.TxRef != nil {
		result.TxRef = *claim.TxRef
	}
	if claim.Status == domain.ClaimStatusCompleted {
		result.NewPoolBalance = g.pool.Snapshot().Available
	}
	return result, nil
}

// recordRejection writes a terminal rejected row for an invalid request, so
// replays of the key see the same outcome.
func (g *Gateway) recordRejection(ctx context.Context, req Request, reason string) (Result, error) {
	now := g.nowMs()
	claim := &domain.ClaimRequest{
		IdempotencyKey: req.IdempotencyKey,
		PlayerID:       req.PlayerID,
		Amount:         req.Amount,
		Status:         domain.ClaimStatusRejected,
		Reason:         reason,
		CreatedAt:      now,
		ResolvedAt:     &now,
	}
	if err := g.store.Insert(ctx, claim); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			winner, getErr := g.store.GetByKey(ctx, req.IdempotencyKey)
			if getErr != nil {
				return Result{}, fmt.Errorf("idempotency lookup after race: %w", getErr)
			}
			return g.replay(winner)
		}
		return Result{}, fmt.Errorf("record rejection: %w", err)
	}

	observability.RecordClaimResolved(string(domain.ClaimStatusRejected), 0)
	if g.activity != nil {
		g.activity.RecordClaim(0)
	}
	return Result{Status: domain.ClaimStatusRejected, Reason: reason}, nil
}

// resolve transitions the reserved row to a terminal status and builds the
// caller's Result.
func (g *Gateway) resolve(ctx context.Context, req Request, status domain.ClaimStatus, reason string, txRef *string) (Result, error) {
	if err := g.store.Resolve(ctx, req.IdempotencyKey, status, reason, txRef, g.nowMs()); err != nil {
		return Result{}, fmt.Errorf("resolve claim %s: %w", req.IdempotencyKey, err)
	}

	units := int64(0)
	if status == domain.ClaimStatusCompleted {
		units = req.Amount
	}
	observability.RecordClaimResolved(string(status), units)
	if g.activity != nil {
		g.activity.RecordClaim(units)
	}

	result := Result{Status: status, Reason: reason}
	if txRef != nil {
		result.TxRef = *txRef
	}
	return result, nil
}

// transfer submits the payout. The nonce is derived from the idempotency
// key, so the ledger deduplicates a resubmitted payout.
func (g *Gateway) transfer(ctx context.Context, req Request) (string, error) {
	nonce := "claim-" + req.IdempotencyKey
	instr := ledger.TransferInstruction{
		From:   g.cfg.PoolAccount,
		To:     req.PlayerID,
		Amount: req.Amount,
		Nonce:  nonce,
	}

	signed, err := g.keys.Sign(authority.RolePoolTransfer, instr)
	if err != nil {
		return "", err
	}

	txRef, err := g.client.SubmitTransfer(ctx, signed)
	if err == nil {
		return txRef, nil
	}

	if ledger.IsRetryable(err) {
		// The submit outcome is unknown. The transfer may have landed.
		if applied, ok := g.lookupApplied(ctx, nonce); ok {
			return applied, nil
		}
	}
	return "", err
}

func (g *Gateway) lookupApplied(ctx context.Context, nonce string) (string, bool) {
	if g.tracker != nil {
		if conf, ok := g.tracker.Lookup(nonce); ok {
			return conf.TxRef, true
		}
	}

	status, err := g.client.GetTransferByNonce(ctx, nonce)
	if err != nil || status == nil || !status.Confirmed {
		return "", false
	}
	return status.TxRef, true
}

// PlayerTotal returns the lifetime completed claim total for a player.
func (g *Gateway) PlayerTotal(ctx context.Context, playerID string) (int64, error) {
	return g.store.SumCompletedByPlayer(ctx, playerID)
}
