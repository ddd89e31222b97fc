// Package server exposes the claim API and operational endpoints over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"game-token-engine/internal/claims"
	"game-token-engine/internal/domain"
	"game-token-engine/internal/observability"
	"game-token-engine/internal/pool"
	"game-token-engine/internal/scheduler"
)

// Server handles HTTP requests for claims, health, status and metrics.
type Server struct {
	gateway    *claims.Gateway
	pool       *pool.Ledger
	logger     *log.Logger
	started    time.Time
	schedStats func() scheduler.Stats
}

// WithSchedulerStats exposes mint scheduler counters on /status.
func (s *Server) WithSchedulerStats(stats func() scheduler.Stats) *Server {
	s.schedStats = stats
	return s
}

// New creates a Server.
func New(gateway *claims.Gateway, poolLedger *pool.Ledger, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		gateway: gateway,
		pool:    poolLedger,
		logger:  logger,
		started: time.Now(),
	}
}

// Handler builds the HTTP mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/claims", s.handleClaim)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/status", s.handleStatus)
	mux.Handle("/metrics", observability.Handler())

	return mux
}

// ClaimRequest is the JSON body of POST /claims.
type ClaimRequest struct {
	IdempotencyKey string `json:"idempotencyKey"`
	PlayerID       string `json:"playerId"`
	Amount         int64  `json:"amount"`
}

// ClaimResponse is the JSON response for /claims. Statuses are lowercase
// on the wire ("completed", "rejected", "failed", "reserved",
// "rate_limited"); reason codes keep their stored form.
type ClaimResponse struct {
	Status            string `json:"status"`
	NewPoolBalance    *int64 `json:"newPoolBalance,omitempty"`
	TxRef             string `json:"txRef,omitempty"`
	Reason            string `json:"reason,omitempty"`
	Replayed          bool   `json:"replayed,omitempty"`
	RetryAfterSeconds int64  `json:"retryAfterSeconds,omitempty"`
}

// ErrorResponse is the JSON body for malformed requests.
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleClaim resolves one claim attempt.
//
// Status mapping: 200 for a completed claim (fresh or replayed), 409 for
// rejections, failures and in-progress duplicates, 429 when rate limited.
func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed"})
		return
	}

	var req ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body"})
		return
	}
	if req.IdempotencyKey == "" || req.PlayerID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "idempotencyKey and playerId are required"})
		return
	}

	result, err := s.gateway.Process(r.Context(), claims.Request{
		IdempotencyKey: req.IdempotencyKey,
		PlayerID:       req.PlayerID,
		Amount:         req.Amount,
	})
	if err != nil {
		var limited *claims.RateLimited
		if errors.As(err, &limited) {
			seconds := int64(math.Ceil(limited.RetryAfter.Seconds()))
			w.Header().Set("Retry-After", strconv.FormatInt(seconds, 10))
			writeJSON(w, http.StatusTooManyRequests, ClaimResponse{
				Status:            "rate_limited",
				RetryAfterSeconds: seconds,
			})
			return
		}
		if errors.Is(err, claims.ErrInProgress) {
			writeJSON(w, http.StatusConflict, ClaimResponse{
				Status: statusLabel(domain.ClaimStatusReserved),
				Reason: "CLAIM_IN_PROGRESS",
			})
			return
		}

		s.logger.Printf("[SERVER] Claim %s: %v", req.IdempotencyKey, err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}

	resp := ClaimResponse{
		Status:   statusLabel(result.Status),
		TxRef:    result.TxRef,
		Reason:   result.Reason,
		Replayed: result.Replayed,
	}

	switch result.Status {
	case domain.ClaimStatusCompleted:
		balance := result.NewPoolBalance
		resp.NewPoolBalance = &balance
		writeJSON(w, http.StatusOK, resp)
	default:
		// Rejected and failed claims need a new idempotency key.
		writeJSON(w, http.StatusConflict, resp)
	}
}

// statusLabel maps a stored claim status to its wire form.
func statusLabel(s domain.ClaimStatus) string {
	return strings.ToLower(string(s))
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status        string `json:"status"`
	Uptime        string `json:"uptime"`
	PoolBalance   int64  `json:"poolBalance"`
	PoolReserved  int64  `json:"poolReserved"`
	TotalMinted   int64  `json:"totalMinted"`
	TotalClaimed  int64  `json:"totalClaimed"`
	MintCycles    int64  `json:"mintCycles"`
	TicksSkipped  int64  `json:"ticksSkipped"`
	LastMintMs    int64  `json:"lastMintMs"`
}

// handleStatus returns server status as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.pool.Snapshot()
	observability.UpdatePoolGauges(snap.Available, snap.Reserved, snap.TotalMinted, snap.TotalClaimed)

	resp := StatusResponse{
		Status:       "running",
		Uptime:       time.Since(s.started).String(),
		PoolBalance:  snap.Available,
		PoolReserved: snap.Reserved,
		TotalMinted:  snap.TotalMinted,
		TotalClaimed: snap.TotalClaimed,
	}
	if s.schedStats != nil {
		stats := s.schedStats()
		resp.MintCycles = stats.CyclesStarted
		resp.TicksSkipped = stats.TicksSkipped
		resp.LastMintMs = stats.LastMintMs
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
