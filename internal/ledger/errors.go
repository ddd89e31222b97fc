package ledger

import (
	"context"
	"errors"
	"fmt"
)

// Ledger RPC error codes. Codes in the transient range describe conditions
// that may clear on retry; everything else is a permanent rejection.
const (
	CodeUnavailable       = -32001 // ledger temporarily unavailable
	CodeRateLimited       = -32002 // too many requests
	CodeInvalidAccount    = -32010 // unknown or frozen account
	CodeSignatureInvalid  = -32011 // signature verification failed
	CodeInsufficientFunds = -32012
)

// RPCError represents a JSON-RPC error returned by the ledger service.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("ledger RPC error %d: %s", e.Code, e.Message)
}

// Retryable reports whether the error describes a transient condition.
func (e *RPCError) Retryable() bool {
	return e.Code == CodeUnavailable || e.Code == CodeRateLimited
}

// ErrRetriesExhausted wraps the last transport failure after the retry
// budget ran out. Still a transient classification: the instruction may or
// may not have been applied.
var ErrRetriesExhausted = errors.New("retries exhausted")

// IsRetryable classifies an error from a Client call. Transport failures,
// timeouts and transient RPC codes are retryable; RPC rejections are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Retryable()
	}

	// Context cancellation from the caller is not worth retrying, but a
	// per-call deadline is a transport timeout.
	if errors.Is(err, context.Canceled) {
		return false
	}

	// Everything else (network errors, exhausted budgets, deadline
	// overruns) is transport-level and may clear.
	return true
}
