// Package stub provides an in-process ledger for tests and -use-memory mode.
package stub

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"game-token-engine/internal/ledger"
)

// Ledger implements ledger.Client against in-memory account balances, with
// failure injection hooks for exercising retry and recovery paths.
type Ledger struct {
	mu       sync.Mutex
	balances map[string]int64
	applied  map[string]ledger.TransferStatus // by instruction nonce

	// TransientFailures makes the next N submits fail with CodeUnavailable
	// before touching balances.
	TransientFailures int

	// LoseResponses makes the next N submits apply the transfer but still
	// return a transient error, simulating a lost response.
	LoseResponses int

	// RejectAccounts maps destination accounts to a permanent RPC error.
	RejectAccounts map[string]*ledger.RPCError

	confirmCh chan ledger.Confirmation
}

// New creates an empty stub ledger.
func New() *Ledger {
	return &Ledger{
		balances:       make(map[string]int64),
		applied:        make(map[string]ledger.TransferStatus),
		RejectAccounts: make(map[string]*ledger.RPCError),
		confirmCh:      make(chan ledger.Confirmation, 256),
	}
}

// Compile-time interface check.
var _ ledger.Client = (*Ledger)(nil)

// Fund credits an account directly, bypassing transfer bookkeeping.
func (l *Ledger) Fund(account string, amount int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[account] += amount
}

// SubmitTransfer applies a transfer between two accounts.
func (l *Ledger) SubmitTransfer(_ context.Context, instr ledger.SignedInstruction) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Idempotent by nonce: a resubmitted instruction returns the original txRef.
	if status, ok := l.applied[instr.Nonce]; ok {
		return status.TxRef, nil
	}

	if l.TransientFailures > 0 {
		l.TransientFailures--
		return "", &ledger.RPCError{Code: ledger.CodeUnavailable, Message: "ledger unavailable"}
	}

	if rpcErr, ok := l.RejectAccounts[instr.To]; ok {
		return "", rpcErr
	}

	if instr.SignerKey == "" || instr.Signature == "" {
		return "", &ledger.RPCError{Code: ledger.CodeSignatureInvalid, Message: "missing signature"}
	}

	balance, ok := l.balances[instr.From]
	if !ok {
		return "", &ledger.RPCError{Code: ledger.CodeInvalidAccount, Message: "unknown account: " + instr.From}
	}
	if balance < instr.Amount {
		return "", &ledger.RPCError{Code: ledger.CodeInsufficientFunds, Message: "insufficient funds"}
	}

	txRef := uuid.NewString()
	l.balances[instr.From] -= instr.Amount
	l.balances[instr.To] += instr.Amount
	l.applied[instr.Nonce] = ledger.TransferStatus{TxRef: txRef, Nonce: instr.Nonce, Confirmed: true}

	conf := ledger.Confirmation{
		TxRef:  txRef,
		Nonce:  instr.Nonce,
		From:   instr.From,
		To:     instr.To,
		Amount: instr.Amount,
	}
	select {
	case l.confirmCh <- conf:
	default:
	}

	if l.LoseResponses > 0 {
		l.LoseResponses--
		return "", &ledger.RPCError{Code: ledger.CodeUnavailable, Message: "response lost"}
	}

	return txRef, nil
}

// GetBalance returns the current balance of an account.
func (l *Ledger) GetBalance(_ context.Context, account string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	balance, ok := l.balances[account]
	if !ok {
		return 0, &ledger.RPCError{Code: ledger.CodeInvalidAccount, Message: "unknown account: " + account}
	}
	return balance, nil
}

// GetTransferByNonce looks up an applied transfer by nonce.
func (l *Ledger) GetTransferByNonce(_ context.Context, nonce string) (*ledger.TransferStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	status, ok := l.applied[nonce]
	if !ok {
		return nil, nil
	}
	statusCopy := status
	return &statusCopy, nil
}

// Confirmations exposes the applied-transfer feed, mirroring the WS client.
func (l *Ledger) Confirmations() <-chan ledger.Confirmation {
	return l.confirmCh
}
