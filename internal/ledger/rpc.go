package ledger

import "context"

// Client defines the typed facade over the external ledger service.
// Implementations must classify failures so callers can distinguish
// transient conditions (worth retrying) from permanent rejections.
type Client interface {
	// SubmitTransfer submits a signed transfer and returns the ledger's
	// transaction reference once accepted.
	SubmitTransfer(ctx context.Context, instr SignedInstruction) (string, error)

	// GetBalance returns the current balance of an account.
	GetBalance(ctx context.Context, account string) (int64, error)

	// GetTransferByNonce looks up a transfer by its instruction nonce.
	// Returns nil if the ledger has no record of it. Used to resolve
	// submissions whose response was lost.
	GetTransferByNonce(ctx context.Context, nonce string) (*TransferStatus, error)
}
