package ledger

import "context"

// ConfirmationClient defines the ledger confirmation subscription interface.
// The ledger pushes a Confirmation for every applied transfer touching a
// subscribed account, including transfers whose submit response was lost.
type ConfirmationClient interface {
	// SubscribeConfirmations subscribes to confirmations for transfers
	// touching any of the filter accounts.
	SubscribeConfirmations(ctx context.Context, filter ConfirmationFilter) (<-chan Confirmation, error)

	// Close closes the connection.
	Close() error
}

// ConfirmationFilter selects which accounts to watch.
type ConfirmationFilter struct {
	// Accounts filters confirmations touching any of these addresses.
	Accounts []string
}
