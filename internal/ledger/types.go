package ledger

// TransferInstruction describes one movement of funds between two accounts.
// Accounts are base58-encoded addresses. Amount is in the ledger's smallest
// unit. The nonce is client-generated and unique per instruction; it is the
// handle used to match confirmations when the submit response was lost.
type TransferInstruction struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
	Nonce  string `json:"nonce"`
}

// SignedInstruction is a TransferInstruction with an authority signature.
// Signature and SignerKey are base58-encoded.
type SignedInstruction struct {
	TransferInstruction
	SignerKey string `json:"signerKey"`
	Signature string `json:"signature"`
}

// TransferStatus reports the ledger's view of a submitted transfer.
type TransferStatus struct {
	TxRef     string `json:"txRef"`
	Nonce     string `json:"nonce"`
	Confirmed bool   `json:"confirmed"`
}

// Confirmation is a pushed notification that a transfer was applied.
type Confirmation struct {
	TxRef  string `json:"txRef"`
	Nonce  string `json:"nonce"`
	From   string `json:"from"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}
