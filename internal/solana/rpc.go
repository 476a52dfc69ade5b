package solana

import "context"

// RPCClient defines the JSON-RPC HTTP interface of a localnet node.
type RPCClient interface {
	// SendTransaction submits an encoded signed transaction and returns its signature.
	SendTransaction(ctx context.Context, tx []byte) (string, error)

	// RequestAirdrop credits lamports to pubkey and returns the airdrop signature.
	RequestAirdrop(ctx context.Context, pubkey string, lamports uint64) (string, error)

	// GetAccountInfo returns the account at pubkey, or nil if it does not exist.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)

	// GetBalance returns the lamport balance of pubkey.
	GetBalance(ctx context.Context, pubkey string) (uint64, error)

	// GetTokenAccountBalance returns the balance of a token account.
	GetTokenAccountBalance(ctx context.Context, pubkey string) (*TokenAmount, error)

	// GetSlot returns the last processed slot.
	GetSlot(ctx context.Context) (int64, error)

	// GetTransaction retrieves a transaction by signature, or nil if unknown.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)

	// GetSignaturesForAddress retrieves signatures for an address, newest first, with pagination.
	GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error)
}

// Transaction represents a committed transaction.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix timestamp (seconds)
	Meta      *TransactionMeta
	Message   *TransactionMessage
}

// TransactionMeta contains transaction metadata.
type TransactionMeta struct {
	Err         any
	LogMessages []string
}

// TransactionMessage contains parsed transaction message.
type TransactionMessage struct {
	AccountKeys []string
}

// SignatureInfo is one getSignaturesForAddress entry. Err is non-nil for a
// failed transaction.
type SignatureInfo struct {
	Signature string
	Slot      int64
	BlockTime *int64
	Err       any
}

// SignaturesOpts pages getSignaturesForAddress. Before and Until are
// exclusive bounds; Limit caps the page (the node allows at most 1000).
type SignaturesOpts struct {
	Before string
	Until  string
	Limit  int
}

// AccountInfo is a decoded account.
type AccountInfo struct {
	Lamports   uint64
	Owner      PublicKey
	Data       []byte
	Executable bool
}
