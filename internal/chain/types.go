// Package chain houses blockchain connectivity utilities: RPC clients,
// transaction construction helpers, and multi-network configuration. It lets
// higher layers query account state and submit function calls without binding
// to a concrete network implementation.
package chain

import (
	"context"
	"encoding/json"
)

// AccountView summarizes the on-chain state of an account.
type AccountView struct {
	Amount      string `json:"amount"`
	Locked      string `json:"locked"`
	StorageUsed uint64 `json:"storage_usage"`
}

// AccessKey carries the information required to build the next transaction
// for a key: its current nonce and a recent block hash to anchor the
// transaction to.
type AccessKey struct {
	Nonce     uint64
	BlockHash []byte
}

// TxOutcome reports the result of a committed transaction.
type TxOutcome struct {
	Hash         string
	SuccessValue []byte
	FailureRaw   json.RawMessage
}

// Succeeded reports whether the transaction finished without a failure
// outcome.
func (o TxOutcome) Succeeded() bool {
	return len(o.FailureRaw) == 0
}

// Client is the minimal chain access surface the rest of the system depends
// on. Submitting a transaction is not retried at this level: function calls
// are not idempotent, so retrying is the caller's decision.
type Client interface {
	ViewAccount(ctx context.Context, accountID string) (AccountView, error)
	CallFunction(ctx context.Context, contractID, method string, args []byte) ([]byte, error)
	ViewAccessKey(ctx context.Context, accountID, publicKey string) (AccessKey, error)
	BroadcastTransaction(ctx context.Context, signedTx []byte) (TxOutcome, error)
	Close()
}
