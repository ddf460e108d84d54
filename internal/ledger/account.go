package ledger

import (
	"context"

	"github.com/gagliardetto/solana-go"
)

// Account is the unit of ledger state: lamports plus opaque data owned by a program.
type Account struct {
	Address  solana.PublicKey `json:"address"`
	Owner    solana.PublicKey `json:"owner"`
	Lamports uint64           `json:"lamports"`
	Data     []byte           `json:"data,omitempty"`
}

// Clone returns a deep copy.
func (a *Account) Clone() *Account {
	c := *a
	if a.Data != nil {
		c.Data = append([]byte(nil), a.Data...)
	}
	return &c
}

// AccountMeta declares one account an instruction touches.
type AccountMeta struct {
	PublicKey  solana.PublicKey `json:"pubkey"`
	IsSigner   bool             `json:"is_signer"`
	IsWritable bool             `json:"is_writable"`
}

// Meta builds an AccountMeta.
func Meta(key solana.PublicKey, writable, signer bool) AccountMeta {
	return AccountMeta{PublicKey: key, IsWritable: writable, IsSigner: signer}
}

// Batch is the committed write set of one instruction.
type Batch struct {
	Seq     uint64
	Puts    []*Account
	Deletes []solana.PublicKey
}

// Store is the durable account database.
type Store interface {
	// Get returns nil, nil when the account does not exist.
	Get(ctx context.Context, addr solana.PublicKey) (*Account, error)
	// Apply writes the batch atomically and records Seq as applied.
	Apply(ctx context.Context, batch *Batch) error
	// AppliedSeq returns the last applied instruction sequence.
	AppliedSeq(ctx context.Context) (uint64, error)
	// Accounts lists every account (snapshots, dumps).
	Accounts(ctx context.Context) ([]*Account, error)
}
