package ledger

import (
	"context"
	"fmt"
)

// Result is the outcome of one executed instruction.
type Result struct {
	Logs   []string
	Writes int
	// Err is the instruction's rejection, nil on success.
	Err error
}

// Bank executes instructions against a Store, one overlay at a time.
type Bank struct {
	store Store
}

// NewBank wraps a store.
func NewBank(store Store) *Bank {
	return &Bank{store: store}
}

// Store returns the backing store.
func (b *Bank) Store() Store { return b.store }

// Execute runs fn inside a fresh overlay and commits its writes as seq.
// A rejected instruction commits an empty batch so the applied sequence
// still advances. The returned error is reserved for store failures.
func (b *Bank) Execute(ctx context.Context, seq uint64, now int64, metas []AccountMeta, fn func(*Txn) error) (*Result, error) {
	t := NewTxn(ctx, b.store, metas, now)

	res := &Result{}
	batch := &Batch{Seq: seq}
	if err := fn(t); err != nil {
		if IsStoreError(err) {
			return nil, err
		}
		res.Err = err
	} else {
		batch = t.Batch(seq)
		res.Writes = len(batch.Puts) + len(batch.Deletes)
	}
	res.Logs = t.Logs()

	if err := b.store.Apply(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to apply seq %d: %w", seq, err)
	}
	return res, nil
}
