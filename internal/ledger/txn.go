package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"nft_market/internal/domain"
)

// StoreError marks a failure of the backing store, as opposed to a
// rejection by instruction logic.
type StoreError struct {
	Err error
}

func (e *StoreError) Error() string { return "ledger store: " + e.Err.Error() }
func (e *StoreError) Unwrap() error { return e.Err }

// IsStoreError reports whether err came from the backing store.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}

// Txn is the write overlay of a single instruction. It only exposes the
// accounts the instruction declared, and nothing reaches the store unless
// the whole instruction succeeds.
type Txn struct {
	ctx   context.Context
	store Store
	now   int64
	metas map[solana.PublicKey]AccountMeta

	working map[solana.PublicKey]*Account
	absent  map[solana.PublicKey]bool
	dirty   map[solana.PublicKey]bool
	deleted map[solana.PublicKey]bool
	order   []solana.PublicKey

	logs []string
}

// NewTxn opens an overlay over store for the declared accounts.
// now is the instruction's recorded unix time.
func NewTxn(ctx context.Context, store Store, metas []AccountMeta, now int64) *Txn {
	t := &Txn{
		ctx:     ctx,
		store:   store,
		now:     now,
		metas:   make(map[solana.PublicKey]AccountMeta, len(metas)),
		working: make(map[solana.PublicKey]*Account),
		absent:  make(map[solana.PublicKey]bool),
		dirty:   make(map[solana.PublicKey]bool),
		deleted: make(map[solana.PublicKey]bool),
	}
	for _, m := range metas {
		prev, ok := t.metas[m.PublicKey]
		if ok {
			m.IsSigner = m.IsSigner || prev.IsSigner
			m.IsWritable = m.IsWritable || prev.IsWritable
		}
		t.metas[m.PublicKey] = m
	}
	return t
}

// Now returns the instruction's recorded unix time.
func (t *Txn) Now() int64 { return t.now }

// IsSigner reports whether addr signed the instruction.
func (t *Txn) IsSigner(addr solana.PublicKey) bool {
	return t.metas[addr].IsSigner
}

// RequireSigner fails unless addr signed the instruction.
func (t *Txn) RequireSigner(addr solana.PublicKey) error {
	if !t.IsSigner(addr) {
		return domain.Errorf(domain.ErrMissingSignature, "%s", addr)
	}
	return nil
}

// Logf appends a line to the instruction log.
func (t *Txn) Logf(format string, args ...any) {
	t.logs = append(t.logs, fmt.Sprintf(format, args...))
}

// Logs returns the lines logged so far.
func (t *Txn) Logs() []string { return t.logs }

// Lookup returns a copy of the account, or nil if it does not exist.
func (t *Txn) Lookup(addr solana.PublicKey) (*Account, error) {
	if _, ok := t.metas[addr]; !ok {
		return nil, domain.Errorf(domain.ErrUndeclaredAccount, "%s", addr)
	}
	if t.deleted[addr] || t.absent[addr] {
		return nil, nil
	}
	if a, ok := t.working[addr]; ok {
		return a.Clone(), nil
	}

	a, err := t.store.Get(t.ctx, addr)
	if err != nil {
		return nil, &StoreError{Err: err}
	}
	if a == nil {
		t.absent[addr] = true
		return nil, nil
	}
	t.working[addr] = a
	return a.Clone(), nil
}

// Get is Lookup that fails with ErrAccountNotFound when the account is missing.
func (t *Txn) Get(addr solana.PublicKey) (*Account, error) {
	a, err := t.Lookup(addr)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, domain.Errorf(domain.ErrAccountNotFound, "%s", addr)
	}
	return a, nil
}

// Put stages a write of a.
func (t *Txn) Put(a *Account) error {
	if err := t.requireWritable(a.Address); err != nil {
		return err
	}
	if !t.dirty[a.Address] {
		t.order = append(t.order, a.Address)
	}
	t.working[a.Address] = a.Clone()
	t.dirty[a.Address] = true
	delete(t.deleted, a.Address)
	delete(t.absent, a.Address)
	return nil
}

// Delete stages removal of an existing account.
func (t *Txn) Delete(addr solana.PublicKey) error {
	if err := t.requireWritable(addr); err != nil {
		return err
	}
	if _, err := t.Get(addr); err != nil {
		return err
	}
	delete(t.working, addr)
	t.deleted[addr] = true
	if !t.dirty[addr] {
		t.order = append(t.order, addr)
	}
	t.dirty[addr] = true
	return nil
}

func (t *Txn) requireWritable(addr solana.PublicKey) error {
	m, ok := t.metas[addr]
	if !ok {
		return domain.Errorf(domain.ErrUndeclaredAccount, "%s", addr)
	}
	if !m.IsWritable {
		return domain.Errorf(domain.ErrAccountNotWritable, "%s", addr)
	}
	return nil
}

// Batch returns the staged writes in first-touch order.
func (t *Txn) Batch(seq uint64) *Batch {
	b := &Batch{Seq: seq}
	for _, addr := range t.order {
		if t.deleted[addr] {
			b.Deletes = append(b.Deletes, addr)
			continue
		}
		b.Puts = append(b.Puts, t.working[addr].Clone())
	}
	return b
}
