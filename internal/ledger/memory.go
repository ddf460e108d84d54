package ledger

import (
	"context"
	"sort"
	"sync"

	"github.com/gagliardetto/solana-go"
)

// MemoryStore is an in-process Store used for replay verification and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[solana.PublicKey]*Account
	applied  uint64
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[solana.PublicKey]*Account)}
}

// Restore replaces the store content with a snapshot taken at seq.
func (m *MemoryStore) Restore(accounts []*Account, seq uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.accounts = make(map[solana.PublicKey]*Account, len(accounts))
	for _, a := range accounts {
		m.accounts[a.Address] = a.Clone()
	}
	m.applied = seq
}

func (m *MemoryStore) Get(_ context.Context, addr solana.PublicKey) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.accounts[addr]
	if !ok {
		return nil, nil
	}
	return a.Clone(), nil
}

func (m *MemoryStore) Apply(_ context.Context, batch *Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range batch.Puts {
		m.accounts[a.Address] = a.Clone()
	}
	for _, addr := range batch.Deletes {
		delete(m.accounts, addr)
	}
	m.applied = batch.Seq
	return nil
}

func (m *MemoryStore) AppliedSeq(context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.applied, nil
}

// Accounts returns all accounts sorted by address.
func (m *MemoryStore) Accounts(context.Context) ([]*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Address.String() < out[j].Address.String()
	})
	return out, nil
}
