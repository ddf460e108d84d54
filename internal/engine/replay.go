package engine

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"nft_market/internal/ledger"
	"nft_market/internal/market"
)

// ReplayReport summarises a replay of the WAL from genesis.
type ReplayReport struct {
	Records  int      `json:"records"`
	Rejected int      `json:"rejected"`
	Accounts int      `json:"accounts"`
	LastSeq  uint64   `json:"last_seq"`
	Diff     []string `json:"diff,omitempty"`
}

// Matches reports whether the replayed state equals the live state.
func (r *ReplayReport) Matches() bool { return len(r.Diff) == 0 }

// Replay re-executes the whole WAL into a fresh in-memory store.
func Replay(ctx context.Context, wal WAL, program *market.Program) (*ledger.MemoryStore, *ReplayReport, error) {
	records, err := wal.LoadRecords(ctx, 1)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load WAL: %w", err)
	}

	store := ledger.NewMemoryStore()
	seq := NewSequencer(1, ledger.NewBank(store), program, nil, nil)

	report := &ReplayReport{}
	for _, rec := range records {
		// Feed into sequencer synchronously for deterministic replay.
		if r := seq.ReplayRecord(rec); !r.OK {
			report.Rejected++
		}
		report.Records++
		report.LastSeq = rec.Seq
	}

	accounts, _ := store.Accounts(ctx)
	report.Accounts = len(accounts)
	return store, report, nil
}

// VerifyReplay replays the WAL and diffs the result against live.
func VerifyReplay(ctx context.Context, wal WAL, program *market.Program, live ledger.Store) (*ReplayReport, error) {
	replayed, report, err := Replay(ctx, wal, program)
	if err != nil {
		return nil, err
	}

	want, err := live.Accounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read live accounts: %w", err)
	}
	got, _ := replayed.Accounts(ctx)
	report.Diff = diffAccounts(want, got)

	if report.Matches() {
		slog.Info("Replay verified", slog.Int("records", report.Records), slog.Int("accounts", report.Accounts))
	} else {
		slog.Warn("Replay diverged", slog.Int("differences", len(report.Diff)))
	}
	return report, nil
}

func diffAccounts(want, got []*ledger.Account) []string {
	index := make(map[string]*ledger.Account, len(got))
	for _, a := range got {
		index[a.Address.String()] = a
	}

	var diff []string
	for _, w := range want {
		key := w.Address.String()
		g, ok := index[key]
		if !ok {
			diff = append(diff, "missing "+key)
			continue
		}
		delete(index, key)
		if g.Lamports != w.Lamports || !g.Owner.Equals(w.Owner) || !bytes.Equal(g.Data, w.Data) {
			diff = append(diff, "changed "+key)
		}
	}
	for key := range index {
		diff = append(diff, "extra "+key)
	}
	return diff
}
