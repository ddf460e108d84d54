package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"nft_market/internal/domain"
	"nft_market/internal/event"
	"nft_market/internal/ledger"
	"nft_market/internal/market"

	"github.com/gagliardetto/solana-go"
)

// WAL is the durable instruction log.
type WAL interface {
	Append(ctx context.Context, rec event.Record) error
	LastSeq(ctx context.Context) (uint64, error)
	LoadRecords(ctx context.Context, fromSeq uint64) ([]event.Record, error)
}

// Recorder receives per-instruction measurements.
type Recorder interface {
	RecordInstruction(typ string, ok bool, latency time.Duration)
}

// Receipt is the outcome of one sequenced instruction.
type Receipt struct {
	Seq    uint64   `json:"seq"`
	Ts     int64    `json:"ts"`
	Type   string   `json:"type"`
	OK     bool     `json:"ok"`
	Error  string   `json:"error,omitempty"`
	Code   uint32   `json:"code,omitempty"`
	Name   string   `json:"name,omitempty"`
	Kind   string   `json:"kind,omitempty"`
	Writes int      `json:"writes"`
	Logs   []string `json:"logs"`

	// Err is the rejection, for errors.Is checks in-process.
	Err error `json:"-"`
}

func newReceipt(rec event.Record, res *ledger.Result) *Receipt {
	r := &Receipt{
		Seq:    rec.Seq,
		Ts:     rec.Ts,
		Type:   rec.GetType().String(),
		OK:     res.Err == nil,
		Writes: res.Writes,
		Logs:   res.Logs,
		Err:    res.Err,
	}
	if res.Err != nil {
		r.Error = res.Err.Error()
		if pe, ok := domain.AsProgramError(res.Err); ok {
			r.Code = pe.Code
			r.Name = pe.Name
			r.Kind = pe.Kind.String()
		}
	}
	return r
}

type submission struct {
	ix      event.Instruction
	signers []solana.PublicKey
	reply   chan *Receipt
}

// Sequencer is the single-threaded instruction processor. It assigns each
// instruction a sequence number and clock, logs it, then executes it
// atomically against the bank.
type Sequencer struct {
	inbox   chan submission
	nextSeq atomic.Uint64
	bank    *ledger.Bank
	program *market.Program
	wal     WAL

	clock    func() time.Time
	recorder Recorder
	dumpPath string

	// Boundary: used to notify the API stream of committed instructions
	onCommit func(*Receipt)
}

// NewSequencer creates a new sequencer instance. wal may be nil for
// in-memory use.
func NewSequencer(inboxSize int, bank *ledger.Bank, program *market.Program, wal WAL, onCommit func(*Receipt)) *Sequencer {
	s := &Sequencer{
		inbox:    make(chan submission, inboxSize),
		bank:     bank,
		program:  program,
		wal:      wal,
		clock:    time.Now,
		dumpPath: "panic_dump.json",
		onCommit: onCommit,
	}
	s.nextSeq.Store(1)
	return s
}

// SetClock replaces the wall clock used to stamp instructions.
func (s *Sequencer) SetClock(clock func() time.Time) { s.clock = clock }

// SetRecorder attaches a metrics recorder.
func (s *Sequencer) SetRecorder(r Recorder) { s.recorder = r }

// SetDumpPath sets where DumpState writes on panic.
func (s *Sequencer) SetDumpPath(path string) { s.dumpPath = path }

// GetNextSeq returns the sequence the next instruction will get.
func (s *Sequencer) GetNextSeq() uint64 { return s.nextSeq.Load() }

// Program returns the program the sequencer executes.
func (s *Sequencer) Program() *market.Program { return s.program }

// Submit queues ix with its verified signers and waits for the receipt.
// If ctx ends after the instruction was queued it still executes; only the
// receipt is lost to this caller.
func (s *Sequencer) Submit(ctx context.Context, ix event.Instruction, signers ...solana.PublicKey) (*Receipt, error) {
	sub := submission{ix: ix, signers: signers, reply: make(chan *Receipt, 1)}

	select {
	case s.inbox <- sub:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-sub.reply:
		return r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run starts the main loop. This MUST be run in a single goroutine.
func (s *Sequencer) Run(ctx context.Context) {
	slog.Info("Sequencer started", slog.Uint64("next_seq", s.GetNextSeq()))

	defer func() {
		if r := recover(); r != nil {
			slog.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", r))
			s.DumpState(s.dumpPath)
			// Halt after dump: the account store may be behind the WAL.
			panic(fmt.Sprintf("HALTED: %v", r))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Sequencer stopping...")
			return
		case sub := <-s.inbox:
			sub.reply <- s.process(sub)
		}
	}
}

func (s *Sequencer) process(sub submission) *Receipt {
	rec := event.Record{
		Seq:     s.GetNextSeq(),
		Ts:      s.clock().Unix(),
		Signers: sub.signers,
		Ix:      sub.ix,
	}

	// 1. WAL-first: Persistence
	if s.wal != nil {
		if err := s.wal.Append(context.Background(), rec); err != nil {
			panic(fmt.Sprintf("PERSISTENCE_FAILURE: %v", err))
		}
	}

	// 2. Execute
	return s.apply(rec, true)
}

// ReplayRecord executes a logged record without writing it to the WAL.
// Used exclusively by recovery and replay.
func (s *Sequencer) ReplayRecord(rec event.Record) *Receipt {
	return s.apply(rec, false)
}

func (s *Sequencer) apply(rec event.Record, live bool) *Receipt {
	// Sequence Gap Check (Halt Policy)
	if rec.Seq != s.GetNextSeq() {
		if live {
			panic(fmt.Sprintf("SEQUENCE_GAP_DETECTED: expected %d, got %d", s.GetNextSeq(), rec.Seq))
		}
		panic(fmt.Sprintf("REPLAY_GAP_DETECTED: expected %d, got %d", s.GetNextSeq(), rec.Seq))
	}

	start := time.Now()
	res, err := s.bank.Execute(context.Background(), rec.Seq, rec.Ts, rec.Metas(), func(t *ledger.Txn) error {
		return s.program.Execute(t, rec.Ix)
	})
	if err != nil {
		panic(fmt.Sprintf("APPLY_FAILURE at seq %d: %v", rec.Seq, err))
	}
	s.nextSeq.Add(1)

	receipt := newReceipt(rec, res)
	if !receipt.OK && live {
		slog.Warn("Instruction rejected",
			slog.Uint64("seq", rec.Seq),
			slog.String("type", receipt.Type),
			slog.String("error", receipt.Error))
	}

	if s.recorder != nil && live {
		s.recorder.RecordInstruction(receipt.Type, receipt.OK, time.Since(start))
	}
	if s.onCommit != nil && live {
		s.onCommit(receipt)
	}
	return receipt
}

// RecoverFromWAL brings the account store up to the end of the WAL and
// positions the sequencer after it.
func (s *Sequencer) RecoverFromWAL(ctx context.Context) error {
	if s.wal == nil {
		return nil
	}
	applied, err := s.bank.Store().AppliedSeq(ctx)
	if err != nil {
		return fmt.Errorf("failed to read applied seq: %w", err)
	}
	last, err := s.wal.LastSeq(ctx)
	if err != nil {
		return err
	}
	if applied > last {
		return fmt.Errorf("account store at seq %d is ahead of WAL at %d", applied, last)
	}

	s.nextSeq.Store(applied + 1)
	if applied == last {
		return nil
	}

	records, err := s.wal.LoadRecords(ctx, applied+1)
	if err != nil {
		return err
	}
	for _, rec := range records {
		s.ReplayRecord(rec)
	}
	slog.Info("Recovered from WAL",
		slog.Uint64("from_seq", applied+1),
		slog.Int("records", len(records)),
		slog.Uint64("next_seq", s.GetNextSeq()))
	return nil
}

// DumpState writes every account to a file (for post-mortem).
func (s *Sequencer) DumpState(filename string) {
	slog.Info("Dumping internal state...", slog.String("file", filename))

	accounts, err := s.bank.Store().Accounts(context.Background())
	if err != nil {
		slog.Error("Failed to read accounts", slog.Any("error", err))
	}

	data := struct {
		NextSeq  uint64            `json:"next_seq"`
		Accounts []*ledger.Account `json:"accounts"`
	}{
		NextSeq:  s.GetNextSeq(),
		Accounts: accounts,
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		slog.Error("Failed to marshal state", slog.Any("error", err))
		return
	}

	err = os.WriteFile(filename, b, 0644)
	if err != nil {
		slog.Error("Failed to write state dump", slog.Any("error", err))
	}
}
