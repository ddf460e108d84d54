package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"nft_market/internal/api"
	"nft_market/internal/engine"
	"nft_market/internal/infra"
	"nft_market/internal/infra/storage"
	"nft_market/internal/ledger"
	"nft_market/internal/market"
	"nft_market/internal/service"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config    *infra.Config
	Storage   *storage.Storage
	Snapshots *storage.SnapshotManager
	Program   *market.Program
	Sequencer *engine.Sequencer
	Service   *service.MarketService
	Hub       *api.Hub
	Limiter   *api.SignerLimiter
	Metrics   *infra.Metrics
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// LoadConfig loads configuration and installs the logger.
func (b *Bootstrap) LoadConfig(path string) error {
	cfg, err := infra.LoadConfig(path)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)
	return nil
}

// OpenStorage opens the account store and WAL, and builds the program.
func (b *Bootstrap) OpenStorage() error {
	cfg := b.Config

	store, err := storage.NewStorage(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	b.Storage = store
	b.Snapshots = storage.NewSnapshotManager(cfg.Storage.SnapshotDir)
	slog.Info("Database initialized", slog.String("path", cfg.Storage.DBPath))

	addrs := market.NewAddresses(cfg.ProgramID(), cfg.PDACacheTTL())
	b.Program = market.NewProgram(addrs, cfg.Program.AllowFixtures)
	return nil
}

// Initialize performs core system initialization: config, storage,
// recovery, then the sequencer and the API components around it.
func (b *Bootstrap) Initialize(ctx context.Context, configPath string) error {
	slog.Info("Bootstrapping NFT market...")

	// 1. Load Config
	if err := b.LoadConfig(configPath); err != nil {
		return err
	}
	cfg := b.Config

	// 2. Initialize Storage (DB)
	if err := b.OpenStorage(); err != nil {
		return err
	}

	// 3. Restore the newest snapshot if the account store is behind it
	if err := b.restoreSnapshot(ctx); err != nil {
		return err
	}

	// 4. Sequencer with WAL recovery
	b.Metrics = infra.GlobalMetrics
	b.Hub = api.NewHub(b.Metrics)
	b.Sequencer = engine.NewSequencer(cfg.Engine.InboxSize, ledger.NewBank(b.Storage), b.Program, b.Storage, b.onCommit)
	b.Sequencer.SetRecorder(b.Metrics)
	b.Sequencer.SetDumpPath(cfg.Engine.DumpPath)
	if err := b.Sequencer.RecoverFromWAL(ctx); err != nil {
		return fmt.Errorf("WAL recovery failed: %w", err)
	}
	slog.Info("Sequencer recovered", slog.Uint64("next_seq", b.Sequencer.GetNextSeq()))

	// 5. Read model and transport
	b.Service = service.NewMarketService(b.Storage, b.Program.Addresses(), func() int64 { return time.Now().Unix() })
	b.Limiter = api.NewSignerLimiter(cfg.API.RatePerSec, cfg.API.Burst)

	slog.Info("Bootstrap complete",
		slog.String("program", b.Program.ID().String()),
		slog.Bool("fixtures", cfg.Program.AllowFixtures))
	return nil
}

func (b *Bootstrap) restoreSnapshot(ctx context.Context) error {
	snap, err := b.Snapshots.LoadLatest()
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}
	if snap == nil {
		return nil
	}

	applied, err := b.Storage.AppliedSeq(ctx)
	if err != nil {
		return err
	}
	last, err := b.Storage.LastSeq(ctx)
	if err != nil {
		return err
	}
	// A snapshot past the WAL belongs to another database.
	if snap.Seq <= applied || snap.Seq > last {
		return nil
	}

	if err := b.Storage.Restore(ctx, snap.Accounts, snap.Seq); err != nil {
		return fmt.Errorf("failed to restore snapshot %d: %w", snap.Seq, err)
	}
	slog.Info("Restored snapshot", slog.Uint64("seq", snap.Seq), slog.Int("accounts", len(snap.Accounts)))
	return nil
}

// onCommit runs on the sequencer goroutine after every live instruction.
func (b *Bootstrap) onCommit(r *engine.Receipt) {
	b.Hub.Broadcast(r)

	every := b.Config.Storage.SnapshotEvery
	if every > 0 && r.Seq%every == 0 {
		if _, err := b.TakeSnapshot(context.Background()); err != nil {
			slog.Error("Snapshot failed", slog.Uint64("seq", r.Seq), slog.Any("error", err))
		}
	}
}

// TakeSnapshot saves every account at the store's applied sequence and
// prunes old snapshot files.
func (b *Bootstrap) TakeSnapshot(ctx context.Context) (string, error) {
	seq, err := b.Storage.AppliedSeq(ctx)
	if err != nil {
		return "", err
	}
	accounts, err := b.Storage.Accounts(ctx)
	if err != nil {
		return "", err
	}
	path, err := b.Snapshots.Save(storage.CreateSnapshot(seq, accounts))
	if err != nil {
		return "", err
	}
	if err := b.Snapshots.Cleanup(b.Config.Storage.SnapshotKeep); err != nil {
		slog.Warn("Snapshot cleanup failed", slog.Any("error", err))
	}
	return path, nil
}

// Run starts the sequencer and the HTTP server and blocks until ctx ends.
func (b *Bootstrap) Run(ctx context.Context) error {
	go b.Sequencer.Run(ctx)
	slog.InfoContext(ctx, "Sequencer started")

	srv := api.NewServer(b.Sequencer, b.Service, b.Metrics, b.Hub, b.Limiter, b.Config.SubmitTimeout())
	httpServer := &http.Server{
		Addr:              b.Config.API.Listen,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API listening", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	go b.pruneLimiter(ctx)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	slog.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown failed", slog.Any("error", err))
	}
	b.Hub.Close()
	return runErr
}

func (b *Bootstrap) pruneLimiter(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := b.Limiter.Prune(); n > 0 {
				slog.Debug("Pruned idle rate limiters", slog.Int("count", n))
			}
		}
	}
}

// Close releases the database.
func (b *Bootstrap) Close() error {
	if b.Storage == nil {
		return nil
	}
	return b.Storage.Close()
}
