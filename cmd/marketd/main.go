package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nft_market/internal/app"
	"nft_market/internal/engine"
	"nft_market/internal/service"

	"github.com/gagliardetto/solana-go"
	"github.com/urfave/cli/v2"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		slog.Error("marketd failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "marketd",
		Usage: "NFT marketplace ledger daemon",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "configs/config.yaml", Usage: "path to the YAML config", EnvVars: []string{"MARKET_CONFIG"}},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the sequencer and the HTTP API",
				Action: serve,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "pprof", Value: "", Usage: "pprof listen address, e.g. localhost:6060"},
				},
			},
			{
				Name:   "replay",
				Usage:  "re-execute the whole WAL into memory",
				Action: replay,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "verify", Usage: "diff the replayed accounts against the database"},
				},
			},
			{
				Name:   "snapshot",
				Usage:  "write a snapshot of every account",
				Action: snapshot,
			},
			{
				Name:  "inspect",
				Usage: "print stored state",
				Subcommands: []*cli.Command{
					{Name: "state", Usage: "the marketplace state", Action: inspectState},
					{
						Name:      "listings",
						Usage:     "open listings",
						ArgsUsage: "[seller]",
						Action:    inspectListings,
					},
					{
						Name:      "account",
						Usage:     "one ledger account",
						ArgsUsage: "<address>",
						Action:    inspectAccount,
					},
				},
			},
		},
	}
}

func serve(c *cli.Context) error {
	// 1. Pprof Server (for performance profiling)
	if addr := c.String("pprof"); addr != "" {
		go func() {
			slog.Info("Pprof server started", slog.String("addr", addr))
			if err := http.ListenAndServe(addr, nil); err != nil {
				slog.Error("Pprof server failed", slog.Any("error", err))
			}
		}()
	}

	// 2. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. System Bootstrapping
	b := app.NewBootstrap()
	defer b.Close()
	if err := b.Initialize(ctx, c.String("config")); err != nil {
		return fmt.Errorf("bootstrapping failed: %w", err)
	}

	slog.InfoContext(ctx, "NFT market fully operational. Press Ctrl+C to exit.")
	return b.Run(ctx)
}

// open loads config and storage without starting the sequencer.
func open(c *cli.Context) (*app.Bootstrap, error) {
	b := app.NewBootstrap()
	if err := b.LoadConfig(c.String("config")); err != nil {
		return nil, err
	}
	if err := b.OpenStorage(); err != nil {
		return nil, err
	}
	return b, nil
}

func replay(c *cli.Context) error {
	b, err := open(c)
	if err != nil {
		return err
	}
	defer b.Close()

	var report *engine.ReplayReport
	if c.Bool("verify") {
		report, err = engine.VerifyReplay(c.Context, b.Storage, b.Program, b.Storage)
	} else {
		_, report, err = engine.Replay(c.Context, b.Storage, b.Program)
	}
	if err != nil {
		return err
	}
	if err := printJSON(c, report); err != nil {
		return err
	}
	if c.Bool("verify") && !report.Matches() {
		return cli.Exit("replay diverged from the database", 2)
	}
	return nil
}

func snapshot(c *cli.Context) error {
	b, err := open(c)
	if err != nil {
		return err
	}
	defer b.Close()

	path, err := b.TakeSnapshot(c.Context)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, path)
	return nil
}

func readModel(c *cli.Context) (*app.Bootstrap, *service.MarketService, error) {
	b, err := open(c)
	if err != nil {
		return nil, nil, err
	}
	now := func() int64 { return time.Now().Unix() }
	return b, service.NewMarketService(b.Storage, b.Program.Addresses(), now), nil
}

func inspectState(c *cli.Context) error {
	b, svc, err := readModel(c)
	if err != nil {
		return err
	}
	defer b.Close()

	st, err := svc.GetState(c.Context)
	if err != nil {
		return err
	}
	if st == nil {
		return cli.Exit("state not initialized", 1)
	}
	return printJSON(c, st)
}

func inspectListings(c *cli.Context) error {
	b, svc, err := readModel(c)
	if err != nil {
		return err
	}
	defer b.Close()

	var seller *solana.PublicKey
	if c.Args().Present() {
		key, err := solana.PublicKeyFromBase58(c.Args().First())
		if err != nil {
			return fmt.Errorf("invalid seller: %w", err)
		}
		seller = &key
	}
	views, err := svc.Listings(c.Context, seller)
	if err != nil {
		return err
	}
	return printJSON(c, views)
}

func inspectAccount(c *cli.Context) error {
	if !c.Args().Present() {
		return errors.New("address required")
	}
	addr, err := solana.PublicKeyFromBase58(c.Args().First())
	if err != nil {
		return fmt.Errorf("invalid address: %w", err)
	}

	b, svc, err := readModel(c)
	if err != nil {
		return err
	}
	defer b.Close()

	v, err := svc.GetAccount(c.Context, addr)
	if err != nil {
		return err
	}
	if v == nil {
		return cli.Exit("account not found", 1)
	}
	return printJSON(c, v)
}

func printJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
