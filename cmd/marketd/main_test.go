package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"nft_market/internal/app"
	"nft_market/internal/engine"
	"nft_market/internal/event"
	"nft_market/internal/service"

	"github.com/gagliardetto/solana-go"
	"github.com/urfave/cli/v2"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	body := fmt.Sprintf(`
program:
  allow_fixtures: true
storage:
  db_path: %s
  snapshot_dir: %s
logging:
  level: error
  dir: %s
`, filepath.Join(dir, "market.db"), filepath.Join(dir, "snapshots"), filepath.Join(dir, "logs"))

	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// seed commits a few airdrops through a live sequencer and closes it.
func seed(t *testing.T, cfgPath string, to solana.PublicKey) {
	t.Helper()
	b := app.NewBootstrap()
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		b.Close()
	}()
	if err := b.Initialize(ctx, cfgPath); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	go b.Sequencer.Run(ctx)

	for i := 0; i < 3; i++ {
		r, err := b.Sequencer.Submit(ctx, &event.Airdrop{To: to, Lamports: 100})
		if err != nil || !r.OK {
			t.Fatalf("Submit %d failed: %v %+v", i, err, r)
		}
	}
}

func run(t *testing.T, args ...string) (string, int, error) {
	t.Helper()
	code := 0
	prev := cli.OsExiter
	cli.OsExiter = func(c int) { code = c }
	defer func() { cli.OsExiter = prev }()

	var out bytes.Buffer
	a := newApp()
	a.Writer = &out
	a.ErrWriter = &bytes.Buffer{}
	err := a.Run(append([]string{"marketd"}, args...))
	return out.String(), code, err
}

func TestCommands(t *testing.T) {
	cfgPath := writeTestConfig(t)
	to := solana.NewWallet().PublicKey()
	seed(t, cfgPath, to)

	t.Run("replay verify", func(t *testing.T) {
		out, code, err := run(t, "-c", cfgPath, "replay", "--verify")
		if err != nil || code != 0 {
			t.Fatalf("replay failed: %v (exit %d)", err, code)
		}
		var report engine.ReplayReport
		if err := json.Unmarshal([]byte(out), &report); err != nil {
			t.Fatalf("bad report %q: %v", out, err)
		}
		if report.Records != 3 || report.LastSeq != 3 || !report.Matches() {
			t.Errorf("unexpected report %+v", report)
		}
	})

	t.Run("inspect account", func(t *testing.T) {
		out, _, err := run(t, "-c", cfgPath, "inspect", "account", to.String())
		if err != nil {
			t.Fatalf("inspect failed: %v", err)
		}
		var view service.AccountView
		if err := json.Unmarshal([]byte(out), &view); err != nil {
			t.Fatalf("bad view %q: %v", out, err)
		}
		if !view.Address.Equals(to) || view.Lamports != 300 {
			t.Errorf("unexpected account %+v", view)
		}
	})

	t.Run("inspect unknown account", func(t *testing.T) {
		_, code, err := run(t, "-c", cfgPath, "inspect", "account", solana.NewWallet().PublicKey().String())
		if err == nil || code != 1 {
			t.Errorf("Expected exit 1, got %v (exit %d)", err, code)
		}
	})

	t.Run("inspect state before InitState", func(t *testing.T) {
		_, code, err := run(t, "-c", cfgPath, "inspect", "state")
		if err == nil || code != 1 {
			t.Errorf("Expected exit 1, got %v (exit %d)", err, code)
		}
	})

	t.Run("invalid address", func(t *testing.T) {
		_, _, err := run(t, "-c", cfgPath, "inspect", "account", "not-a-key")
		if err == nil || !strings.Contains(err.Error(), "invalid address") {
			t.Errorf("Expected invalid address error, got %v", err)
		}
	})

	t.Run("snapshot", func(t *testing.T) {
		out, _, err := run(t, "-c", cfgPath, "snapshot")
		if err != nil {
			t.Fatalf("snapshot failed: %v", err)
		}
		if _, err := os.Stat(strings.TrimSpace(out)); err != nil {
			t.Errorf("snapshot file missing: %v", err)
		}
	})
}
