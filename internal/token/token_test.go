package token

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"nft_market/internal/domain"
	"nft_market/internal/ledger"
)

func newWallet(t *testing.T, store ledger.Store, lamports uint64) solana.PublicKey {
	t.Helper()
	key := solana.NewWallet().PublicKey()
	err := store.Apply(context.Background(), &ledger.Batch{Puts: []*ledger.Account{{
		Address:  key,
		Owner:    solana.SystemProgramID,
		Lamports: lamports,
	}}})
	if err != nil {
		t.Fatal(err)
	}
	return key
}

func commit(t *testing.T, store ledger.Store, txn *ledger.Txn) {
	t.Helper()
	if err := store.Apply(context.Background(), txn.Batch(0)); err != nil {
		t.Fatal(err)
	}
}

func TestMintNft(t *testing.T) {
	store := ledger.NewMemoryStore()
	creator := newWallet(t, store, 1_000_000_000)
	mint := solana.NewWallet().PublicKey()
	ata, err := AssociatedAddress(creator, mint)
	if err != nil {
		t.Fatal(err)
	}

	txn := ledger.NewTxn(context.Background(), store, []ledger.AccountMeta{
		ledger.Meta(creator, true, true),
		ledger.Meta(mint, true, false),
		ledger.Meta(ata, true, false),
	}, 0)

	dest, err := MintNft(txn, creator, mint)
	if err != nil {
		t.Fatalf("MintNft failed: %v", err)
	}
	if !dest.Equals(ata) {
		t.Errorf("Expected destination %s, got %s", ata, dest)
	}

	m, err := LoadMint(txn, mint)
	if err != nil {
		t.Fatal(err)
	}
	if m.Supply != 1 || m.Decimals != 0 {
		t.Errorf("Expected supply 1 decimals 0, got %+v", m)
	}
	acc, err := LoadAccount(txn, ata)
	if err != nil {
		t.Fatal(err)
	}
	if acc.Amount != 1 || !acc.Owner.Equals(creator) {
		t.Errorf("Unexpected token account %+v", acc)
	}

	if _, err := MintNft(txn, creator, mint); !errors.Is(err, domain.ErrAccountAlreadyInUse) {
		t.Errorf("Expected ErrAccountAlreadyInUse on second mint, got %v", err)
	}
}

func TestTransferAuthorities(t *testing.T) {
	store := ledger.NewMemoryStore()
	creator := newWallet(t, store, 1_000_000_000)
	stranger := newWallet(t, store, 1_000_000_000)
	program := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()

	seeds := [][]byte{creator.Bytes(), []byte("item")}
	pda, bump, err := solana.FindProgramAddress(seeds, program)
	if err != nil {
		t.Fatal(err)
	}
	creatorATA, _ := AssociatedAddress(creator, mint)
	escrow, _ := AssociatedAddress(pda, mint)

	metas := []ledger.AccountMeta{
		ledger.Meta(creator, true, true),
		ledger.Meta(stranger, false, true),
		ledger.Meta(mint, true, false),
		ledger.Meta(creatorATA, true, false),
		ledger.Meta(escrow, true, false),
		ledger.Meta(pda, false, false),
	}

	txn := ledger.NewTxn(context.Background(), store, metas, 0)
	if _, err := MintNft(txn, creator, mint); err != nil {
		t.Fatal(err)
	}
	if _, err := CreateAssociatedAccount(txn, creator, pda, mint); err != nil {
		t.Fatalf("CreateAssociatedAccount failed: %v", err)
	}
	commit(t, store, txn)

	t.Run("wallet signer", func(t *testing.T) {
		txn := ledger.NewTxn(context.Background(), store, metas, 0)
		if err := Transfer(txn, creatorATA, escrow, Signer(creator), 1); err != nil {
			t.Fatalf("Transfer failed: %v", err)
		}
		commit(t, store, txn)
	})

	t.Run("stranger cannot move escrow", func(t *testing.T) {
		txn := ledger.NewTxn(context.Background(), store, metas, 0)
		err := Transfer(txn, escrow, creatorATA, Signer(stranger), 1)
		if !errors.Is(err, domain.ErrOwnerMismatch) {
			t.Errorf("Expected ErrOwnerMismatch, got %v", err)
		}
	})

	t.Run("wrong seeds", func(t *testing.T) {
		txn := ledger.NewTxn(context.Background(), store, metas, 0)
		auth := ProgramSigner{ProgramID: program, Seeds: [][]byte{stranger.Bytes(), []byte("item"), {bump}}}
		err := Transfer(txn, escrow, creatorATA, auth, 1)
		if domain.KindOf(err) == 0 {
			t.Errorf("Expected a program error, got %v", err)
		}
	})

	t.Run("program signer releases escrow and closes it", func(t *testing.T) {
		txn := ledger.NewTxn(context.Background(), store, metas, 0)
		auth := ProgramSigner{ProgramID: program, Seeds: append(seeds, []byte{bump})}
		if err := CloseAccount(txn, escrow, creator, auth); !errors.Is(err, domain.ErrNonZeroBalance) {
			t.Errorf("Expected ErrNonZeroBalance, got %v", err)
		}
		if err := Transfer(txn, escrow, creatorATA, auth, 1); err != nil {
			t.Fatalf("Transfer failed: %v", err)
		}
		if err := CloseAccount(txn, escrow, creator, auth); err != nil {
			t.Fatalf("CloseAccount failed: %v", err)
		}
		acc, err := LoadAccount(txn, creatorATA)
		if err != nil {
			t.Fatal(err)
		}
		if acc.Amount != 1 {
			t.Errorf("Expected asset back with creator, got %d", acc.Amount)
		}
	})

	t.Run("insufficient asset", func(t *testing.T) {
		txn := ledger.NewTxn(context.Background(), store, metas, 0)
		auth := ProgramSigner{ProgramID: program, Seeds: append(seeds, []byte{bump})}
		if err := Transfer(txn, escrow, creatorATA, auth, 2); !errors.Is(err, domain.ErrInsufficientAsset) {
			t.Errorf("Expected ErrInsufficientAsset, got %v", err)
		}
	})
}

func TestResolveDestination(t *testing.T) {
	store := ledger.NewMemoryStore()
	creator := newWallet(t, store, 1_000_000_000)
	buyer := newWallet(t, store, 1_000_000_000)
	mint := solana.NewWallet().PublicKey()
	creatorATA, _ := AssociatedAddress(creator, mint)
	buyerATA, _ := AssociatedAddress(buyer, mint)

	txn := ledger.NewTxn(context.Background(), store, []ledger.AccountMeta{
		ledger.Meta(creator, true, true),
		ledger.Meta(buyer, true, true),
		ledger.Meta(mint, true, false),
		ledger.Meta(creatorATA, true, false),
		ledger.Meta(buyerATA, true, false),
	}, 0)
	if _, err := MintNft(txn, creator, mint); err != nil {
		t.Fatal(err)
	}

	if err := ResolveDestination(txn, buyer, buyer, mint, creatorATA); !errors.Is(err, domain.ErrInvalidTokenAccount) {
		t.Errorf("Expected ErrInvalidTokenAccount for foreign account, got %v", err)
	}
	if err := ResolveDestination(txn, buyer, buyer, mint, buyerATA); err != nil {
		t.Fatalf("ResolveDestination failed: %v", err)
	}
	if err := ResolveDestination(txn, buyer, buyer, mint, buyerATA); err != nil {
		t.Errorf("Expected idempotent resolve, got %v", err)
	}
	if bal, _ := ledger.Balance(txn, buyerATA); bal == 0 {
		t.Error("Expected associated account to be rent funded")
	}
}
