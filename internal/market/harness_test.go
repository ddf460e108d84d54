package market

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
	"nft_market/internal/domain"
	"nft_market/internal/event"
	"nft_market/internal/ledger"
	"nft_market/internal/token"
)

var testProgramID = solana.MustPublicKeyFromBase58("29hLYT9LFzKpf98UHqWU4zxm91tWfimkcPq7uNYcdVsR")

const sol = domain.LamportsPerSOL

type harness struct {
	t     *testing.T
	store *ledger.MemoryStore
	bank  *ledger.Bank
	prog  *Program
	addrs *Addresses
	seq   uint64
	now   int64
}

func newHarness(t *testing.T) *harness {
	store := ledger.NewMemoryStore()
	addrs := NewAddresses(testProgramID, 0)
	return &harness{
		t:     t,
		store: store,
		bank:  ledger.NewBank(store),
		prog:  NewProgram(addrs, true),
		addrs: addrs,
		now:   1_000,
	}
}

func (h *harness) execWith(ix event.Instruction, metas []ledger.AccountMeta) error {
	h.t.Helper()
	h.seq++
	res, err := h.bank.Execute(context.Background(), h.seq, h.now, metas, func(txn *ledger.Txn) error {
		return h.prog.Execute(txn, ix)
	})
	require.NoError(h.t, err)
	return res.Err
}

func (h *harness) exec(ix event.Instruction) error {
	h.t.Helper()
	return h.execWith(ix, ix.Accounts())
}

func (h *harness) mustExec(ix event.Instruction, err error) {
	h.t.Helper()
	require.NoError(h.t, err)
	require.NoError(h.t, h.exec(ix))
}

func (h *harness) wallet(lamports uint64) solana.PublicKey {
	h.t.Helper()
	key := solana.NewWallet().PublicKey()
	h.mustExec(&event.Airdrop{To: key, Lamports: lamports}, nil)
	return key
}

func (h *harness) mintTo(owner solana.PublicKey) solana.PublicKey {
	h.t.Helper()
	mint := solana.NewWallet().PublicKey()
	h.mustExec(h.addrs.MintNft(owner, mint))
	return mint
}

func (h *harness) initState(ownerCut uint16) solana.PublicKey {
	h.t.Helper()
	authority := h.wallet(sol)
	h.mustExec(h.addrs.InitState(authority, ownerCut))
	return authority
}

func (h *harness) account(addr solana.PublicKey) *ledger.Account {
	h.t.Helper()
	a, err := h.store.Get(context.Background(), addr)
	require.NoError(h.t, err)
	return a
}

func (h *harness) lamports(addr solana.PublicKey) uint64 {
	if a := h.account(addr); a != nil {
		return a.Lamports
	}
	return 0
}

func (h *harness) tokens(wallet, mint solana.PublicKey) uint64 {
	h.t.Helper()
	addr, err := token.AssociatedAddress(wallet, mint)
	require.NoError(h.t, err)
	a := h.account(addr)
	if a == nil {
		return 0
	}
	acc, err := token.DecodeAccount(a.Data)
	require.NoError(h.t, err)
	return acc.Amount
}

func (h *harness) listingAddr(seller solana.PublicKey, itemID string) solana.PublicKey {
	h.t.Helper()
	addr, _, err := h.addrs.Listing(seller, itemID)
	require.NoError(h.t, err)
	return addr
}

func (h *harness) listing(seller solana.PublicKey, itemID string) *domain.Listing {
	h.t.Helper()
	a := h.account(h.listingAddr(seller, itemID))
	if a == nil {
		return nil
	}
	l, err := domain.UnmarshalListing(a.Data)
	require.NoError(h.t, err)
	return l
}

func (h *harness) list(seller, mint solana.PublicKey, params ListingParams) {
	h.t.Helper()
	params.AssetMint = mint
	h.mustExec(h.addrs.CreateListing(seller, params))
}
