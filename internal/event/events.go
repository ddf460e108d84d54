package event

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"nft_market/internal/ledger"
)

// Type identifies an instruction.
type Type uint16

const (
	IxInitState Type = iota + 1
	IxCreateListing
	IxSetPrice
	IxBid
	IxCancelListing
	IxBuyNft
	IxSettleAuction
	IxAirdrop
	IxMintNft
)

var typeNames = map[Type]string{
	IxInitState:     "InitState",
	IxCreateListing: "CreateListing",
	IxSetPrice:      "SetPrice",
	IxBid:           "Bid",
	IxCancelListing: "CancelListing",
	IxBuyNft:        "BuyNft",
	IxSettleAuction: "SettleAuction",
	IxAirdrop:       "Airdrop",
	IxMintNft:       "MintNft",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%d)", uint16(t))
}

// IsFixture reports whether t is a test-fixture instruction.
func (t Type) IsFixture() bool {
	return t == IxAirdrop || t == IxMintNft
}

// ParseType resolves an instruction name such as "BuyNft".
func ParseType(name string) (Type, error) {
	for t, n := range typeNames {
		if n == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown instruction type %q", name)
}

// Instruction is the interface for all sequencer inputs.
type Instruction interface {
	GetType() Type
	// Accounts declares every account the instruction may touch. IsSigner
	// marks the accounts whose signature is required.
	Accounts() []ledger.AccountMeta
}

// Signers returns the keys whose signature ix requires.
func Signers(ix Instruction) []solana.PublicKey {
	var out []solana.PublicKey
	for _, m := range ix.Accounts() {
		if m.IsSigner {
			out = append(out, m.PublicKey)
		}
	}
	return out
}

// Record is a sequenced instruction as written to the WAL.
type Record struct {
	Seq uint64 `json:"seq"`
	Ts  int64  `json:"ts"` // unix seconds, the instruction's clock
	// Signers are the keys whose signature was verified at submission.
	Signers []solana.PublicKey `json:"signers"`
	Ix      Instruction        `json:"-"`
}

// Metas returns the instruction's declared accounts with IsSigner cleared
// for every key that did not actually sign.
func (r Record) Metas() []ledger.AccountMeta {
	metas := r.Ix.Accounts()
	for i := range metas {
		if metas[i].IsSigner && !r.signed(metas[i].PublicKey) {
			metas[i].IsSigner = false
		}
	}
	return metas
}

func (r Record) signed(key solana.PublicKey) bool {
	for _, s := range r.Signers {
		if s.Equals(key) {
			return true
		}
	}
	return false
}

func (r Record) GetSeq() uint64 { return r.Seq }
func (r Record) GetTs() int64   { return r.Ts }
func (r Record) GetType() Type  { return r.Ix.GetType() }

// InitState creates the marketplace singleton.
type InitState struct {
	OwnerCut  uint16           `json:"owner_cut"`
	State     solana.PublicKey `json:"state"`
	Authority solana.PublicKey `json:"authority"`
}

func (InitState) GetType() Type { return IxInitState }

func (e InitState) Accounts() []ledger.AccountMeta {
	return []ledger.AccountMeta{
		ledger.Meta(e.State, true, false),
		ledger.Meta(e.Authority, true, true),
	}
}

// CreateListing escrows one unit of AssetMint and opens a listing.
type CreateListing struct {
	ItemID       string           `json:"item_id"`
	Price        uint64           `json:"price"`
	AssetMint    solana.PublicKey `json:"asset_mint"`
	ListingStart int64            `json:"listing_start"`
	ListingEnd   int64            `json:"listing_end"`
	IsAuction    bool             `json:"is_auction"`

	Seller      solana.PublicKey `json:"seller"`
	Listing     solana.PublicKey `json:"listing"`
	SellerToken solana.PublicKey `json:"seller_token"`
	Escrow      solana.PublicKey `json:"escrow"`
}

func (CreateListing) GetType() Type { return IxCreateListing }

func (e CreateListing) Accounts() []ledger.AccountMeta {
	return []ledger.AccountMeta{
		ledger.Meta(e.Seller, true, true),
		ledger.Meta(e.Listing, true, false),
		ledger.Meta(e.SellerToken, true, false),
		ledger.Meta(e.Escrow, true, false),
		ledger.Meta(e.AssetMint, false, false),
	}
}

// SetPrice changes the price of a fixed-price listing.
type SetPrice struct {
	ItemID  string           `json:"item_id"`
	Price   uint64           `json:"price"`
	Seller  solana.PublicKey `json:"seller"`
	Listing solana.PublicKey `json:"listing"`
}

func (SetPrice) GetType() Type { return IxSetPrice }

func (e SetPrice) Accounts() []ledger.AccountMeta {
	return []ledger.AccountMeta{
		ledger.Meta(e.Seller, false, true),
		ledger.Meta(e.Listing, true, false),
	}
}

// Bid records a higher bid on an auction listing. No funds move.
type Bid struct {
	ItemID       string           `json:"item_id"`
	Amount       uint64           `json:"amount"`
	Bidder       solana.PublicKey `json:"bidder"`
	OwnerAuction solana.PublicKey `json:"owner_auction"`
	Listing      solana.PublicKey `json:"listing"`
}

func (Bid) GetType() Type { return IxBid }

func (e Bid) Accounts() []ledger.AccountMeta {
	return []ledger.AccountMeta{
		ledger.Meta(e.Bidder, false, true),
		ledger.Meta(e.OwnerAuction, false, false),
		ledger.Meta(e.Listing, true, false),
	}
}

// CancelListing returns the escrowed asset and closes the listing.
type CancelListing struct {
	ItemID      string           `json:"item_id"`
	Bump        uint8            `json:"bump"`
	Seller      solana.PublicKey `json:"seller"`
	Listing     solana.PublicKey `json:"listing"`
	Escrow      solana.PublicKey `json:"escrow"`
	SellerToken solana.PublicKey `json:"seller_token"`
	AssetMint   solana.PublicKey `json:"asset_mint"`
}

func (CancelListing) GetType() Type { return IxCancelListing }

func (e CancelListing) Accounts() []ledger.AccountMeta {
	return []ledger.AccountMeta{
		ledger.Meta(e.Seller, true, true),
		ledger.Meta(e.Listing, true, false),
		ledger.Meta(e.Escrow, true, false),
		ledger.Meta(e.SellerToken, true, false),
		ledger.Meta(e.AssetMint, false, false),
	}
}

// Settlement carries the accounts shared by BuyNft and SettleAuction.
type Settlement struct {
	ItemID       string           `json:"item_id"`
	Bump         uint8            `json:"bump"`
	Buyer        solana.PublicKey `json:"buyer"`
	Seller       solana.PublicKey `json:"seller"`
	Listing      solana.PublicKey `json:"listing"`
	Escrow       solana.PublicKey `json:"escrow"`
	BuyerToken   solana.PublicKey `json:"buyer_token"`
	AssetMint    solana.PublicKey `json:"asset_mint"`
	State        solana.PublicKey `json:"state"`
	FeeRecipient solana.PublicKey `json:"fee_recipient"`
}

func (e Settlement) Accounts() []ledger.AccountMeta {
	return []ledger.AccountMeta{
		ledger.Meta(e.Buyer, true, true),
		ledger.Meta(e.Seller, true, false),
		ledger.Meta(e.Listing, true, false),
		ledger.Meta(e.Escrow, true, false),
		ledger.Meta(e.BuyerToken, true, false),
		ledger.Meta(e.AssetMint, false, false),
		ledger.Meta(e.State, false, false),
		ledger.Meta(e.FeeRecipient, true, false),
	}
}

// BuyNft purchases a fixed-price listing at its price.
type BuyNft struct {
	Settlement
}

func (BuyNft) GetType() Type { return IxBuyNft }

// SettleAuction lets the highest bidder pay its bid once the auction ended.
type SettleAuction struct {
	Settlement
}

func (SettleAuction) GetType() Type { return IxSettleAuction }

// Airdrop credits lamports to a wallet. Fixture only.
type Airdrop struct {
	To       solana.PublicKey `json:"to"`
	Lamports uint64           `json:"lamports"`
}

func (Airdrop) GetType() Type { return IxAirdrop }

func (e Airdrop) Accounts() []ledger.AccountMeta {
	return []ledger.AccountMeta{ledger.Meta(e.To, true, false)}
}

// MintNft creates a one-unit mint held by Authority. Fixture only.
type MintNft struct {
	Authority solana.PublicKey `json:"authority"`
	Mint      solana.PublicKey `json:"mint"`
	Token     solana.PublicKey `json:"token"`
}

func (MintNft) GetType() Type { return IxMintNft }

func (e MintNft) Accounts() []ledger.AccountMeta {
	return []ledger.AccountMeta{
		ledger.Meta(e.Authority, true, true),
		ledger.Meta(e.Mint, true, false),
		ledger.Meta(e.Token, true, false),
	}
}
