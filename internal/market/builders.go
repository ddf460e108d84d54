package market

import (
	"github.com/gagliardetto/solana-go"
	"nft_market/internal/event"
	"nft_market/internal/token"
)

// Builders fill in every derived account of an instruction so callers only
// name wallets, mints and item ids.

// InitState builds the InitState instruction for authority.
func (a *Addresses) InitState(authority solana.PublicKey, ownerCut uint16) (*event.InitState, error) {
	state, err := a.State()
	if err != nil {
		return nil, err
	}
	return &event.InitState{OwnerCut: ownerCut, State: state, Authority: authority}, nil
}

// ListingParams are the seller-chosen fields of a new listing.
type ListingParams struct {
	ItemID       string
	Price        uint64
	AssetMint    solana.PublicKey
	ListingStart int64
	ListingEnd   int64
	IsAuction    bool
}

// CreateListing builds a listing from the seller's associated token account.
func (a *Addresses) CreateListing(seller solana.PublicKey, params ListingParams) (*event.CreateListing, error) {
	listing, _, err := a.Listing(seller, params.ItemID)
	if err != nil {
		return nil, err
	}
	escrow, err := a.Escrow(listing, params.AssetMint)
	if err != nil {
		return nil, err
	}
	source, err := token.AssociatedAddress(seller, params.AssetMint)
	if err != nil {
		return nil, err
	}
	return &event.CreateListing{
		ItemID:       params.ItemID,
		Price:        params.Price,
		AssetMint:    params.AssetMint,
		ListingStart: params.ListingStart,
		ListingEnd:   params.ListingEnd,
		IsAuction:    params.IsAuction,
		Seller:       seller,
		Listing:      listing,
		SellerToken:  source,
		Escrow:       escrow,
	}, nil
}

// SetPrice builds a price update.
func (a *Addresses) SetPrice(seller solana.PublicKey, itemID string, price uint64) (*event.SetPrice, error) {
	listing, _, err := a.Listing(seller, itemID)
	if err != nil {
		return nil, err
	}
	return &event.SetPrice{ItemID: itemID, Price: price, Seller: seller, Listing: listing}, nil
}

// Bid builds a bid on seller's auction.
func (a *Addresses) Bid(bidder, seller solana.PublicKey, itemID string, amount uint64) (*event.Bid, error) {
	listing, _, err := a.Listing(seller, itemID)
	if err != nil {
		return nil, err
	}
	return &event.Bid{ItemID: itemID, Amount: amount, Bidder: bidder, OwnerAuction: seller, Listing: listing}, nil
}

// CancelListing builds a cancel returning the asset to the seller's
// associated token account.
func (a *Addresses) CancelListing(seller solana.PublicKey, itemID string, mint solana.PublicKey) (*event.CancelListing, error) {
	listing, bump, err := a.Listing(seller, itemID)
	if err != nil {
		return nil, err
	}
	escrow, err := a.Escrow(listing, mint)
	if err != nil {
		return nil, err
	}
	dest, err := token.AssociatedAddress(seller, mint)
	if err != nil {
		return nil, err
	}
	return &event.CancelListing{
		ItemID:      itemID,
		Bump:        bump,
		Seller:      seller,
		Listing:     listing,
		Escrow:      escrow,
		SellerToken: dest,
		AssetMint:   mint,
	}, nil
}

// Settlement builds the shared accounts of BuyNft and SettleAuction. The
// asset goes to the buyer's associated token account.
func (a *Addresses) Settlement(buyer, seller solana.PublicKey, itemID string, mint, feeRecipient solana.PublicKey) (event.Settlement, error) {
	listing, bump, err := a.Listing(seller, itemID)
	if err != nil {
		return event.Settlement{}, err
	}
	escrow, err := a.Escrow(listing, mint)
	if err != nil {
		return event.Settlement{}, err
	}
	dest, err := token.AssociatedAddress(buyer, mint)
	if err != nil {
		return event.Settlement{}, err
	}
	state, err := a.State()
	if err != nil {
		return event.Settlement{}, err
	}
	return event.Settlement{
		ItemID:       itemID,
		Bump:         bump,
		Buyer:        buyer,
		Seller:       seller,
		Listing:      listing,
		Escrow:       escrow,
		BuyerToken:   dest,
		AssetMint:    mint,
		State:        state,
		FeeRecipient: feeRecipient,
	}, nil
}

// BuyNft builds a fixed-price purchase.
func (a *Addresses) BuyNft(buyer, seller solana.PublicKey, itemID string, mint, feeRecipient solana.PublicKey) (*event.BuyNft, error) {
	s, err := a.Settlement(buyer, seller, itemID, mint, feeRecipient)
	if err != nil {
		return nil, err
	}
	return &event.BuyNft{Settlement: s}, nil
}

// SettleAuction builds the winner's settlement of an ended auction.
func (a *Addresses) SettleAuction(bidder, seller solana.PublicKey, itemID string, mint, feeRecipient solana.PublicKey) (*event.SettleAuction, error) {
	s, err := a.Settlement(bidder, seller, itemID, mint, feeRecipient)
	if err != nil {
		return nil, err
	}
	return &event.SettleAuction{Settlement: s}, nil
}

// MintNft builds the fixture that mints one unit of mint to authority.
func (a *Addresses) MintNft(authority, mint solana.PublicKey) (*event.MintNft, error) {
	dest, err := token.AssociatedAddress(authority, mint)
	if err != nil {
		return nil, err
	}
	return &event.MintNft{Authority: authority, Mint: mint, Token: dest}, nil
}
