package market

import (
	"nft_market/internal/domain"
	"nft_market/internal/event"
	"nft_market/internal/ledger"
	"nft_market/internal/token"
)

func (p *Program) createListing(t *ledger.Txn, e *event.CreateListing) error {
	if err := t.RequireSigner(e.Seller); err != nil {
		return err
	}

	addr, bump, err := p.addrs.Listing(e.Seller, e.ItemID)
	if err != nil {
		return err
	}
	if !addr.Equals(e.Listing) {
		return domain.Errorf(domain.ErrInvalidDerivation, "listing is %s, not %s", addr, e.Listing)
	}
	escrow, err := p.addrs.Escrow(addr, e.AssetMint)
	if err != nil {
		return err
	}
	if !escrow.Equals(e.Escrow) {
		return domain.Errorf(domain.ErrInvalidDerivation, "escrow is %s, not %s", escrow, e.Escrow)
	}
	if e.IsAuction && e.ListingEnd <= e.ListingStart {
		return domain.Errorf(domain.ErrInvalidWindow, "start %d end %d", e.ListingStart, e.ListingEnd)
	}

	existing, err := t.Lookup(addr)
	if err != nil {
		return err
	}
	if existing != nil {
		return domain.Errorf(domain.ErrListingExists, "%s", addr)
	}

	src, err := token.LoadAccount(t, e.SellerToken)
	if err != nil {
		return err
	}
	if !src.Mint.Equals(e.AssetMint) || !src.Owner.Equals(e.Seller) {
		return domain.Errorf(domain.ErrInvalidTokenAccount, "%s is not a %s account of %s", e.SellerToken, e.AssetMint, e.Seller)
	}
	if src.Amount < 1 {
		return domain.Errorf(domain.ErrInsufficientAsset, "%s is empty", e.SellerToken)
	}

	data, err := domain.MarshalListing(&domain.Listing{
		Seller:       e.Seller,
		ItemID:       e.ItemID,
		Price:        e.Price,
		AssetMint:    e.AssetMint,
		ListingStart: e.ListingStart,
		ListingEnd:   e.ListingEnd,
		IsAuction:    e.IsAuction,
		EscrowBump:   bump,
	})
	if err != nil {
		return err
	}
	if err := ledger.CreateAccount(t, e.Seller, addr, p.ID(), data); err != nil {
		return err
	}
	if _, err := token.CreateAssociatedAccount(t, e.Seller, addr, e.AssetMint); err != nil {
		return err
	}
	if err := token.Transfer(t, e.SellerToken, escrow, token.Signer(e.Seller), 1); err != nil {
		return err
	}

	t.Logf("listing %s created: item=%s price=%d auction=%t", addr, e.ItemID, e.Price, e.IsAuction)
	return nil
}

func (p *Program) setPrice(t *ledger.Txn, e *event.SetPrice) error {
	if err := t.RequireSigner(e.Seller); err != nil {
		return err
	}
	l, err := p.loadListing(t, e.Listing)
	if err != nil {
		return err
	}
	if !l.Seller.Equals(e.Seller) {
		return domain.Errorf(domain.ErrNotAuthorized, "%s is not the seller", e.Seller)
	}
	addr, _, err := p.addrs.Listing(l.Seller, e.ItemID)
	if err != nil {
		return err
	}
	if !addr.Equals(e.Listing) {
		return domain.Errorf(domain.ErrInvalidDerivation, "item %q is not at %s", e.ItemID, e.Listing)
	}
	if l.IsAuction {
		return domain.Errorf(domain.ErrNotOnSell, "%s is an auction", e.Listing)
	}
	if e.Price == 0 {
		return domain.Errorf(domain.ErrInvalidPrice, "price must be positive")
	}

	old := l.Price
	l.Price = e.Price
	if err := p.storeListing(t, e.Listing, l); err != nil {
		return err
	}
	t.Logf("listing %s price %d -> %d", e.Listing, old, e.Price)
	return nil
}

func (p *Program) cancelListing(t *ledger.Txn, e *event.CancelListing) error {
	if err := t.RequireSigner(e.Seller); err != nil {
		return err
	}
	l, err := p.loadListing(t, e.Listing)
	if err != nil {
		return err
	}
	if !l.Seller.Equals(e.Seller) {
		return domain.Errorf(domain.ErrNotAuthorized, "%s is not the seller", e.Seller)
	}
	if err := p.verifyListing(l, e.ItemID, e.Bump, e.Listing); err != nil {
		return err
	}
	if err := p.verifyEscrow(l, e.Listing, e.Escrow, e.AssetMint); err != nil {
		return err
	}

	if err := token.ResolveDestination(t, e.Seller, e.Seller, l.AssetMint, e.SellerToken); err != nil {
		return err
	}
	if err := p.release(t, l, e.Listing, e.Escrow, e.SellerToken); err != nil {
		return err
	}

	if l.HighestBidder != nil {
		t.Logf("listing %s cancelled with outstanding bid %d", e.Listing, l.HighestBid)
	} else {
		t.Logf("listing %s cancelled", e.Listing)
	}
	return nil
}
