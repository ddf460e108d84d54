package market

import (
	"nft_market/internal/domain"
	"nft_market/internal/event"
	"nft_market/internal/ledger"
)

func (p *Program) bid(t *ledger.Txn, e *event.Bid) error {
	if err := t.RequireSigner(e.Bidder); err != nil {
		return err
	}
	addr, _, err := p.addrs.Listing(e.OwnerAuction, e.ItemID)
	if err != nil {
		return err
	}
	if !addr.Equals(e.Listing) {
		return domain.Errorf(domain.ErrInvalidDerivation, "listing is %s, not %s", addr, e.Listing)
	}
	l, err := p.loadListing(t, e.Listing)
	if err != nil {
		return err
	}
	if !l.IsAuction {
		return domain.Errorf(domain.ErrNotAuction, "%s is fixed-price", e.Listing)
	}
	if e.Bidder.Equals(l.Seller) {
		return domain.ErrInvalidBid
	}
	if !l.AcceptsBidsAt(t.Now()) {
		return domain.Errorf(domain.ErrListingNotOn, "now %d outside [%d, %d)", t.Now(), l.ListingStart, l.ListingEnd)
	}
	if e.Amount <= l.HighestBid {
		return domain.Errorf(domain.ErrInvalidPrice, "bid %d does not beat %d", e.Amount, l.HighestBid)
	}
	if e.Amount < l.Price {
		return domain.Errorf(domain.ErrInvalidPrice, "bid %d below reserve %d", e.Amount, l.Price)
	}

	bidder := e.Bidder
	l.HighestBidder = &bidder
	l.HighestBid = e.Amount
	if err := p.storeListing(t, e.Listing, l); err != nil {
		return err
	}
	t.Logf("bid %d on %s by %s", e.Amount, e.Listing, e.Bidder)
	return nil
}

// settleAuction lets the winner pay its bid after the auction ended.
func (p *Program) settleAuction(t *ledger.Txn, e *event.SettleAuction) error {
	if err := t.RequireSigner(e.Buyer); err != nil {
		return err
	}
	l, err := p.loadListing(t, e.Listing)
	if err != nil {
		return err
	}
	if err := p.verifyListing(l, e.ItemID, e.Bump, e.Listing); err != nil {
		return err
	}
	if !l.IsAuction {
		return domain.Errorf(domain.ErrNotAuction, "%s is fixed-price", e.Listing)
	}
	if !l.EndedAt(t.Now()) {
		return domain.Errorf(domain.ErrAuctionOn, "ends at %d", l.ListingEnd)
	}
	if !l.IsHighestBidder(e.Buyer) {
		return domain.Errorf(domain.ErrNotWinner, "%s", e.Buyer)
	}
	return p.settle(t, &e.Settlement, l, l.HighestBid)
}
