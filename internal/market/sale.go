package market

import (
	"nft_market/internal/domain"
	"nft_market/internal/event"
	"nft_market/internal/ledger"
	"nft_market/internal/token"
)

func (p *Program) buyNft(t *ledger.Txn, e *event.BuyNft) error {
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
	if l.IsAuction {
		return domain.Errorf(domain.ErrNotOnSell, "%s is an auction", e.Listing)
	}
	if e.Buyer.Equals(l.Seller) {
		return domain.Errorf(domain.ErrNotAuthorized, "seller cannot buy its own listing")
	}
	if l.Price == 0 {
		return domain.Errorf(domain.ErrInvalidPrice, "%s has no price", e.Listing)
	}
	return p.settle(t, &e.Settlement, l, l.Price)
}

// settle pays price from the buyer, split between seller and fee authority,
// then hands the escrowed unit to the buyer and closes the listing.
func (p *Program) settle(t *ledger.Txn, s *event.Settlement, l *domain.Listing, price uint64) error {
	if !s.Seller.Equals(l.Seller) {
		return domain.Errorf(domain.ErrNotAuthorized, "seller is %s, not %s", l.Seller, s.Seller)
	}
	if err := p.verifyEscrow(l, s.Listing, s.Escrow, s.AssetMint); err != nil {
		return err
	}
	state, err := p.loadState(t, s.State)
	if err != nil {
		return err
	}
	if !s.FeeRecipient.Equals(state.Authority) {
		return domain.Errorf(domain.ErrNotAuthorized, "fee recipient must be %s", state.Authority)
	}

	fee, proceeds, err := domain.SaleSplit(price, state.OwnerCut)
	if err != nil {
		return err
	}
	balance, err := ledger.Balance(t, s.Buyer)
	if err != nil {
		return err
	}
	if balance < price {
		return domain.Errorf(domain.ErrInsufficientFunds, "buyer has %d, price is %d", balance, price)
	}

	if err := ledger.Transfer(t, s.Buyer, s.Seller, proceeds); err != nil {
		return err
	}
	if err := ledger.Transfer(t, s.Buyer, s.FeeRecipient, fee); err != nil {
		return err
	}
	if err := token.ResolveDestination(t, s.Buyer, s.Buyer, l.AssetMint, s.BuyerToken); err != nil {
		return err
	}
	if err := p.release(t, l, s.Listing, s.Escrow, s.BuyerToken); err != nil {
		return err
	}

	t.Logf("sold %s for %d: seller %d, fee %d", s.Listing, price, proceeds, fee)
	return nil
}
