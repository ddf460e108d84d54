package service

import (
	"context"
	"fmt"
	"sort"

	"nft_market/internal/domain"
	"nft_market/internal/ledger"
	"nft_market/internal/market"
	"nft_market/internal/token"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// OwnerIndex is implemented by stores that can list accounts by owner
// without a full scan.
type OwnerIndex interface {
	AccountsByOwner(ctx context.Context, owner solana.PublicKey) ([]*ledger.Account, error)
}

// StateView is the marketplace singleton as served to clients.
type StateView struct {
	Address       solana.PublicKey `json:"address"`
	Version       uint8            `json:"version"`
	Authority     solana.PublicKey `json:"authority"`
	OwnerCut      uint16           `json:"owner_cut"`
	OwnerCutRatio decimal.Decimal  `json:"owner_cut_ratio"`
}

// ListingView is a listing record with derived display fields.
type ListingView struct {
	Address solana.PublicKey `json:"address"`
	*domain.Listing

	Status        string           `json:"status"` // pending, open, ended
	PriceSOL      decimal.Decimal  `json:"price_sol"`
	HighestBidSOL decimal.Decimal  `json:"highest_bid_sol"`
	Escrow        solana.PublicKey `json:"escrow"`
	EscrowAmount  uint64           `json:"escrow_amount"`
}

// AccountView is a raw ledger account with its decoded token content, if any.
type AccountView struct {
	Address  solana.PublicKey `json:"address"`
	Owner    solana.PublicKey `json:"owner"`
	Lamports uint64           `json:"lamports"`
	SOL      decimal.Decimal  `json:"sol"`
	DataLen  int              `json:"data_len"`

	Token *token.Account `json:"token,omitempty"`
	Mint  *token.Mint    `json:"mint,omitempty"`
}

// MarketService is the read model over the account store.
type MarketService struct {
	store ledger.Store
	addrs *market.Addresses
	clock func() int64
}

// NewMarketService creates a new MarketService instance
func NewMarketService(store ledger.Store, addrs *market.Addresses, clock func() int64) *MarketService {
	return &MarketService{store: store, addrs: addrs, clock: clock}
}

// GetState returns the marketplace state, or nil if it was never initialized.
func (s *MarketService) GetState(ctx context.Context) (*StateView, error) {
	addr, err := s.addrs.State()
	if err != nil {
		return nil, err
	}
	return s.GetStateAt(ctx, addr)
}

// GetStateAt returns the state stored at addr, or nil if there is none.
func (s *MarketService) GetStateAt(ctx context.Context, addr solana.PublicKey) (*StateView, error) {
	acc, err := s.store.Get(ctx, addr)
	if err != nil || acc == nil {
		return nil, err
	}
	if !acc.Owner.Equals(s.addrs.ProgramID()) {
		return nil, nil
	}
	st, err := domain.UnmarshalState(acc.Data)
	if err != nil {
		return nil, nil // Not a state account
	}
	return &StateView{
		Address:       addr,
		Version:       st.Version,
		Authority:     st.Authority,
		OwnerCut:      st.OwnerCut,
		OwnerCutRatio: domain.OwnerCutRatio(st.OwnerCut),
	}, nil
}

// GetListing returns the open listing of (seller, itemID), or nil.
func (s *MarketService) GetListing(ctx context.Context, seller solana.PublicKey, itemID string) (*ListingView, error) {
	addr, _, err := s.addrs.Listing(seller, itemID)
	if err != nil {
		return nil, err
	}
	acc, err := s.store.Get(ctx, addr)
	if err != nil || acc == nil {
		return nil, err
	}
	return s.listingView(ctx, acc)
}

// Listings returns every open listing, optionally only those of seller,
// sorted by seller then item id.
func (s *MarketService) Listings(ctx context.Context, seller *solana.PublicKey) ([]*ListingView, error) {
	accounts, err := s.programAccounts(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*ListingView, 0, len(accounts))
	for _, acc := range accounts {
		v, err := s.listingView(ctx, acc)
		if err != nil {
			return nil, err
		}
		if v == nil || (seller != nil && !v.Seller.Equals(*seller)) {
			continue
		}
		result = append(result, v)
	}

	sort.Slice(result, func(i, j int) bool {
		if a, b := result[i].Seller.String(), result[j].Seller.String(); a != b {
			return a < b
		}
		return result[i].ItemID < result[j].ItemID
	})
	return result, nil
}

// GetAccount returns any ledger account, or nil if it does not exist.
func (s *MarketService) GetAccount(ctx context.Context, addr solana.PublicKey) (*AccountView, error) {
	acc, err := s.store.Get(ctx, addr)
	if err != nil || acc == nil {
		return nil, err
	}
	v := &AccountView{
		Address:  acc.Address,
		Owner:    acc.Owner,
		Lamports: acc.Lamports,
		SOL:      domain.LamportsToSOL(acc.Lamports),
		DataLen:  len(acc.Data),
	}
	if acc.Owner.Equals(token.ProgramID) {
		if ta, err := token.DecodeAccount(acc.Data); err == nil {
			v.Token = ta
		} else if m, err := token.DecodeMint(acc.Data); err == nil {
			v.Mint = m
		}
	}
	return v, nil
}

func (s *MarketService) programAccounts(ctx context.Context) ([]*ledger.Account, error) {
	if idx, ok := s.store.(OwnerIndex); ok {
		return idx.AccountsByOwner(ctx, s.addrs.ProgramID())
	}
	all, err := s.store.Accounts(ctx)
	if err != nil {
		return nil, err
	}
	owned := all[:0]
	for _, a := range all {
		if a.Owner.Equals(s.addrs.ProgramID()) {
			owned = append(owned, a)
		}
	}
	return owned, nil
}

// listingView returns nil for program accounts that are not listings.
func (s *MarketService) listingView(ctx context.Context, acc *ledger.Account) (*ListingView, error) {
	if !acc.Owner.Equals(s.addrs.ProgramID()) {
		return nil, nil
	}
	l, err := domain.UnmarshalListing(acc.Data)
	if err != nil {
		return nil, nil
	}

	escrow, err := s.addrs.Escrow(acc.Address, l.AssetMint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive escrow of %s: %w", acc.Address, err)
	}
	v := &ListingView{
		Address:       acc.Address,
		Listing:       l,
		Status:        listingStatus(l, s.clock()),
		PriceSOL:      domain.LamportsToSOL(l.Price),
		HighestBidSOL: domain.LamportsToSOL(l.HighestBid),
		Escrow:        escrow,
	}

	ea, err := s.store.Get(ctx, escrow)
	if err != nil {
		return nil, err
	}
	if ea != nil {
		if ta, err := token.DecodeAccount(ea.Data); err == nil {
			v.EscrowAmount = ta.Amount
		}
	}
	return v, nil
}

// Fixed-price listings are always open until bought or cancelled.
func listingStatus(l *domain.Listing, now int64) string {
	switch {
	case !l.IsAuction:
		return "open"
	case l.EndedAt(now):
		return "ended"
	case now < l.ListingStart:
		return "pending"
	default:
		return "open"
	}
}
