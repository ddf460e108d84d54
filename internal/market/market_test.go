package market

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nft_market/internal/domain"
	"nft_market/internal/event"
	"nft_market/internal/ledger"
)

func TestInitState(t *testing.T) {
	h := newHarness(t)
	authority := h.initState(10)

	stateAddr, err := h.addrs.State()
	require.NoError(t, err)
	state, err := domain.UnmarshalState(h.account(stateAddr).Data)
	require.NoError(t, err)
	assert.Equal(t, uint16(10), state.OwnerCut)
	assert.Equal(t, authority, state.Authority)
	assert.Equal(t, uint8(domain.StateVersion), state.Version)

	t.Run("second init fails", func(t *testing.T) {
		other := h.wallet(sol)
		ix, err := h.addrs.InitState(other, 5)
		require.NoError(t, err)
		assert.ErrorIs(t, h.exec(ix), domain.ErrStateAlreadyInitialized)
	})

	t.Run("owner cut above 100", func(t *testing.T) {
		h := newHarness(t)
		ix, err := h.addrs.InitState(h.wallet(sol), 101)
		require.NoError(t, err)
		assert.ErrorIs(t, h.exec(ix), domain.ErrInvalidOwnerCut)
	})

	t.Run("state at a non-derived address", func(t *testing.T) {
		h := newHarness(t)
		deployer := h.wallet(sol)
		ix := &event.InitState{OwnerCut: 1, State: solana.NewWallet().PublicKey(), Authority: deployer}
		assert.ErrorIs(t, h.exec(ix), domain.ErrInvalidDerivation)
	})
}

// Fixed-price sale: init, list at 0, set price, buy.
func TestScenario_FixedPriceSale(t *testing.T) {
	h := newHarness(t)
	authority := h.initState(10)

	seller := h.wallet(sol)
	m1 := h.mintTo(seller)
	sellerStart := h.lamports(seller)

	h.list(seller, m1, ListingParams{ItemID: "1", Price: 0})
	listingAddr := h.listingAddr(seller, "1")
	escrow, err := h.addrs.Escrow(listingAddr, m1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), h.tokens(listingAddr, m1), "escrow holds the unit")
	assert.Equal(t, uint64(0), h.tokens(seller, m1))

	h.mustExec(h.addrs.SetPrice(seller, "1", 100_000_000))
	assert.Equal(t, uint64(100_000_000), h.listing(seller, "1").Price)

	buyer := h.wallet(sol)
	sellerBefore := h.lamports(seller)
	authorityBefore := h.lamports(authority)
	rent := h.lamports(listingAddr) + h.lamports(escrow)

	h.mustExec(h.addrs.BuyNft(buyer, seller, "1", m1, authority))

	assert.Equal(t, uint64(1), h.tokens(buyer, m1))
	assert.Equal(t, sellerBefore+90_000_000+rent, h.lamports(seller), "proceeds plus reclaimed rent")
	assert.Equal(t, sellerStart+90_000_000, h.lamports(seller), "net gain over the listing lifetime")
	assert.Equal(t, authorityBefore+10_000_000, h.lamports(authority), "owner cut")
	assert.Nil(t, h.listing(seller, "1"))
	assert.Nil(t, h.account(escrow))

	t.Run("second terminal instruction fails", func(t *testing.T) {
		other := h.wallet(sol)
		ix, err := h.addrs.BuyNft(other, seller, "1", m1, authority)
		require.NoError(t, err)
		err = h.exec(ix)
		assert.ErrorIs(t, err, domain.ErrAccountNotFound)
		assert.Equal(t, domain.KindState, domain.KindOf(err))

		cancel, err := h.addrs.CancelListing(seller, "1", m1)
		require.NoError(t, err)
		assert.ErrorIs(t, h.exec(cancel), domain.ErrAccountNotFound)
	})
}

// Auction with an outstanding bid is cancelled by the seller.
func TestScenario_AuctionCancelWithBid(t *testing.T) {
	h := newHarness(t)
	seller := h.wallet(sol)
	buyer := h.wallet(sol)
	m2 := h.mintTo(seller)

	h.list(seller, m2, ListingParams{ItemID: "2", Price: 10, IsAuction: true, ListingStart: h.now, ListingEnd: h.now + 3600})
	buyerBefore := h.lamports(buyer)

	addr := h.listingAddr(seller, "2")
	sizeBefore := len(h.account(addr).Data)

	h.mustExec(h.addrs.Bid(buyer, seller, "2", 10_000))
	acc := h.account(addr)
	assert.Equal(t, sizeBefore, len(acc.Data), "a bid must not grow the listing account")
	assert.GreaterOrEqual(t, acc.Lamports, ledger.RentExemptMinimum(len(acc.Data)), "listing stays rent exempt after a bid")

	l := h.listing(seller, "2")
	require.NotNil(t, l)
	assert.True(t, l.IsHighestBidder(buyer))
	assert.Equal(t, uint64(10_000), l.HighestBid)
	assert.Equal(t, buyerBefore, h.lamports(buyer), "bids are not escrowed")

	h.mustExec(h.addrs.CancelListing(seller, "2", m2))
	assert.Equal(t, uint64(1), h.tokens(seller, m2))
	assert.Nil(t, h.listing(seller, "2"))
	assert.Equal(t, buyerBefore, h.lamports(buyer))
}

func TestCreateCancelRoundTrip(t *testing.T) {
	for _, auction := range []bool{false, true} {
		h := newHarness(t)
		seller := h.wallet(sol)
		mint := h.mintTo(seller)
		before := h.lamports(seller)

		h.list(seller, mint, ListingParams{ItemID: "round", Price: 5, IsAuction: auction, ListingStart: 0, ListingEnd: 10})
		require.NotNil(t, h.listing(seller, "round"))
		h.mustExec(h.addrs.CancelListing(seller, "round", mint))

		assert.Equal(t, uint64(1), h.tokens(seller, mint), "auction=%t", auction)
		assert.Equal(t, before, h.lamports(seller), "rent fully reclaimed, auction=%t", auction)
		assert.Nil(t, h.listing(seller, "round"))

		// The same item id can be listed again once closed.
		h.list(seller, mint, ListingParams{ItemID: "round", Price: 5})
		assert.NotNil(t, h.listing(seller, "round"))
	}
}

func TestCreateListing_Rejections(t *testing.T) {
	h := newHarness(t)
	seller := h.wallet(sol)
	mint := h.mintTo(seller)

	t.Run("item id too long", func(t *testing.T) {
		listing := &event.CreateListing{ItemID: string(make([]byte, 33)), Seller: seller, AssetMint: mint}
		assert.ErrorIs(t, h.exec(listing), domain.ErrInvalidItemID)
	})

	t.Run("forged listing address", func(t *testing.T) {
		ix, err := h.addrs.CreateListing(seller, ListingParams{ItemID: "x", AssetMint: mint})
		require.NoError(t, err)
		ix.Listing = solana.NewWallet().PublicKey()
		assert.ErrorIs(t, h.exec(ix), domain.ErrInvalidDerivation)
	})

	t.Run("auction without window", func(t *testing.T) {
		ix, err := h.addrs.CreateListing(seller, ListingParams{ItemID: "x", AssetMint: mint, IsAuction: true, ListingStart: 10, ListingEnd: 10})
		require.NoError(t, err)
		assert.ErrorIs(t, h.exec(ix), domain.ErrInvalidWindow)
	})

	t.Run("seller does not hold the asset", func(t *testing.T) {
		other := h.wallet(sol)
		ix, err := h.addrs.CreateListing(other, ListingParams{ItemID: "x", AssetMint: mint})
		require.NoError(t, err)
		assert.ErrorIs(t, h.exec(ix), domain.ErrAccountNotFound)
	})

	t.Run("unsigned", func(t *testing.T) {
		ix, err := h.addrs.CreateListing(seller, ListingParams{ItemID: "x", AssetMint: mint})
		require.NoError(t, err)
		metas := ix.Accounts()
		for i := range metas {
			metas[i].IsSigner = false
		}
		assert.ErrorIs(t, h.execWith(ix, metas), domain.ErrMissingSignature)
	})

	t.Run("duplicate live listing", func(t *testing.T) {
		h.list(seller, mint, ListingParams{ItemID: "dup"})
		ix, err := h.addrs.CreateListing(seller, ListingParams{ItemID: "dup", AssetMint: mint})
		require.NoError(t, err)
		assert.ErrorIs(t, h.exec(ix), domain.ErrListingExists)
	})
}

func TestSellerOnlyInstructions(t *testing.T) {
	h := newHarness(t)
	seller := h.wallet(sol)
	mint := h.mintTo(seller)
	h.list(seller, mint, ListingParams{ItemID: "7", Price: 50})

	intruders := []solana.PublicKey{h.wallet(sol), h.wallet(0), solana.NewWallet().PublicKey()}
	listing := h.listingAddr(seller, "7")

	for _, intruder := range intruders {
		err := h.exec(&event.SetPrice{ItemID: "7", Price: 1, Seller: intruder, Listing: listing})
		assert.ErrorIs(t, err, domain.ErrNotAuthorized)

		cancel, err := h.addrs.CancelListing(seller, "7", mint)
		require.NoError(t, err)
		cancel.Seller = intruder
		err = h.exec(cancel)
		assert.ErrorIs(t, err, domain.ErrNotAuthorized)
		assert.Equal(t, domain.KindAuthorization, domain.KindOf(err))
	}
	assert.Equal(t, uint64(50), h.listing(seller, "7").Price)
	assert.Equal(t, uint64(1), h.tokens(listing, mint))
}

func TestSetPrice_Rules(t *testing.T) {
	h := newHarness(t)
	seller := h.wallet(sol)
	fixed := h.mintTo(seller)
	auction := h.mintTo(seller)
	h.list(seller, fixed, ListingParams{ItemID: "f"})
	h.list(seller, auction, ListingParams{ItemID: "a", IsAuction: true, ListingStart: 0, ListingEnd: 5_000})

	ix, err := h.addrs.SetPrice(seller, "a", 10)
	require.NoError(t, err)
	assert.ErrorIs(t, h.exec(ix), domain.ErrNotOnSell)

	ix, err = h.addrs.SetPrice(seller, "f", 0)
	require.NoError(t, err)
	assert.ErrorIs(t, h.exec(ix), domain.ErrInvalidPrice)
}

func TestBid_Rules(t *testing.T) {
	h := newHarness(t)
	seller := h.wallet(sol)
	alice := h.wallet(sol)
	bob := h.wallet(sol)
	fixed := h.mintTo(seller)
	art := h.mintTo(seller)
	h.list(seller, fixed, ListingParams{ItemID: "fixed", Price: 100})
	h.list(seller, art, ListingParams{ItemID: "art", Price: 500, IsAuction: true, ListingStart: 2_000, ListingEnd: 3_000})

	bid := func(bidder solana.PublicKey, item string, amount uint64) error {
		ix, err := h.addrs.Bid(bidder, seller, item, amount)
		require.NoError(t, err)
		return h.exec(ix)
	}

	assert.ErrorIs(t, bid(alice, "fixed", 1_000), domain.ErrNotAuction)

	h.now = 1_999
	assert.ErrorIs(t, bid(alice, "art", 1_000), domain.ErrListingNotOn)

	h.now = 2_000
	assert.ErrorIs(t, bid(seller, "art", 1_000), domain.ErrInvalidBid)
	assert.ErrorIs(t, bid(alice, "art", 499), domain.ErrInvalidPrice, "below reserve")
	require.NoError(t, bid(alice, "art", 1_000))
	assert.ErrorIs(t, bid(bob, "art", 1_000), domain.ErrInvalidPrice, "must strictly increase")
	require.NoError(t, bid(bob, "art", 1_001))
	assert.True(t, h.listing(seller, "art").IsHighestBidder(bob))

	h.now = 3_000
	assert.ErrorIs(t, bid(alice, "art", 5_000), domain.ErrListingNotOn)
}

func TestBuyNft_Rules(t *testing.T) {
	h := newHarness(t)
	authority := h.initState(10)
	seller := h.wallet(sol)
	mint := h.mintTo(seller)
	h.list(seller, mint, ListingParams{ItemID: "1"})
	listing := h.listingAddr(seller, "1")

	buy := func(buyer solana.PublicKey, edit func(*event.BuyNft)) error {
		ix, err := h.addrs.BuyNft(buyer, seller, "1", mint, authority)
		require.NoError(t, err)
		if edit != nil {
			edit(ix)
		}
		return h.exec(ix)
	}

	buyer := h.wallet(sol)
	assert.ErrorIs(t, buy(buyer, nil), domain.ErrInvalidPrice, "unpriced listing")

	h.mustExec(h.addrs.SetPrice(seller, "1", 100_000_000))

	assert.ErrorIs(t, buy(seller, nil), domain.ErrNotAuthorized, "seller buys own listing")
	assert.ErrorIs(t, buy(buyer, func(ix *event.BuyNft) { ix.FeeRecipient = buyer }), domain.ErrNotAuthorized)
	assert.ErrorIs(t, buy(buyer, func(ix *event.BuyNft) { ix.Bump-- }), domain.ErrInvalidDerivation)
	assert.ErrorIs(t, buy(buyer, func(ix *event.BuyNft) { ix.Escrow = solana.NewWallet().PublicKey() }), domain.ErrInvalidDerivation)

	t.Run("insufficient funds leaves no trace", func(t *testing.T) {
		poor := h.wallet(99_999_999)
		sellerBefore := h.lamports(seller)
		authorityBefore := h.lamports(authority)

		err := buy(poor, nil)
		assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
		assert.Equal(t, domain.KindResource, domain.KindOf(err))

		assert.Equal(t, uint64(99_999_999), h.lamports(poor))
		assert.Equal(t, sellerBefore, h.lamports(seller))
		assert.Equal(t, authorityBefore, h.lamports(authority))
		assert.Equal(t, uint64(1), h.tokens(listing, mint))
		assert.Equal(t, uint64(0), h.tokens(poor, mint))
		assert.NotNil(t, h.listing(seller, "1"))
	})

	t.Run("price covered but not the token account rent", func(t *testing.T) {
		tight := h.wallet(100_000_000)
		assert.ErrorIs(t, buy(tight, nil), domain.ErrInsufficientFunds)
		assert.Equal(t, uint64(100_000_000), h.lamports(tight))
		assert.Equal(t, uint64(1), h.tokens(listing, mint))
	})

	t.Run("auction listing", func(t *testing.T) {
		art := h.mintTo(seller)
		h.list(seller, art, ListingParams{ItemID: "art", Price: 10, IsAuction: true, ListingStart: 0, ListingEnd: 10_000})
		ix, err := h.addrs.BuyNft(buyer, seller, "art", art, authority)
		require.NoError(t, err)
		assert.ErrorIs(t, h.exec(ix), domain.ErrNotOnSell)
	})
}

func TestSettleAuction(t *testing.T) {
	h := newHarness(t)
	authority := h.initState(5)
	seller := h.wallet(sol)
	alice := h.wallet(sol)
	bob := h.wallet(sol)
	art := h.mintTo(seller)
	h.list(seller, art, ListingParams{ItemID: "art", Price: 1_000, IsAuction: true, ListingStart: 1_000, ListingEnd: 2_000})

	h.mustExec(h.addrs.Bid(alice, seller, "art", 40_000_000))
	h.mustExec(h.addrs.Bid(bob, seller, "art", 60_000_000))

	settle := func(bidder solana.PublicKey) error {
		ix, err := h.addrs.SettleAuction(bidder, seller, "art", art, authority)
		require.NoError(t, err)
		return h.exec(ix)
	}

	assert.ErrorIs(t, settle(bob), domain.ErrAuctionOn)

	h.now = 2_000
	assert.ErrorIs(t, settle(alice), domain.ErrNotWinner)

	sellerBefore := h.lamports(seller)
	authorityBefore := h.lamports(authority)
	listing := h.listingAddr(seller, "art")
	escrow, err := h.addrs.Escrow(listing, art)
	require.NoError(t, err)
	rent := h.lamports(listing) + h.lamports(escrow)

	require.NoError(t, settle(bob))
	assert.Equal(t, uint64(1), h.tokens(bob, art))
	assert.Equal(t, sellerBefore+57_000_000+rent, h.lamports(seller))
	assert.Equal(t, authorityBefore+3_000_000, h.lamports(authority))
	assert.Nil(t, h.listing(seller, "art"))

	assert.ErrorIs(t, settle(bob), domain.ErrAccountNotFound)
}

func TestSettleAuction_FixedPrice(t *testing.T) {
	h := newHarness(t)
	authority := h.initState(5)
	seller := h.wallet(sol)
	mint := h.mintTo(seller)
	h.list(seller, mint, ListingParams{ItemID: "f", Price: 10})

	ix, err := h.addrs.SettleAuction(h.wallet(sol), seller, "f", mint, authority)
	require.NoError(t, err)
	assert.ErrorIs(t, h.exec(ix), domain.ErrNotAuction)
}

func TestCancelListing_WrongBump(t *testing.T) {
	h := newHarness(t)
	seller := h.wallet(sol)
	mint := h.mintTo(seller)
	h.list(seller, mint, ListingParams{ItemID: "b"})

	ix, err := h.addrs.CancelListing(seller, "b", mint)
	require.NoError(t, err)
	ix.Bump++
	err = h.exec(ix)
	assert.ErrorIs(t, err, domain.ErrInvalidDerivation)
	assert.Equal(t, domain.KindDerivation, domain.KindOf(err))
	assert.NotNil(t, h.listing(seller, "b"))
}

func TestDeclaredAccessEnforced(t *testing.T) {
	h := newHarness(t)
	seller := h.wallet(sol)
	mint := h.mintTo(seller)
	h.list(seller, mint, ListingParams{ItemID: "d", Price: 1})

	ix, err := h.addrs.SetPrice(seller, "d", 2)
	require.NoError(t, err)
	metas := []ledger.AccountMeta{
		ledger.Meta(seller, false, true),
		ledger.Meta(ix.Listing, false, false),
	}
	assert.ErrorIs(t, h.execWith(ix, metas), domain.ErrAccountNotWritable)
	assert.Equal(t, uint64(1), h.listing(seller, "d").Price)
}

func TestFixturesDisabled(t *testing.T) {
	h := newHarness(t)
	h.prog = NewProgram(h.addrs, false)

	err := h.exec(&event.Airdrop{To: solana.NewWallet().PublicKey(), Lamports: sol})
	assert.ErrorIs(t, err, domain.ErrFixturesDisabled)
}

func TestAddressesAreCached(t *testing.T) {
	addrs := NewAddresses(testProgramID, 0)
	seller := solana.NewWallet().PublicKey()

	a1, b1, err := addrs.Listing(seller, "1")
	require.NoError(t, err)
	a2, b2, err := addrs.Listing(seller, "1")
	require.NoError(t, err)
	assert.Equal(t, a1, a2)
	assert.Equal(t, b1, b2)
	assert.Equal(t, 1, addrs.cache.ItemCount())

	direct, bump, err := solana.FindProgramAddress(ListingSeeds(seller, "1"), testProgramID)
	require.NoError(t, err)
	assert.Equal(t, direct, a1)
	assert.Equal(t, bump, b1)
	require.NoError(t, addrs.VerifyListing(seller, "1", bump, a1))
	assert.ErrorIs(t, addrs.VerifyListing(seller, "2", bump, a1), domain.ErrInvalidDerivation)
}
