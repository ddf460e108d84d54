package domain

import (
	"bytes"
	"crypto/sha256"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"nft_market/pkg/safe"
)

const (
	// MaxOwnerCut is the highest accepted fee percentage.
	MaxOwnerCut = 100

	// MaxItemIDLen is the seed length limit for the item id.
	MaxItemIDLen = solana.MaxSeedLength

	// StateVersion is the layout version written by InitState.
	StateVersion = 1

	// ListingSpace is the allocated size of every listing account: the
	// discriminator plus the largest encoding, with a full-length item id
	// and a highest bidder set. Shorter encodings are zero padded so a bid
	// never grows the account.
	ListingSpace = 8 + 32 + (4 + MaxItemIDLen) + 8 + 32 + 8 + 8 + 1 + (1 + 32) + 8 + 1
)

var (
	stateDiscriminator   = Discriminator("account", "State")
	listingDiscriminator = Discriminator("account", "Listing")
)

// Discriminator computes the 8-byte type tag sha256("namespace:name")[:8]
// placed in front of every program-owned account body.
func Discriminator(namespace, name string) [8]byte {
	hash := sha256.Sum256([]byte(namespace + ":" + name))
	var disc [8]byte
	copy(disc[:], hash[:8])
	return disc
}

// GlobalState is the marketplace-wide singleton.
type GlobalState struct {
	Version   uint8            `json:"version"`
	Authority solana.PublicKey `json:"authority"` // receives the owner cut
	OwnerCut  uint16           `json:"owner_cut"` // percent, 0..100
}

// Listing is the escrow record of one item offered by one seller.
// Its address is derived from (Seller, ItemID).
type Listing struct {
	Seller        solana.PublicKey  `json:"seller"`
	ItemID        string            `json:"item_id"`
	Price         uint64            `json:"price"` // 0 = unset
	AssetMint     solana.PublicKey  `json:"asset_mint"`
	ListingStart  int64             `json:"listing_start"`
	ListingEnd    int64             `json:"listing_end"`
	IsAuction     bool              `json:"is_auction"`
	HighestBidder *solana.PublicKey `json:"highest_bidder,omitempty" bin:"optional"`
	HighestBid    uint64            `json:"highest_bid"`
	EscrowBump    uint8             `json:"escrow_bump"`
}

// AcceptsBidsAt reports whether now falls inside [ListingStart, ListingEnd).
func (l *Listing) AcceptsBidsAt(now int64) bool {
	return now >= l.ListingStart && now < l.ListingEnd
}

// EndedAt reports whether the auction window has closed.
func (l *Listing) EndedAt(now int64) bool {
	return now >= l.ListingEnd
}

// IsHighestBidder reports whether key holds the current top bid.
func (l *Listing) IsHighestBidder(key solana.PublicKey) bool {
	return l.HighestBidder != nil && l.HighestBidder.Equals(key)
}

// SaleSplit returns the fee floor(price*ownerCut/100) and the seller's share.
func SaleSplit(price uint64, ownerCut uint16) (fee, proceeds uint64, err error) {
	if ownerCut > MaxOwnerCut {
		return 0, 0, ErrInvalidOwnerCut
	}
	fee, err = safe.MulDiv(price, uint64(ownerCut), 100)
	if err != nil {
		return 0, 0, ErrArithmeticOverflow
	}
	return fee, price - fee, nil
}

// MarshalState encodes the state account body.
func MarshalState(s *GlobalState) ([]byte, error) {
	return marshalAccount(stateDiscriminator, s)
}

// UnmarshalState decodes a state account body.
func UnmarshalState(data []byte) (*GlobalState, error) {
	var s GlobalState
	if err := unmarshalAccount(stateDiscriminator, data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// MarshalListing encodes the listing account body, padded to ListingSpace.
func MarshalListing(l *Listing) ([]byte, error) {
	if len(l.ItemID) > MaxItemIDLen {
		return nil, ErrInvalidItemID
	}
	data, err := marshalAccount(listingDiscriminator, l)
	if err != nil {
		return nil, err
	}
	if len(data) > ListingSpace {
		return nil, Errorf(ErrInvalidAccountData, "listing encodes to %d bytes", len(data))
	}
	out := make([]byte, ListingSpace)
	copy(out, data)
	return out, nil
}

// UnmarshalListing decodes a listing account body. Trailing padding is ignored.
func UnmarshalListing(data []byte) (*Listing, error) {
	var l Listing
	if err := unmarshalAccount(listingDiscriminator, data, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func marshalAccount(disc [8]byte, v any) ([]byte, error) {
	body, err := bin.MarshalBorsh(v)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(disc)+len(body))
	out = append(out, disc[:]...)
	return append(out, body...), nil
}

func unmarshalAccount(disc [8]byte, data []byte, v any) error {
	if len(data) < len(disc) || !bytes.Equal(data[:len(disc)], disc[:]) {
		return ErrInvalidAccountData
	}
	if err := bin.UnmarshalBorsh(v, data[len(disc):]); err != nil {
		return Errorf(ErrInvalidAccountData, "%v", err)
	}
	return nil
}
