package market

import (
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/patrickmn/go-cache"
	"nft_market/internal/domain"
	"nft_market/internal/token"
)

var stateSeed = []byte("state")

type derived struct {
	addr solana.PublicKey
	bump uint8
}

// Addresses derives and memoises the program's deterministic addresses.
// Bump search is the expensive part, so results are cached.
type Addresses struct {
	programID solana.PublicKey
	cache     *cache.Cache
}

// NewAddresses creates a deriver for programID. ttl <= 0 keeps entries forever.
func NewAddresses(programID solana.PublicKey, ttl time.Duration) *Addresses {
	if ttl <= 0 {
		return &Addresses{programID: programID, cache: cache.New(cache.NoExpiration, 0)}
	}
	return &Addresses{programID: programID, cache: cache.New(ttl, 2*ttl)}
}

// ProgramID returns the marketplace program id.
func (a *Addresses) ProgramID() solana.PublicKey { return a.programID }

// ListingSeeds returns the seeds of the listing address, without bump.
func ListingSeeds(seller solana.PublicKey, itemID string) [][]byte {
	return [][]byte{seller.Bytes(), []byte(itemID)}
}

// ValidateItemID checks the item id fits in one seed.
func ValidateItemID(itemID string) error {
	if len(itemID) == 0 || len(itemID) > domain.MaxItemIDLen {
		return domain.Errorf(domain.ErrInvalidItemID, "got %d bytes", len(itemID))
	}
	return nil
}

func (a *Addresses) find(key string, seeds [][]byte) (solana.PublicKey, uint8, error) {
	if v, ok := a.cache.Get(key); ok {
		d := v.(derived)
		return d.addr, d.bump, nil
	}
	addr, bump, err := solana.FindProgramAddress(seeds, a.programID)
	if err != nil {
		return solana.PublicKey{}, 0, domain.Errorf(domain.ErrInvalidDerivation, "%v", err)
	}
	a.cache.SetDefault(key, derived{addr: addr, bump: bump})
	return addr, bump, nil
}

// State returns the address of the marketplace singleton.
func (a *Addresses) State() (solana.PublicKey, error) {
	addr, _, err := a.find("state", [][]byte{stateSeed})
	return addr, err
}

// Listing returns the listing address of (seller, itemID) and its bump.
func (a *Addresses) Listing(seller solana.PublicKey, itemID string) (solana.PublicKey, uint8, error) {
	if err := ValidateItemID(itemID); err != nil {
		return solana.PublicKey{}, 0, err
	}
	return a.find("listing:"+seller.String()+":"+itemID, ListingSeeds(seller, itemID))
}

// Escrow returns the custody account of listing for mint.
func (a *Addresses) Escrow(listing, mint solana.PublicKey) (solana.PublicKey, error) {
	key := "escrow:" + listing.String() + ":" + mint.String()
	if v, ok := a.cache.Get(key); ok {
		return v.(derived).addr, nil
	}
	addr, err := token.AssociatedAddress(listing, mint)
	if err != nil {
		return addr, err
	}
	a.cache.SetDefault(key, derived{addr: addr})
	return addr, nil
}

// VerifyListing recreates the listing address from (seller, itemID, bump)
// and fails with ErrInvalidDerivation unless it equals listing.
func (a *Addresses) VerifyListing(seller solana.PublicKey, itemID string, bump uint8, listing solana.PublicKey) error {
	if err := ValidateItemID(itemID); err != nil {
		return err
	}
	seeds := append(ListingSeeds(seller, itemID), []byte{bump})
	addr, err := solana.CreateProgramAddress(seeds, a.programID)
	if err != nil {
		return domain.Errorf(domain.ErrInvalidDerivation, "bump %d: %v", bump, err)
	}
	if !addr.Equals(listing) {
		return domain.Errorf(domain.ErrInvalidDerivation, "bump %d gives %s, not %s", bump, addr, listing)
	}
	return nil
}

// Signer returns the program authority of the listing's escrow.
func (a *Addresses) Signer(seller solana.PublicKey, itemID string, bump uint8) token.ProgramSigner {
	return token.ProgramSigner{
		ProgramID: a.programID,
		Seeds:     append(ListingSeeds(seller, itemID), []byte{bump}),
	}
}
