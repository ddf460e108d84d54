// Package market is the marketplace program: escrowed listings sold at a
// fixed price or by auction, with a marketplace fee on every sale.
package market

import (
	"github.com/gagliardetto/solana-go"
	"nft_market/internal/domain"
	"nft_market/internal/event"
	"nft_market/internal/ledger"
	"nft_market/internal/token"
)

// Program executes marketplace instructions inside a ledger transaction.
// Every handler validates before it mutates; a returned error discards
// the whole transaction.
type Program struct {
	addrs         *Addresses
	allowFixtures bool
}

// NewProgram creates the program. allowFixtures enables Airdrop and MintNft.
func NewProgram(addrs *Addresses, allowFixtures bool) *Program {
	return &Program{addrs: addrs, allowFixtures: allowFixtures}
}

// Addresses returns the program's address deriver.
func (p *Program) Addresses() *Addresses { return p.addrs }

// ID returns the program id.
func (p *Program) ID() solana.PublicKey { return p.addrs.ProgramID() }

// Execute dispatches ix.
func (p *Program) Execute(t *ledger.Txn, ix event.Instruction) error {
	if ix.GetType().IsFixture() && !p.allowFixtures {
		return domain.Errorf(domain.ErrFixturesDisabled, "%s", ix.GetType())
	}

	t.Logf("Instruction: %s", ix.GetType())
	switch e := ix.(type) {
	case *event.InitState:
		return p.initState(t, e)
	case *event.CreateListing:
		return p.createListing(t, e)
	case *event.SetPrice:
		return p.setPrice(t, e)
	case *event.Bid:
		return p.bid(t, e)
	case *event.CancelListing:
		return p.cancelListing(t, e)
	case *event.BuyNft:
		return p.buyNft(t, e)
	case *event.SettleAuction:
		return p.settleAuction(t, e)
	case *event.Airdrop:
		return ledger.Airdrop(t, e.To, e.Lamports)
	case *event.MintNft:
		return p.mintNft(t, e)
	default:
		return domain.Errorf(domain.ErrUnknownInstruction, "%T", ix)
	}
}

func (p *Program) loadState(t *ledger.Txn, addr solana.PublicKey) (*domain.GlobalState, error) {
	want, err := p.addrs.State()
	if err != nil {
		return nil, err
	}
	if !want.Equals(addr) {
		return nil, domain.Errorf(domain.ErrInvalidDerivation, "state is %s, not %s", want, addr)
	}
	raw, err := t.Get(addr)
	if err != nil {
		return nil, err
	}
	if !raw.Owner.Equals(p.ID()) {
		return nil, domain.Errorf(domain.ErrIllegalOwner, "state %s is owned by %s", addr, raw.Owner)
	}
	return domain.UnmarshalState(raw.Data)
}

func (p *Program) loadListing(t *ledger.Txn, addr solana.PublicKey) (*domain.Listing, error) {
	raw, err := t.Get(addr)
	if err != nil {
		return nil, err
	}
	if !raw.Owner.Equals(p.ID()) {
		return nil, domain.Errorf(domain.ErrIllegalOwner, "listing %s is owned by %s", addr, raw.Owner)
	}
	return domain.UnmarshalListing(raw.Data)
}

func (p *Program) storeListing(t *ledger.Txn, addr solana.PublicKey, l *domain.Listing) error {
	data, err := domain.MarshalListing(l)
	if err != nil {
		return err
	}
	return ledger.WriteData(t, addr, p.ID(), data)
}

// verifyListing checks the caller-supplied bump against both the derivation
// and the bump stored at creation.
func (p *Program) verifyListing(l *domain.Listing, itemID string, bump uint8, addr solana.PublicKey) error {
	if err := p.addrs.VerifyListing(l.Seller, itemID, bump, addr); err != nil {
		return err
	}
	if bump != l.EscrowBump {
		return domain.Errorf(domain.ErrInvalidDerivation, "bump %d, stored %d", bump, l.EscrowBump)
	}
	return nil
}

// verifyEscrow checks the declared escrow and mint belong to the listing.
func (p *Program) verifyEscrow(l *domain.Listing, listing, escrow, mint solana.PublicKey) error {
	if !mint.Equals(l.AssetMint) {
		return domain.Errorf(domain.ErrInvalidTokenAccount, "mint %s, listing holds %s", mint, l.AssetMint)
	}
	want, err := p.addrs.Escrow(listing, l.AssetMint)
	if err != nil {
		return err
	}
	if !want.Equals(escrow) {
		return domain.Errorf(domain.ErrInvalidDerivation, "escrow is %s, not %s", want, escrow)
	}
	return nil
}

// release moves the escrowed unit to dest and closes the escrow and the
// listing, returning their rent to the seller.
func (p *Program) release(t *ledger.Txn, l *domain.Listing, listing, escrow, dest solana.PublicKey) error {
	auth := p.addrs.Signer(l.Seller, l.ItemID, l.EscrowBump)
	if err := token.Transfer(t, escrow, dest, auth, 1); err != nil {
		return err
	}
	if err := token.CloseAccount(t, escrow, l.Seller, auth); err != nil {
		return err
	}
	return ledger.CloseAccount(t, listing, l.Seller, p.ID())
}

func (p *Program) mintNft(t *ledger.Txn, e *event.MintNft) error {
	dest, err := token.AssociatedAddress(e.Authority, e.Mint)
	if err != nil {
		return err
	}
	if !dest.Equals(e.Token) {
		return domain.Errorf(domain.ErrInvalidDerivation, "token account is %s, not %s", dest, e.Token)
	}
	_, err = token.MintNft(t, e.Authority, e.Mint)
	return err
}
