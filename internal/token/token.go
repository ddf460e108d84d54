// Package token is the custody primitive the marketplace builds on: mints,
// token accounts at associated addresses, transfers and closes authorised
// either by a signing wallet or by a program-derived address.
package token

import (
	"bytes"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"nft_market/internal/domain"
	"nft_market/internal/ledger"
	"nft_market/pkg/safe"
)

// ProgramID owns every mint and token account.
var ProgramID = solana.TokenProgramID

var (
	mintDiscriminator    = domain.Discriminator("token", "Mint")
	accountDiscriminator = domain.Discriminator("token", "Account")
)

// Mint describes a token kind. An NFT is a mint with supply 1 and 0 decimals.
type Mint struct {
	Authority solana.PublicKey `json:"authority"`
	Supply    uint64           `json:"supply"`
	Decimals  uint8            `json:"decimals"`
}

// Account holds Amount units of Mint on behalf of Owner. Owner may be a
// wallet or a program-derived address.
type Account struct {
	Mint   solana.PublicKey `json:"mint"`
	Owner  solana.PublicKey `json:"owner"`
	Amount uint64           `json:"amount"`
}

func encode(disc [8]byte, v any) ([]byte, error) {
	body, err := bin.MarshalBorsh(v)
	if err != nil {
		return nil, err
	}
	return append(disc[:], body...), nil
}

func decode(disc [8]byte, data []byte, v any) error {
	if len(data) < len(disc) || !bytes.Equal(data[:len(disc)], disc[:]) {
		return domain.ErrInvalidTokenAccount
	}
	if err := bin.UnmarshalBorsh(v, data[len(disc):]); err != nil {
		return domain.Errorf(domain.ErrInvalidTokenAccount, "%v", err)
	}
	return nil
}

// DecodeMint parses raw mint account data.
func DecodeMint(data []byte) (*Mint, error) {
	var m Mint
	if err := decode(mintDiscriminator, data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// DecodeAccount parses raw token account data.
func DecodeAccount(data []byte) (*Account, error) {
	var a Account
	if err := decode(accountDiscriminator, data, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// AssociatedAddress returns the canonical token account of wallet for mint.
func AssociatedAddress(wallet, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindAssociatedTokenAddress(wallet, mint)
	if err != nil {
		return solana.PublicKey{}, domain.Errorf(domain.ErrInvalidDerivation, "ata(%s, %s): %v", wallet, mint, err)
	}
	return addr, nil
}

// LoadMint reads the mint at addr.
func LoadMint(t *ledger.Txn, addr solana.PublicKey) (*Mint, error) {
	raw, err := t.Get(addr)
	if err != nil {
		return nil, err
	}
	if !raw.Owner.Equals(ProgramID) {
		return nil, domain.Errorf(domain.ErrIllegalOwner, "mint %s is owned by %s", addr, raw.Owner)
	}
	m, err := DecodeMint(raw.Data)
	if err != nil {
		return nil, domain.Errorf(domain.ErrInvalidMint, "%s is not a mint", addr)
	}
	return m, nil
}

// LoadAccount reads the token account at addr.
func LoadAccount(t *ledger.Txn, addr solana.PublicKey) (*Account, error) {
	raw, err := t.Get(addr)
	if err != nil {
		return nil, err
	}
	if !raw.Owner.Equals(ProgramID) {
		return nil, domain.Errorf(domain.ErrIllegalOwner, "token account %s is owned by %s", addr, raw.Owner)
	}
	return DecodeAccount(raw.Data)
}

func storeMint(t *ledger.Txn, addr solana.PublicKey, m *Mint) error {
	data, err := encode(mintDiscriminator, m)
	if err != nil {
		return err
	}
	return ledger.WriteData(t, addr, ProgramID, data)
}

func storeAccount(t *ledger.Txn, addr solana.PublicKey, a *Account) error {
	data, err := encode(accountDiscriminator, a)
	if err != nil {
		return err
	}
	return ledger.WriteData(t, addr, ProgramID, data)
}

// InitializeMint creates a mint at addr, rent paid by payer.
func InitializeMint(t *ledger.Txn, payer, addr, authority solana.PublicKey, decimals uint8) error {
	data, err := encode(mintDiscriminator, &Mint{Authority: authority, Decimals: decimals})
	if err != nil {
		return err
	}
	return ledger.CreateAccount(t, payer, addr, ProgramID, data)
}

// CreateAssociatedAccount returns the associated token account of wallet for
// mint, creating it with payer's lamports when it does not exist yet.
// An existing account at that address must match the mint and wallet.
func CreateAssociatedAccount(t *ledger.Txn, payer, wallet, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, err := AssociatedAddress(wallet, mint)
	if err != nil {
		return addr, err
	}

	existing, err := t.Lookup(addr)
	if err != nil {
		return addr, err
	}
	if existing != nil {
		acc, err := LoadAccount(t, addr)
		if err != nil {
			return addr, err
		}
		if !acc.Mint.Equals(mint) || !acc.Owner.Equals(wallet) {
			return addr, domain.Errorf(domain.ErrInvalidTokenAccount, "%s", addr)
		}
		return addr, nil
	}

	if _, err := LoadMint(t, mint); err != nil {
		return addr, err
	}
	data, err := encode(accountDiscriminator, &Account{Mint: mint, Owner: wallet})
	if err != nil {
		return addr, err
	}
	if err := ledger.CreateAccount(t, payer, addr, ProgramID, data); err != nil {
		return addr, err
	}
	t.Logf("token: created associated account %s for %s", addr, wallet)
	return addr, nil
}

// ResolveDestination validates addr as a token account of wallet for mint.
// The associated address is created on demand; any other address must
// already exist.
func ResolveDestination(t *ledger.Txn, payer, wallet, mint, addr solana.PublicKey) error {
	ata, err := AssociatedAddress(wallet, mint)
	if err != nil {
		return err
	}
	if ata.Equals(addr) {
		_, err := CreateAssociatedAccount(t, payer, wallet, mint)
		return err
	}

	acc, err := LoadAccount(t, addr)
	if err != nil {
		return err
	}
	if !acc.Mint.Equals(mint) || !acc.Owner.Equals(wallet) {
		return domain.Errorf(domain.ErrInvalidTokenAccount, "%s is not a %s account of %s", addr, mint, wallet)
	}
	return nil
}

// MintTo issues amount new units into dest. authority must sign and be the
// mint authority.
func MintTo(t *ledger.Txn, mint, dest, authority solana.PublicKey, amount uint64) error {
	if err := t.RequireSigner(authority); err != nil {
		return err
	}
	m, err := LoadMint(t, mint)
	if err != nil {
		return err
	}
	if !m.Authority.Equals(authority) {
		return domain.Errorf(domain.ErrInvalidMint, "%s cannot mint %s", authority, mint)
	}
	acc, err := LoadAccount(t, dest)
	if err != nil {
		return err
	}
	if !acc.Mint.Equals(mint) {
		return domain.Errorf(domain.ErrInvalidTokenAccount, "%s holds %s", dest, acc.Mint)
	}

	if m.Supply, err = safe.Add(m.Supply, amount); err != nil {
		return domain.Errorf(domain.ErrArithmeticOverflow, "supply of %s", mint)
	}
	if acc.Amount, err = safe.Add(acc.Amount, amount); err != nil {
		return domain.Errorf(domain.ErrArithmeticOverflow, "balance of %s", dest)
	}
	if err := storeMint(t, mint, m); err != nil {
		return err
	}
	return storeAccount(t, dest, acc)
}

// Transfer moves amount units between two token accounts of the same mint.
func Transfer(t *ledger.Txn, from, to solana.PublicKey, auth Authority, amount uint64) error {
	src, err := LoadAccount(t, from)
	if err != nil {
		return err
	}
	dst, err := LoadAccount(t, to)
	if err != nil {
		return err
	}
	if !src.Mint.Equals(dst.Mint) {
		return domain.Errorf(domain.ErrInvalidTokenAccount, "mint mismatch %s != %s", src.Mint, dst.Mint)
	}
	if err := auth.Authorize(t, src.Owner); err != nil {
		return err
	}
	if src.Amount < amount {
		return domain.Errorf(domain.ErrInsufficientAsset, "%s has %d, needs %d", from, src.Amount, amount)
	}
	if from.Equals(to) {
		return nil
	}

	src.Amount -= amount
	if dst.Amount, err = safe.Add(dst.Amount, amount); err != nil {
		return domain.Errorf(domain.ErrArithmeticOverflow, "balance of %s", to)
	}
	if err := storeAccount(t, from, src); err != nil {
		return err
	}
	return storeAccount(t, to, dst)
}

// CloseAccount deletes an empty token account and sends its rent to dest.
func CloseAccount(t *ledger.Txn, addr, dest solana.PublicKey, auth Authority) error {
	acc, err := LoadAccount(t, addr)
	if err != nil {
		return err
	}
	if err := auth.Authorize(t, acc.Owner); err != nil {
		return err
	}
	if acc.Amount != 0 {
		return domain.Errorf(domain.ErrNonZeroBalance, "%s holds %d", addr, acc.Amount)
	}
	return ledger.CloseAccount(t, addr, dest, ProgramID)
}

// MintNft creates a 0-decimals mint owned by authority, the authority's
// associated token account, and issues exactly one unit into it.
func MintNft(t *ledger.Txn, authority, mint solana.PublicKey) (solana.PublicKey, error) {
	if err := InitializeMint(t, authority, mint, authority, 0); err != nil {
		return solana.PublicKey{}, err
	}
	dest, err := CreateAssociatedAccount(t, authority, authority, mint)
	if err != nil {
		return dest, err
	}
	if err := MintTo(t, mint, dest, authority, 1); err != nil {
		return dest, err
	}
	t.Logf("token: minted %s to %s", mint, dest)
	return dest, nil
}
