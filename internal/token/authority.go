package token

import (
	"github.com/gagliardetto/solana-go"
	"nft_market/internal/domain"
	"nft_market/internal/ledger"
)

// Authority proves the right to move tokens out of an account owned by owner.
type Authority interface {
	Authorize(t *ledger.Txn, owner solana.PublicKey) error
}

// Signer is a wallet authority. It must be the account owner and must have
// signed the instruction.
type Signer solana.PublicKey

func (s Signer) Authorize(t *ledger.Txn, owner solana.PublicKey) error {
	key := solana.PublicKey(s)
	if !key.Equals(owner) {
		return domain.Errorf(domain.ErrOwnerMismatch, "%s is not %s", key, owner)
	}
	return t.RequireSigner(key)
}

// ProgramSigner is a program-derived authority. Only the program that knows
// the seeds can present it, which is how escrow is released.
type ProgramSigner struct {
	ProgramID solana.PublicKey
	Seeds     [][]byte
}

func (p ProgramSigner) Authorize(_ *ledger.Txn, owner solana.PublicKey) error {
	addr, err := solana.CreateProgramAddress(p.Seeds, p.ProgramID)
	if err != nil {
		return domain.Errorf(domain.ErrInvalidDerivation, "%v", err)
	}
	if !addr.Equals(owner) {
		return domain.Errorf(domain.ErrOwnerMismatch, "derived %s is not %s", addr, owner)
	}
	return nil
}
