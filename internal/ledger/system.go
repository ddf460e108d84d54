package ledger

import (
	"math"

	"github.com/gagliardetto/solana-go"
	"nft_market/internal/domain"
	"nft_market/pkg/safe"
)

const (
	accountStorageOverhead = 128
	lamportsPerByteYear    = 3480
	exemptionYears         = 2

	// MaxLamports is the largest balance the account store can persist.
	MaxLamports = math.MaxInt64
)

// RentExemptMinimum is the balance an account with dataLen bytes must hold.
func RentExemptMinimum(dataLen int) uint64 {
	return uint64(accountStorageOverhead+dataLen) * lamportsPerByteYear * exemptionYears
}

// Balance returns the lamports held at addr, 0 if the account does not exist.
func Balance(t *Txn, addr solana.PublicKey) (uint64, error) {
	a, err := t.Lookup(addr)
	if err != nil || a == nil {
		return 0, err
	}
	return a.Lamports, nil
}

// Transfer moves lamports between system accounts. from must sign.
func Transfer(t *Txn, from, to solana.PublicKey, lamports uint64) error {
	if err := t.RequireSigner(from); err != nil {
		return err
	}
	src, err := t.Get(from)
	if err != nil {
		return err
	}
	if !src.Owner.Equals(solana.SystemProgramID) {
		return domain.Errorf(domain.ErrIllegalOwner, "%s is owned by %s", from, src.Owner)
	}
	if lamports == 0 || from.Equals(to) {
		return nil
	}
	if src.Lamports < lamports {
		return domain.Errorf(domain.ErrInsufficientFunds, "%s has %d, needs %d", from, src.Lamports, lamports)
	}
	src.Lamports -= lamports
	if err := t.Put(src); err != nil {
		return err
	}
	return credit(t, to, lamports)
}

// Airdrop credits lamports out of thin air. Only fixture instructions use it.
func Airdrop(t *Txn, to solana.PublicKey, lamports uint64) error {
	return credit(t, to, lamports)
}

// CreateAccount allocates a rent-exempt account at addr owned by owner,
// funded by payer.
func CreateAccount(t *Txn, payer, addr, owner solana.PublicKey, data []byte) error {
	existing, err := t.Lookup(addr)
	if err != nil {
		return err
	}
	if existing != nil {
		return domain.Errorf(domain.ErrAccountAlreadyInUse, "%s", addr)
	}
	rent := RentExemptMinimum(len(data))
	if err := Transfer(t, payer, addr, rent); err != nil {
		return err
	}
	return t.Put(&Account{
		Address:  addr,
		Owner:    owner,
		Lamports: rent,
		Data:     append([]byte(nil), data...),
	})
}

// WriteData replaces the data of an account owned by owner. The account
// must stay rent exempt at the new length.
func WriteData(t *Txn, addr, owner solana.PublicKey, data []byte) error {
	a, err := t.Get(addr)
	if err != nil {
		return err
	}
	if !a.Owner.Equals(owner) {
		return domain.Errorf(domain.ErrIllegalOwner, "%s is owned by %s", addr, a.Owner)
	}
	if need := RentExemptMinimum(len(data)); a.Lamports < need {
		return domain.Errorf(domain.ErrNotRentExempt, "%s holds %d, %d bytes need %d", addr, a.Lamports, len(data), need)
	}
	a.Data = append(a.Data[:0], data...)
	return t.Put(a)
}

// CloseAccount deletes an account owned by owner and sends its lamports to dest.
func CloseAccount(t *Txn, addr, dest, owner solana.PublicKey) error {
	a, err := t.Get(addr)
	if err != nil {
		return err
	}
	if !a.Owner.Equals(owner) {
		return domain.Errorf(domain.ErrIllegalOwner, "%s is owned by %s", addr, a.Owner)
	}
	if err := t.Delete(addr); err != nil {
		return err
	}
	return credit(t, dest, a.Lamports)
}

func credit(t *Txn, to solana.PublicKey, lamports uint64) error {
	dst, err := t.Lookup(to)
	if err != nil {
		return err
	}
	if dst == nil {
		dst = &Account{Address: to, Owner: solana.SystemProgramID}
	}
	sum, err := safe.Add(dst.Lamports, lamports)
	if err != nil || sum > MaxLamports {
		return domain.Errorf(domain.ErrArithmeticOverflow, "%s", to)
	}
	dst.Lamports = sum
	return t.Put(dst)
}
