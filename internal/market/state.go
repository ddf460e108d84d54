package market

import (
	"nft_market/internal/domain"
	"nft_market/internal/event"
	"nft_market/internal/ledger"
)

// initState creates the singleton. The signer becomes the fee authority.
func (p *Program) initState(t *ledger.Txn, e *event.InitState) error {
	if err := t.RequireSigner(e.Authority); err != nil {
		return err
	}
	if e.OwnerCut > domain.MaxOwnerCut {
		return domain.Errorf(domain.ErrInvalidOwnerCut, "got %d", e.OwnerCut)
	}

	addr, err := p.addrs.State()
	if err != nil {
		return err
	}
	if !addr.Equals(e.State) {
		return domain.Errorf(domain.ErrInvalidDerivation, "state is %s, not %s", addr, e.State)
	}
	existing, err := t.Lookup(addr)
	if err != nil {
		return err
	}
	if existing != nil {
		return domain.Errorf(domain.ErrStateAlreadyInitialized, "%s", addr)
	}

	data, err := domain.MarshalState(&domain.GlobalState{
		Version:   domain.StateVersion,
		Authority: e.Authority,
		OwnerCut:  e.OwnerCut,
	})
	if err != nil {
		return err
	}
	if err := ledger.CreateAccount(t, e.Authority, addr, p.ID(), data); err != nil {
		return err
	}
	t.Logf("state initialized: owner_cut=%d authority=%s", e.OwnerCut, e.Authority)
	return nil
}
