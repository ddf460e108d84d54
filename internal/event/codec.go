package event

import (
	"encoding/json"
	"fmt"
)

// New returns a zero instruction of type t.
func New(t Type) (Instruction, error) {
	switch t {
	case IxInitState:
		return &InitState{}, nil
	case IxCreateListing:
		return &CreateListing{}, nil
	case IxSetPrice:
		return &SetPrice{}, nil
	case IxBid:
		return &Bid{}, nil
	case IxCancelListing:
		return &CancelListing{}, nil
	case IxBuyNft:
		return &BuyNft{}, nil
	case IxSettleAuction:
		return &SettleAuction{}, nil
	case IxAirdrop:
		return &Airdrop{}, nil
	case IxMintNft:
		return &MintNft{}, nil
	default:
		return nil, fmt.Errorf("unknown instruction type %d", uint16(t))
	}
}

// Encode serialises the instruction payload.
func Encode(ix Instruction) ([]byte, error) {
	buf := AcquireBuffer()
	defer ReleaseBuffer(buf)

	if err := json.NewEncoder(buf).Encode(ix); err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", ix.GetType(), err)
	}
	// Encoder appends a newline.
	out := make([]byte, buf.Len()-1)
	copy(out, buf.Bytes())
	return out, nil
}

// Decode parses a payload produced by Encode.
func Decode(t Type, payload []byte) (Instruction, error) {
	ix, err := New(t)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, ix); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", t, err)
	}
	return ix, nil
}
