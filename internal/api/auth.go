package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"nft_market/internal/event"

	"github.com/gagliardetto/solana-go"
)

var (
	ErrBadSignature = errors.New("signature does not match signer")
	ErrBadRequest   = errors.New("malformed instruction request")
)

// InstructionRequest is the body of POST /v1/instructions. Signature is the
// signer's base58 ed25519 signature of Message(). ExpiresAt is a unix
// timestamp; a request is accepted once, and only before it expires.
type InstructionRequest struct {
	Type      string          `json:"type"`
	ExpiresAt int64           `json:"expires_at"`
	Payload   json.RawMessage `json:"payload"`
	Signer    string          `json:"signer"`
	Signature string          `json:"signature"`
}

// Message returns the signed bytes: "type:expires_at:" then the raw payload.
func (r *InstructionRequest) Message() []byte {
	msg := make([]byte, 0, len(r.Type)+22+len(r.Payload))
	msg = append(msg, r.Type...)
	msg = append(msg, ':')
	msg = strconv.AppendInt(msg, r.ExpiresAt, 10)
	msg = append(msg, ':')
	return append(msg, r.Payload...)
}

// Verify checks the signature and decodes the instruction.
func (r *InstructionRequest) Verify() (event.Instruction, solana.PublicKey, error) {
	signer, err := solana.PublicKeyFromBase58(r.Signer)
	if err != nil {
		return nil, solana.PublicKey{}, fmt.Errorf("%w: signer: %v", ErrBadRequest, err)
	}
	sig, err := solana.SignatureFromBase58(r.Signature)
	if err != nil {
		return nil, signer, fmt.Errorf("%w: signature: %v", ErrBadRequest, err)
	}
	if !sig.Verify(signer, r.Message()) {
		return nil, signer, ErrBadSignature
	}

	typ, err := event.ParseType(r.Type)
	if err != nil {
		return nil, signer, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	ix, err := event.Decode(typ, r.Payload)
	if err != nil {
		return nil, signer, fmt.Errorf("%w: payload: %v", ErrBadRequest, err)
	}
	return ix, signer, nil
}

// SignRequest builds a signed request for ix expiring DefaultRequestTTL from
// now. Used by clients and tests.
func SignRequest(ix event.Instruction, key solana.PrivateKey) (*InstructionRequest, error) {
	return SignRequestUntil(ix, key, time.Now().Add(DefaultRequestTTL))
}

// SignRequestUntil builds a signed request for ix expiring at expires.
// Submitting the same instruction twice needs two different expiries.
func SignRequestUntil(ix event.Instruction, key solana.PrivateKey, expires time.Time) (*InstructionRequest, error) {
	payload, err := event.Encode(ix)
	if err != nil {
		return nil, err
	}
	r := &InstructionRequest{
		Type:      ix.GetType().String(),
		ExpiresAt: expires.Unix(),
		Payload:   payload,
		Signer:    key.PublicKey().String(),
	}
	sig, err := key.Sign(r.Message())
	if err != nil {
		return nil, err
	}
	r.Signature = sig.String()
	return r, nil
}
