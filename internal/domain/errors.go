package domain

import (
	"errors"
	"fmt"
)

// Kind classifies why an instruction was rejected.
type Kind uint8

const (
	KindInput Kind = iota + 1
	KindAuthorization
	KindState
	KindDerivation
	KindResource
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindAuthorization:
		return "authorization"
	case KindState:
		return "state"
	case KindDerivation:
		return "derivation"
	case KindResource:
		return "resource"
	default:
		return "unknown"
	}
}

// ProgramError is a rejection raised while executing an instruction.
// The whole instruction aborts with no account writes.
type ProgramError struct {
	Code uint32
	Name string
	Kind Kind
	Msg  string
}

func (e *ProgramError) Error() string {
	return e.Name + ": " + e.Msg
}

func newProgramError(code uint32, name string, kind Kind, msg string) *ProgramError {
	return &ProgramError{Code: code, Name: name, Kind: kind, Msg: msg}
}

// AsProgramError unwraps err into a ProgramError if it carries one.
func AsProgramError(err error) (*ProgramError, bool) {
	var pe *ProgramError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// KindOf returns the error kind, or 0 for infrastructure errors.
func KindOf(err error) Kind {
	if pe, ok := AsProgramError(err); ok {
		return pe.Kind
	}
	return 0
}

// Errorf wraps a sentinel ProgramError with call-site detail.
// errors.Is(Errorf(ErrX, ...), ErrX) holds.
func Errorf(base *ProgramError, format string, args ...any) error {
	return fmt.Errorf("%w: %s", base, fmt.Sprintf(format, args...))
}

// Runtime errors (accounts, signatures, lamports).
var (
	ErrMissingSignature    = newProgramError(3000, "MissingSignature", KindAuthorization, "required signer did not sign")
	ErrUndeclaredAccount   = newProgramError(3001, "UndeclaredAccount", KindInput, "account was not declared by the instruction")
	ErrAccountNotWritable  = newProgramError(3002, "AccountNotWritable", KindInput, "account was declared read-only")
	ErrAccountNotFound     = newProgramError(3003, "AccountNotFound", KindState, "account does not exist")
	ErrAccountAlreadyInUse = newProgramError(3004, "AccountAlreadyInUse", KindState, "account already exists")
	ErrInsufficientFunds   = newProgramError(3005, "InsufficientFunds", KindResource, "insufficient lamports")
	ErrIllegalOwner        = newProgramError(3006, "IllegalOwner", KindAuthorization, "account is owned by another program")
	ErrInvalidAccountData  = newProgramError(3007, "InvalidAccountData", KindState, "account data does not match the expected layout")
	ErrArithmeticOverflow  = newProgramError(3008, "ArithmeticOverflow", KindResource, "amount overflow")
	ErrFixturesDisabled    = newProgramError(3009, "FixturesDisabled", KindAuthorization, "fixture instructions are disabled")
	ErrUnknownInstruction  = newProgramError(3010, "UnknownInstruction", KindInput, "instruction type is not supported")
	ErrNotRentExempt       = newProgramError(3011, "NotRentExempt", KindResource, "account balance below the rent-exempt minimum for its data")
)

// Token custody errors.
var (
	ErrInvalidTokenAccount = newProgramError(4000, "InvalidTokenAccount", KindState, "token account mint or owner mismatch")
	ErrInsufficientAsset   = newProgramError(4001, "InsufficientAsset", KindResource, "token account balance too low")
	ErrOwnerMismatch       = newProgramError(4002, "OwnerMismatch", KindAuthorization, "authority does not own the token account")
	ErrNonZeroBalance      = newProgramError(4003, "NonZeroBalance", KindState, "token account still holds tokens")
	ErrInvalidMint         = newProgramError(4004, "InvalidMint", KindState, "mint authority mismatch")
)

// Marketplace program errors. Codes follow the 6000+ custom range.
var (
	ErrInvalidPrice            = newProgramError(6000, "InvalidPrice", KindInput, "price must be at least 1 lamport and above the current bid")
	ErrStateAlreadyInitialized = newProgramError(6005, "StateAlreadyInitialized", KindResource, "state already has been initialized")
	ErrListingNotOn            = newProgramError(6007, "ListingNotOn", KindState, "listing not on")
	ErrAuctionOn               = newProgramError(6008, "AuctionOn", KindState, "auction on")
	ErrNotAuthorized           = newProgramError(6010, "NotAuthorized", KindAuthorization, "not authorized")
	ErrNotWinner               = newProgramError(6011, "NotWinner", KindAuthorization, "not winner")
	ErrNotAuction              = newProgramError(6012, "NotAuction", KindState, "not auction")
	ErrNotOnSell               = newProgramError(6013, "NotOnSell", KindState, "not on sell")
	ErrInvalidOwnerCut         = newProgramError(6014, "InvalidOwnerCut", KindInput, "owner cut from 0 to 100")
	ErrInvalidBid              = newProgramError(6015, "InvalidBid", KindAuthorization, "cannot bid own auction")
	ErrInvalidItemID           = newProgramError(6016, "InvalidItemID", KindInput, "item id must be 1 to 32 bytes")
	ErrInvalidWindow           = newProgramError(6017, "InvalidWindow", KindInput, "auction must end after it starts")
	ErrInvalidDerivation       = newProgramError(6018, "InvalidDerivation", KindDerivation, "address does not match its derivation")
	ErrListingExists           = newProgramError(6019, "ListingExists", KindState, "a live listing already exists for this item")
)

// ConfigError represents a configuration error
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var (
	// ErrConfigNotFound is returned when configuration file is missing
	ErrConfigNotFound = errors.New("configuration not found")
)
