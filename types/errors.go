package types

import (
	"errors"
	"fmt"
)

// error taxonomy shared by every flow; wrap with fmt.Errorf("%w: ...") and test with errors.Is
var (
	// signer explicitly refused, never retried
	ErrUserDeclined = errors.New("user declined")
	// receipt (or entry point) reported execution failure, never retried
	ErrOnChainRevert = errors.New("transaction reverted")
	// no receipt within the bounded wait; the transaction may still land
	ErrConfirmationTimeout = errors.New("confirmation timed out")
	// missing per-chain address, unresolved call target, malformed strategy
	ErrConfiguration = errors.New("configuration error")
	// transient RPC failure
	ErrNetwork = errors.New("network error")
	// withdraw requested without an active position
	ErrNoFunds = errors.New("no funds")
)

// ErrorKind returns a short stable name for the taxonomy member wrapped by err
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUserDeclined):
		return "declined"
	case errors.Is(err, ErrOnChainRevert):
		return "reverted"
	case errors.Is(err, ErrConfirmationTimeout):
		return "timeout"
	case errors.Is(err, ErrConfiguration):
		return "config"
	case errors.Is(err, ErrNoFunds):
		return "nofunds"
	case errors.Is(err, ErrNetwork):
		return "network"
	}
	return "error"
}

// ChainError tells which chain a multi-chain read failed on
type ChainError struct {
	ChainID int
	Err     error
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("chain %d: %s", e.ChainID, e.Err.Error())
}

func (e *ChainError) Unwrap() error {
	return e.Err
}
