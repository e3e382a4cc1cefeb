package colorblind

import (
	"errors"
	"fmt"
)

var (
	ErrDimensionMismatch = errors.New("frame dimensions differ")
	ErrUnknownMode       = errors.New("unknown deficiency mode")
	ErrMalformedFrame    = errors.New("frame buffer does not match its dimensions")
)

// ContractError is the panic value raised when a caller breaks the
// pipeline's preconditions. It is never returned for valid input.
type ContractError struct {
	Op   string
	Mode Mode
	Err  error
}

func (e *ContractError) Error() string {
	if e.Mode != None {
		return fmt.Sprintf("colorblind: %s (%s): %v", e.Op, e.Mode, e.Err)
	}
	return fmt.Sprintf("colorblind: %s: %v", e.Op, e.Err)
}

func (e *ContractError) Unwrap() error {
	return e.Err
}
