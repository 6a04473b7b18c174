// Package mac computes the authentication codes that seal AGB save slots.
//
// On the console the code is produced by the secure coprocessor, so the
// codec only ever sees it through the Oracle interface. Calls into the
// coprocessor are known to occasionally return a half-written result;
// Stabilizer wraps any Oracle and repeats the call until it converges.
package mac

import (
	"errors"
	"fmt"
)

// Size is the length of a slot authentication code.
const Size = 16

// ErrOracle matches every *OracleError.
var ErrOracle = errors.New("mac oracle failure")

// Oracle computes the authentication code for a 32-byte slot hash.
type Oracle interface {
	Compute(hash [32]byte) ([Size]byte, error)
}

// OracleFunc adapts a plain function to the Oracle interface.
type OracleFunc func(hash [32]byte) ([Size]byte, error)

// Compute calls f(hash).
func (f OracleFunc) Compute(hash [32]byte) ([Size]byte, error) {
	return f(hash)
}

// OracleError reports a hard failure of the underlying oracle.
type OracleError struct {
	Err error
}

func (e *OracleError) Error() string {
	return fmt.Sprintf("mac oracle: %v", e.Err)
}

func (e *OracleError) Unwrap() error {
	return e.Err
}

func (e *OracleError) Is(target error) bool {
	return target == ErrOracle
}
