package mac

import (
	"fmt"

	"github.com/falk/agbsave-go/pkg/crypto"
)

// KeyedOracle computes slot codes on the host from the console's save
// signing key. The key never leaves the console's secure coprocessor in
// normal operation; this exists for users who have dumped it.
type KeyedOracle struct {
	key     []byte
	titleID uint64
}

// NewKeyedOracle binds key to the title whose container is being processed.
func NewKeyedOracle(key []byte, titleID uint64) (*KeyedOracle, error) {
	if len(key) != 16 {
		return nil, fmt.Errorf("signing key must be 16 bytes, got %d", len(key))
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &KeyedOracle{key: k, titleID: titleID}, nil
}

// Compute implements Oracle.
func (o *KeyedOracle) Compute(hash [32]byte) ([Size]byte, error) {
	tag, err := crypto.SavegameMAC(o.key, o.titleID, hash)
	if err != nil {
		return [Size]byte{}, &OracleError{Err: err}
	}
	return tag, nil
}
