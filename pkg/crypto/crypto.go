package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"sync"

	"github.com/aead/cmac"
)

// Cipher cache to avoid recreating AES ciphers for the same key
var (
	cipherCache   = make(map[[16]byte]cipher.Block)
	cipherCacheMu sync.RWMutex
)

func getCachedCipher(key []byte) (cipher.Block, error) {
	if len(key) != 16 {
		return nil, fmt.Errorf("key must be 16 bytes, got %d", len(key))
	}

	var keyArr [16]byte
	copy(keyArr[:], key)

	cipherCacheMu.RLock()
	block, ok := cipherCache[keyArr]
	cipherCacheMu.RUnlock()
	if ok {
		return block, nil
	}

	cipherCacheMu.Lock()
	defer cipherCacheMu.Unlock()

	// Double-check after acquiring write lock
	if block, ok = cipherCache[keyArr]; ok {
		return block, nil
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	cipherCache[keyArr] = block
	return block, nil
}

// CMAC computes the AES-128 CMAC (RFC 4493) of msg.
func CMAC(key, msg []byte) ([16]byte, error) {
	var tag [16]byte

	block, err := getCachedCipher(key)
	if err != nil {
		return tag, err
	}
	sum, err := cmac.Sum(msg, block, len(tag))
	if err != nil {
		return tag, err
	}
	copy(tag[:], sum)
	return tag, nil
}
