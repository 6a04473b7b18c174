package keys

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// AGBCMACKey is the key file entry holding the AES key used to sign AGB
// save headers.
const AGBCMACKey = "agb_cmac_key"

var (
	keys = make(map[string][]byte)
	mu   sync.RWMutex
)

// Load reads keys from a file.
// Format expected: key_name = HEXVALUE
func Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		name := strings.ToLower(strings.TrimSpace(parts[0]))
		valHex := strings.TrimSpace(parts[1])

		val, err := hex.DecodeString(valHex)
		if err != nil {
			logrus.WithFields(logrus.Fields{"file": path, "line": lineNo}).Warnf("skipping key %s: %v", name, err)
			continue
		}

		mu.Lock()
		keys[name] = val
		mu.Unlock()
	}

	return scanner.Err()
}

// Get retrieves a key by name. Returns nil if not found.
func Get(name string) []byte {
	mu.RLock()
	defer mu.RUnlock()
	if k, ok := keys[name]; ok {
		// Return a copy to prevent modification
		dest := make([]byte, len(k))
		copy(dest, k)
		return dest
	}
	return nil
}

// CMACKey returns the AGB save signing key, checking its length.
func CMACKey() ([]byte, error) {
	k := Get(AGBCMACKey)
	if k == nil {
		return nil, fmt.Errorf("%s not found", AGBCMACKey)
	}
	if len(k) != 16 {
		return nil, fmt.Errorf("%s must be 16 bytes, got %d", AGBCMACKey, len(k))
	}
	return k, nil
}

// Clear forgets every loaded key.
func Clear() {
	mu.Lock()
	defer mu.Unlock()
	keys = make(map[string][]byte)
}

// LoadDefault tries to load keys from standard locations.
func LoadDefault() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	paths := []string{
		"agb.keys",
		"keys.txt",
		filepath.Join(home, ".3ds", "agb.keys"),
		filepath.Join(home, ".3ds", "keys.txt"),
	}

	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return Load(p)
		}
	}
	return fmt.Errorf("no keys file found")
}
