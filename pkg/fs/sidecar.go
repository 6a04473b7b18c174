package fs

import (
	"errors"
	"fmt"
	"os"

	"github.com/falk/agbsave-go/pkg/agbsave"
)

// DefaultSidecarSuffix is appended to a flat save's path to name the file
// holding its register snapshot.
const DefaultSidecarSuffix = ".arm7"

// SidecarPath returns the sidecar path for a flat save.
func SidecarPath(savePath, suffix string) string {
	if suffix == "" {
		suffix = DefaultSidecarSuffix
	}
	return savePath + suffix
}

// ReadSidecar loads a register snapshot. A missing sidecar is not an
// error and yields nil.
func ReadSidecar(path string) (*agbsave.RegisterSnapshot, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap agbsave.RegisterSnapshot
	if len(b) != len(snap) {
		return nil, fmt.Errorf("sidecar %s: expected %d bytes, got %d", path, len(snap), len(b))
	}
	copy(snap[:], b)
	return &snap, nil
}

// WriteSidecar stores a register snapshot next to a flat save.
func WriteSidecar(path string, snap agbsave.RegisterSnapshot) error {
	return os.WriteFile(path, snap[:], 0o644)
}
