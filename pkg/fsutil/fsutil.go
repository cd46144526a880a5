package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// OwnerConfig holds parsed UID/GID for file ownership.
type OwnerConfig struct {
	UID int
	GID int
}

// ParseOwner parses "UID:GID" string. Returns nil if empty.
func ParseOwner(owner string) (*OwnerConfig, error) {
	if owner == "" {
		return nil, nil
	}

	parts := strings.Split(owner, ":")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid format %q, expected UID:GID", owner)
	}

	uid, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, fmt.Errorf("invalid UID %q: %w", parts[0], err)
	}

	gid, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("invalid GID %q: %w", parts[1], err)
	}

	return &OwnerConfig{UID: uid, GID: gid}, nil
}

// Chown sets ownership if owner is not nil. Best-effort, ignores errors.
func Chown(fs afero.Fs, path string, owner *OwnerConfig) {
	if owner == nil {
		return
	}

	_ = fs.Chown(path, owner.UID, owner.GID)
}

// MkdirAll creates directory and sets ownership.
func MkdirAll(fs afero.Fs, path string, perm os.FileMode, owner *OwnerConfig) error {
	if err := fs.MkdirAll(path, perm); err != nil {
		return err
	}

	Chown(fs, path, owner)

	return nil
}

// WriteFile writes file and sets ownership.
func WriteFile(fs afero.Fs, path string, data []byte, perm os.FileMode, owner *OwnerConfig) error {
	if err := afero.WriteFile(fs, path, data, perm); err != nil {
		return err
	}

	Chown(fs, path, owner)

	return nil
}

// ResetDir removes every entry inside path, creating path when missing.
func ResetDir(fs afero.Fs, path string, owner *OwnerConfig) error {
	entries, err := afero.ReadDir(fs, path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading directory: %w", err)
	}

	for _, entry := range entries {
		if err := fs.RemoveAll(filepath.Join(path, entry.Name())); err != nil {
			return fmt.Errorf("removing %s: %w", entry.Name(), err)
		}
	}

	return MkdirAll(fs, path, 0o755, owner)
}
