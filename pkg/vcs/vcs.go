// Package vcs synchronizes the local working copy with a remote branch.
package vcs

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethpandaops/dupcheck/pkg/credential"
)

// Client is the version-control capability the synchronizer drives.
type Client interface {
	// Authenticate installs credentials for every later remote operation.
	Authenticate(ctx context.Context, cred credential.Pair) error
	// FetchRefs fetches the remote and returns its branch names.
	FetchRefs(ctx context.Context) ([]string, error)
	// IsDirty reports uncommitted changes or untracked files.
	IsDirty(ctx context.Context) (bool, error)
	Stash(ctx context.Context, message string) error
	Checkout(ctx context.Context, branch string) error
	Pull(ctx context.Context, branch string) error
	CreateBranchFrom(ctx context.Context, branch, base string) error

	Add(ctx context.Context, paths ...string) error
	Commit(ctx context.Context, message string) error
	Push(ctx context.Context, branch string) error
}

// SyncError is a fatal failure of a version-control operation.
type SyncError struct {
	Command string
	Stderr  string
	Err     error

	// Branch and Branches are set when the requested branch is not on the remote.
	Branch   string
	Branches []string
}

func (e *SyncError) Error() string {
	if e.Branches != nil {
		available := "(none)"
		if len(e.Branches) > 0 {
			available = strings.Join(e.Branches, ", ")
		}

		return fmt.Sprintf("branch %q not found on remote; available branches: %s", e.Branch, available)
	}

	msg := fmt.Sprintf("%s failed", e.Command)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}

	return msg
}

func (e *SyncError) Unwrap() error {
	return e.Err
}
