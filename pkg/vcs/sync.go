package vcs

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/ethpandaops/dupcheck/pkg/credential"
	"github.com/sirupsen/logrus"
)

// SyncOptions describes the branch the working copy must end up on.
type SyncOptions struct {
	Branch        string
	DefaultBranch string
	// AllowCreate creates Branch from DefaultBranch when the remote lacks it.
	AllowCreate bool
	// AutoStash stashes local changes before switching branches. The stash
	// is left for the operator to restore.
	AutoStash bool
}

// SyncResult describes what the synchronizer did.
type SyncResult struct {
	Branch  string
	Created bool
	Stashed bool
}

type syncState int

const (
	stateStart syncState = iota
	stateFetched
	stateExisting
	stateAbsent
	stateReady
)

func (s syncState) String() string {
	switch s {
	case stateStart:
		return "start"
	case stateFetched:
		return "fetched"
	case stateExisting:
		return "existing"
	case stateAbsent:
		return "absent"
	case stateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Synchronizer brings a working copy onto a named remote branch.
type Synchronizer struct {
	log    logrus.FieldLogger
	client Client
}

// NewSynchronizer creates a synchronizer driving client.
func NewSynchronizer(log logrus.FieldLogger, client Client) *Synchronizer {
	return &Synchronizer{
		log:    log.WithField("component", "branch-sync"),
		client: client,
	}
}

// Sync authenticates, fetches and checks out opts.Branch. Any failure is
// returned as a *SyncError and leaves the working copy wherever it stopped.
func (s *Synchronizer) Sync(ctx context.Context, cred credential.Pair, opts SyncOptions) (*SyncResult, error) {
	if opts.Branch == "" {
		return nil, &SyncError{Command: "sync", Err: fmt.Errorf("branch name is required")}
	}

	log := s.log.WithField("branch", opts.Branch)
	result := &SyncResult{Branch: opts.Branch}

	var branches []string

	for state := stateStart; state != stateReady; {
		log.WithField("state", state).Debug("Branch sync transition")

		switch state {
		case stateStart:
			if err := s.client.Authenticate(ctx, cred); err != nil {
				return nil, asSyncError("authenticate", err)
			}

			log.Info("Fetching remote refs")

			refs, err := s.client.FetchRefs(ctx)
			if err != nil {
				return nil, asSyncError("fetch", err)
			}

			branches = refs
			state = stateFetched

		case stateFetched:
			if slices.Contains(branches, opts.Branch) {
				state = stateExisting
			} else {
				state = stateAbsent
			}

		case stateExisting:
			if err := s.stashIfNeeded(ctx, log, opts, result); err != nil {
				return nil, err
			}

			log.Info("Checking out branch")

			if err := s.client.Checkout(ctx, opts.Branch); err != nil {
				return nil, asSyncError("checkout", err)
			}

			log.Info("Pulling changes")

			if err := s.client.Pull(ctx, opts.Branch); err != nil {
				return nil, asSyncError("pull", err)
			}

			state = stateReady

		case stateAbsent:
			if !opts.AllowCreate {
				sorted := slices.Clone(branches)
				if sorted == nil {
					sorted = []string{}
				}

				slices.Sort(sorted)

				return nil, &SyncError{
					Command:  "fetch",
					Branch:   opts.Branch,
					Branches: sorted,
				}
			}

			if err := s.stashIfNeeded(ctx, log, opts, result); err != nil {
				return nil, err
			}

			log.WithField("base", opts.DefaultBranch).Info("Branch not on remote, creating from default branch")

			if err := s.client.Checkout(ctx, opts.DefaultBranch); err != nil {
				return nil, asSyncError("checkout", err)
			}

			if err := s.client.Pull(ctx, opts.DefaultBranch); err != nil {
				return nil, asSyncError("pull", err)
			}

			if err := s.client.CreateBranchFrom(ctx, opts.Branch, opts.DefaultBranch); err != nil {
				return nil, asSyncError("create branch", err)
			}

			result.Created = true
			state = stateReady
		}
	}

	log.WithFields(logrus.Fields{
		"created": result.Created,
		"stashed": result.Stashed,
	}).Info("Working copy ready")

	return result, nil
}

func (s *Synchronizer) stashIfNeeded(
	ctx context.Context,
	log logrus.FieldLogger,
	opts SyncOptions,
	result *SyncResult,
) error {
	if !opts.AutoStash {
		return nil
	}

	dirty, err := s.client.IsDirty(ctx)
	if err != nil {
		return asSyncError("status", err)
	}

	if !dirty {
		return nil
	}

	log.Warn("Stashing local changes; restore them manually with git stash pop")

	if err := s.client.Stash(ctx, "auto-stash before "+opts.Branch); err != nil {
		return asSyncError("stash", err)
	}

	result.Stashed = true

	return nil
}

// asSyncError keeps an existing *SyncError and wraps anything else.
func asSyncError(command string, err error) error {
	var se *SyncError
	if errors.As(err, &se) {
		return se
	}

	return &SyncError{Command: command, Err: err}
}
