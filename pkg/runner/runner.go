// Package runner drives one verification run from credentials to upload.
package runner

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/ethpandaops/dupcheck/pkg/checks"
	"github.com/ethpandaops/dupcheck/pkg/credential"
	"github.com/ethpandaops/dupcheck/pkg/executor"
	"github.com/ethpandaops/dupcheck/pkg/report"
	"github.com/ethpandaops/dupcheck/pkg/upload"
	"github.com/ethpandaops/dupcheck/pkg/vcs"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Runner executes the verification pipeline.
type Runner interface {
	// Run resolves credentials, syncs the branch, executes every check,
	// writes the report and uploads it. The returned outcome holds
	// whatever was produced before a fatal error.
	Run(ctx context.Context, opts *Options) (*Outcome, error)
}

// CredentialResolver resolves a credential pair for a domain.
type CredentialResolver interface {
	Resolve(ctx context.Context, domain credential.Domain, explicit credential.Pair) (credential.Pair, error)
}

// BranchSynchronizer brings the working copy onto a branch.
type BranchSynchronizer interface {
	Sync(ctx context.Context, cred credential.Pair, opts vcs.SyncOptions) (*vcs.SyncResult, error)
}

// Config for the runner.
type Config struct {
	// WorkDir is the working copy root.
	WorkDir        string
	DefaultBranch  string
	AutoStash      bool
	TestsDirectory string
	TestFilePrefix string
	DSN            string
	ReportDir      string
	ArchivePath    string
}

// Options for a single run.
type Options struct {
	Branch       string
	CreateBranch bool
	NoUpload     bool
	// DBCredential and GitCredential hold explicit overrides, if any.
	DBCredential  credential.Pair
	GitCredential credential.Pair
}

// Outcome summarizes a run.
type Outcome struct {
	Sync      *vcs.SyncResult
	Results   []*executor.Result
	Documents []*report.Document
	Tally     executor.Tally
	Upload    *upload.Outcome
}

// NewRunner creates a new runner instance.
func NewRunner(
	log logrus.FieldLogger,
	cfg *Config,
	fs afero.Fs,
	resolver CredentialResolver,
	sync BranchSynchronizer,
	exec executor.Executor,
	emitter report.Emitter,
	uploader upload.Uploader,
) Runner {
	return &runner{
		log:      log.WithField("component", "runner"),
		cfg:      cfg,
		fs:       fs,
		resolver: resolver,
		sync:     sync,
		executor: exec,
		emitter:  emitter,
		uploader: uploader,
	}
}

type runner struct {
	log      logrus.FieldLogger
	cfg      *Config
	fs       afero.Fs
	resolver CredentialResolver
	sync     BranchSynchronizer
	executor executor.Executor
	emitter  report.Emitter
	uploader upload.Uploader
}

// Ensure interface compliance.
var _ Runner = (*runner)(nil)

// Run implements Runner.
func (r *runner) Run(ctx context.Context, opts *Options) (*Outcome, error) {
	log := r.log.WithField("branch", opts.Branch)
	outcome := &Outcome{}

	// Both credential pairs are resolved before anything touches the
	// working copy or the database.
	dbCred, err := r.resolver.Resolve(ctx, credential.Database, opts.DBCredential)
	if err != nil {
		return outcome, fmt.Errorf("resolving database credentials: %w", err)
	}

	gitCred, err := r.resolver.Resolve(ctx, credential.VersionControl, opts.GitCredential)
	if err != nil {
		return outcome, fmt.Errorf("resolving git credentials: %w", err)
	}

	synced, err := r.sync.Sync(ctx, gitCred, vcs.SyncOptions{
		Branch:        opts.Branch,
		DefaultBranch: r.cfg.DefaultBranch,
		AllowCreate:   opts.CreateBranch,
		AutoStash:     r.cfg.AutoStash,
	})
	if err != nil {
		return outcome, fmt.Errorf("syncing branch: %w", err)
	}

	outcome.Sync = synced

	testsDir := filepath.Join(r.cfg.WorkDir, r.cfg.TestsDirectory)

	defs, err := checks.Discover(r.fs, r.log, testsDir, r.cfg.TestFilePrefix)
	if err != nil {
		return outcome, fmt.Errorf("discovering checks: %w", err)
	}

	outcome.Results = r.executor.ExecuteAll(ctx, defs, executor.Target{
		DSN:        r.cfg.DSN,
		Credential: dbCred,
	})
	outcome.Tally = executor.Count(outcome.Results)

	docs, err := r.emitter.Emit(outcome.Results, opts.Branch)
	if err != nil {
		return outcome, fmt.Errorf("writing report: %w", err)
	}

	outcome.Documents = docs

	uploaded, err := r.uploader.Upload(ctx, &upload.Options{
		ReportDir:   r.cfg.ReportDir,
		ArchivePath: r.cfg.ArchivePath,
		Branch:      opts.Branch,
		NoUpload:    opts.NoUpload,
	})
	outcome.Upload = uploaded

	if err != nil {
		return outcome, fmt.Errorf("uploading report: %w", err)
	}

	log.WithFields(logrus.Fields{
		"checks": outcome.Tally.Total(),
		"passed": outcome.Tally.Passed,
		"failed": outcome.Tally.Failed,
		"broken": outcome.Tally.Broken,
		"launch": uploaded.LaunchReference,
	}).Info("Run completed")

	return outcome, nil
}
