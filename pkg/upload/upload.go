// Package upload bundles a report directory and sends it to the
// test-management service.
package upload

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/docker/go-units"
	"github.com/ethpandaops/dupcheck/pkg/config"
	"github.com/ethpandaops/dupcheck/pkg/retry"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// ErrCleanup wraps a failure to delete the temporary bundle.
var ErrCleanup = errors.New("removing archive")

// Outcome is the result of an upload attempt.
type Outcome struct {
	Succeeded       bool
	LaunchReference string
}

// UploadError reports a failed transmission. StatusCode is zero when no
// HTTP response was received.
type UploadError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *UploadError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("upload rejected with status %d: %s", e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("upload failed: %v", e.Err)
	default:
		return "upload failed"
	}
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// Sender transmits a bundle and returns the launch reference.
type Sender interface {
	Send(ctx context.Context, archivePath string) (string, error)
}

// Mirror stores a copy of a bundle and returns where it was stored.
type Mirror interface {
	Store(ctx context.Context, archivePath, branch string) (string, error)
}

// Options for a single upload.
type Options struct {
	ReportDir   string
	ArchivePath string
	Branch      string
	// NoUpload skips archiving and sending entirely.
	NoUpload bool
}

// Uploader archives and uploads a report directory.
type Uploader interface {
	Upload(ctx context.Context, opts *Options) (*Outcome, error)
}

// Config wires the uploader's collaborators.
type Config struct {
	TestOps *config.TestOpsConfig
	// Sender defaults to a TestOps client built from TestOps.
	Sender Sender
	// Mirror is optional.
	Mirror Mirror
	Retry  retry.Policy
}

// NewUploader creates a new uploader.
func NewUploader(log logrus.FieldLogger, fs afero.Fs, cfg *Config) Uploader {
	return &uploader{
		log: log.WithField("component", "upload"),
		fs:  fs,
		cfg: cfg,
	}
}

type uploader struct {
	log logrus.FieldLogger
	fs  afero.Fs
	cfg *Config
}

// Ensure interface compliance.
var _ Uploader = (*uploader)(nil)

// Upload implements Uploader. The bundle is removed on every path once it
// has been created.
func (u *uploader) Upload(ctx context.Context, opts *Options) (*Outcome, error) {
	if opts.NoUpload {
		u.log.Info("Upload disabled, skipping")

		// A bundle left by an earlier run whose cleanup gave up.
		if opts.ArchivePath != "" {
			u.cleanup(ctx, opts.ArchivePath)
		}

		return &Outcome{Succeeded: true}, nil
	}

	if err := u.cfg.TestOps.ValidateUpload(); err != nil {
		return &Outcome{}, err
	}

	sender := u.cfg.Sender
	if sender == nil {
		client, err := NewTestOpsClient(u.log, u.fs, u.cfg.TestOps)
		if err != nil {
			return &Outcome{}, err
		}

		sender = client
	}

	defer u.cleanup(ctx, opts.ArchivePath)

	size, err := Archive(u.fs, opts.ReportDir, opts.ArchivePath)
	if err != nil {
		return &Outcome{}, fmt.Errorf("archiving report: %w", err)
	}

	u.log.WithFields(logrus.Fields{
		"archive": opts.ArchivePath,
		"size":    units.HumanSize(float64(size)),
	}).Info("Report archived")

	if u.cfg.Mirror != nil {
		location, err := u.cfg.Mirror.Store(ctx, opts.ArchivePath, opts.Branch)
		if err != nil {
			return &Outcome{}, &UploadError{Err: fmt.Errorf("mirroring archive: %w", err)}
		}

		u.log.WithField("location", location).Info("Archive mirrored")
	}

	ref, err := sender.Send(ctx, opts.ArchivePath)
	if err != nil {
		return &Outcome{}, err
	}

	u.log.WithField("launch", ref).Info("Report uploaded")

	return &Outcome{Succeeded: true, LaunchReference: ref}, nil
}

// cleanup removes the bundle, retrying while the file is held by another
// process. A final failure is only logged.
func (u *uploader) cleanup(ctx context.Context, path string) {
	err := u.cfg.Retry.Do(ctx, u.log, "remove archive", func() error {
		err := u.fs.Remove(path)
		if err == nil || errors.Is(err, os.ErrNotExist) {
			return nil
		}

		return err
	})
	if err != nil {
		u.log.WithError(fmt.Errorf("%w %s: %w", ErrCleanup, path, err)).Warn("Failed to remove archive")

		return
	}

	u.log.WithField("archive", path).Debug("Archive removed")
}
