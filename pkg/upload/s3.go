package upload

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/ethpandaops/dupcheck/pkg/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// s3Mirror implements Mirror for S3-compatible storage.
type s3Mirror struct {
	log    logrus.FieldLogger
	fs     afero.Fs
	cfg    *config.S3ArchiveConfig
	client *s3.Client
	now    func() time.Time
}

// Ensure interface compliance.
var _ Mirror = (*s3Mirror)(nil)

// NewS3Mirror creates a new S3 mirror from the given configuration.
func NewS3Mirror(
	log logrus.FieldLogger,
	fs afero.Fs,
	cfg *config.S3ArchiveConfig,
) Mirror {
	return &s3Mirror{
		log:    log.WithField("component", "s3-mirror"),
		fs:     fs,
		cfg:    cfg,
		client: newS3Client(cfg),
		now:    time.Now,
	}
}

func newS3Client(cfg *config.S3ArchiveConfig) *s3.Client {
	return s3.New(s3.Options{}, func(o *s3.Options) {
		if cfg.Region != "" {
			o.Region = cfg.Region
		} else {
			o.Region = "us-east-1"
		}

		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		}

		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}

		if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
			o.Credentials = credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID, cfg.SecretAccessKey, "",
			)
		}
	})
}

// Store uploads the bundle under <prefix>/<branch>/<unix>_<name> and
// returns the s3:// location.
func (m *s3Mirror) Store(ctx context.Context, archivePath, branch string) (string, error) {
	f, err := m.fs.Open(archivePath)
	if err != nil {
		return "", fmt.Errorf("opening archive: %w", err)
	}
	defer func() { _ = f.Close() }()

	key := m.resolveKey(branch, filepath.Base(archivePath))

	input := &s3.PutObjectInput{
		Bucket:      aws.String(m.cfg.Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(detectContentType(archivePath)),
	}

	if m.cfg.StorageClass != "" {
		input.StorageClass = s3types.StorageClass(m.cfg.StorageClass)
	}

	m.log.WithFields(logrus.Fields{
		"key":    key,
		"bucket": m.cfg.Bucket,
	}).Debug("Uploading archive")

	if _, err := m.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("PutObject: %w", err)
	}

	return fmt.Sprintf("s3://%s/%s", m.cfg.Bucket, key), nil
}

// resolveKey builds the object key for a bundle of branch.
func (m *s3Mirror) resolveKey(branch, name string) string {
	prefix := m.cfg.Prefix
	if prefix == "" {
		prefix = config.DefaultS3Prefix
	}

	branch = strings.Trim(branch, "/")
	if branch == "" {
		branch = "_"
	}

	return strings.TrimRight(prefix, "/") + "/" + branch + "/" +
		strconv.FormatInt(m.now().Unix(), 10) + "_" + name
}

// detectContentType returns a MIME type based on file extension.
func detectContentType(path string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		return "application/octet-stream"
	}

	if strings.EqualFold(ext, ".zip") {
		return "application/zip"
	}

	ct := mime.TypeByExtension(ext)
	if ct == "" {
		return "application/octet-stream"
	}

	return ct
}
