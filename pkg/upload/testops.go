package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/ethpandaops/dupcheck/pkg/config"
	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

const (
	uploadPath = "/api/launch/upload"
	formField  = "file"

	// maxResponseBody caps how much of a response is read.
	maxResponseBody = 1 << 20
)

// launchResponse lists the accepted spellings of the launch reference, in
// order of preference.
type launchResponse struct {
	LaunchURL      string `mapstructure:"launch_url"`
	LaunchURLCamel string `mapstructure:"launchUrl"`
	URL            string `mapstructure:"url"`
	Link           string `mapstructure:"link"`
	ID             string `mapstructure:"id"`
}

// TestOpsClient uploads bundles to the TestOps launch endpoint.
type TestOpsClient struct {
	log    logrus.FieldLogger
	fs     afero.Fs
	cfg    *config.TestOpsConfig
	client *http.Client
}

// Ensure interface compliance.
var _ Sender = (*TestOpsClient)(nil)

// NewTestOpsClient creates a client whose requests are bounded by the
// configured timeout.
func NewTestOpsClient(log logrus.FieldLogger, fs afero.Fs, cfg *config.TestOpsConfig) (*TestOpsClient, error) {
	timeout, err := cfg.RequestTimeout()
	if err != nil {
		return nil, &config.ConfigError{Field: "testops.timeout", Reason: "is invalid", Err: err}
	}

	return &TestOpsClient{
		log:    log.WithField("component", "testops"),
		fs:     fs,
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// Send implements Sender.
func (c *TestOpsClient) Send(ctx context.Context, archivePath string) (string, error) {
	endpoint, err := c.endpoint()
	if err != nil {
		return "", err
	}

	body, contentType, err := c.form(archivePath)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}

	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Api-Token "+c.cfg.LaunchToken)

	c.log.WithFields(logrus.Fields{
		"url":        endpoint,
		"project_id": c.cfg.ProjectID,
	}).Info("Uploading report bundle")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &UploadError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return "", &UploadError{StatusCode: resp.StatusCode, Err: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &UploadError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(respBody)),
		}
	}

	return c.launchReference(respBody), nil
}

func (c *TestOpsClient) endpoint() (string, error) {
	u, err := url.Parse(strings.TrimRight(c.cfg.URL, "/") + uploadPath)
	if err != nil {
		return "", &config.ConfigError{Field: "testops.url", Reason: "is not a valid URL", Err: err}
	}

	q := u.Query()
	q.Set("projectId", c.cfg.ProjectID)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// form builds the multipart body holding the bundle.
func (c *TestOpsClient) form(archivePath string) (io.Reader, string, error) {
	f, err := c.fs.Open(archivePath)
	if err != nil {
		return nil, "", fmt.Errorf("opening archive: %w", err)
	}
	defer func() { _ = f.Close() }()

	var buf bytes.Buffer

	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile(formField, filepath.Base(archivePath))
	if err != nil {
		return nil, "", fmt.Errorf("creating form file: %w", err)
	}

	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("writing form file: %w", err)
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("closing form: %w", err)
	}

	return &buf, mw.FormDataContentType(), nil
}

// launchReference extracts the launch link from a success response. An
// unparseable body yields an empty reference, not an error.
func (c *TestOpsClient) launchReference(body []byte) string {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		c.log.WithError(err).Debug("Upload response is not a JSON object")

		return ""
	}

	var resp launchResponse

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &resp,
	})
	if err != nil {
		return ""
	}

	if err := decoder.Decode(raw); err != nil {
		c.log.WithError(err).Debug("Failed to decode upload response")

		return ""
	}

	for _, ref := range []string{resp.LaunchURL, resp.LaunchURLCamel, resp.URL, resp.Link} {
		if ref != "" {
			return ref
		}
	}

	if resp.ID != "" {
		return strings.TrimRight(c.cfg.URL, "/") + "/launch/" + resp.ID
	}

	return ""
}
