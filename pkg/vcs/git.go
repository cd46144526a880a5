package vcs

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/ethpandaops/dupcheck/pkg/credential"
	"github.com/sirupsen/logrus"
)

// GitClient drives the git CLI against a single working copy. Credentials
// travel as an HTTP authorization header, never in the remote URL.
type GitClient struct {
	log        logrus.FieldLogger
	dir        string
	remote     string
	authHeader string
}

var _ Client = (*GitClient)(nil)

// NewGitClient creates a client for the working copy at dir.
func NewGitClient(log logrus.FieldLogger, dir, remote string) *GitClient {
	return &GitClient{
		log:    log.WithField("component", "git"),
		dir:    dir,
		remote: remote,
	}
}

// Authenticate implements Client.
func (g *GitClient) Authenticate(_ context.Context, cred credential.Pair) error {
	if cred.Principal == "" || cred.Secret == "" {
		return fmt.Errorf("incomplete version-control credentials")
	}

	token := base64.StdEncoding.EncodeToString([]byte(cred.Principal + ":" + cred.Secret))
	g.authHeader = "Authorization: Basic " + token

	return nil
}

// Clone clones url into the client's directory.
func (g *GitClient) Clone(ctx context.Context, url string) error {
	_, err := g.run(ctx, false, "clone", url, g.dir)

	return err
}

// FetchRefs implements Client.
func (g *GitClient) FetchRefs(ctx context.Context) ([]string, error) {
	if _, err := g.run(ctx, true, "fetch", "--prune", g.remote); err != nil {
		return nil, err
	}

	out, err := g.run(ctx, true, "for-each-ref", "--format=%(refname)", "refs/remotes/"+g.remote+"/")
	if err != nil {
		return nil, err
	}

	return parseRemoteBranches(out, g.remote), nil
}

// IsDirty implements Client.
func (g *GitClient) IsDirty(ctx context.Context) (bool, error) {
	out, err := g.run(ctx, true, "status", "--porcelain")
	if err != nil {
		return false, err
	}

	return strings.TrimSpace(out) != "", nil
}

// Stash implements Client. Untracked files are stashed too.
func (g *GitClient) Stash(ctx context.Context, message string) error {
	_, err := g.run(ctx, true, "stash", "push", "--include-untracked", "-m", message)

	return err
}

// Checkout implements Client.
func (g *GitClient) Checkout(ctx context.Context, branch string) error {
	_, err := g.run(ctx, true, "checkout", branch)

	return err
}

// Pull implements Client.
func (g *GitClient) Pull(ctx context.Context, branch string) error {
	_, err := g.run(ctx, true, "pull", g.remote, branch)

	return err
}

// CreateBranchFrom implements Client.
func (g *GitClient) CreateBranchFrom(ctx context.Context, branch, base string) error {
	_, err := g.run(ctx, true, "checkout", "-b", branch, base)

	return err
}

// Add implements Client.
func (g *GitClient) Add(ctx context.Context, paths ...string) error {
	_, err := g.run(ctx, true, append([]string{"add", "--"}, paths...)...)

	return err
}

// Commit implements Client.
func (g *GitClient) Commit(ctx context.Context, message string) error {
	_, err := g.run(ctx, true, "commit", "-m", message)

	return err
}

// Push implements Client.
func (g *GitClient) Push(ctx context.Context, branch string) error {
	_, err := g.run(ctx, true, "push", "--set-upstream", g.remote, branch)

	return err
}

// run executes git and returns stdout. inRepo selects -C <dir>. The auth
// header is passed via -c and never appears in logs or errors.
func (g *GitClient) run(ctx context.Context, inRepo bool, args ...string) (string, error) {
	full := make([]string, 0, len(args)+4)

	if inRepo {
		full = append(full, "-C", g.dir)
	}

	if g.authHeader != "" {
		full = append(full, "-c", "http.extraHeader="+g.authHeader)
	}

	full = append(full, args...)

	command := "git " + strings.Join(args, " ")
	g.log.WithField("command", command).Debug("Running git command")

	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, "git", full...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	if err := cmd.Run(); err != nil {
		return "", &SyncError{
			Command: command,
			Stderr:  strings.TrimSpace(stderr.String()),
			Err:     err,
		}
	}

	return stdout.String(), nil
}

// parseRemoteBranches turns full remote ref names into branch names,
// dropping the symbolic HEAD.
func parseRemoteBranches(out, remote string) []string {
	prefix := "refs/remotes/" + remote + "/"
	lines := strings.Split(strings.TrimSpace(out), "\n")
	branches := make([]string, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, prefix) {
			continue
		}

		name := strings.TrimPrefix(line, prefix)
		if name == "" || name == "HEAD" {
			continue
		}

		branches = append(branches, name)
	}

	return branches
}
