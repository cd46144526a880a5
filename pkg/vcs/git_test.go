package vcs

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireGit(t *testing.T) {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	t.Setenv("GIT_AUTHOR_NAME", "dupcheck")
	t.Setenv("GIT_AUTHOR_EMAIL", "dupcheck@example.com")
	t.Setenv("GIT_COMMITTER_NAME", "dupcheck")
	t.Setenv("GIT_COMMITTER_EMAIL", "dupcheck@example.com")
}

func gitRun(t *testing.T, dir string, args ...string) {
	t.Helper()

	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
}

// setupRemote creates a bare repository with master and feature branches.
func setupRemote(t *testing.T) string {
	t.Helper()

	base := t.TempDir()
	bare := filepath.Join(base, "remote.git")
	seed := filepath.Join(base, "seed")

	require.NoError(t, os.MkdirAll(seed, 0o755))
	gitRun(t, base, "init", "--bare", bare)
	gitRun(t, seed, "init")
	require.NoError(t, os.WriteFile(filepath.Join(seed, "README"), []byte("checks\n"), 0o644))
	gitRun(t, seed, "add", "README")
	gitRun(t, seed, "commit", "-m", "init")
	gitRun(t, seed, "remote", "add", "origin", bare)
	gitRun(t, seed, "push", "origin", "HEAD:refs/heads/master")
	gitRun(t, seed, "push", "origin", "HEAD:refs/heads/feature")
	gitRun(t, bare, "symbolic-ref", "HEAD", "refs/heads/master")

	return bare
}

func TestGitClient_Integration(t *testing.T) {
	requireGit(t)

	bare := setupRemote(t)
	work := filepath.Join(t.TempDir(), "work")

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	client := NewGitClient(log, work, "origin")
	ctx := context.Background()

	require.NoError(t, client.Authenticate(ctx, testCred))
	require.NoError(t, client.Clone(ctx, bare))

	branches, err := client.FetchRefs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"master", "feature"}, branches)

	sync := NewSynchronizer(log, client)

	t.Run("existing branch with untracked file", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(work, "scratch.sql"), []byte("select 1"), 0o644))

		dirty, err := client.IsDirty(ctx)
		require.NoError(t, err)
		assert.True(t, dirty)

		res, err := sync.Sync(ctx, testCred, SyncOptions{
			Branch:        "feature",
			DefaultBranch: "master",
			AutoStash:     true,
		})
		require.NoError(t, err)
		assert.True(t, res.Stashed)

		dirty, err = client.IsDirty(ctx)
		require.NoError(t, err)
		assert.False(t, dirty)
	})

	t.Run("absent branch without create", func(t *testing.T) {
		_, err := sync.Sync(ctx, testCred, SyncOptions{Branch: "nope", DefaultBranch: "master"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "feature, master")
	})

	t.Run("create commit and push", func(t *testing.T) {
		res, err := sync.Sync(ctx, testCred, SyncOptions{
			Branch:        "dup-check/orders",
			DefaultBranch: "master",
			AllowCreate:   true,
		})
		require.NoError(t, err)
		assert.True(t, res.Created)

		require.NoError(t, os.WriteFile(filepath.Join(work, "orders.sql"), []byte("select 1"), 0o644))
		require.NoError(t, client.Add(ctx, "orders.sql"))
		require.NoError(t, client.Commit(ctx, "Add duplicate check SQL for dwh.orders"))
		require.NoError(t, client.Push(ctx, "dup-check/orders"))

		branches, err := client.FetchRefs(ctx)
		require.NoError(t, err)
		assert.Contains(t, branches, "dup-check/orders")
	})

	t.Run("command failure carries stderr", func(t *testing.T) {
		err := client.Checkout(ctx, "does-not-exist")
		require.Error(t, err)

		var se *SyncError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "git checkout does-not-exist", se.Command)
		assert.NotEmpty(t, se.Stderr)
		assert.NotContains(t, se.Error(), "Authorization")
	})
}
