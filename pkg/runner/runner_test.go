package runner

import (
	"context"
	"errors"
	"testing"

	"github.com/ethpandaops/dupcheck/pkg/checks"
	"github.com/ethpandaops/dupcheck/pkg/config"
	"github.com/ethpandaops/dupcheck/pkg/credential"
	"github.com/ethpandaops/dupcheck/pkg/database"
	"github.com/ethpandaops/dupcheck/pkg/executor"
	"github.com/ethpandaops/dupcheck/pkg/report"
	"github.com/ethpandaops/dupcheck/pkg/retry"
	"github.com/ethpandaops/dupcheck/pkg/upload"
	"github.com/ethpandaops/dupcheck/pkg/vcs"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGit is a remote holding a fixed set of branches.
type fakeGit struct {
	branches []string
	calls    []string
}

func (g *fakeGit) Authenticate(context.Context, credential.Pair) error { return nil }

func (g *fakeGit) FetchRefs(context.Context) ([]string, error) {
	g.calls = append(g.calls, "fetch")

	return g.branches, nil
}

func (g *fakeGit) IsDirty(context.Context) (bool, error) { return false, nil }

func (g *fakeGit) Stash(context.Context, string) error { return nil }

func (g *fakeGit) Checkout(_ context.Context, branch string) error {
	g.calls = append(g.calls, "checkout "+branch)

	return nil
}

func (g *fakeGit) Pull(_ context.Context, branch string) error {
	g.calls = append(g.calls, "pull "+branch)

	return nil
}

func (g *fakeGit) CreateBranchFrom(_ context.Context, branch, base string) error {
	g.calls = append(g.calls, "create "+branch+" from "+base)

	return nil
}

func (g *fakeGit) Add(context.Context, ...string) error { return nil }
func (g *fakeGit) Commit(context.Context, string) error { return nil }
func (g *fakeGit) Push(context.Context, string) error   { return nil }

// fakeDB answers every query with the rows registered for it.
type fakeDB struct {
	rows    map[string][][]any
	queries []string
	users   []string
}

func (d *fakeDB) Connect(_ context.Context, _ string, cred credential.Pair) (database.Session, error) {
	d.users = append(d.users, cred.Principal)

	return d, nil
}

func (d *fakeDB) Query(_ context.Context, query string) ([][]any, error) {
	d.queries = append(d.queries, query)

	if query == "SELECT boom" {
		return nil, errors.New("ORA-00904: invalid identifier")
	}

	return d.rows[query], nil
}

func (d *fakeDB) Close() error { return nil }

type fakeSender struct {
	calls int
	err   error
}

func (s *fakeSender) Send(context.Context, string) (string, error) {
	s.calls++

	return "https://testops/launch/1", s.err
}

type fixture struct {
	fs     afero.Fs
	git    *fakeGit
	db     *fakeDB
	sender *fakeSender
	runner Runner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	t.Setenv("DB_USER", "env-user")
	t.Setenv("DB_PASS", "env-pass")
	t.Setenv("GIT_USER", "git-user")
	t.Setenv("GIT_PASS", "git-pass")

	log, _ := test.NewNullLogger()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "repo/tests/dup_orders.sql", []byte("SELECT dup;\n"), 0644))
	require.NoError(t, afero.WriteFile(fs, "repo/tests/dup_clients.sql", []byte("SELECT clean"), 0644))

	f := &fixture{
		fs:     fs,
		git:    &fakeGit{branches: []string{"master", "release-1"}},
		db:     &fakeDB{rows: map[string][][]any{"SELECT dup": {{int64(1), int64(2)}, {int64(1), int64(3)}}}},
		sender: &fakeSender{},
	}

	cfg := &Config{
		WorkDir:        "repo",
		DefaultBranch:  "master",
		AutoStash:      true,
		TestsDirectory: "tests",
		TestFilePrefix: "dup_",
		DSN:            "db/DWH",
		ReportDir:      "allure-results",
		ArchivePath:    "allure-results.zip",
	}

	f.runner = NewRunner(
		log,
		cfg,
		fs,
		credential.NewResolver(log, credential.NewEnvSource()),
		vcs.NewSynchronizer(log, f.git),
		executor.NewExecutor(log, f.db),
		report.NewEmitter(log, fs, &report.Config{Dir: cfg.ReportDir, Clean: true}),
		upload.NewUploader(log, fs, &upload.Config{
			TestOps: &config.TestOpsConfig{URL: "http://testops", ProjectID: "1", LaunchToken: "t"},
			Sender:  f.sender,
			Retry:   retry.Policy{MaxAttempts: 1},
		}),
	)

	return f
}

func TestRun_ExistingBranch(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.runner.Run(context.Background(), &Options{Branch: "release-1"})
	require.NoError(t, err)

	assert.Equal(t, []string{"fetch", "checkout release-1", "pull release-1"}, f.git.calls)
	assert.Equal(t, []string{"SELECT clean", "SELECT dup"}, f.db.queries)

	require.Len(t, outcome.Results, 2)
	assert.Equal(t, "dup_clients", outcome.Results[0].Check.ID)
	assert.Equal(t, executor.StatusPassed, outcome.Results[0].Status)
	assert.Equal(t, executor.StatusFailed, outcome.Results[1].Status)
	assert.Equal(t, "(1, 2)\n(1, 3)", outcome.Results[1].Detail)
	assert.Equal(t, executor.Tally{Passed: 1, Failed: 1}, outcome.Tally)

	require.Len(t, outcome.Documents, 2)

	docs, err := report.Load(f.fs, "allure-results")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "release-1", docs[0].Label(report.BranchLabel))

	assert.True(t, outcome.Upload.Succeeded)
	assert.Equal(t, "https://testops/launch/1", outcome.Upload.LaunchReference)
	assert.Equal(t, 1, f.sender.calls)

	exists, err := afero.Exists(f.fs, "allure-results.zip")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRun_AbsentBranchFailsFast(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.runner.Run(context.Background(), &Options{Branch: "feature-x"})
	require.Error(t, err)

	var syncErr *vcs.SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, []string{"master", "release-1"}, syncErr.Branches)
	assert.Contains(t, err.Error(), "master, release-1")

	assert.Empty(t, outcome.Results)
	assert.Empty(t, f.db.queries)
	assert.Zero(t, f.sender.calls)

	exists, err := afero.DirExists(f.fs, "allure-results")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRun_CreateBranch(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.runner.Run(context.Background(), &Options{Branch: "feature-x", CreateBranch: true, NoUpload: true})
	require.NoError(t, err)

	assert.True(t, outcome.Sync.Created)
	assert.Equal(t, []string{"fetch", "checkout master", "pull master", "create feature-x from master"}, f.git.calls)
	assert.Len(t, outcome.Results, 2)
}

func TestRun_NoUpload(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.runner.Run(context.Background(), &Options{Branch: "master", NoUpload: true})
	require.NoError(t, err)

	assert.True(t, outcome.Upload.Succeeded)
	assert.Zero(t, f.sender.calls)

	exists, err := afero.Exists(f.fs, "allure-results.zip")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRun_ExplicitCredentialWins(t *testing.T) {
	f := newFixture(t)

	_, err := f.runner.Run(context.Background(), &Options{
		Branch:       "master",
		NoUpload:     true,
		DBCredential: credential.Pair{Principal: "cli-user"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"cli-user", "cli-user"}, f.db.users)
}

func TestRun_MissingCredentials(t *testing.T) {
	f := newFixture(t)
	t.Setenv("DB_PASS", "")

	outcome, err := f.runner.Run(context.Background(), &Options{Branch: "master"})
	require.Error(t, err)

	var credErr *credential.CredentialError
	require.ErrorAs(t, err, &credErr)
	assert.Empty(t, f.git.calls)
	assert.Nil(t, outcome.Sync)
}

func TestRun_BrokenCheckIsolated(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, afero.WriteFile(f.fs, "repo/tests/dup_accounts.sql", []byte("SELECT boom;"), 0644))

	outcome, err := f.runner.Run(context.Background(), &Options{Branch: "master", NoUpload: true})
	require.NoError(t, err)

	require.Len(t, outcome.Results, 3)
	assert.Equal(t, executor.StatusBroken, outcome.Results[0].Status)
	assert.Contains(t, outcome.Results[0].Detail, "ORA-00904")
	assert.Equal(t, executor.Tally{Passed: 1, Failed: 1, Broken: 1}, outcome.Tally)
	assert.Len(t, outcome.Documents, 3)
}

func TestRun_NoChecks(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.fs.RemoveAll("repo/tests"))
	require.NoError(t, f.fs.MkdirAll("repo/tests", 0755))

	_, err := f.runner.Run(context.Background(), &Options{Branch: "master"})
	require.Error(t, err)
	assert.ErrorIs(t, err, checks.ErrNoChecks)
	assert.Empty(t, f.db.queries)
}

func TestRun_UploadFailureKeepsReport(t *testing.T) {
	f := newFixture(t)
	f.sender.err = &upload.UploadError{StatusCode: 500, Body: "boom"}

	outcome, err := f.runner.Run(context.Background(), &Options{Branch: "master"})
	require.Error(t, err)

	var upErr *upload.UploadError
	require.ErrorAs(t, err, &upErr)
	assert.False(t, outcome.Upload.Succeeded)
	assert.Len(t, outcome.Documents, 2)

	docs, err := report.Load(f.fs, "allure-results")
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}
