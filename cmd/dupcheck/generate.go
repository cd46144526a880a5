package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethpandaops/dupcheck/pkg/checks"
	"github.com/ethpandaops/dupcheck/pkg/config"
	"github.com/ethpandaops/dupcheck/pkg/credential"
	"github.com/ethpandaops/dupcheck/pkg/fsutil"
	"github.com/ethpandaops/dupcheck/pkg/vcs"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	genSchema      string
	genTable       string
	genKeys        string
	genBranch      string
	genGitUser     string
	genGitPassword string
	genYes         bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Author a duplicate check and push it to a branch",
	Long: `Render a duplicate-detection query for a table, write it into the tests
directory of the working copy and commit and push it to the given branch.
The branch is created from the default branch when the remote lacks it.`,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().StringVar(&genSchema, "schema", "", "Schema of the checked table")
	generateCmd.Flags().StringVar(&genTable, "table", "", "Checked table")
	generateCmd.Flags().StringVar(&genKeys, "keys", "", "Comma separated key columns")
	generateCmd.Flags().StringVar(&genBranch, "branch", "", "Branch to push the check to")
	generateCmd.Flags().StringVar(&genGitUser, "git-user", "", "Git user (overrides every other source)")
	generateCmd.Flags().StringVar(&genGitPassword, "git-password", "", "Git password or access token")
	generateCmd.Flags().BoolVarP(&genYes, "yes", "y", false, "Push without asking for confirmation")

	for _, name := range []string{"schema", "table", "keys", "branch"} {
		_ = generateCmd.MarkFlagRequired(name)
	}
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.ValidateRepository(); err != nil {
		return err
	}

	check := checks.DuplicateCheck{
		Schema: genSchema,
		Table:  genTable,
		Keys:   checks.ParseKeys(genKeys),
	}

	if err := check.Validate(); err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	prompter := credential.NewTerminalPrompter()
	resolver := newResolver(cfg, prompter)

	author := &checkAuthor{
		log:      log,
		fs:       afero.NewOsFs(),
		cfg:      cfg,
		client:   vcs.NewGitClient(log, cfg.Repository.LocalPath, cfg.Repository.Remote),
		prompter: prompter,
		out:      os.Stdout,
		yes:      genYes,
		resolve: func(ctx context.Context) (credential.Pair, error) {
			return resolver.Resolve(ctx, credential.VersionControl, credential.Pair{
				Principal: genGitUser,
				Secret:    genGitPassword,
			})
		},
	}

	return author.Author(ctx, check, genBranch)
}

// repoClient is the git capability check authoring needs.
type repoClient interface {
	vcs.Client
	Clone(ctx context.Context, url string) error
}

var _ repoClient = (*vcs.GitClient)(nil)

// checkAuthor writes a duplicate check into the working copy and pushes it.
type checkAuthor struct {
	log      logrus.FieldLogger
	fs       afero.Fs
	cfg      *config.Config
	client   repoClient
	prompter credential.Prompter
	resolve  func(ctx context.Context) (credential.Pair, error)
	out      io.Writer
	yes      bool
}

// Author prints the rendered check and asks for confirmation before any
// credential lookup or git operation. A declined confirmation leaves the
// working copy untouched.
func (a *checkAuthor) Author(ctx context.Context, check checks.DuplicateCheck, branch string) error {
	relPath := filepath.Join(a.cfg.Tests.TestsDirectory, check.FileName(a.cfg.Tests.TestFilePrefix))
	absPath := filepath.Join(a.cfg.Repository.LocalPath, relPath)
	query := check.Render()

	fmt.Fprintln(a.out, query)

	if a.cfg.Behavior.ConfirmBeforePush && !a.yes {
		ok, err := confirm(a.prompter, fmt.Sprintf("Commit and push %s to %s? [y/N]: ", relPath, branch))
		if err != nil {
			return err
		}

		if !ok {
			a.log.Info("Push cancelled, working copy left untouched")

			return nil
		}
	}

	cred, err := a.resolve(ctx)
	if err != nil {
		return err
	}

	cloned, err := afero.DirExists(a.fs, filepath.Join(a.cfg.Repository.LocalPath, ".git"))
	if err != nil {
		return fmt.Errorf("inspecting working copy: %w", err)
	}

	if !cloned {
		if a.cfg.Repository.URL == "" {
			return &config.ConfigError{Field: "repository.url", Reason: "is required to clone the working copy"}
		}

		if err := a.client.Authenticate(ctx, cred); err != nil {
			return err
		}

		a.log.WithField("path", a.cfg.Repository.LocalPath).Info("Cloning repository")

		if err := a.client.Clone(ctx, a.cfg.Repository.URL); err != nil {
			return err
		}
	}

	synced, err := vcs.NewSynchronizer(a.log, a.client).Sync(ctx, cred, vcs.SyncOptions{
		Branch:        branch,
		DefaultBranch: a.cfg.Repository.DefaultBranch,
		AllowCreate:   true,
		AutoStash:     a.cfg.Behavior.AutoStash,
	})
	if err != nil {
		return err
	}

	if err := fsutil.MkdirAll(a.fs, filepath.Dir(absPath), 0755, nil); err != nil {
		return fmt.Errorf("creating tests directory: %w", err)
	}

	if err := fsutil.WriteFile(a.fs, absPath, []byte(query+"\n"), 0644, nil); err != nil {
		return fmt.Errorf("writing check: %w", err)
	}

	a.log.WithFields(logrus.Fields{
		"path":    absPath,
		"branch":  synced.Branch,
		"created": synced.Created,
	}).Info("Check written")

	if err := a.client.Add(ctx, relPath); err != nil {
		return err
	}

	if err := a.client.Commit(ctx, check.CommitMessage()); err != nil {
		return err
	}

	if err := a.client.Push(ctx, branch); err != nil {
		return err
	}

	a.log.WithField("branch", branch).Info("Check pushed")

	return nil
}

func confirm(prompter credential.Prompter, question string) (bool, error) {
	if !prompter.Interactive() {
		return false, fmt.Errorf("confirmation required but stdin is not a terminal (use --yes)")
	}

	answer, err := prompter.Prompt(question, false)
	if err != nil {
		return false, err
	}

	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
