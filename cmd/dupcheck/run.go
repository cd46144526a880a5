package main

import (
	"fmt"

	"github.com/ethpandaops/dupcheck/pkg/config"
	"github.com/ethpandaops/dupcheck/pkg/credential"
	"github.com/ethpandaops/dupcheck/pkg/database"
	"github.com/ethpandaops/dupcheck/pkg/executor"
	"github.com/ethpandaops/dupcheck/pkg/fsutil"
	"github.com/ethpandaops/dupcheck/pkg/report"
	"github.com/ethpandaops/dupcheck/pkg/retry"
	"github.com/ethpandaops/dupcheck/pkg/runner"
	"github.com/ethpandaops/dupcheck/pkg/upload"
	"github.com/ethpandaops/dupcheck/pkg/vcs"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	runBranch       string
	runDBUser       string
	runDBPassword   string
	runGitUser      string
	runGitPassword  string
	runNoUpload     bool
	runCreateBranch bool
	runFailOnFailed bool
)

var runCmd = &cobra.Command{
	Use:   "run [branch]",
	Short: "Run every check on a branch and report the results",
	Long: `Sync the working copy to the given branch, execute every check file in the
tests directory against the configured database, write Allure result documents
and upload them to TestOps.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runChecks,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runBranch, "branch", "", "Branch holding the checks")
	runCmd.Flags().StringVar(&runDBUser, "db-user", "", "Database user (overrides every other source)")
	runCmd.Flags().StringVar(&runDBPassword, "db-password", "", "Database password")
	runCmd.Flags().StringVar(&runGitUser, "git-user", "", "Git user (overrides every other source)")
	runCmd.Flags().StringVar(&runGitPassword, "git-password", "", "Git password or access token")
	runCmd.Flags().BoolVar(&runNoUpload, "no-upload", false, "Write the report but do not upload it")
	runCmd.Flags().BoolVar(&runCreateBranch, "create-branch", false,
		"Create the branch from the default branch when the remote lacks it")
	runCmd.Flags().BoolVar(&runFailOnFailed, "fail-on-failed", false,
		"Exit non-zero when any check failed or broke")
}

func runChecks(cmd *cobra.Command, args []string) error {
	branch, err := branchArg(runBranch, args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	owner, err := fsutil.ParseOwner(cfg.Report.Owner)
	if err != nil {
		return fmt.Errorf("parsing report owner: %w", err)
	}

	connector, err := database.NewConnector(log, cfg.Database.Driver)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	fs := afero.NewOsFs()
	prompter := credential.NewTerminalPrompter()

	r := runner.NewRunner(
		log,
		&runner.Config{
			WorkDir:        cfg.Repository.LocalPath,
			DefaultBranch:  cfg.Repository.DefaultBranch,
			AutoStash:      cfg.Behavior.AutoStash,
			TestsDirectory: cfg.Tests.TestsDirectory,
			TestFilePrefix: cfg.Tests.TestFilePrefix,
			DSN:            cfg.Database.DefaultDSN,
			ReportDir:      cfg.Report.Dir,
			ArchivePath:    cfg.Report.ArchivePath,
		},
		fs,
		newResolver(cfg, prompter),
		vcs.NewSynchronizer(log, vcs.NewGitClient(log, cfg.Repository.LocalPath, cfg.Repository.Remote)),
		executor.NewExecutor(log, connector),
		report.NewEmitter(log, fs, &report.Config{
			Dir:   cfg.Report.Dir,
			Owner: owner,
			Clean: cfg.Report.Clean,
		}),
		newUploader(cfg, fs),
	)

	outcome, err := r.Run(ctx, &runner.Options{
		Branch:       branch,
		CreateBranch: runCreateBranch,
		NoUpload:     runNoUpload,
		DBCredential: credential.Pair{
			Principal: runDBUser,
			Secret:    runDBPassword,
		},
		GitCredential: credential.Pair{
			Principal: runGitUser,
			Secret:    runGitPassword,
		},
	})
	if err != nil {
		return err
	}

	printSummary(outcome)

	if runFailOnFailed && outcome.Tally.Failed+outcome.Tally.Broken > 0 {
		return fmt.Errorf("%d checks failed, %d broken", outcome.Tally.Failed, outcome.Tally.Broken)
	}

	return nil
}

func newUploader(cfg *config.Config, fs afero.Fs) upload.Uploader {
	uploadCfg := &upload.Config{
		TestOps: &cfg.TestOps,
		Retry:   retry.DefaultPolicy(),
	}

	if cfg.Archive.S3.Enabled {
		uploadCfg.Mirror = upload.NewS3Mirror(log, fs, &cfg.Archive.S3)
	}

	return upload.NewUploader(log, fs, uploadCfg)
}

// branchArg accepts the branch either as --branch or as the positional
// argument, not both.
func branchArg(flag string, args []string) (string, error) {
	switch {
	case len(args) == 1 && flag != "" && args[0] != flag:
		return "", fmt.Errorf("branch given twice: %q and %q", flag, args[0])
	case len(args) == 1:
		return args[0], nil
	case flag != "":
		return flag, nil
	default:
		return "", fmt.Errorf("branch is required (use --branch or pass it as an argument)")
	}
}

func printSummary(outcome *runner.Outcome) {
	for _, result := range outcome.Results {
		if result.Status == executor.StatusPassed {
			continue
		}

		log.WithFields(logrus.Fields{
			"check":  result.Check.FileName,
			"status": result.Status,
		}).Warn(result.Summary)
	}

	fields := logrus.Fields{
		"total":  outcome.Tally.Total(),
		"passed": outcome.Tally.Passed,
		"failed": outcome.Tally.Failed,
		"broken": outcome.Tally.Broken,
	}

	if outcome.Upload != nil && outcome.Upload.LaunchReference != "" {
		fields["launch"] = outcome.Upload.LaunchReference
	}

	log.WithFields(fields).Info("Summary")
}
