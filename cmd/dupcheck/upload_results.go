package main

import (
	"fmt"

	"github.com/ethpandaops/dupcheck/pkg/config"
	"github.com/ethpandaops/dupcheck/pkg/report"
	"github.com/ethpandaops/dupcheck/pkg/upload"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	uploadReportDir string
	uploadBranch    string
)

var uploadResultsCmd = &cobra.Command{
	Use:   "upload-results",
	Short: "Upload an existing report directory to TestOps",
	Long:  `Archive a report directory written by an earlier run and upload it using the config file settings.`,
	RunE:  runUploadResults,
}

func init() {
	rootCmd.AddCommand(uploadResultsCmd)
	uploadResultsCmd.Flags().StringVar(&uploadReportDir, "report-dir", "",
		"Path to the report directory to upload (default: report.dir from config)")
	uploadResultsCmd.Flags().StringVar(&uploadBranch, "branch", "",
		"Branch used for the S3 mirror key (default: branch label of the documents)")
}

func runUploadResults(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.TestOps.ValidateUpload(); err != nil {
		return err
	}

	dir := uploadReportDir
	if dir == "" {
		dir = cfg.Report.Dir
	}

	fs := afero.NewOsFs()

	docs, err := report.Load(fs, dir)
	if err != nil {
		return err
	}

	if len(docs) == 0 {
		return fmt.Errorf("no result documents in %s", dir)
	}

	branch := uploadBranch
	if branch == "" {
		branch = docs[0].Label(report.BranchLabel)
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	log.WithField("dir", dir).WithField("documents", len(docs)).Info("Uploading results")

	outcome, err := newUploader(cfg, fs).Upload(ctx, &upload.Options{
		ReportDir:   dir,
		ArchivePath: cfg.Report.ArchivePath,
		Branch:      branch,
	})
	if err != nil {
		return fmt.Errorf("uploading results: %w", err)
	}

	log.WithField("launch", outcome.LaunchReference).Info("Upload completed successfully")

	return nil
}
