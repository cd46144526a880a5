package main

import (
	"fmt"

	"github.com/ethpandaops/dupcheck/pkg/config"
	"github.com/ethpandaops/dupcheck/pkg/report"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var generateMarkdownSummaryCmd = &cobra.Command{
	Use:   "generate-markdown-summary",
	Short: "Generate a markdown summary from a report directory",
	Long:  `Reads the result documents of a report directory and produces a markdown summary file, e.g. for a CI job summary.`,
	RunE:  runGenerateMarkdownSummary,
}

var (
	mdReportDir string
	mdOutput    string
)

const maxMarkdownChars = 65000

func init() {
	rootCmd.AddCommand(generateMarkdownSummaryCmd)
	generateMarkdownSummaryCmd.Flags().StringVar(&mdReportDir, "report-dir", "",
		"Path to the report directory (default: report.dir from config)")
	generateMarkdownSummaryCmd.Flags().StringVar(&mdOutput, "output", "summary.md",
		"Output file path")
}

func runGenerateMarkdownSummary(_ *cobra.Command, _ []string) error {
	dir := mdReportDir
	if dir == "" {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		dir = cfg.Report.Dir
	}

	log.WithField("report_dir", dir).Info("Generating markdown summary")

	fs := afero.NewOsFs()

	md, err := report.GenerateMarkdown(fs, dir, maxMarkdownChars)
	if err != nil {
		return fmt.Errorf("generating markdown: %w", err)
	}

	if err := afero.WriteFile(fs, mdOutput, []byte(md), 0644); err != nil {
		return fmt.Errorf("writing output file: %w", err)
	}

	log.WithField("output", mdOutput).Info("Markdown summary generated successfully")

	return nil
}
