package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/saptarshichakrabarti/image-metadata-recorder/internal/extract"
	"github.com/saptarshichakrabarti/image-metadata-recorder/internal/extract/czi"
	"github.com/saptarshichakrabarti/image-metadata-recorder/internal/extract/tiff"
	"github.com/saptarshichakrabarti/image-metadata-recorder/internal/metadata"
	"github.com/saptarshichakrabarti/image-metadata-recorder/internal/pipeline"
)

var (
	scanOutputDir  string
	scanRecursive  bool
	scanWorkers    int
	scanRulesFile  string
	scanNoWorkbook bool
	scanWorkbook   string
)

var scanCmd = &cobra.Command{
	Use:   "scan [path]",
	Short: "Extract metadata from image files under a path",
	Long:  "Processes every supported image file at or under the given path (default: current directory). Each file yields raw metadata JSON, processed JSON, a key-path listing, and a markdown report. A failed file is recorded and skipped, never aborts the batch.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		target := "."
		if len(args) == 1 {
			target = args[0]
		}
		return runScan(ctx, target)
	},
}

func init() {
	scanCmd.Flags().StringVar(&scanOutputDir, "output-dir", "", "directory for artifacts (default: next to each input)")
	scanCmd.Flags().BoolVar(&scanRecursive, "recursive", false, "descend into subdirectories")
	scanCmd.Flags().IntVar(&scanWorkers, "workers", 0, "files processed concurrently (default from config)")
	scanCmd.Flags().StringVar(&scanRulesFile, "rules", "", "YAML file with extra promotion rules")
	scanCmd.Flags().BoolVar(&scanNoWorkbook, "no-workbook", false, "skip the batch summary workbook")
	scanCmd.Flags().StringVar(&scanWorkbook, "workbook", "", "batch summary workbook path")
	rootCmd.AddCommand(scanCmd)
}

// runScan merges flags over config, builds the pipeline, and prints the
// batch outcome. Partial failures come back as an error so the process
// exits non-zero.
func runScan(ctx context.Context, target string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	rules, err := loadRules()
	if err != nil {
		return err
	}

	runner := pipeline.New(newRegistry(), rules, scanOptions())
	summary, err := runner.Run(ctx, target)
	if err != nil {
		return eris.Wrap(err, "scan")
	}

	formatSummary(os.Stdout, summary)

	if summary.Failed > 0 {
		return eris.Errorf("scan: %d of %d files failed", summary.Failed, summary.Total)
	}
	return nil
}

// newRegistry registers every built-in extractor. New formats plug in here.
func newRegistry() *extract.Registry {
	reg := extract.NewRegistry()
	reg.Register(tiff.New())
	reg.Register(czi.New())
	return reg
}

// loadRules starts from the built-in promotion table and overlays the rules
// file named by flag or config, if any.
func loadRules() ([]metadata.Rule, error) {
	rules := metadata.DefaultRules()

	rulesFile := cfg.Promote.RulesFile
	if scanRulesFile != "" {
		rulesFile = scanRulesFile
	}
	if rulesFile == "" {
		return rules, nil
	}

	extra, err := metadata.LoadRules(rulesFile)
	if err != nil {
		return nil, err
	}
	return metadata.MergeRules(rules, extra), nil
}

// scanOptions resolves pipeline options from config with flag overrides.
func scanOptions() pipeline.Options {
	opts := pipeline.Options{
		OutputDir:    cfg.Scan.OutputDir,
		Recursive:    cfg.Scan.Recursive || scanRecursive,
		Workers:      cfg.Scan.Workers,
		Workbook:     cfg.Report.Workbook && !scanNoWorkbook,
		WorkbookName: cfg.Report.WorkbookName,
		WorkbookPath: scanWorkbook,
	}
	if scanOutputDir != "" {
		opts.OutputDir = scanOutputDir
	}
	if scanWorkers > 0 {
		opts.Workers = scanWorkers
	}
	return opts
}

func formatSummary(out io.Writer, summary *pipeline.Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "FILE\tFORMAT\tSTATUS\tERROR")
	_, _ = fmt.Fprintln(w, "----\t------\t------\t-----")

	for _, res := range summary.Results {
		errMsg := ""
		if res.Err != nil {
			errMsg = res.Err.Error()
			if len(errMsg) > 50 {
				errMsg = errMsg[:47] + "..."
			}
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			res.Path,
			res.Format,
			res.Status,
			errMsg,
		)
	}
	_ = w.Flush()

	_, _ = fmt.Fprintf(out, "\n%d processed, %d succeeded, %d failed (run %s)\n",
		summary.Total, summary.Succeeded, summary.Failed, shortUUID(summary.RunID))
}

func shortUUID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
