// Package pipeline orchestrates the per-file metadata workflow over a
// batch of inputs: discover candidate files, extract raw metadata, derive
// the processed form, and write the artifact set for each file.
package pipeline

import (
	"context"
	"os"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saptarshichakrabarti/image-metadata-recorder/internal/extract"
	"github.com/saptarshichakrabarti/image-metadata-recorder/internal/metadata"
	"github.com/saptarshichakrabarti/image-metadata-recorder/internal/report"
)

// Status is the outcome of one input file.
type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// Stage names the pipeline step a failure happened in.
type Stage string

const (
	StageExtract Stage = "extract"
	StageWrite   Stage = "write"
)

// Result records the outcome for one input file. Artifacts holds the paths
// written before any failure, so a partial write stays visible.
type Result struct {
	Path      string
	Format    string
	Status    Status
	Stage     Stage
	Err       error
	Artifacts []string
	Processed *metadata.Value
}

// Summary aggregates a batch run. Results are sorted by path.
type Summary struct {
	RunID     string
	Target    string
	Total     int
	Succeeded int
	Failed    int
	Results   []Result
}

// Options configure a batch run.
type Options struct {
	// OutputDir receives all artifacts; when empty they land next to their
	// inputs.
	OutputDir string
	Recursive bool
	Workers   int
	// Workbook enables the batch summary spreadsheet. WorkbookName renames
	// it, WorkbookPath pins its full path.
	Workbook     bool
	WorkbookName string
	WorkbookPath string
}

// Runner drives the per-file metadata workflow for a batch of inputs.
type Runner struct {
	registry *extract.Registry
	rules    []metadata.Rule
	opts     Options
}

// New creates a Runner with the given extractor registry and promotion
// rules.
func New(registry *extract.Registry, rules []metadata.Rule, opts Options) *Runner {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Runner{registry: registry, rules: rules, opts: opts}
}

// Run processes every supported file under target and returns the batch
// summary. Individual file failures are recorded in the summary, never
// returned as an error, so one bad file cannot abort the batch.
func (r *Runner) Run(ctx context.Context, target string) (*Summary, error) {
	files, err := r.Discover(target)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		RunID:  uuid.New().String(),
		Target: target,
		Total:  len(files),
	}
	if len(files) == 0 {
		zap.L().Info("no supported files found", zap.String("target", target))
		return summary, nil
	}

	if r.opts.OutputDir != "" {
		if err := os.MkdirAll(r.opts.OutputDir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "pipeline: create output dir %s", r.opts.OutputDir)
		}
	}

	zap.L().Info("processing batch",
		zap.String("run_id", summary.RunID),
		zap.Int("files", len(files)),
		zap.Int("workers", r.opts.Workers),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)

	var mu sync.Mutex
	var succeeded, failed atomic.Int64
	results := make([]Result, 0, len(files))

	for _, path := range files {
		path := path // per-iteration copy; go directive < 1.22
		g.Go(func() error {
			log := zap.L().With(zap.String("file", path))

			res := r.processFile(gctx, path)
			if res.Err != nil {
				failed.Add(1)
				log.Error("file failed",
					zap.String("stage", string(res.Stage)),
					zap.Error(res.Err),
				)
			} else {
				succeeded.Add(1)
				log.Info("file complete",
					zap.String("format", res.Format),
					zap.Int("artifacts", len(res.Artifacts)),
				)
			}

			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil // don't abort batch on individual failure
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "pipeline: batch")
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Path < results[j].Path })
	summary.Results = results
	summary.Succeeded = int(succeeded.Load())
	summary.Failed = int(failed.Load())

	zap.L().Info("batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)

	if r.opts.Workbook {
		if err := r.writeWorkbook(summary); err != nil {
			zap.L().Warn("workbook write failed", zap.Error(err))
		}
	}
	return summary, nil
}

// processFile runs extract, normalize, promote, and the artifact writes for
// one input file.
func (r *Runner) processFile(ctx context.Context, path string) Result {
	res := Result{Path: path, Status: StatusFailed}

	extractor, ok := r.registry.Lookup(path)
	if !ok {
		// Discover only yields registered extensions, so this is a
		// registry misconfiguration, not a user error.
		res.Stage = StageExtract
		res.Err = eris.Errorf("pipeline: no extractor for %s", path)
		return res
	}
	res.Format = extractor.Name()

	raw, err := extractor.Extract(ctx, path)
	if err != nil {
		res.Stage = StageExtract
		res.Err = err
		return res
	}

	normalized := metadata.Normalize(raw)
	promoted := metadata.Promote(normalized, r.rules)
	processed := buildProcessed(path, extractor.Name(), normalized, promoted)

	artifacts, err := r.writeArtifacts(path, raw, processed)
	res.Artifacts = artifacts
	if err != nil {
		res.Stage = StageWrite
		res.Err = err
		return res
	}

	res.Status = StatusOK
	res.Processed = processed
	return res
}

// buildProcessed assembles the processed artifact: file identity, promoted
// fields in rule order, the concrete paths promotion resolved, and the
// normalized tree.
func buildProcessed(path, format string, normalized *metadata.Value, promoted metadata.Promoted) *metadata.Value {
	processed := metadata.NewMapping()
	processed.Set("sourceFile", metadata.Scalar(path))
	processed.Set("format", metadata.Scalar(format))

	for _, field := range promoted.Fields.Keys() {
		v, _ := promoted.Fields.Get(field)
		processed.Set(field, v)
	}

	from := metadata.NewMapping()
	for _, field := range promoted.Fields.Keys() {
		sources := promoted.Sources[field]
		switch len(sources) {
		case 0:
		case 1:
			from.Set(field, metadata.Scalar(sources[0]))
		default:
			seq := metadata.NewSequence()
			for _, s := range sources {
				seq.Append(metadata.Scalar(s))
			}
			from.Set(field, seq)
		}
	}
	if len(from.Keys()) > 0 {
		processed.Set("promotedFrom", from)
	}

	processed.Set("metadata", normalized)
	return processed
}

// writeWorkbook renders the batch summary spreadsheet from the run results.
func (r *Runner) writeWorkbook(summary *Summary) error {
	rows := make([]report.FileRow, 0, len(summary.Results))
	for _, res := range summary.Results {
		row := report.FileRow{
			File:   res.Path,
			Status: string(res.Status),
			Format: res.Format,
		}
		if res.Err != nil {
			row.Error = res.Err.Error()
		}
		if res.Processed != nil {
			row.Width = cellFor(res.Processed, "width")
			row.Height = cellFor(res.Processed, "height")
			row.Channels = cellFor(res.Processed, "channelCount")
		}
		rows = append(rows, row)
	}

	path := r.workbookPath(summary.Target)
	if err := report.WriteWorkbook(path, summary.RunID, summary.Target, rows); err != nil {
		return err
	}
	zap.L().Info("workbook written", zap.String("path", path))
	return nil
}

func cellFor(processed *metadata.Value, field string) string {
	v, ok := processed.Get(field)
	if !ok {
		return ""
	}
	return report.CellString(v)
}
