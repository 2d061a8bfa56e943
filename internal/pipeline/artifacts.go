package pipeline

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/saptarshichakrabarti/image-metadata-recorder/internal/metadata"
	"github.com/saptarshichakrabarti/image-metadata-recorder/internal/report"
)

// Artifact name suffixes, appended to the input file's stem.
const (
	rawSuffix       = "_raw_metadata.json"
	processedSuffix = "_processed_metadata.json"
	keyPathsSuffix  = "_key_paths.txt"
	reportSuffix    = "_report.md"
)

// DefaultWorkbookName is the batch summary workbook written at the top of
// the output directory.
const DefaultWorkbookName = "metadata_summary.xlsx"

// artifactPath maps an input file to one artifact path: the extension is
// dropped and the artifact suffix appended. Artifacts land next to the
// input unless an output directory is set.
func (r *Runner) artifactPath(input, suffix string) string {
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	dir := filepath.Dir(input)
	if r.opts.OutputDir != "" {
		dir = r.opts.OutputDir
	}
	return filepath.Join(dir, stem+suffix)
}

// writeArtifacts writes the four per-file artifacts and returns the paths
// written. On error it returns the paths that made it to disk before the
// failure.
func (r *Runner) writeArtifacts(input string, raw, processed *metadata.Value) ([]string, error) {
	var written []string
	write := func(suffix string, render func(io.Writer) error) error {
		path := r.artifactPath(input, suffix)
		f, err := os.Create(path)
		if err != nil {
			return eris.Wrapf(err, "pipeline: create %s", path)
		}
		if err := render(f); err != nil {
			f.Close()
			return eris.Wrapf(err, "pipeline: write %s", path)
		}
		if err := f.Close(); err != nil {
			return eris.Wrapf(err, "pipeline: close %s", path)
		}
		written = append(written, path)
		return nil
	}

	if err := write(rawSuffix, func(w io.Writer) error { return metadata.WriteJSON(w, raw) }); err != nil {
		return written, err
	}
	if err := write(processedSuffix, func(w io.Writer) error { return metadata.WriteJSON(w, processed) }); err != nil {
		return written, err
	}
	if err := write(keyPathsSuffix, func(w io.Writer) error { return writeKeyPaths(w, raw) }); err != nil {
		return written, err
	}
	if err := write(reportSuffix, func(w io.Writer) error { return report.WriteMarkdown(w, processed) }); err != nil {
		return written, err
	}
	return written, nil
}

// writeKeyPaths writes one key path per leaf of the raw tree, in traversal
// order.
func writeKeyPaths(w io.Writer, raw *metadata.Value) error {
	for _, path := range metadata.Flatten(raw) {
		if _, err := io.WriteString(w, path+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// workbookPath resolves where the summary workbook goes: the configured
// path, else the output directory, else the target directory itself.
func (r *Runner) workbookPath(target string) string {
	if r.opts.WorkbookPath != "" {
		return r.opts.WorkbookPath
	}
	name := r.opts.WorkbookName
	if name == "" {
		name = DefaultWorkbookName
	}
	dir := r.opts.OutputDir
	if dir == "" {
		if info, err := os.Stat(target); err == nil && !info.IsDir() {
			dir = filepath.Dir(target)
		} else {
			dir = target
		}
	}
	return filepath.Join(dir, name)
}
