package pipeline

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Discover returns the files under target whose extension has a registered
// extractor, sorted by path. Unsupported files are skipped silently; they
// are not failures. A supported file may also be given directly as the
// target.
func (r *Runner) Discover(target string) ([]string, error) {
	info, err := os.Stat(target)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: stat target %s", target)
	}

	if !info.IsDir() {
		if _, ok := r.registry.Lookup(target); !ok {
			zap.L().Warn("unsupported file type",
				zap.String("file", target),
				zap.Strings("supported", r.registry.Extensions()),
			)
			return nil, nil
		}
		return []string{target}, nil
	}

	var files []string
	if r.opts.Recursive {
		walkErr := filepath.WalkDir(target, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if _, ok := r.registry.Lookup(path); ok {
				files = append(files, path)
			}
			return nil
		})
		if walkErr != nil {
			return nil, eris.Wrapf(walkErr, "pipeline: walk %s", target)
		}
	} else {
		entries, err := os.ReadDir(target)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: read dir %s", target)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			path := filepath.Join(target, entry.Name())
			if _, ok := r.registry.Lookup(path); ok {
				files = append(files, path)
			}
		}
	}

	sort.Strings(files)
	return files, nil
}
