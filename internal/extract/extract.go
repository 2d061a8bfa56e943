// Package extract defines the extractor contract, the extension registry
// that routes files to extractors, and shared helpers for embedded XML
// metadata blocks.
package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/saptarshichakrabarti/image-metadata-recorder/internal/metadata"
)

// Extractor reads the embedded metadata of one image format.
type Extractor interface {
	// Name is the short format label used in logs, reports, and errors.
	Name() string
	// Extensions lists the file extensions this extractor claims, with or
	// without the leading dot, in any case.
	Extensions() []string
	// Extract decodes the file at path into a raw metadata tree. Failures
	// are reported as *Error.
	Extract(ctx context.Context, path string) (*metadata.Value, error)
}

// Registry routes files to extractors by extension. It is populated at
// startup and read-only afterwards, so it needs no locking.
type Registry struct {
	byExt map[string]Extractor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byExt: make(map[string]Extractor)}
}

// Register claims every extension of e. A later registration for the same
// extension replaces the earlier one.
func (r *Registry) Register(e Extractor) {
	for _, ext := range e.Extensions() {
		r.byExt[normalizeExt(ext)] = e
	}
}

// Lookup returns the extractor registered for the file's extension.
func (r *Registry) Lookup(path string) (Extractor, bool) {
	e, ok := r.byExt[normalizeExt(filepath.Ext(path))]
	return e, ok
}

// Extensions returns all registered extensions, sorted, with leading dots.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Names returns the distinct extractor names, sorted.
func (r *Registry) Names() []string {
	seen := make(map[string]struct{})
	var names []string
	for _, e := range r.byExt {
		if _, ok := seen[e.Name()]; ok {
			continue
		}
		seen[e.Name()] = struct{}{}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// Error reports a failed extraction for one file.
type Error struct {
	Path   string
	Format string
	Err    error
}

// NewError wraps err with the file and format it failed on.
func NewError(format, path string, err error) *Error {
	return &Error{Path: path, Format: format, Err: err}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: extract %s: %v", e.Format, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
