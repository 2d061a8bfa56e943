// Package report renders the human-readable artifacts derived from
// processed metadata: the per-file markdown report and the batch summary
// workbook.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/saptarshichakrabarti/image-metadata-recorder/internal/metadata"
)

const (
	// cellLimit is the longest value a report table cell will print.
	cellLimit = 100
	// maxTableRows caps enumerated tables; longer lists get an overflow row.
	maxTableRows = 5
)

// labeledField pairs a promoted field name with its table label.
type labeledField struct {
	field string
	label string
}

var dimensionFields = []labeledField{
	{"width", "Width"},
	{"height", "Height"},
	{"bitsPerSample", "Bits per Sample"},
	{"samplesPerPixel", "Samples per Pixel"},
	{"pageCount", "Pages"},
	{"pixelSizeX", "Pixel Size X"},
	{"pixelSizeY", "Pixel Size Y"},
}

var acquisitionFields = []labeledField{
	{"acquisitionDate", "Acquisition Date"},
	{"software", "Software"},
	{"instrument", "Instrument"},
	{"objective", "Objective"},
	{"exposureTimes", "Exposure Times"},
	{"xResolution", "X Resolution"},
	{"yResolution", "Y Resolution"},
	{"resolutionUnit", "Resolution Unit"},
	{"compression", "Compression"},
	{"photometricInterpretation", "Photometric Interpretation"},
	{"sampleFormat", "Sample Format"},
}

// reservedKeys are processed-tree roots that are not promoted fields.
var reservedKeys = map[string]struct{}{
	"sourceFile":   {},
	"format":       {},
	"promotedFrom": {},
	"metadata":     {},
}

// WriteMarkdown renders the report for one processed metadata tree to w.
func WriteMarkdown(w io.Writer, processed *metadata.Value) error {
	_, err := io.WriteString(w, Markdown(processed))
	return err
}

// Markdown renders the report text for one processed metadata tree. The
// output is a pure function of the tree, so identical input yields a
// byte-identical report.
func Markdown(processed *metadata.Value) string {
	var b strings.Builder

	sourceFile := stringField(processed, "sourceFile", "Unknown Source File")
	fmt.Fprintf(&b, "# Metadata Report for %s\n\n", filepath.Base(sourceFile))
	fmt.Fprintf(&b, "**Source File:** `%s`\n", sourceFile)
	fmt.Fprintf(&b, "**Format:** %s\n\n", stringField(processed, "format", "N/A"))

	b.WriteString("## Dimensions\n\n")
	writeFieldTable(&b, processed, dimensionFields)

	b.WriteString("## Channels\n\n")
	writeChannels(&b, processed)

	b.WriteString("## Acquisition\n\n")
	writeFieldTable(&b, processed, acquisitionFields)

	writeExtraFields(&b, processed)

	b.WriteString("## Other Root-Level Metadata Blocks\n\n")
	writeRootBlocks(&b, processed)

	b.WriteString("## Metadata Structure\n\n")
	writeStructure(&b, processed)

	return b.String()
}

func stringField(processed *metadata.Value, key, fallback string) string {
	v, ok := processed.Get(key)
	if !ok {
		return fallback
	}
	s, ok := v.ScalarValue().(string)
	if !ok {
		return fallback
	}
	return s
}

func writeFieldTable(b *strings.Builder, processed *metadata.Value, fields []labeledField) {
	b.WriteString("| Property | Value |\n|:---|:---|\n")
	for _, f := range fields {
		cell := "N/A"
		if v, ok := processed.Get(f.field); ok {
			cell = CellString(v)
		}
		fmt.Fprintf(b, "| %s | %s |\n", f.label, cell)
	}
	b.WriteString("\n")
}

func writeChannels(b *strings.Builder, processed *metadata.Value) {
	count := "N/A"
	if v, ok := processed.Get("channelCount"); ok {
		count = CellString(v)
	}
	fmt.Fprintf(b, "| Property | Value |\n|:---|:---|\n| Channel Count | %s |\n\n", count)

	names, ok := processed.Get("channelNames")
	if !ok || names.Kind() != metadata.KindSequence || names.Len() == 0 {
		return
	}
	b.WriteString("| # | Name |\n|:---|:---|\n")
	for i := 0; i < names.Len(); i++ {
		if i == maxTableRows {
			fmt.Fprintf(b, "| ...and %d more | |\n", names.Len()-i)
			break
		}
		name, _ := names.At(i)
		fmt.Fprintf(b, "| %d | %s |\n", i+1, CellString(name))
	}
	b.WriteString("\n")
}

// writeExtraFields lists promoted fields that custom promotion rules added
// beyond the built-in tables.
func writeExtraFields(b *strings.Builder, processed *metadata.Value) {
	known := make(map[string]struct{}, len(dimensionFields)+len(acquisitionFields)+2)
	for _, f := range dimensionFields {
		known[f.field] = struct{}{}
	}
	for _, f := range acquisitionFields {
		known[f.field] = struct{}{}
	}
	known["channelCount"] = struct{}{}
	known["channelNames"] = struct{}{}

	var extras []string
	for _, key := range processed.Keys() {
		if _, ok := reservedKeys[key]; ok {
			continue
		}
		if _, ok := known[key]; ok {
			continue
		}
		extras = append(extras, key)
	}
	if len(extras) == 0 {
		return
	}

	b.WriteString("## Other Promoted Fields\n\n| Field | Value |\n|:---|:---|\n")
	for _, key := range extras {
		v, _ := processed.Get(key)
		fmt.Fprintf(b, "| %s | %s |\n", key, CellString(v))
	}
	b.WriteString("\n")
}

// writeRootBlocks dumps the normalized-tree roots that no promoted field
// was resolved from, so instrument-specific blocks stay visible even when
// the promotion table does not know them.
func writeRootBlocks(b *strings.Builder, processed *metadata.Value) {
	tree, ok := processed.Get("metadata")
	if !ok || tree.Kind() != metadata.KindMapping {
		b.WriteString("No other root-level metadata blocks found.\n\n")
		return
	}
	promoted := promotedRoots(processed)

	wrote := false
	for _, key := range tree.Keys() {
		if key == "sourceFile" {
			continue
		}
		if _, ok := promoted[key]; ok {
			continue
		}
		child, _ := tree.Get(key)
		fmt.Fprintf(b, "### %s\n\n", key)
		if child.Kind() == metadata.KindScalar {
			fmt.Fprintf(b, "```\n%v\n```\n\n", child.ScalarValue())
		} else {
			fmt.Fprintf(b, "```json\n%s\n```\n\n", indentJSON(child))
		}
		wrote = true
	}
	if !wrote {
		b.WriteString("No other root-level metadata blocks found.\n\n")
	}
}

// promotedRoots returns the normalized-tree root keys that at least one
// promoted field was resolved from.
func promotedRoots(processed *metadata.Value) map[string]struct{} {
	roots := make(map[string]struct{})
	from, ok := processed.Get("promotedFrom")
	if !ok {
		return roots
	}
	for _, field := range from.Keys() {
		v, _ := from.Get(field)
		switch v.Kind() {
		case metadata.KindScalar:
			addRoot(roots, v)
		case metadata.KindSequence:
			for i := 0; i < v.Len(); i++ {
				path, _ := v.At(i)
				addRoot(roots, path)
			}
		}
	}
	return roots
}

func addRoot(roots map[string]struct{}, path *metadata.Value) {
	s, ok := path.ScalarValue().(string)
	if !ok {
		return
	}
	if root := metadata.FirstSegment(s); root != "" {
		roots[root] = struct{}{}
	}
}

func writeStructure(b *strings.Builder, processed *metadata.Value) {
	tree, ok := processed.Get("metadata")
	if !ok {
		b.WriteString("No key paths found.\n")
		return
	}
	templates := metadata.Template(metadata.Flatten(tree))
	if len(templates) == 0 {
		b.WriteString("No key paths found.\n")
		return
	}
	b.WriteString("Key path templates, numeric list indices replaced with `[]`:\n\n```\n")
	for _, t := range templates {
		b.WriteString(t)
		b.WriteByte('\n')
	}
	b.WriteString("```\n")
}

// CellString renders one value for a table cell: scalars print as-is,
// containers as compact JSON. Values are cut at 100 runes so one oversized
// tag cannot swallow the table.
func CellString(v *metadata.Value) string {
	var s string
	if v.Kind() == metadata.KindScalar {
		if v.ScalarValue() == nil {
			return "N/A"
		}
		s = fmt.Sprint(v.ScalarValue())
	} else {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("<unserializable: %v>", err)
		}
		s = string(data)
	}
	return truncate(s, cellLimit)
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}

func indentJSON(v *metadata.Value) string {
	var buf bytes.Buffer
	if err := metadata.WriteJSON(&buf, v); err != nil {
		return fmt.Sprintf("could not serialize block: %v", err)
	}
	return strings.TrimRight(buf.String(), "\n")
}
