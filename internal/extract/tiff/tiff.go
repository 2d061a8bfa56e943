// Package tiff extracts embedded metadata from TIFF, BigTIFF, and QPTIFF
// files: the per-page tag directories plus any XML image description
// (OME-XML, PerkinElmer QPI) parsed into a nested mapping.
package tiff

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	exiftiff "github.com/rwcarlsen/goexif/tiff"
	"go.uber.org/zap"

	"github.com/saptarshichakrabarti/image-metadata-recorder/internal/extract"
	"github.com/saptarshichakrabarti/image-metadata-recorder/internal/metadata"
)

const (
	classicMagic = 42
	bigTIFFMagic = 43
	formatName   = "TIFF"
	imageJSigil  = "ImageJ="
	omeRootSigil = "<OME"
	scanProfile  = "ScanProfile"
)

// Extractor reads TIFF family files. The classic 32-bit layout is decoded
// with goexif; the 64-bit BigTIFF layout, which goexif does not understand,
// has its own IFD walker in this package.
type Extractor struct{}

// New returns a TIFF extractor.
func New() *Extractor { return &Extractor{} }

func (e *Extractor) Name() string { return formatName }

func (e *Extractor) Extensions() []string {
	return []string{".tif", ".tiff", ".qptiff"}
}

// Extract reads every IFD of the file into one page entry each, with tag
// values decoded and XML descriptions parsed.
func (e *Extractor) Extract(ctx context.Context, path string) (*metadata.Value, error) {
	root, err := e.extract(ctx, path)
	if err != nil {
		return nil, extract.NewError(e.Name(), path, err)
	}
	return root, nil
}

func (e *Extractor) extract(ctx context.Context, path string) (*metadata.Value, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "tiff: open %s", path)
	}
	defer f.Close()

	var header [4]byte
	if _, err := io.ReadFull(f, header[:]); err != nil {
		return nil, eris.Wrap(err, "tiff: read header")
	}
	var order binary.ByteOrder
	switch string(header[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return nil, eris.Errorf("tiff: bad byte order marker %q", string(header[:2]))
	}
	magic := order.Uint16(header[2:4])

	root := metadata.NewMapping()
	root.Set("source_file", metadata.Scalar(path))
	root.Set("byte_order", metadata.Scalar(string(header[:2])))
	root.Set("big_tiff", metadata.Scalar(magic == bigTIFFMagic))

	var dirs [][]pageTag
	switch magic {
	case classicMagic:
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, eris.Wrap(err, "tiff: seek")
		}
		t, err := exiftiff.Decode(f)
		if err != nil {
			return nil, eris.Wrap(err, "tiff: decode")
		}
		for _, dir := range t.Dirs {
			dirs = append(dirs, dirTags(dir))
		}
	case bigTIFFMagic:
		info, err := f.Stat()
		if err != nil {
			return nil, eris.Wrap(err, "tiff: stat")
		}
		dirs, err = decodeBigTIFF(f, info.Size(), order)
		if err != nil {
			return nil, err
		}
	default:
		return nil, eris.Errorf("tiff: unsupported magic number %d", magic)
	}

	pages := metadata.NewSequence()
	var firstDescription string
	for i, tags := range dirs {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "tiff: canceled")
		}
		page, desc := buildPage(path, i, tags)
		if i == 0 {
			firstDescription = desc
		}
		pages.Append(page)
	}
	root.Set("pages", pages)

	if top := topLevelTags(path, firstDescription); top.Len() > 0 {
		root.Set("top_level_tags", top)
	}
	return root, nil
}

// pageTag is one decoded IFD entry, independent of the classic/BigTIFF
// layout it came from.
type pageTag struct {
	id    uint16
	value *metadata.Value
	text  string // set when the entry held decodable text
}

// dirTags converts a goexif directory into decoded entries.
func dirTags(dir *exiftiff.Dir) []pageTag {
	tags := make([]pageTag, 0, len(dir.Tags))
	for _, tag := range dir.Tags {
		value, text := classicTagValue(tag)
		tags = append(tags, pageTag{id: tag.Id, value: value, text: text})
	}
	return tags
}

// classicTagValue decodes one goexif tag. Single-count entries become
// scalars, multi-count entries sequences, rationals [numerator, denominator]
// pairs. Undecodable binary payloads are summarized instead of embedded.
func classicTagValue(tag *exiftiff.Tag) (*metadata.Value, string) {
	switch tag.Format() {
	case exiftiff.StringVal:
		s, err := tag.StringVal()
		if err != nil {
			return binaryMarker(len(tag.Val)), ""
		}
		return metadata.Scalar(s), s
	case exiftiff.IntVal:
		if tag.Count == 1 {
			if n, err := tag.Int64(0); err == nil {
				return metadata.Scalar(n), ""
			}
			return binaryMarker(len(tag.Val)), ""
		}
		seq := metadata.NewSequence()
		for i := 0; i < int(tag.Count); i++ {
			n, err := tag.Int64(i)
			if err != nil {
				break
			}
			seq.Append(metadata.Scalar(n))
		}
		return seq, ""
	case exiftiff.FloatVal:
		if tag.Count == 1 {
			if x, err := tag.Float(0); err == nil {
				return metadata.Scalar(x), ""
			}
			return binaryMarker(len(tag.Val)), ""
		}
		seq := metadata.NewSequence()
		for i := 0; i < int(tag.Count); i++ {
			x, err := tag.Float(i)
			if err != nil {
				break
			}
			seq.Append(metadata.Scalar(x))
		}
		return seq, ""
	case exiftiff.RatVal:
		pairs := make([][2]int64, 0, tag.Count)
		for i := 0; i < int(tag.Count); i++ {
			num, den, err := tag.Rat2(i)
			if err != nil {
				break
			}
			pairs = append(pairs, [2]int64{num, den})
		}
		return rationalValue(pairs), ""
	default:
		return textOrBinary(tag.Val)
	}
}

// rationalValue renders one rational as [num, den] and several as a
// sequence of such pairs.
func rationalValue(pairs [][2]int64) *metadata.Value {
	pair := func(p [2]int64) *metadata.Value {
		s := metadata.NewSequence()
		s.Append(metadata.Scalar(p[0]))
		s.Append(metadata.Scalar(p[1]))
		return s
	}
	if len(pairs) == 1 {
		return pair(pairs[0])
	}
	seq := metadata.NewSequence()
	for _, p := range pairs {
		seq.Append(pair(p))
	}
	return seq
}

// textOrBinary keeps byte payloads that decode to XML-ish text, and
// summarizes everything else as "<N bytes binary>".
func textOrBinary(raw []byte) (*metadata.Value, string) {
	text := extract.DecodeText(raw)
	if extract.LooksLikeXML(text) {
		return metadata.Scalar(text), text
	}
	return binaryMarker(len(raw)), ""
}

func binaryMarker(n int) *metadata.Value {
	return metadata.Scalar(fmt.Sprintf("<%d bytes binary>", n))
}

// buildPage assembles one page entry and returns it with the page's
// description text, if any.
func buildPage(path string, index int, entries []pageTag) (*metadata.Value, string) {
	page := metadata.NewMapping()
	page.Set("page_index", metadata.Scalar(int64(index)))

	tags := metadata.NewMapping()
	var description string
	for _, entry := range entries {
		tags.Set(TagName(entry.id), entry.value)
		if entry.id == tagImageDescription && entry.text != "" {
			description = entry.text
		}
	}
	page.Set("tags", tags)

	if extract.LooksLikeXML(description) {
		page.Set("image_description_xml", metadata.Scalar(description))
		structured, err := extract.ParseXML([]byte(description))
		if err != nil {
			zap.L().Warn("tiff: parse image description",
				zap.String("file", path),
				zap.Int("page", index),
				zap.Error(err),
			)
		} else {
			expandScanProfile(structured)
			page.Set("structured_description", structured)
		}
	}
	return page, description
}

// topLevelTags mirrors the whole-file metadata views: the OME-XML document
// and ImageJ's key=value description, both conventionally stored in the
// first page's ImageDescription.
func topLevelTags(path, firstDescription string) *metadata.Value {
	top := metadata.NewMapping()
	if firstDescription == "" {
		return top
	}
	if extract.LooksLikeXML(firstDescription) && strings.Contains(firstDescription, omeRootSigil) {
		top.Set("ome_xml_string", metadata.Scalar(firstDescription))
		structured, err := extract.ParseXML([]byte(firstDescription))
		if err != nil {
			zap.L().Warn("tiff: parse ome xml", zap.String("file", path), zap.Error(err))
		} else {
			top.Set("structured_ome_metadata", structured)
		}
		return top
	}
	if strings.HasPrefix(firstDescription, imageJSigil) {
		top.Set("imagej_metadata", parseImageJ(firstDescription))
	}
	return top
}

// parseImageJ splits ImageJ's "key=value" description lines into a mapping.
func parseImageJ(description string) *metadata.Value {
	m := metadata.NewMapping()
	for _, line := range strings.Split(description, "\n") {
		line = strings.TrimRight(line, "\r")
		key, value, ok := strings.Cut(line, "=")
		if !ok || key == "" {
			continue
		}
		m.Set(key, metadata.Scalar(metadata.CoerceScalar(value)))
	}
	return m
}

// expandScanProfile finds the first nested "ScanProfile" string, which
// PerkinElmer writers fill with embedded JSON, and appends the parsed tree
// under "parsed_scan_profile". Unparseable JSON is recorded instead of
// dropped.
func expandScanProfile(doc *metadata.Value) {
	node, ok := findKey(doc, scanProfile)
	if !ok {
		return
	}
	s, ok := node.ScalarValue().(string)
	if !ok {
		return
	}
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var parsed any
	if err := dec.Decode(&parsed); err != nil {
		errInfo := metadata.NewMapping()
		errInfo.Set("error", metadata.Scalar(fmt.Sprintf("JSON parse error: %v", err)))
		errInfo.Set("raw_value", metadata.Scalar(s))
		doc.Set("parsed_scan_profile_error", errInfo)
		return
	}
	doc.Set("parsed_scan_profile", metadata.FromAny(parsed))
}

// findKey walks the tree depth-first and returns the first value stored
// under key.
func findKey(v *metadata.Value, key string) (*metadata.Value, bool) {
	switch v.Kind() {
	case metadata.KindMapping:
		if node, ok := v.Get(key); ok {
			return node, true
		}
		for _, k := range v.Keys() {
			child, _ := v.Get(k)
			if node, ok := findKey(child, key); ok {
				return node, true
			}
		}
	case metadata.KindSequence:
		for i := 0; i < v.Len(); i++ {
			child, _ := v.At(i)
			if node, ok := findKey(child, key); ok {
				return node, true
			}
		}
	}
	return nil, false
}
