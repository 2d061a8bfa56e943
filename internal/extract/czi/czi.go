// Package czi extracts embedded metadata from Zeiss CZI images.
//
// A CZI file is a chain of 32-byte-aligned segments. Every segment starts
// with a 32-byte header: a 16-byte NUL-padded ASCII id, the allocated
// payload size (int64 LE), and the used payload size (int64 LE). The file
// opens with a ZISRAWFILE segment whose payload carries the format version
// and the absolute offset of the ZISRAWMETADATA segment. That segment's
// payload starts with the XML size (int32 LE), the attachment size
// (int32 LE), and 248 spare bytes; the metadata XML document follows.
package czi

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"

	"github.com/saptarshichakrabarti/image-metadata-recorder/internal/extract"
	"github.com/saptarshichakrabarti/image-metadata-recorder/internal/metadata"
)

const (
	formatName    = "CZI"
	fileMagic     = "ZISRAWFILE"
	metadataMagic = "ZISRAWMETADATA"

	segmentHeaderSize = 32
	metadataPreamble  = 256

	// Guards against corrupt headers sending the reader on a long walk.
	maxSegments = 1 << 20
	maxXMLBytes = 1 << 28
)

// Extractor decodes CZI container metadata. It reads only the segment
// headers and the metadata XML, never the image subblocks.
type Extractor struct{}

func New() *Extractor { return &Extractor{} }

func (e *Extractor) Name() string { return formatName }

func (e *Extractor) Extensions() []string { return []string{".czi"} }

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
		return nil, eris.Wrap(err, "czi: open file")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, eris.Wrap(err, "czi: stat file")
	}
	size := info.Size()

	header, err := readSegmentHeader(f, 0, size)
	if err != nil {
		return nil, err
	}
	if header.id != fileMagic {
		return nil, eris.Errorf("czi: leading segment is %q, not %q", header.id, fileMagic)
	}

	payload := make([]byte, 80)
	if err := readAt(f, payload, segmentHeaderSize, size); err != nil {
		return nil, eris.Wrap(err, "czi: file header payload")
	}
	major := int32(binary.LittleEndian.Uint32(payload[0:4]))
	minor := int32(binary.LittleEndian.Uint32(payload[4:8]))
	metaPos := int64(binary.LittleEndian.Uint64(payload[60:68]))

	// The header's metadata pointer is occasionally zero or stale in
	// stitched exports, so fall back to walking the segment chain.
	mh, err := readSegmentHeader(f, metaPos, size)
	if err != nil || mh.id != metadataMagic {
		metaPos, err = scanSegments(ctx, f, size)
		if err != nil {
			return nil, err
		}
	}

	preamble := make([]byte, 8)
	if err := readAt(f, preamble, metaPos+segmentHeaderSize, size); err != nil {
		return nil, eris.Wrap(err, "czi: metadata segment payload")
	}
	xmlSize := int32(binary.LittleEndian.Uint32(preamble[0:4]))
	if xmlSize <= 0 || int64(xmlSize) > maxXMLBytes {
		return nil, eris.Errorf("czi: implausible metadata xml size %d", xmlSize)
	}

	raw := make([]byte, xmlSize)
	if err := readAt(f, raw, metaPos+segmentHeaderSize+metadataPreamble, size); err != nil {
		return nil, eris.Wrap(err, "czi: metadata xml")
	}
	tree, err := extract.ParseXML(raw)
	if err != nil {
		return nil, eris.Wrap(err, "czi: metadata xml")
	}

	root := metadata.NewMapping()
	root.Set("source_file", metadata.Scalar(path))
	root.Set("file_version", metadata.Scalar(fmt.Sprintf("%d.%d", major, minor)))
	root.Set("metadata_offset", metadata.Scalar(metaPos))
	root.Set("xml_size", metadata.Scalar(int64(xmlSize)))
	root.Set("metadata", tree)
	return root, nil
}

type segmentHeader struct {
	id        string
	allocated int64
	used      int64
}

func readSegmentHeader(r io.ReaderAt, off, size int64) (segmentHeader, error) {
	buf := make([]byte, segmentHeaderSize)
	if err := readAt(r, buf, off, size); err != nil {
		return segmentHeader{}, err
	}
	return segmentHeader{
		id:        string(bytes.TrimRight(buf[:16], "\x00")),
		allocated: int64(binary.LittleEndian.Uint64(buf[16:24])),
		used:      int64(binary.LittleEndian.Uint64(buf[24:32])),
	}, nil
}

// scanSegments walks the segment chain from the top of the file and returns
// the offset of the first metadata segment.
func scanSegments(ctx context.Context, r io.ReaderAt, size int64) (int64, error) {
	var off int64
	for i := 0; i < maxSegments && off < size; i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		h, err := readSegmentHeader(r, off, size)
		if err != nil {
			return 0, eris.Wrap(err, "czi: scan segments")
		}
		if h.id == metadataMagic {
			return off, nil
		}
		if h.allocated <= 0 {
			return 0, eris.Errorf("czi: segment %q at offset %d has allocated size %d", h.id, off, h.allocated)
		}
		off += segmentHeaderSize + h.allocated
	}
	return 0, eris.New("czi: no metadata segment found")
}

func readAt(r io.ReaderAt, buf []byte, off, size int64) error {
	if off < 0 || off+int64(len(buf)) > size {
		return eris.Errorf("czi: read of %d bytes at offset %d past file size %d", len(buf), off, size)
	}
	if _, err := r.ReadAt(buf, off); err != nil {
		return eris.Wrapf(err, "czi: read at offset %d", off)
	}
	return nil
}
