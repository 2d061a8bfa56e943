package tiff

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saptarshichakrabarti/image-metadata-recorder/internal/extract"
	"github.com/saptarshichakrabarti/image-metadata-recorder/internal/metadata"
)

// fixtureTag is one IFD entry for the fixture builders: typ and count follow
// TIFF conventions, data holds the encoded value bytes.
type fixtureTag struct {
	id    uint16
	typ   uint16
	count uint32
	data  []byte
}

func shortTag(id uint16, v uint16) fixtureTag {
	return fixtureTag{id: id, typ: 3, count: 1, data: binary.LittleEndian.AppendUint16(nil, v)}
}

func asciiTag(id uint16, s string) fixtureTag {
	data := append([]byte(s), 0)
	return fixtureTag{id: id, typ: 2, count: uint32(len(data)), data: data}
}

func rationalTag(id uint16, num, den uint32) fixtureTag {
	data := binary.LittleEndian.AppendUint32(nil, num)
	data = binary.LittleEndian.AppendUint32(data, den)
	return fixtureTag{id: id, typ: 5, count: 1, data: data}
}

// buildClassicTIFF assembles a little-endian classic TIFF with one IFD per
// page. Out-of-line values are placed directly after their IFD.
func buildClassicTIFF(t *testing.T, pages [][]fixtureTag) []byte {
	t.Helper()
	le := binary.LittleEndian
	buf := []byte{'I', 'I', 42, 0, 0, 0, 0, 0}
	le.PutUint32(buf[4:8], 8)

	for p, tags := range pages {
		ifdOff := len(buf)
		blobOff := ifdOff + 2 + 12*len(tags) + 4

		var blobs []byte
		ifd := le.AppendUint16(nil, uint16(len(tags)))
		for _, tag := range tags {
			ifd = le.AppendUint16(ifd, tag.id)
			ifd = le.AppendUint16(ifd, tag.typ)
			ifd = le.AppendUint32(ifd, tag.count)
			if len(tag.data) <= 4 {
				inline := make([]byte, 4)
				copy(inline, tag.data)
				ifd = append(ifd, inline...)
			} else {
				ifd = le.AppendUint32(ifd, uint32(blobOff+len(blobs)))
				blobs = append(blobs, tag.data...)
			}
		}
		next := uint32(0)
		if p < len(pages)-1 {
			next = uint32(blobOff + len(blobs))
		}
		ifd = le.AppendUint32(ifd, next)
		buf = append(buf, ifd...)
		buf = append(buf, blobs...)
	}
	return buf
}

type bigFixtureTag struct {
	id    uint16
	typ   uint16
	count uint64
	data  []byte
}

func bigLong8Tag(id uint16, v uint64) bigFixtureTag {
	return bigFixtureTag{id: id, typ: btLong8, count: 1, data: binary.LittleEndian.AppendUint64(nil, v)}
}

func bigShortTag(id uint16, v uint16) bigFixtureTag {
	return bigFixtureTag{id: id, typ: btShort, count: 1, data: binary.LittleEndian.AppendUint16(nil, v)}
}

func bigASCIITag(id uint16, s string) bigFixtureTag {
	data := append([]byte(s), 0)
	return bigFixtureTag{id: id, typ: btASCII, count: uint64(len(data)), data: data}
}

// buildBigTIFF assembles a little-endian single-IFD BigTIFF.
func buildBigTIFF(t *testing.T, tags []bigFixtureTag) []byte {
	t.Helper()
	le := binary.LittleEndian
	buf := []byte{'I', 'I', 43, 0, 8, 0, 0, 0}
	buf = le.AppendUint64(buf, 16)

	blobOff := 16 + 8 + bigEntrySize*len(tags) + 8
	var blobs []byte
	ifd := le.AppendUint64(nil, uint64(len(tags)))
	for _, tag := range tags {
		ifd = le.AppendUint16(ifd, tag.id)
		ifd = le.AppendUint16(ifd, tag.typ)
		ifd = le.AppendUint64(ifd, tag.count)
		if len(tag.data) <= 8 {
			inline := make([]byte, 8)
			copy(inline, tag.data)
			ifd = append(ifd, inline...)
		} else {
			ifd = le.AppendUint64(ifd, uint64(blobOff+len(blobs)))
			blobs = append(blobs, tag.data...)
		}
	}
	ifd = le.AppendUint64(ifd, 0)
	buf = append(buf, ifd...)
	buf = append(buf, blobs...)
	return buf
}

func writeFixture(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

const perkinDescription = `<?xml version="1.0" encoding="utf-8"?>
<PerkinElmer-QPI-ImageDescription>
<DescriptionVersion>2</DescriptionVersion>
<AcquisitionSoftware>Vectra</AcquisitionSoftware>
<Name>DAPI</Name>
<Objective>20x</Objective>
<ExposureTime>12</ExposureTime>
<ScanProfile>{"experiment":"run1","version":2}</ScanProfile>
</PerkinElmer-QPI-ImageDescription>`

func mustGet(t *testing.T, v *metadata.Value, key string) *metadata.Value {
	t.Helper()
	child, ok := v.Get(key)
	require.True(t, ok, "key %q", key)
	return child
}

func TestExtractClassic(t *testing.T) {
	data := buildClassicTIFF(t, [][]fixtureTag{
		{
			shortTag(256, 1024),
			shortTag(257, 768),
			shortTag(258, 8),
			asciiTag(270, perkinDescription),
			rationalTag(282, 300, 1),
			asciiTag(305, "Vectra 3.0"),
			asciiTag(306, "2023:05:01 09:30:00"),
		},
		{
			shortTag(256, 512),
			shortTag(257, 384),
		},
	})
	path := writeFixture(t, "scan.qptiff", data)

	root, err := New().Extract(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, path, mustGet(t, root, "source_file").ScalarValue())
	assert.Equal(t, "II", mustGet(t, root, "byte_order").ScalarValue())
	assert.Equal(t, false, mustGet(t, root, "big_tiff").ScalarValue())

	pages := mustGet(t, root, "pages")
	require.Equal(t, 2, pages.Len())

	page0, _ := pages.At(0)
	assert.Equal(t, int64(0), mustGet(t, page0, "page_index").ScalarValue())
	tags := mustGet(t, page0, "tags")
	assert.Equal(t, int64(1024), mustGet(t, tags, "ImageWidth").ScalarValue())
	assert.Equal(t, int64(768), mustGet(t, tags, "ImageLength").ScalarValue())
	assert.Equal(t, "Vectra 3.0", mustGet(t, tags, "Software").ScalarValue())
	assert.Equal(t, "2023:05:01 09:30:00", mustGet(t, tags, "DateTime").ScalarValue())

	res := mustGet(t, tags, "XResolution")
	require.Equal(t, 2, res.Len())
	num, _ := res.At(0)
	den, _ := res.At(1)
	assert.Equal(t, int64(300), num.ScalarValue())
	assert.Equal(t, int64(1), den.ScalarValue())

	assert.Equal(t, perkinDescription, mustGet(t, page0, "image_description_xml").ScalarValue())

	structured := mustGet(t, page0, "structured_description")
	desc := mustGet(t, structured, "PerkinElmer-QPI-ImageDescription")
	assert.Equal(t, "DAPI", mustGet(t, desc, "Name").ScalarValue())
	assert.Equal(t, int64(2), mustGet(t, desc, "DescriptionVersion").ScalarValue())
	assert.Equal(t, int64(12), mustGet(t, desc, "ExposureTime").ScalarValue())

	profile := mustGet(t, structured, "parsed_scan_profile")
	assert.Equal(t, "run1", mustGet(t, profile, "experiment").ScalarValue())
	assert.Equal(t, int64(2), mustGet(t, profile, "version").ScalarValue())

	page1, _ := pages.At(1)
	assert.Equal(t, int64(1), mustGet(t, page1, "page_index").ScalarValue())
	_, ok := page1.Get("image_description_xml")
	assert.False(t, ok)
}

func TestExtractScanProfileBadJSON(t *testing.T) {
	desc := `<?xml version="1.0"?><Root><ScanProfile>{not json</ScanProfile></Root>`
	data := buildClassicTIFF(t, [][]fixtureTag{{
		shortTag(256, 16),
		asciiTag(270, desc),
	}})
	path := writeFixture(t, "bad_profile.tif", data)

	root, err := New().Extract(context.Background(), path)
	require.NoError(t, err)

	pages := mustGet(t, root, "pages")
	page0, _ := pages.At(0)
	structured := mustGet(t, page0, "structured_description")
	errInfo := mustGet(t, structured, "parsed_scan_profile_error")
	assert.Contains(t, mustGet(t, errInfo, "error").ScalarValue(), "JSON parse error")
	assert.Equal(t, "{not json", mustGet(t, errInfo, "raw_value").ScalarValue())
}

func TestExtractOMETopLevel(t *testing.T) {
	ome := `<?xml version="1.0"?><OME><Image><Pixels SizeX="1024" SizeY="768"><Channel Name="DAPI"/><Channel Name="FITC"/></Pixels></Image></OME>`
	data := buildClassicTIFF(t, [][]fixtureTag{{
		shortTag(256, 1024),
		asciiTag(270, ome),
	}})
	path := writeFixture(t, "ome.tif", data)

	root, err := New().Extract(context.Background(), path)
	require.NoError(t, err)

	top := mustGet(t, root, "top_level_tags")
	assert.Equal(t, ome, mustGet(t, top, "ome_xml_string").ScalarValue())

	structured := mustGet(t, top, "structured_ome_metadata")
	pixels := mustGet(t, mustGet(t, mustGet(t, structured, "OME"), "Image"), "Pixels")
	assert.Equal(t, int64(1024), mustGet(t, pixels, "@SizeX").ScalarValue())
	channels := mustGet(t, pixels, "Channel")
	require.Equal(t, 2, channels.Len())
}

func TestExtractImageJTopLevel(t *testing.T) {
	desc := "ImageJ=1.53c\nimages=3\nchannels=3\nhyperstack=true\nunit=micron"
	data := buildClassicTIFF(t, [][]fixtureTag{{
		shortTag(256, 64),
		asciiTag(270, desc),
	}})
	path := writeFixture(t, "stack.tif", data)

	root, err := New().Extract(context.Background(), path)
	require.NoError(t, err)

	top := mustGet(t, root, "top_level_tags")
	ij := mustGet(t, top, "imagej_metadata")
	assert.Equal(t, "1.53c", mustGet(t, ij, "ImageJ").ScalarValue())
	assert.Equal(t, int64(3), mustGet(t, ij, "images").ScalarValue())
	assert.Equal(t, true, mustGet(t, ij, "hyperstack").ScalarValue())
	assert.Equal(t, "micron", mustGet(t, ij, "unit").ScalarValue())

	// Plain-text description is not XML, so no structured form on the page.
	pages := mustGet(t, root, "pages")
	page0, _ := pages.At(0)
	_, ok := page0.Get("structured_description")
	assert.False(t, ok)
}

func TestExtractBigTIFF(t *testing.T) {
	data := buildBigTIFF(t, []bigFixtureTag{
		bigLong8Tag(256, 40960),
		bigLong8Tag(257, 30720),
		bigShortTag(258, 16),
		bigASCIITag(305, "PhenoImager"),
	})
	path := writeFixture(t, "pyramid.qptiff", data)

	root, err := New().Extract(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, true, mustGet(t, root, "big_tiff").ScalarValue())
	pages := mustGet(t, root, "pages")
	require.Equal(t, 1, pages.Len())

	page0, _ := pages.At(0)
	tags := mustGet(t, page0, "tags")
	assert.Equal(t, int64(40960), mustGet(t, tags, "ImageWidth").ScalarValue())
	assert.Equal(t, int64(30720), mustGet(t, tags, "ImageLength").ScalarValue())
	assert.Equal(t, int64(16), mustGet(t, tags, "BitsPerSample").ScalarValue())
	assert.Equal(t, "PhenoImager", mustGet(t, tags, "Software").ScalarValue())
}

func TestExtractBigTIFFCorruptOffset(t *testing.T) {
	le := binary.LittleEndian
	buf := []byte{'I', 'I', 43, 0, 8, 0, 0, 0}
	buf = le.AppendUint64(buf, 1<<40) // first IFD far past EOF
	path := writeFixture(t, "corrupt.qptiff", buf)

	_, err := New().Extract(context.Background(), path)
	require.Error(t, err)

	var extErr *extract.Error
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, "TIFF", extErr.Format)
	assert.Equal(t, path, extErr.Path)
}

func TestExtractTruncated(t *testing.T) {
	path := writeFixture(t, "trunc.tif", []byte{'I', 'I', 42, 0, 9, 9})

	_, err := New().Extract(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TIFF: extract")
}

func TestExtractBadByteOrder(t *testing.T) {
	path := writeFixture(t, "bad.tif", []byte("XXXXXXXX"))

	_, err := New().Extract(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "byte order")
}

func TestExtractBadMagic(t *testing.T) {
	path := writeFixture(t, "bad_magic.tif", []byte{'I', 'I', 44, 0, 8, 0, 0, 0})

	_, err := New().Extract(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported magic")
}

func TestExtractMissingFile(t *testing.T) {
	_, err := New().Extract(context.Background(), filepath.Join(t.TempDir(), "absent.tif"))
	require.Error(t, err)

	var extErr *extract.Error
	assert.ErrorAs(t, err, &extErr)
}

func TestTagName(t *testing.T) {
	assert.Equal(t, "ImageWidth", TagName(256))
	assert.Equal(t, "ImageDescription", TagName(270))
	assert.Equal(t, "Tag60000", TagName(60000))
}
