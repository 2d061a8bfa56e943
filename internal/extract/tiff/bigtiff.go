package tiff

import (
	"encoding/binary"
	"io"
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/saptarshichakrabarti/image-metadata-recorder/internal/metadata"
)

// BigTIFF (TIFF 6.0 with the version-43 header) widens offsets and counts
// to 64 bits: the header carries an 8-byte first-IFD offset at byte 8, each
// IFD starts with an 8-byte entry count, and entries are 20 bytes with an
// 8-byte inline value field.
const (
	bigEntrySize = 20

	// Walk guards for corrupt files.
	maxIFDs       = 65536
	maxIFDEntries = 65536
	maxValueBytes = 1 << 26
)

// BigTIFF field types. IDs 1-12 match classic TIFF; 16-18 are the 64-bit
// additions.
const (
	btByte      uint16 = 1
	btASCII     uint16 = 2
	btShort     uint16 = 3
	btLong      uint16 = 4
	btRational  uint16 = 5
	btSByte     uint16 = 6
	btUndefined uint16 = 7
	btSShort    uint16 = 8
	btSLong     uint16 = 9
	btSRational uint16 = 10
	btFloat     uint16 = 11
	btDouble    uint16 = 12
	btIFD       uint16 = 13
	btLong8     uint16 = 16
	btSLong8    uint16 = 17
	btIFD8      uint16 = 18
)

var bigTypeSizes = map[uint16]uint64{
	btByte: 1, btASCII: 1, btShort: 2, btLong: 4, btRational: 8,
	btSByte: 1, btUndefined: 1, btSShort: 2, btSLong: 4, btSRational: 8,
	btFloat: 4, btDouble: 8, btIFD: 4, btLong8: 8, btSLong8: 8, btIFD8: 8,
}

// decodeBigTIFF walks the 64-bit IFD chain and returns the decoded entries
// of every directory.
func decodeBigTIFF(r io.ReaderAt, size int64, order binary.ByteOrder) ([][]pageTag, error) {
	var head [16]byte
	if err := readAt(r, head[:], 0, size); err != nil {
		return nil, eris.Wrap(err, "tiff: bigtiff header")
	}
	if order.Uint16(head[4:6]) != 8 || order.Uint16(head[6:8]) != 0 {
		return nil, eris.New("tiff: bigtiff header has unexpected offset size")
	}
	offset := order.Uint64(head[8:16])

	var dirs [][]pageTag
	for offset != 0 {
		if len(dirs) >= maxIFDs {
			return nil, eris.New("tiff: bigtiff ifd chain too long")
		}
		entries, next, err := readBigIFD(r, size, order, offset)
		if err != nil {
			return nil, err
		}
		dirs = append(dirs, entries)
		offset = next
	}
	if len(dirs) == 0 {
		return nil, eris.New("tiff: bigtiff has no ifd")
	}
	return dirs, nil
}

func readBigIFD(r io.ReaderAt, size int64, order binary.ByteOrder, offset uint64) ([]pageTag, uint64, error) {
	var countBuf [8]byte
	if err := readAt(r, countBuf[:], int64(offset), size); err != nil {
		return nil, 0, eris.Wrapf(err, "tiff: bigtiff ifd at %d", offset)
	}
	count := order.Uint64(countBuf[:])
	if count > maxIFDEntries {
		return nil, 0, eris.Errorf("tiff: bigtiff ifd at %d claims %d entries", offset, count)
	}

	raw := make([]byte, count*bigEntrySize+8)
	if err := readAt(r, raw, int64(offset)+8, size); err != nil {
		return nil, 0, eris.Wrapf(err, "tiff: bigtiff ifd entries at %d", offset)
	}

	entries := make([]pageTag, 0, count)
	for i := uint64(0); i < count; i++ {
		e := raw[i*bigEntrySize : (i+1)*bigEntrySize]
		id := order.Uint16(e[0:2])
		typ := order.Uint16(e[2:4])
		valCount := order.Uint64(e[4:12])

		data, err := entryBytes(r, size, order, typ, valCount, e[12:20])
		if err != nil {
			return nil, 0, eris.Wrapf(err, "tiff: bigtiff tag %d", id)
		}
		value, text := bigTagValue(order, typ, valCount, data)
		entries = append(entries, pageTag{id: id, value: value, text: text})
	}
	next := order.Uint64(raw[count*bigEntrySize:])
	return entries, next, nil
}

// entryBytes resolves an entry's value bytes: inline when they fit the
// 8-byte field, otherwise read from the 64-bit offset it holds. A nil
// return means the payload was skipped as oversized.
func entryBytes(r io.ReaderAt, size int64, order binary.ByteOrder, typ uint16, count uint64, field []byte) ([]byte, error) {
	typeSize, ok := bigTypeSizes[typ]
	if !ok {
		return nil, nil
	}
	if count > maxValueBytes {
		return nil, nil
	}
	byteLen := typeSize * count
	if byteLen > maxValueBytes {
		return nil, nil
	}
	if byteLen <= 8 {
		return field[:byteLen], nil
	}
	valueOffset := order.Uint64(field)
	data := make([]byte, byteLen)
	if err := readAt(r, data, int64(valueOffset), size); err != nil {
		return nil, eris.Wrapf(err, "value at %d", valueOffset)
	}
	return data, nil
}

// bigTagValue decodes one entry's payload into the same shapes the classic
// decoder produces.
func bigTagValue(order binary.ByteOrder, typ uint16, count uint64, data []byte) (*metadata.Value, string) {
	if data == nil {
		return metadata.Scalar("<skipped value>"), ""
	}
	switch typ {
	case btASCII:
		s := strings.TrimRight(string(data), "\x00")
		return metadata.Scalar(s), s
	case btByte, btUndefined:
		return textOrBinary(data)
	case btShort, btLong, btLong8, btSByte, btSShort, btSLong, btSLong8, btIFD, btIFD8:
		return intsValue(order, typ, count, data), ""
	case btFloat:
		return floatsValue(count, func(i uint64) float64 {
			return float64(math.Float32frombits(order.Uint32(data[i*4:])))
		}), ""
	case btDouble:
		return floatsValue(count, func(i uint64) float64 {
			return math.Float64frombits(order.Uint64(data[i*8:]))
		}), ""
	case btRational, btSRational:
		signed := typ == btSRational
		pairs := make([][2]int64, 0, count)
		for i := uint64(0); i < count; i++ {
			num := order.Uint32(data[i*8:])
			den := order.Uint32(data[i*8+4:])
			if signed {
				pairs = append(pairs, [2]int64{int64(int32(num)), int64(int32(den))})
			} else {
				pairs = append(pairs, [2]int64{int64(num), int64(den)})
			}
		}
		return rationalValue(pairs), ""
	default:
		return binaryMarker(len(data)), ""
	}
}

func intsValue(order binary.ByteOrder, typ uint16, count uint64, data []byte) *metadata.Value {
	read := func(i uint64) int64 {
		switch typ {
		case btByte:
			return int64(data[i])
		case btSByte:
			return int64(int8(data[i]))
		case btShort:
			return int64(order.Uint16(data[i*2:]))
		case btSShort:
			return int64(int16(order.Uint16(data[i*2:])))
		case btLong, btIFD:
			return int64(order.Uint32(data[i*4:]))
		case btSLong:
			return int64(int32(order.Uint32(data[i*4:])))
		default: // btLong8, btSLong8, btIFD8
			return int64(order.Uint64(data[i*8:]))
		}
	}
	if count == 1 {
		return metadata.Scalar(read(0))
	}
	seq := metadata.NewSequence()
	for i := uint64(0); i < count; i++ {
		seq.Append(metadata.Scalar(read(i)))
	}
	return seq
}

func floatsValue(count uint64, read func(uint64) float64) *metadata.Value {
	if count == 1 {
		return metadata.Scalar(read(0))
	}
	seq := metadata.NewSequence()
	for i := uint64(0); i < count; i++ {
		seq.Append(metadata.Scalar(read(i)))
	}
	return seq
}

// readAt reads exactly len(buf) bytes at off, rejecting reads outside the
// file instead of letting a corrupt offset trigger a huge allocation or a
// short read.
func readAt(r io.ReaderAt, buf []byte, off int64, size int64) error {
	if off < 0 || off+int64(len(buf)) > size {
		return eris.Errorf("read of %d bytes at %d exceeds file size %d", len(buf), off, size)
	}
	_, err := r.ReadAt(buf, off)
	return err
}
