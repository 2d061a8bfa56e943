package extract

import (
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeUTF16LE(t *testing.T, s string, bom bool) []byte {
	t.Helper()
	var buf []byte
	if bom {
		buf = append(buf, 0xFF, 0xFE)
	}
	for _, u := range utf16.Encode([]rune(s)) {
		buf = append(buf, byte(u), byte(u>>8))
	}
	return buf
}

func TestDecodeText(t *testing.T) {
	xml := `<?xml version="1.0"?><Root/>`

	t.Run("utf8", func(t *testing.T) {
		assert.Equal(t, xml, DecodeText([]byte(xml)))
	})

	t.Run("utf8 with trailing nuls", func(t *testing.T) {
		raw := append([]byte(xml), 0, 0, 0)
		assert.Equal(t, xml, DecodeText(raw))
	})

	t.Run("utf16le with bom", func(t *testing.T) {
		assert.Equal(t, xml, DecodeText(encodeUTF16LE(t, xml, true)))
	})

	t.Run("utf16le without bom", func(t *testing.T) {
		assert.Equal(t, xml, DecodeText(encodeUTF16LE(t, xml, false)))
	})

	t.Run("latin1", func(t *testing.T) {
		raw := []byte(`<?xml version="1.0"?><Root name="Caf`)
		raw = append(raw, 0xE9) // é in Latin-1, invalid UTF-8
		raw = append(raw, []byte(`"/>`)...)
		assert.Equal(t, `<?xml version="1.0"?><Root name="Café"/>`, DecodeText(raw))
	})

	t.Run("plain text without declaration", func(t *testing.T) {
		assert.Equal(t, "ImageJ=1.53", DecodeText([]byte("ImageJ=1.53")))
	})

	t.Run("empty", func(t *testing.T) {
		assert.Equal(t, "", DecodeText(nil))
	})
}

func TestLooksLikeXML(t *testing.T) {
	assert.True(t, LooksLikeXML("<Root/>"))
	assert.True(t, LooksLikeXML("  \n\t<?xml version=\"1.0\"?>"))
	assert.False(t, LooksLikeXML("ImageJ=1.53"))
	assert.False(t, LooksLikeXML(""))
}

func TestCleanXML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"clean", "<Root/>", "<Root/>", true},
		{"declaration", `<?xml version="1.0"?><Root/>`, `<?xml version="1.0"?><Root/>`, true},
		{"junk prefix", "II*\x00junk<Root/>", "<Root/>", true},
		{"leading comment skipped", "<!-- hdr --><Root/>", "<Root/>", true},
		{"no element", "no tags here", "", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CleanXML(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseXML(t *testing.T) {
	raw := []byte(`<?xml version="1.0"?>
<ImageDescription Version="2">
  <Objective>20x</Objective>
  <Exposure>1.25</Exposure>
  <Valid>true</Valid>
  <Name>DAPI</Name>
</ImageDescription>`)

	doc, err := ParseXML(raw)
	require.NoError(t, err)

	root, ok := doc.Get("ImageDescription")
	require.True(t, ok)

	version, ok := root.Get("@Version")
	require.True(t, ok)
	assert.Equal(t, int64(2), version.ScalarValue())

	objective, ok := root.Get("Objective")
	require.True(t, ok)
	assert.Equal(t, "20x", objective.ScalarValue())

	exposure, ok := root.Get("Exposure")
	require.True(t, ok)
	assert.Equal(t, 1.25, exposure.ScalarValue())

	valid, ok := root.Get("Valid")
	require.True(t, ok)
	assert.Equal(t, true, valid.ScalarValue())

	name, ok := root.Get("Name")
	require.True(t, ok)
	assert.Equal(t, "DAPI", name.ScalarValue())
}

func TestParseXMLRepeatedElements(t *testing.T) {
	raw := []byte(`<Channels><Channel Name="DAPI"/><Channel Name="FITC"/></Channels>`)

	doc, err := ParseXML(raw)
	require.NoError(t, err)

	channels, ok := doc.Get("Channels")
	require.True(t, ok)
	channel, ok := channels.Get("Channel")
	require.True(t, ok)
	require.Equal(t, 2, channel.Len())

	first, _ := channel.At(0)
	name, ok := first.Get("@Name")
	require.True(t, ok)
	assert.Equal(t, "DAPI", name.ScalarValue())
}

func TestParseXMLTextWithAttributes(t *testing.T) {
	raw := []byte(`<Distance Id="X"><Value>0.5</Value></Distance>`)

	doc, err := ParseXML(raw)
	require.NoError(t, err)

	distance, ok := doc.Get("Distance")
	require.True(t, ok)
	id, ok := distance.Get("@Id")
	require.True(t, ok)
	assert.Equal(t, "X", id.ScalarValue())
	value, ok := distance.Get("Value")
	require.True(t, ok)
	assert.Equal(t, 0.5, value.ScalarValue())
}

func TestParseXMLErrors(t *testing.T) {
	_, err := ParseXML([]byte("no xml at all"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no xml element")

	_, err = ParseXML([]byte("<Root><Unclosed></Root>"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse xml")
}
