package extract

import (
	"strings"
	"unicode/utf8"

	"github.com/clbanning/mxj/v2"
	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"github.com/saptarshichakrabarti/image-metadata-recorder/internal/metadata"
)

func init() {
	// Match the attribute prefix convention of the JSON artifacts: "@Name"
	// instead of mxj's default "-Name".
	mxj.SetAttrPrefix("@")
}

// DecodeText decodes an embedded metadata block into a string. Candidate
// encodings are tried in order (UTF-16 honoring a BOM, then UTF-8, then
// Latin-1) and the first decode containing an XML declaration wins. Blocks
// without a declaration fall back to UTF-8 when valid, Latin-1 otherwise.
// Trailing NULs from fixed-size fields are stripped.
func DecodeText(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	candidates := []func() *encoding.Decoder{
		unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder,
		unicode.UTF8BOM.NewDecoder,
		charmap.ISO8859_1.NewDecoder,
	}
	for _, newDecoder := range candidates {
		decoded, err := newDecoder().Bytes(raw)
		if err != nil {
			continue
		}
		s := string(decoded)
		// x/text decoders substitute U+FFFD instead of failing, so a
		// substitution means the candidate encoding was wrong.
		if strings.Contains(s, "<?xml") && !strings.ContainsRune(s, utf8.RuneError) {
			return strings.TrimRight(s, "\x00")
		}
	}
	if utf8.Valid(raw) {
		return strings.TrimRight(string(raw), "\x00")
	}
	decoded, _ := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	return strings.TrimRight(string(decoded), "\x00")
}

// LooksLikeXML reports whether s plausibly holds an XML document.
func LooksLikeXML(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), "<")
}

// CleanXML drops any junk prefix before the first element or declaration
// start. A '<' opening a comment does not count, so a leading comment block
// is skipped along with the junk. ok is false when no start is found.
func CleanXML(s string) (string, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] != '<' {
			continue
		}
		if strings.HasPrefix(s[i:], "<!--") {
			continue
		}
		return s[i:], true
	}
	return "", false
}

// ParseXML decodes and parses an XML metadata block into a mapping.
// Attributes keep their case under "@" keys, element text lands under
// "#text" when attributes are present, and scalar-looking strings are
// coerced to bool/int/float.
func ParseXML(raw []byte) (*metadata.Value, error) {
	clean, ok := CleanXML(DecodeText(raw))
	if !ok {
		return nil, eris.New("extract: no xml element found")
	}
	m, err := mxj.NewMapXml([]byte(clean))
	if err != nil {
		return nil, eris.Wrap(err, "extract: parse xml")
	}
	return metadata.CoerceTree(metadata.FromAny(map[string]any(m))), nil
}
