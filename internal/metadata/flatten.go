package metadata

import (
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// pathSegment is one step of a key path: a mapping key or a sequence index.
// Wildcards only appear in promotion rule patterns, never in Flatten output.
type pathSegment struct {
	key      string
	index    int
	isIndex  bool
	wildcard bool
}

// Flatten returns one key path per leaf scalar, in traversal order: mapping
// keys in insertion order, sequence elements in index order. Empty mappings
// and sequences contribute no paths. A scalar root yields the empty path.
func Flatten(v *Value) []string {
	return appendLeafPaths(nil, "", v)
}

func appendLeafPaths(paths []string, prefix string, v *Value) []string {
	switch v.kind {
	case KindScalar:
		return append(paths, prefix)
	case KindSequence:
		for i, child := range v.seq {
			paths = appendLeafPaths(paths, prefix+"["+strconv.Itoa(i)+"]", child)
		}
		return paths
	default:
		for _, key := range v.keys {
			paths = appendLeafPaths(paths, joinKey(prefix, key), v.entries[key])
		}
		return paths
	}
}

// joinKey appends a mapping key to a path prefix. Keys containing '.', '[',
// ']', '"', or nothing at all are rendered in quoted bracket form so the
// path parses back unambiguously.
func joinKey(prefix, key string) string {
	if key == "" || strings.ContainsAny(key, `.[]"`) {
		return prefix + "[" + strconv.Quote(key) + "]"
	}
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// Lookup resolves a key path produced by Flatten against a tree. It returns
// false for malformed paths, missing keys, out-of-range indices, and kind
// mismatches. The empty path resolves to the root.
func Lookup(v *Value, path string) (*Value, bool) {
	segs, err := parsePath(path, false)
	if err != nil {
		return nil, false
	}
	cur := v
	for _, seg := range segs {
		if seg.isIndex {
			child, ok := cur.At(seg.index)
			if !ok {
				return nil, false
			}
			cur = child
			continue
		}
		child, ok := cur.Get(seg.key)
		if !ok {
			return nil, false
		}
		cur = child
	}
	return cur, true
}

// FirstSegment returns the leading mapping key of a path, or "" when the
// path is empty, malformed, or starts with an index.
func FirstSegment(path string) string {
	segs, err := parsePath(path, false)
	if err != nil || len(segs) == 0 || segs[0].isIndex {
		return ""
	}
	return segs[0].key
}

// Template collapses concrete indices to "[]" and returns the sorted unique
// generalized paths. Paths that fail to parse are kept verbatim.
func Template(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		t := p
		if segs, err := parsePath(p, false); err == nil {
			t = renderTemplate(segs)
		}
		seen[t] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// renderTemplate renders parsed segments back into path syntax with every
// index segment collapsed to "[]".
func renderTemplate(segs []pathSegment) string {
	path := ""
	for _, seg := range segs {
		if seg.isIndex {
			path += "[]"
			continue
		}
		path = joinKey(path, seg.key)
	}
	return path
}

// parsePath splits a key path into segments. With wildcards enabled, "*"
// matches any mapping key and "[*]" any sequence index; a quoted "*" stays a
// literal key.
func parsePath(path string, wildcards bool) ([]pathSegment, error) {
	if path == "" {
		return nil, nil
	}
	var segs []pathSegment
	i := 0
	expectKey := true
	for i < len(path) {
		switch {
		case path[i] == '[':
			seg, n, err := parseBracket(path[i:], wildcards)
			if err != nil {
				return nil, err
			}
			segs = append(segs, seg)
			i += n
			expectKey = false
		case path[i] == '.':
			if expectKey {
				return nil, eris.Errorf("metadata: parse path %q: unexpected '.'", path)
			}
			i++
			expectKey = true
		default:
			if !expectKey {
				return nil, eris.Errorf("metadata: parse path %q: expected '.' or '[' at offset %d", path, i)
			}
			end := strings.IndexAny(path[i:], ".[")
			if end < 0 {
				end = len(path) - i
			}
			key := path[i : i+end]
			segs = append(segs, pathSegment{key: key, wildcard: wildcards && key == "*"})
			i += end
			expectKey = false
		}
	}
	if expectKey {
		return nil, eris.Errorf("metadata: parse path %q: trailing '.'", path)
	}
	return segs, nil
}

// parseBracket parses one "[...]" segment at the start of s and returns the
// segment plus the number of bytes consumed.
func parseBracket(s string, wildcards bool) (pathSegment, int, error) {
	if len(s) < 2 {
		return pathSegment{}, 0, eris.Errorf("metadata: parse path: unterminated '[' in %q", s)
	}
	if s[1] == '"' {
		quoted, err := quotedPrefix(s[1:])
		if err != nil {
			return pathSegment{}, 0, eris.Wrapf(err, "metadata: parse path: bad quoted key in %q", s)
		}
		key, err := strconv.Unquote(quoted)
		if err != nil {
			return pathSegment{}, 0, eris.Wrapf(err, "metadata: parse path: bad quoted key in %q", s)
		}
		end := 1 + len(quoted)
		if end >= len(s) || s[end] != ']' {
			return pathSegment{}, 0, eris.Errorf("metadata: parse path: missing ']' in %q", s)
		}
		return pathSegment{key: key}, end + 1, nil
	}
	end := strings.IndexByte(s, ']')
	if end < 0 {
		return pathSegment{}, 0, eris.Errorf("metadata: parse path: missing ']' in %q", s)
	}
	body := s[1:end]
	if wildcards && body == "*" {
		return pathSegment{isIndex: true, wildcard: true}, end + 1, nil
	}
	idx, err := strconv.Atoi(body)
	if err != nil || idx < 0 {
		return pathSegment{}, 0, eris.Errorf("metadata: parse path: bad index %q", body)
	}
	return pathSegment{index: idx, isIndex: true}, end + 1, nil
}

// quotedPrefix returns the leading Go-quoted string of s, including both
// quote characters.
func quotedPrefix(s string) (string, error) {
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '"':
			return s[:i+1], nil
		}
	}
	return "", eris.New("unterminated quote")
}
