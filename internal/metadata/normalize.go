package metadata

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Normalize returns a copy of v with every mapping key rewritten to
// camelCase and every string leaf passed through CoerceScalar. The input is
// not modified. Keys that collide after renaming keep the first key's
// position and the last key's value.
func Normalize(v *Value) *Value {
	switch v.kind {
	case KindScalar:
		if s, ok := v.scalar.(string); ok {
			return Scalar(CoerceScalar(s))
		}
		return Scalar(v.scalar)
	case KindSequence:
		out := NewSequence()
		for _, child := range v.seq {
			out.Append(Normalize(child))
		}
		return out
	default:
		out := NewMapping()
		for _, key := range v.keys {
			out.Set(camelCase(key), Normalize(v.entries[key]))
		}
		return out
	}
}

// camelCase rewrites a key to camelCase, splitting on '-', '_', and spaces.
// A single-word key only has its first rune lowered, so "ImageWidth" becomes
// "imageWidth" while "@Name" and "#text" pass through untouched.
func camelCase(key string) string {
	parts := strings.FieldsFunc(key, func(r rune) bool {
		return r == '-' || r == '_' || r == ' '
	})
	if len(parts) == 0 {
		return key
	}
	var b strings.Builder
	b.WriteString(lowerFirst(parts[0]))
	for _, part := range parts[1:] {
		b.WriteString(capitalize(part))
	}
	return b.String()
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError && size <= 1 {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}

// capitalize uppercases the first rune and lowercases the rest.
func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError && size <= 1 {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}
