// Package metadata holds the dynamic metadata tree produced by the format
// extractors and the transformations applied to it: key normalization,
// key-path flattening, and field promotion.
package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/rotisserie/eris"
)

// Kind discriminates the three shapes a Value can take.
type Kind uint8

const (
	KindScalar Kind = iota
	KindSequence
	KindMapping
)

// String returns the lowercase kind name.
func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Value is a recursive tagged variant: a scalar leaf, a sequence, or a
// mapping. Mappings remember insertion order, so traversal and JSON output
// stay deterministic regardless of Go map iteration order. The zero value is
// a nil scalar.
type Value struct {
	kind    Kind
	scalar  any
	seq     []*Value
	keys    []string
	entries map[string]*Value
}

// Scalar wraps a plain Go value as a scalar leaf. Integers are widened to
// int64 and floats to float64; nil, bool, and string pass through. Anything
// else is stringified.
func Scalar(v any) *Value {
	switch n := v.(type) {
	case nil, bool, string, int64, float64:
		return &Value{kind: KindScalar, scalar: v}
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return &Value{kind: KindScalar, scalar: i}
		}
		if f, err := n.Float64(); err == nil {
			return &Value{kind: KindScalar, scalar: f}
		}
		return &Value{kind: KindScalar, scalar: string(n)}
	case int:
		return &Value{kind: KindScalar, scalar: int64(n)}
	case int8:
		return &Value{kind: KindScalar, scalar: int64(n)}
	case int16:
		return &Value{kind: KindScalar, scalar: int64(n)}
	case int32:
		return &Value{kind: KindScalar, scalar: int64(n)}
	case uint:
		return &Value{kind: KindScalar, scalar: int64(n)}
	case uint8:
		return &Value{kind: KindScalar, scalar: int64(n)}
	case uint16:
		return &Value{kind: KindScalar, scalar: int64(n)}
	case uint32:
		return &Value{kind: KindScalar, scalar: int64(n)}
	case uint64:
		if n > math.MaxInt64 {
			return &Value{kind: KindScalar, scalar: float64(n)}
		}
		return &Value{kind: KindScalar, scalar: int64(n)}
	case float32:
		return &Value{kind: KindScalar, scalar: float64(n)}
	default:
		return &Value{kind: KindScalar, scalar: fmt.Sprint(v)}
	}
}

// NewMapping returns an empty insertion-ordered mapping.
func NewMapping() *Value {
	return &Value{kind: KindMapping, entries: make(map[string]*Value)}
}

// NewSequence returns an empty sequence.
func NewSequence() *Value {
	return &Value{kind: KindSequence}
}

// Kind reports the shape of v.
func (v *Value) Kind() Kind { return v.kind }

// ScalarValue returns the wrapped Go value of a scalar leaf, nil otherwise.
func (v *Value) ScalarValue() any {
	if v.kind != KindScalar {
		return nil
	}
	return v.scalar
}

// Len returns the entry count of a mapping or the element count of a
// sequence. Scalars have length zero.
func (v *Value) Len() int {
	switch v.kind {
	case KindSequence:
		return len(v.seq)
	case KindMapping:
		return len(v.keys)
	}
	return 0
}

// Set stores child under key. A new key appends to the ordering; re-setting
// an existing key replaces the value but keeps its original position. Panics
// when v is not a mapping.
func (v *Value) Set(key string, child *Value) {
	if v.kind != KindMapping {
		panic("metadata: Set on non-mapping value")
	}
	if _, ok := v.entries[key]; !ok {
		v.keys = append(v.keys, key)
	}
	v.entries[key] = child
}

// Get returns the child stored under key.
func (v *Value) Get(key string) (*Value, bool) {
	if v.kind != KindMapping {
		return nil, false
	}
	child, ok := v.entries[key]
	return child, ok
}

// Keys returns the mapping keys in insertion order.
func (v *Value) Keys() []string {
	return append([]string(nil), v.keys...)
}

// Append adds child to the end of a sequence. Panics when v is not a
// sequence.
func (v *Value) Append(child *Value) {
	if v.kind != KindSequence {
		panic("metadata: Append on non-sequence value")
	}
	v.seq = append(v.seq, child)
}

// At returns the i-th sequence element.
func (v *Value) At(i int) (*Value, bool) {
	if v.kind != KindSequence || i < 0 || i >= len(v.seq) {
		return nil, false
	}
	return v.seq[i], true
}

// MarshalJSON encodes the tree with mapping keys in insertion order. HTML
// characters are left unescaped so embedded XML stays readable.
func (v *Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v *Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case KindScalar:
		return encodeJSONValue(buf, v.scalar)
	case KindSequence:
		buf.WriteByte('[')
		for i, child := range v.seq {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := child.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case KindMapping:
		buf.WriteByte('{')
		for i, key := range v.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeJSONValue(buf, key); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := v.entries[key].encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	}
	return eris.Errorf("metadata: encode unknown kind %d", v.kind)
}

// encodeJSONValue writes one plain value without HTML escaping.
func encodeJSONValue(buf *bytes.Buffer, v any) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return eris.Wrap(err, "metadata: encode scalar")
	}
	// Encode appends a newline.
	buf.Truncate(buf.Len() - 1)
	return nil
}

// WriteJSON writes v as two-space indented JSON with a trailing newline,
// leaving HTML characters unescaped.
func WriteJSON(w io.Writer, v *Value) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return eris.Wrap(err, "metadata: write json")
	}
	return nil
}

// FromAny converts a plain Go value tree, as produced by encoding/json or
// mxj, into a Value. Map keys are sorted so the result is deterministic even
// though Go maps are unordered.
func FromAny(v any) *Value {
	switch n := v.(type) {
	case *Value:
		return n
	case map[string]any:
		keys := make([]string, 0, len(n))
		for k := range n {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m := NewMapping()
		for _, k := range keys {
			m.Set(k, FromAny(n[k]))
		}
		return m
	case []any:
		s := NewSequence()
		for _, e := range n {
			s.Append(FromAny(e))
		}
		return s
	default:
		return Scalar(v)
	}
}

// CoerceTree returns a copy of v with CoerceScalar applied to every string
// leaf. Keys and structure are untouched.
func CoerceTree(v *Value) *Value {
	switch v.kind {
	case KindScalar:
		if s, ok := v.scalar.(string); ok {
			return Scalar(CoerceScalar(s))
		}
		return Scalar(v.scalar)
	case KindSequence:
		out := NewSequence()
		for _, child := range v.seq {
			out.Append(CoerceTree(child))
		}
		return out
	default:
		out := NewMapping()
		for _, key := range v.keys {
			out.Set(key, CoerceTree(v.entries[key]))
		}
		return out
	}
}
