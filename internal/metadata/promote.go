package metadata

import "strconv"

// Mode selects how a promotion rule combines its matches.
type Mode string

const (
	// ModeFirst promotes the first match of the first pattern that matches.
	ModeFirst Mode = "first"
	// ModeCollect promotes every match as a sequence, in pattern order then
	// traversal order.
	ModeCollect Mode = "collect"
	// ModeCount promotes the number of matches.
	ModeCount Mode = "count"
)

// Rule maps one promoted field to the key-path patterns that can supply it.
// Patterns use Flatten syntax plus two wildcards: "*" matches any mapping
// key and "[*]" matches every sequence element. A quoted "*" stays literal.
//
// XML parsing collapses single-element collections into plain mappings, so
// "[*]" and "[0]" also match a non-sequence node itself.
type Rule struct {
	Field string   `yaml:"field" mapstructure:"field"`
	Paths []string `yaml:"paths" mapstructure:"paths"`
	Mode  Mode     `yaml:"mode" mapstructure:"mode"`
}

// Promoted is the outcome of applying promotion rules: the promoted fields
// in rule order, plus the concrete key path(s) each field was read from.
type Promoted struct {
	Fields  *Value
	Sources map[string][]string
}

type ruleMatch struct {
	path  string
	value *Value
}

// Promote applies rules to a normalized tree. Fields whose patterns match
// nothing are omitted; a missing field is never an error. Rules with an
// unknown mode are skipped.
func Promote(tree *Value, rules []Rule) Promoted {
	out := Promoted{Fields: NewMapping(), Sources: make(map[string][]string)}
	for _, rule := range rules {
		mode := rule.Mode
		if mode == "" {
			mode = ModeFirst
		}
		switch mode {
		case ModeFirst:
			for _, pattern := range rule.Paths {
				matches := matchPattern(tree, pattern)
				if len(matches) == 0 {
					continue
				}
				out.Fields.Set(rule.Field, matches[0].value)
				out.Sources[rule.Field] = []string{matches[0].path}
				break
			}
		case ModeCollect:
			matches := matchAll(tree, rule.Paths)
			if len(matches) == 0 {
				continue
			}
			seq := NewSequence()
			sources := make([]string, 0, len(matches))
			for _, m := range matches {
				seq.Append(m.value)
				sources = append(sources, m.path)
			}
			out.Fields.Set(rule.Field, seq)
			out.Sources[rule.Field] = sources
		case ModeCount:
			matches := matchAll(tree, rule.Paths)
			if len(matches) == 0 {
				continue
			}
			sources := make([]string, 0, len(matches))
			for _, m := range matches {
				sources = append(sources, m.path)
			}
			out.Fields.Set(rule.Field, Scalar(int64(len(matches))))
			out.Sources[rule.Field] = sources
		}
	}
	return out
}

func matchAll(tree *Value, patterns []string) []ruleMatch {
	var all []ruleMatch
	for _, pattern := range patterns {
		all = append(all, matchPattern(tree, pattern)...)
	}
	return all
}

// matchPattern returns every node matching the pattern, each with the
// concrete path it resolved at. A pattern that fails to parse matches
// nothing.
func matchPattern(tree *Value, pattern string) []ruleMatch {
	segs, err := parsePath(pattern, true)
	if err != nil {
		return nil
	}
	var out []ruleMatch
	collectMatches(tree, "", segs, &out)
	return out
}

func collectMatches(v *Value, prefix string, segs []pathSegment, out *[]ruleMatch) {
	if len(segs) == 0 {
		*out = append(*out, ruleMatch{path: prefix, value: v})
		return
	}
	seg, rest := segs[0], segs[1:]
	switch {
	case seg.isIndex && seg.wildcard:
		if v.kind != KindSequence {
			collectMatches(v, prefix, rest, out)
			return
		}
		for i, child := range v.seq {
			collectMatches(child, prefix+"["+strconv.Itoa(i)+"]", rest, out)
		}
	case seg.isIndex:
		if v.kind != KindSequence {
			if seg.index == 0 {
				collectMatches(v, prefix, rest, out)
			}
			return
		}
		if child, ok := v.At(seg.index); ok {
			collectMatches(child, prefix+"["+strconv.Itoa(seg.index)+"]", rest, out)
		}
	case seg.wildcard:
		if v.kind != KindMapping {
			return
		}
		for _, key := range v.keys {
			collectMatches(v.entries[key], joinKey(prefix, key), rest, out)
		}
	default:
		if child, ok := v.Get(seg.key); ok {
			collectMatches(child, joinKey(prefix, seg.key), rest, out)
		}
	}
}
