package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidPath = errors.New("invalid field path")

// Segment is one step of a Path: either a map key or a list index.
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

// Path addresses a value inside Fields, e.g. "hero.title" or "stats[2].label".
type Path []Segment

// ParsePath parses dotted paths with optional bracketed indices. A purely
// numeric dotted segment ("stats.2.label") is read as an index as well.
func ParsePath(s string) (Path, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidPath)
	}

	var p Path
	for _, part := range strings.Split(s, ".") {
		if part == "" {
			return nil, fmt.Errorf("%w: %q has an empty segment", ErrInvalidPath, s)
		}

		name := part
		var indices []int
		if i := strings.IndexByte(part, '['); i >= 0 {
			name = part[:i]
			rest := part[i:]
			for rest != "" {
				if rest[0] != '[' {
					return nil, fmt.Errorf("%w: %q", ErrInvalidPath, s)
				}
				end := strings.IndexByte(rest, ']')
				if end < 0 {
					return nil, fmt.Errorf("%w: %q has an unclosed bracket", ErrInvalidPath, s)
				}
				n, err := strconv.Atoi(rest[1:end])
				if err != nil || n < 0 {
					return nil, fmt.Errorf("%w: %q has a bad index", ErrInvalidPath, s)
				}
				indices = append(indices, n)
				rest = rest[end+1:]
			}
		}

		switch {
		case name == "" && len(indices) == 0:
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, s)
		case name == "":
			// "[0]" directly after a dot, e.g. "items.[0]"
		case isDigits(name):
			n, _ := strconv.Atoi(name)
			p = append(p, Segment{Index: n, IsIndex: true})
		default:
			p = append(p, Segment{Key: name})
		}
		for _, n := range indices {
			p = append(p, Segment{Index: n, IsIndex: true})
		}
	}

	if p[0].IsIndex {
		return nil, fmt.Errorf("%w: %q must start with a field name", ErrInvalidPath, s)
	}
	return p, nil
}

// MustParsePath is ParsePath for paths known at compile time.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Path) String() string {
	var b strings.Builder
	for i, seg := range p {
		if seg.IsIndex {
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(seg.Index))
			b.WriteByte(']')
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg.Key)
	}
	return b.String()
}

// AltPath returns the alt-text sibling of an image field:
// "hero.image" becomes "hero.imageAlt". Paths ending in an index have none.
func (p Path) AltPath() (Path, bool) {
	if len(p) == 0 || p[len(p)-1].IsIndex {
		return nil, false
	}
	alt := make(Path, len(p))
	copy(alt, p)
	alt[len(alt)-1].Key += "Alt"
	return alt, true
}

// Get looks up the value at p.
func (f Fields) Get(p Path) (any, bool) {
	var node any = map[string]any(f)
	for _, seg := range p {
		if seg.IsIndex {
			list, ok := node.([]any)
			if !ok || seg.Index >= len(list) {
				return nil, false
			}
			node = list[seg.Index]
			continue
		}
		m, ok := asMap(node)
		if !ok {
			return nil, false
		}
		node, ok = m[seg.Key]
		if !ok {
			return nil, false
		}
	}
	return node, true
}

// With returns a copy of f with the value at p replaced. Only the maps and
// lists along p are copied; f itself is never modified. An index equal to
// the list length appends a new item.
func (f Fields) With(p Path, value any) (Fields, error) {
	if len(p) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	out, err := setIn(map[string]any(f), p, value)
	if err != nil {
		return nil, err
	}
	return Fields(out.(map[string]any)), nil
}

func setIn(node any, p Path, value any) (any, error) {
	if len(p) == 0 {
		return value, nil
	}
	seg := p[0]

	if seg.IsIndex {
		var list []any
		if node != nil {
			l, ok := node.([]any)
			if !ok {
				return nil, fmt.Errorf("%w: index %d used on a non-list value", ErrInvalidPath, seg.Index)
			}
			list = l
		}
		if seg.Index > len(list) {
			return nil, fmt.Errorf("%w: index %d out of range (len %d)", ErrInvalidPath, seg.Index, len(list))
		}

		out := make([]any, len(list), len(list)+1)
		copy(out, list)
		var child any
		if seg.Index < len(list) {
			child = list[seg.Index]
		}
		v, err := setIn(child, p[1:], value)
		if err != nil {
			return nil, err
		}
		if seg.Index == len(list) {
			out = append(out, v)
		} else {
			out[seg.Index] = v
		}
		return out, nil
	}

	var m map[string]any
	if node != nil {
		mm, ok := asMap(node)
		if !ok {
			return nil, fmt.Errorf("%w: field %q used on a non-section value", ErrInvalidPath, seg.Key)
		}
		m = mm
	}

	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	v, err := setIn(m[seg.Key], p[1:], value)
	if err != nil {
		return nil, err
	}
	out[seg.Key] = v
	return out, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
