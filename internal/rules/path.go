// internal/rules/path.go
package rules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/solatis/oasconform/internal/types"
)

/*
 * Document path compilation and resolution.
 *
 * Condition paths use dot notation ("order.items.0.price") with "[]"
 * repetition markers ("order.items[].price"). ParsePath compiles them into a
 * segment list; loop discovery later replaces each marker with a loop-bound
 * segment carrying a slot number, and Bind assigns concrete indices from a
 * context. No string splicing happens after parsing.
 *
 * Numeric segments address array positions, and object keys spelled as
 * digits, so "a.0" works on both [x] and {"0": x}.
 *
 * Resolution walks values produced by encoding/json or yaml.v3 decoding
 * (map[string]any, []any, scalars). A missing key, an out-of-range index or
 * a scalar in the middle of the path yields found=false, never an error.
 */

// MaxPathDepth bounds the number of segments in a condition path.
const MaxPathDepth = 32

// Path is a compiled document path.
type Path []types.PathSegment

// ParsePath compiles a dotted path with optional "[]" markers.
func ParsePath(s string) (Path, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("%w: empty path", types.ErrRuleEvaluation)
	}

	var path Path
	for _, part := range strings.Split(s, ".") {
		markers := 0
		for strings.HasSuffix(part, "[]") {
			part = strings.TrimSuffix(part, "[]")
			markers++
		}
		if strings.ContainsAny(part, "[]") {
			return nil, fmt.Errorf("%w: malformed segment %q in path %q", types.ErrRuleEvaluation, part, s)
		}
		if part == "" && markers == 0 {
			return nil, fmt.Errorf("%w: empty segment in path %q", types.ErrRuleEvaluation, s)
		}
		if part != "" {
			seg := types.PathSegment{Key: part}
			if n, err := strconv.Atoi(part); err == nil && n >= 0 {
				seg.Index = n
				seg.IsIndex = true
			}
			path = append(path, seg)
		}
		for i := 0; i < markers; i++ {
			path = append(path, types.PathSegment{Each: true})
		}
	}

	if len(path) > MaxPathDepth {
		return nil, fmt.Errorf("%w: path %q exceeds %d segments", types.ErrRuleEvaluation, s, MaxPathDepth)
	}
	return path, nil
}

// String renders the path. Markers render as "[]", loop-bound segments as "@slot".
func (p Path) String() string {
	var b strings.Builder
	for i, seg := range p {
		if seg.Each {
			b.WriteString("[]")
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		switch {
		case seg.Bound:
			b.WriteByte('@')
			b.WriteString(strconv.Itoa(seg.Index))
		case seg.IsIndex && seg.Key == "":
			b.WriteString(strconv.Itoa(seg.Index))
		default:
			b.WriteString(seg.Key)
		}
	}
	return b.String()
}

// HasPrefix reports whether prefix is a segment-wise prefix of p.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i := range prefix {
		if p[i] != prefix[i] {
			return false
		}
	}
	return true
}

// firstMarker returns the position of the first repetition marker, or -1.
func (p Path) firstMarker() int {
	for i, seg := range p {
		if seg.Each {
			return i
		}
	}
	return -1
}

// Bind replaces loop-bound segments with the indices in ctx.
// Slots outside ctx are left bound.
func (p Path) Bind(ctx Context) Path {
	out := make(Path, len(p))
	for i, seg := range p {
		if seg.Bound && seg.Index < len(ctx) {
			idx := ctx[seg.Index]
			out[i] = types.PathSegment{Key: strconv.Itoa(idx), Index: idx, IsIndex: true}
			continue
		}
		out[i] = seg
	}
	return out
}

// Resolve walks data along a bound path.
// Returns found=false when any step is missing. Unbound markers never resolve.
func Resolve(path Path, data any) (any, bool) {
	current := data
	for _, seg := range path {
		if seg.Each || seg.Bound {
			return nil, false
		}
		switch v := current.(type) {
		case map[string]any:
			val, ok := v[seg.Key]
			if !ok {
				return nil, false
			}
			current = val
		case []any:
			if !seg.IsIndex || seg.Index >= len(v) {
				return nil, false
			}
			current = v[seg.Index]
		default:
			// scalar or null with path remaining
			return nil, false
		}
	}
	return current, true
}
