// internal/rules/loops.go
package rules

import (
	"fmt"
	"sort"

	"github.com/solatis/oasconform/internal/types"
)

/*
 * Loop discovery and context expansion.
 *
 * A Loop is derived from the first "[]" marker found under a given prefix.
 * Every condition whose path shares that prefix reuses the same slot, so
 * "c[].d" and "c[].e" iterate c once. Nested markers ("a[][]",
 * "orders[].items[].price") produce one loop per level; the inner loop's
 * path contains the outer loop's bound segment.
 *
 * After discovery, loops are sorted by rendered path and renumbered so that
 * slot i is the i-th loop in sorted order. The sorted list must form a
 * chain where each path extends the previous one segment-wise; rules
 * mixing unrelated array roots are rejected with ErrInvalidRule.
 *
 * Expansion is depth-first: the outer loop's length is read first, and for
 * each index the next loop's path is bound and measured. A rule over c with
 * N elements yields N contexts; nested loops yield the sum of inner lengths
 * across outer indices.
 */

// DefaultMaxContexts bounds context expansion for a single rule.
const DefaultMaxContexts = 100000

// Loop is a repetition descriptor derived from condition paths.
type Loop struct {
	ObjectName string // last key before the marker
	Path       Path   // complete object path, with outer loops bound
	Slot       int    // position in the context tuple
}

// Context holds one concrete index per loop, in loop order.
type Context []int

// discoverLoops replaces markers in paths with loop-bound segments and
// returns the loops in chain order. paths is modified in place.
func discoverLoops(paths []Path) ([]Loop, error) {
	var loops []Loop
	byPrefix := make(map[string]int)

	for ci := range paths {
		for {
			pos := paths[ci].firstMarker()
			if pos < 0 {
				break
			}
			prefix := paths[ci][:pos]
			key := prefix.String()
			slot, ok := byPrefix[key]
			if !ok {
				slot = len(loops)
				byPrefix[key] = slot
				loops = append(loops, Loop{
					ObjectName: objectName(prefix),
					Path:       append(Path(nil), prefix...),
					Slot:       slot,
				})
			}
			paths[ci][pos] = types.PathSegment{Bound: true, Index: slot}
		}
	}

	if len(loops) == 0 {
		return nil, nil
	}

	sort.SliceStable(loops, func(i, j int) bool {
		return loops[i].Path.String() < loops[j].Path.String()
	})

	renumber := make(map[int]int, len(loops))
	for i, l := range loops {
		renumber[l.Slot] = i
	}
	for i := range loops {
		loops[i].Slot = i
		rebind(loops[i].Path, renumber)
	}
	for ci := range paths {
		rebind(paths[ci], renumber)
	}

	for i := 1; i < len(loops); i++ {
		if !loops[i].Path.HasPrefix(loops[i-1].Path) {
			return nil, fmt.Errorf("%w: %q and %q reference different array structures",
				types.ErrInvalidRule, loops[i-1].Path, loops[i].Path)
		}
	}
	return loops, nil
}

func rebind(p Path, renumber map[int]int) {
	for i := range p {
		if p[i].Bound {
			p[i].Index = renumber[p[i].Index]
		}
	}
}

func objectName(prefix Path) string {
	for i := len(prefix) - 1; i >= 0; i-- {
		if !prefix[i].Bound && !prefix[i].Each {
			return prefix[i].Key
		}
	}
	return ""
}

// expandContexts enumerates every combination of indices over the loops.
// Returns ErrTooManyContexts once more than max contexts would be produced.
func expandContexts(doc any, loops []Loop, max int) ([]Context, error) {
	var out []Context
	cur := make(Context, len(loops))

	var walk func(depth int) error
	walk = func(depth int) error {
		if depth == len(loops) {
			if len(out) >= max {
				return fmt.Errorf("%w: limit %d", types.ErrTooManyContexts, max)
			}
			out = append(out, append(Context(nil), cur...))
			return nil
		}
		v, found := Resolve(loops[depth].Path.Bind(cur[:depth]), doc)
		arr, ok := v.([]any)
		if !found || !ok {
			return nil
		}
		for i := range arr {
			cur[depth] = i
			if err := walk(depth + 1); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(0); err != nil {
		return nil, err
	}
	return out, nil
}
