package schema

import "strings"

// GetAPIPath returns the spec path key that best matches requestURL, or ""
// when no path is compatible.
//
// Segments are aligned from the end. Literal segments must match exactly;
// templated and empty segments match anything. A path with more segments
// than the URL is never chosen. The path with the most literal matches wins,
// and the earliest path in document order wins ties.
func GetAPIPath(requestURL string, spec *APISpec) string {
	if spec == nil {
		return ""
	}
	return matchPath(requestURL, spec.Paths())
}

func matchPath(requestURL string, candidates []string) string {
	urlPath, _, _ := strings.Cut(requestURL, "?")
	urlSegs := strings.Split(urlPath, "/")

	chosen, chosenCount := "", 0
	for _, candidate := range candidates {
		segs := strings.Split(candidate, "/")
		if len(segs) > len(urlSegs) {
			continue
		}

		ok, count := true, 0
		for j := 1; j <= len(segs); j++ {
			seg := segs[len(segs)-j]
			if seg == "" || strings.Contains(seg, "{") {
				continue
			}
			if seg != urlSegs[len(urlSegs)-j] {
				ok = false
				break
			}
			count++
		}

		if ok && count > chosenCount {
			chosen, chosenCount = candidate, count
		}
	}
	return chosen
}
