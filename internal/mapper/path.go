package mapper

import (
	"regexp"
	"strconv"
	"strings"
)

// tokenRe splits "a.b[0].c" into a, b, [0], c. Characters outside the
// grammar fall between matches and are dropped.
var tokenRe = regexp.MustCompile(`[^.\[\]]+|\[\d+\]`)

// Resolve walks root along a dot/bracket path. The second result is false
// when the path does not resolve: empty path, nil intermediate, missing key,
// out-of-range index or an index applied to a non-array.
func Resolve(root any, path string) (any, bool) {
	if root == nil || strings.TrimSpace(path) == "" {
		return nil, false
	}
	tokens := tokenRe.FindAllString(path, -1)
	if len(tokens) == 0 {
		return nil, false
	}

	cur := root
	for _, tok := range tokens {
		if cur == nil {
			return nil, false
		}
		if strings.HasPrefix(tok, "[") {
			arr, ok := cur.([]any)
			if !ok {
				return nil, false
			}
			idx, err := strconv.Atoi(tok[1 : len(tok)-1])
			if err != nil || idx < 0 || idx >= len(arr) {
				return nil, false
			}
			cur = arr[idx]
			continue
		}

		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[tok]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			// "items.0" addresses an element the same way "items[0]" does.
			idx, err := strconv.Atoi(tok)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}
