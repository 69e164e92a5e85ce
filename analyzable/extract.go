package analyzable

import (
	"strings"

	"github.com/trialkit/codify/errors"
)

// Extract resolves a dotted keypath against root and renders the
// result as text.
//
// Traversal keeps a working set of candidates, starting at root. Each
// path segment consults a Resolver's Field first, then falls back to
// map-key lookup. Candidates missing the segment drop out silently and
// list values flatten into the next working set, so one keypath can
// fan out across repeated document sections. After traversal, a map
// leaf stands in for its "textblock" entry, matching the shape registry
// documents give criteria sections.
//
// Every surviving leaf must be a string; anything else is a content
// error. No leaves yield empty text. A single leaf is returned
// verbatim. Several leaves join into one paragraph, each fragment
// trimmed and given a sentence period when it does not already end
// with one.
func Extract(root any, keypath string) (string, error) {
	if root == nil {
		return "", errors.AssertionFailedf("extract needs a root object")
	}
	if keypath == "" {
		return "", errors.AssertionFailedf("extract needs a keypath")
	}

	candidates := []any{root}
	for _, segment := range strings.Split(keypath, ".") {
		var next []any
		for _, cand := range candidates {
			val, ok := fieldOf(cand, segment)
			if !ok {
				continue
			}
			next = appendFlat(next, val)
		}
		candidates = next
	}

	fragments := make([]string, 0, len(candidates))
	for _, leaf := range candidates {
		if m, ok := leaf.(map[string]any); ok {
			leaf = m["textblock"]
		}
		s, ok := leaf.(string)
		if !ok {
			return "", errors.Wrapf(errors.ErrContent, "keypath %q resolved to %T, not text", keypath, leaf)
		}
		fragments = append(fragments, s)
	}

	switch len(fragments) {
	case 0:
		return "", nil
	case 1:
		return fragments[0], nil
	}

	parts := make([]string, 0, len(fragments))
	for _, f := range fragments {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		switch f[len(f)-1] {
		case '.', '!', '?':
		default:
			f += "."
		}
		parts = append(parts, f)
	}
	return strings.Join(parts, " "), nil
}

// fieldOf resolves one path segment on one candidate.
func fieldOf(cand any, name string) (any, bool) {
	if r, ok := cand.(Resolver); ok {
		if v, ok := r.Field(name); ok {
			return v, true
		}
	}
	if m, ok := cand.(map[string]any); ok {
		v, ok := m[name]
		return v, ok
	}
	return nil, false
}

// appendFlat adds val to the working set, splicing list values in as
// individual candidates.
func appendFlat(dst []any, val any) []any {
	switch t := val.(type) {
	case []any:
		return append(dst, t...)
	case []string:
		for _, s := range t {
			dst = append(dst, s)
		}
		return dst
	default:
		return append(dst, val)
	}
}
