package flow

import (
	"errors"
	"strconv"
	"strings"
)

// Path is an ordered sequence of keys used to descend into an associative
// context value. Element 0 is resolved against the starting value, each
// following element against the result of the previous step.
type Path []string

// ParsePath splits a dot-separated key sequence into a Path.
// An empty string parses to a nil Path (no descent).
func ParsePath(s string) Path {
	if s == "" {
		return nil
	}
	return Path(strings.Split(s, "."))
}

// String joins the path back into its dot-separated form.
func (p Path) String() string {
	return strings.Join(p, ".")
}

// Keyed is implemented by context values that expose key-based access but are
// not plain maps. The resolver consults it after the built-in map and slice
// cases.
type Keyed interface {
	// Key returns the value stored under name and whether it is present.
	Key(name string) (any, bool)
}

// Sentinel errors surfaced by the resolver. They appear as envelope causes,
// so callers can classify failures with errors.Is.
var (
	ErrPathMissing   = errors.New("path not found")
	ErrNotAssignable = errors.New("target not assignable")
)

// resolveKey resolves a single key against v. Supported shapes are
// map[string]any, []any (numeric keys), and any Keyed implementation.
func resolveKey(v any, key string) (any, bool) {
	switch t := v.(type) {
	case map[string]any:
		out, ok := t[key]
		return out, ok
	case []any:
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= len(t) {
			return nil, false
		}
		return t[i], true
	case Keyed:
		return t.Key(key)
	}
	return nil, false
}

// resolve walks p from v and returns the final value.
// The second result is false as soon as any segment fails to resolve.
func resolve(v any, p Path) (any, bool) {
	cur := v
	for _, key := range p {
		next, ok := resolveKey(cur, key)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// resolveOrCreate walks p from v, creating an empty map[string]any at every
// missing segment. Creation requires the parent to be a map[string]any;
// anything else fails with ErrNotAssignable.
func resolveOrCreate(v any, p Path) (any, error) {
	cur := v
	for _, key := range p {
		next, ok := resolveKey(cur, key)
		if !ok {
			m, isMap := cur.(map[string]any)
			if !isMap {
				return nil, ErrNotAssignable
			}
			child := map[string]any{}
			m[key] = child
			next = child
		}
		cur = next
	}
	return cur, nil
}

// assign sets value at p relative to root, mutating the context in place.
// With create set, missing intermediate segments are created as empty maps;
// without it, a missing intermediate fails with ErrPathMissing. The final
// segment is always a plain map store (or an in-range slice index store).
func assign(root any, p Path, value any, create bool) error {
	if len(p) == 0 {
		return ErrNotAssignable
	}
	parent := root
	for _, key := range p[:len(p)-1] {
		next, ok := resolveKey(parent, key)
		if !ok {
			if !create {
				return ErrPathMissing
			}
			m, isMap := parent.(map[string]any)
			if !isMap {
				return ErrNotAssignable
			}
			child := map[string]any{}
			m[key] = child
			next = child
		}
		parent = next
	}
	last := p[len(p)-1]
	switch t := parent.(type) {
	case map[string]any:
		t[last] = value
		return nil
	case []any:
		i, err := strconv.Atoi(last)
		if err != nil || i < 0 || i >= len(t) {
			return ErrPathMissing
		}
		t[i] = value
		return nil
	}
	return ErrNotAssignable
}
