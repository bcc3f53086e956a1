package flow

import (
	"context"
	"fmt"
)

// Node is the capability a context value must expose for structural
// navigation and attribute access. Any tree-shaped value can participate by
// implementing it; HTMLNode adapts golang.org/x/net/html parse trees.
type Node interface {
	// Query resolves a structural selector against the node and returns the
	// first matching descendant, or false when nothing matches.
	Query(selector string) (Node, bool)
	// Attr returns the named attribute's value and whether it is present.
	Attr(name string) (string, bool)
	// SetAttr sets the named attribute, replacing any existing value.
	SetAttr(name, value string)
}

func currentNode(st *state) (Node, bool) {
	n, ok := st.stack.current().(Node)
	return n, ok
}

// WithQuery navigates by structural selector instead of key path: the
// selector is evaluated against the current location, which must implement
// Node, and the first match is pushed. Failure envelopes carry the selector
// with the query flag set, distinguishing them from plain path failures.
func (h *Handler) WithQuery(selector string, opts ...Option) *Handler {
	cfg := applyOptions(opts)
	return h.chain(func(_ context.Context, st *state) error {
		node, ok := currentNode(st)
		if !ok {
			return st.fail(cfg, NewEnvelope("not a node").WithSelector(selector), nil)
		}
		found, ok := node.Query(selector)
		if !ok {
			return st.fail(cfg, NewEnvelope("element not found").WithSelector(selector), nil)
		}
		st.stack.push(found)
		return nil
	})
}

// CheckAttr validates the named attribute of the current node with pred
// (Truthy when nil). A missing attribute fails before the predicate runs.
func (h *Handler) CheckAttr(name string, pred Predicate, opts ...Option) *Handler {
	cfg := applyOptions(opts)
	if pred == nil {
		pred = Truthy
	}
	return h.chain(func(ctx context.Context, st *state) error {
		node, ok := currentNode(st)
		if !ok {
			return st.fail(cfg, NewEnvelope("not a node").WithPath(Path{name}), nil)
		}
		v, ok := node.Attr(name)
		if !ok {
			return st.fail(cfg, NewEnvelope("attribute not found").WithPath(Path{name}), nil)
		}
		valid, err := pred(ctx, v)
		if err != nil {
			return st.fail(cfg, NewEnvelope("attribute invalid").WithPath(Path{name}), err)
		}
		if !valid {
			return st.fail(cfg, NewEnvelope("attribute invalid").WithPath(Path{name}), nil)
		}
		return nil
	})
}

// SetAttr sets the named attribute on the current node.
func (h *Handler) SetAttr(name, value string, opts ...Option) *Handler {
	return h.SetAttrFunc(name, func(context.Context, any) (any, error) {
		return value, nil
	}, opts...)
}

// SetAttrFunc invokes produce with the current node and stores the result as
// the named attribute. A nil result fails with an "undefined result"
// envelope; non-string results are formatted with fmt.
func (h *Handler) SetAttrFunc(name string, produce Producer, opts ...Option) *Handler {
	cfg := applyOptions(opts)
	return h.chain(func(ctx context.Context, st *state) error {
		node, ok := currentNode(st)
		if !ok {
			return st.fail(cfg, NewEnvelope("not a node").WithPath(Path{name}), nil)
		}
		v, err := produce(ctx, st.stack.current())
		if err != nil {
			return st.fail(cfg, NewEnvelope("attribute invalid").WithPath(Path{name}), err)
		}
		if v == nil {
			return st.fail(cfg, NewEnvelope("undefined result").WithPath(Path{name}), nil)
		}
		s, ok := v.(string)
		if !ok {
			s = fmt.Sprint(v)
		}
		node.SetAttr(name, s)
		return nil
	})
}
