package flow

import (
	"golang.org/x/net/html"
)

// HTMLNode adapts a golang.org/x/net/html parse tree node to the Node
// capability, so structural chains can navigate and mutate HTML documents.
type HTMLNode struct {
	n *html.Node
}

// WrapHTML wraps a parsed HTML node for structural navigation.
func WrapHTML(n *html.Node) *HTMLNode {
	return &HTMLNode{n: n}
}

// Unwrap returns the underlying html.Node.
func (h *HTMLNode) Unwrap() *html.Node {
	return h.n
}

// Query evaluates a restricted CSS selector subset against the node's
// descendants and returns the first match in document order. Supported
// syntax: tag, #id, .class, [attr], [attr=value], combined freely within a
// simple selector, joined by descendant (space) and child (>) combinators.
func (h *HTMLNode) Query(selector string) (Node, bool) {
	sel, err := parseSelector(selector)
	if err != nil {
		return nil, false
	}
	found := sel.first(h.n)
	if found == nil {
		return nil, false
	}
	return &HTMLNode{n: found}, true
}

// Attr returns the named attribute's value.
func (h *HTMLNode) Attr(name string) (string, bool) {
	for _, a := range h.n.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets the named attribute, replacing an existing value in place.
func (h *HTMLNode) SetAttr(name, value string) {
	for i, a := range h.n.Attr {
		if a.Key == name {
			h.n.Attr[i].Val = value
			return
		}
	}
	h.n.Attr = append(h.n.Attr, html.Attribute{Key: name, Val: value})
}
