package flow

import (
	"errors"
	"strings"

	"golang.org/x/net/html"
)

// The selector engine implements a restricted CSS subset over html.Node
// trees: tag, #id, .class and [attr]/[attr=value] tests on a simple
// selector, with descendant (space) and child (>) combinators between them.

var errBadSelector = errors.New("malformed selector")

type attrTest struct {
	name     string
	value    string
	hasValue bool
}

type simpleSelector struct {
	tag     string
	id      string
	classes []string
	attrs   []attrTest
}

type selectorPart struct {
	sel simpleSelector
	// child marks a '>' combinator between this part and the previous one;
	// false means descendant.
	child bool
}

type compoundSelector struct {
	parts []selectorPart
}

func parseSelector(s string) (compoundSelector, error) {
	// Normalize so "a>b" and "a > b" tokenize identically.
	s = strings.ReplaceAll(s, ">", " > ")
	tokens := strings.Fields(s)
	if len(tokens) == 0 {
		return compoundSelector{}, errBadSelector
	}
	var out compoundSelector
	child := false
	for _, tok := range tokens {
		if tok == ">" {
			if child || len(out.parts) == 0 {
				return compoundSelector{}, errBadSelector
			}
			child = true
			continue
		}
		sel, err := parseSimple(tok)
		if err != nil {
			return compoundSelector{}, err
		}
		out.parts = append(out.parts, selectorPart{sel: sel, child: child})
		child = false
	}
	if child {
		return compoundSelector{}, errBadSelector
	}
	return out, nil
}

func parseSimple(s string) (simpleSelector, error) {
	var sel simpleSelector
	i := 0
	for i < len(s) {
		switch s[i] {
		case '#':
			j := simpleEnd(s, i+1)
			if j == i+1 {
				return sel, errBadSelector
			}
			sel.id = s[i+1 : j]
			i = j
		case '.':
			j := simpleEnd(s, i+1)
			if j == i+1 {
				return sel, errBadSelector
			}
			sel.classes = append(sel.classes, s[i+1:j])
			i = j
		case '[':
			j := strings.IndexByte(s[i:], ']')
			if j < 0 {
				return sel, errBadSelector
			}
			inner := s[i+1 : i+j]
			if inner == "" {
				return sel, errBadSelector
			}
			if eq := strings.IndexByte(inner, '='); eq >= 0 {
				val := strings.Trim(inner[eq+1:], `"'`)
				sel.attrs = append(sel.attrs, attrTest{name: inner[:eq], value: val, hasValue: true})
			} else {
				sel.attrs = append(sel.attrs, attrTest{name: inner})
			}
			i += j + 1
		default:
			j := simpleEnd(s, i)
			if j == i {
				return sel, errBadSelector
			}
			if sel.tag != "" {
				return sel, errBadSelector
			}
			sel.tag = s[i:j]
			i = j
		}
	}
	return sel, nil
}

// simpleEnd returns the index after the identifier starting at i.
func simpleEnd(s string, i int) int {
	for i < len(s) && s[i] != '#' && s[i] != '.' && s[i] != '[' {
		i++
	}
	return i
}

func matchSimple(n *html.Node, sel simpleSelector) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if sel.tag != "" && sel.tag != "*" && n.Data != sel.tag {
		return false
	}
	if sel.id != "" && nodeAttr(n, "id") != sel.id {
		return false
	}
	for _, class := range sel.classes {
		if !hasClass(n, class) {
			return false
		}
	}
	for _, at := range sel.attrs {
		v, ok := lookupAttr(n, at.name)
		if !ok {
			return false
		}
		if at.hasValue && v != at.value {
			return false
		}
	}
	return true
}

func nodeAttr(n *html.Node, name string) string {
	v, _ := lookupAttr(n, name)
	return v
}

func lookupAttr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(nodeAttr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// matches reports whether n satisfies the full compound selector, walking
// ancestor parts right to left.
func (c compoundSelector) matches(n *html.Node) bool {
	j := len(c.parts) - 1
	if !matchSimple(n, c.parts[j].sel) {
		return false
	}
	cur := n.Parent
	for j > 0 {
		direct := c.parts[j].child
		j--
		want := c.parts[j].sel
		if direct {
			if cur == nil || !matchSimple(cur, want) {
				return false
			}
			cur = cur.Parent
			continue
		}
		for cur != nil && !matchSimple(cur, want) {
			cur = cur.Parent
		}
		if cur == nil {
			return false
		}
		cur = cur.Parent
	}
	return true
}

// first returns the first descendant of scope matching the selector, in
// document order. The scope node itself is not a candidate.
func (c compoundSelector) first(scope *html.Node) *html.Node {
	for child := scope.FirstChild; child != nil; child = child.NextSibling {
		if c.matches(child) {
			return child
		}
		if found := c.first(child); found != nil {
			return found
		}
	}
	return nil
}
