package flow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"golang.org/x/net/html"
)

func parseDoc(t *testing.T, src string) *HTMLNode {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Failed to parse document: %v", err)
	}
	return WrapHTML(doc)
}

func TestWithQuery_SetAttr(t *testing.T) {
	doc := parseDoc(t, `<div id="container"><span class="item"></span><span class="other"></span></div>`)

	h := NewStructural("").
		WithQuery("#container > .item").
		SetAttr("data-id", "123")

	if err := h.Run(context.Background(), doc); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	item, ok := doc.Query(".item")
	if !ok {
		t.Fatal("Expected .item to exist")
	}
	if v, _ := item.Attr("data-id"); v != "123" {
		t.Errorf("Expected data-id 123, got %q", v)
	}

	// No other node was mutated
	other, _ := doc.Query(".other")
	if _, ok := other.Attr("data-id"); ok {
		t.Error("Sibling node should not have been mutated")
	}
}

func TestWithQuery_NoMatch(t *testing.T) {
	doc := parseDoc(t, `<div id="container"></div>`)

	err := NewStructural("dom-fail").
		WithQuery(".missing").
		Run(context.Background(), doc)

	var env *Envelope
	if !errors.As(err, &env) {
		t.Fatalf("Expected envelope, got %v", err)
	}
	if env.Message != "dom-fail:element not found" {
		t.Errorf("Expected 'dom-fail:element not found', got %q", env.Message)
	}
	if !env.Query || env.Path.String() != ".missing" {
		t.Error("Expected selector carried with the query flag set")
	}
}

func TestWithQuery_NotANode(t *testing.T) {
	err := NewStructural("dom-fail").
		WithQuery(".item").
		Run(context.Background(), map[string]any{})

	var env *Envelope
	if !errors.As(err, &env) {
		t.Fatalf("Expected envelope, got %v", err)
	}
	if env.Message != "dom-fail:not a node" {
		t.Errorf("Expected capability failure, got %q", env.Message)
	}
	if !env.Query {
		t.Error("Expected query flag on structural capability failure")
	}
}

func TestCheckAttr(t *testing.T) {
	doc := parseDoc(t, `<a id="link" href="/home">home</a>`)

	h := NewStructural("").
		WithQuery("#link").
		CheckAttr("href", nil)
	if err := h.Run(context.Background(), doc); err != nil {
		t.Errorf("Truthy attribute check failed: %v", err)
	}

	err := NewStructural("dom-fail").
		WithQuery("#link").
		CheckAttr("title", nil).
		Run(context.Background(), doc)
	var env *Envelope
	if !errors.As(err, &env) {
		t.Fatalf("Expected envelope, got %v", err)
	}
	if env.Message != "dom-fail:attribute not found" {
		t.Errorf("Expected missing-attribute failure, got %q", env.Message)
	}

	err = NewStructural("dom-fail").
		WithQuery("#link").
		CheckAttr("href", func(_ context.Context, v any) (bool, error) {
			return v == "/away", nil
		}).
		Run(context.Background(), doc)
	if !errors.As(err, &env) {
		t.Fatalf("Expected envelope, got %v", err)
	}
	if env.Message != "dom-fail:attribute invalid" {
		t.Errorf("Expected invalid-attribute failure, got %q", env.Message)
	}
}

func TestSetAttrFunc(t *testing.T) {
	doc := parseDoc(t, `<div id="box" data-count="1"></div>`)

	h := NewStructural("").
		WithQuery("#box").
		SetAttrFunc("data-count", func(_ context.Context, v any) (any, error) {
			node := v.(Node)
			cur, _ := node.Attr("data-count")
			return cur + "1", nil
		})
	if err := h.Run(context.Background(), doc); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	box, _ := doc.Query("#box")
	if v, _ := box.Attr("data-count"); v != "11" {
		t.Errorf("Expected data-count 11, got %q", v)
	}

	// A nil producer result is never assigned
	err := NewStructural("dom-fail").
		WithQuery("#box").
		SetAttrFunc("data-count", func(context.Context, any) (any, error) {
			return nil, nil
		}).
		Run(context.Background(), doc)
	var env *Envelope
	if !errors.As(err, &env) {
		t.Fatalf("Expected envelope, got %v", err)
	}
	if env.Message != "dom-fail:undefined result" {
		t.Errorf("Expected 'dom-fail:undefined result', got %q", env.Message)
	}
	if v, _ := box.Attr("data-count"); v != "11" {
		t.Error("Failed set must not mutate the attribute")
	}
}

func TestHTMLNode_QuerySelectors(t *testing.T) {
	doc := parseDoc(t, `
		<div id="root" class="outer">
			<ul class="list">
				<li class="entry first" data-key="a">A</li>
				<li class="entry" data-key="b">B</li>
			</ul>
			<p data-note>note</p>
		</div>`)

	tests := []struct {
		selector string
		wantKey  string
		wantTag  string
	}{
		{"li", "a", "li"},
		{".entry", "a", "li"},
		{"li.entry[data-key=b]", "b", "li"},
		{"#root .list > li", "a", "li"},
		{"[data-key=\"b\"]", "b", "li"},
		{"div p", "", "p"},
		{"[data-note]", "", "p"},
	}

	for _, tt := range tests {
		found, ok := doc.Query(tt.selector)
		if !ok {
			t.Errorf("Selector %q found nothing", tt.selector)
			continue
		}
		node := found.(*HTMLNode).Unwrap()
		if node.Data != tt.wantTag {
			t.Errorf("Selector %q matched <%s>, want <%s>", tt.selector, node.Data, tt.wantTag)
		}
		if tt.wantKey != "" {
			if got, _ := found.Attr("data-key"); got != tt.wantKey {
				t.Errorf("Selector %q matched data-key %q, want %q", tt.selector, got, tt.wantKey)
			}
		}
	}
}

func TestHTMLNode_QueryMisses(t *testing.T) {
	doc := parseDoc(t, `<div><span class="a"></span></div>`)

	misses := []string{
		".b",            // absent class
		"div > div",     // wrong child relationship
		"ul span",       // absent ancestor
		"span[id=none]", // absent attribute value
		"",              // malformed
		"> span",        // malformed
	}
	for _, sel := range misses {
		if _, ok := doc.Query(sel); ok {
			t.Errorf("Selector %q should not match", sel)
		}
	}
}

func TestHTMLNode_SetAttrReplacesExisting(t *testing.T) {
	doc := parseDoc(t, `<div id="x" lang="en"></div>`)
	node, _ := doc.Query("#x")

	node.SetAttr("lang", "fr")
	if v, _ := node.Attr("lang"); v != "fr" {
		t.Errorf("Expected lang fr, got %q", v)
	}

	node.SetAttr("dir", "ltr")
	if v, _ := node.Attr("dir"); v != "ltr" {
		t.Errorf("Expected dir ltr, got %q", v)
	}

	raw := node.(*HTMLNode).Unwrap()
	count := 0
	for _, a := range raw.Attr {
		if a.Key == "lang" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("Expected a single lang attribute, got %d", count)
	}
}
