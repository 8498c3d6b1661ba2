// ABOUTME: Small traversal helpers over golang.org/x/net/html trees
// ABOUTME: Attribute lookup, text content, and predicate-based search
package scrape

import (
	"strings"

	"golang.org/x/net/html"
)

type matcher func(*html.Node) bool

func attr(n *html.Node, key string) string {
	if n == nil {
		return ""
	}
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

// textContent concatenates every descendant text node, normalized.
func textContent(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			b.WriteString(node.Data)
			b.WriteByte(' ')
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return NormalizeText(b.String())
}

// findAll returns descendants of n (excluding n) matching m in document order.
func findAll(n *html.Node, m matcher) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && m(c) {
				out = append(out, c)
			}
			walk(c)
		}
	}
	if n != nil {
		walk(n)
	}
	return out
}

// first returns the first descendant matching m, or nil.
func first(n *html.Node, m matcher) *html.Node {
	if n == nil {
		return nil
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && m(c) {
			return c
		}
		if found := first(c, m); found != nil {
			return found
		}
	}
	return nil
}

// firstOf tries each matcher in turn.
func firstOf(n *html.Node, ms ...matcher) *html.Node {
	for _, m := range ms {
		if found := first(n, m); found != nil {
			return found
		}
	}
	return nil
}

func tag(name string) matcher {
	return func(n *html.Node) bool { return n.Data == name }
}

func attrEq(key, val string) matcher {
	return func(n *html.Node) bool { return attr(n, key) == val }
}

func attrContains(key, sub string) matcher {
	return func(n *html.Node) bool { return strings.Contains(attr(n, key), sub) }
}

func hasClass(class string) matcher {
	return func(n *html.Node) bool {
		for _, c := range strings.Fields(attr(n, "class")) {
			if c == class {
				return true
			}
		}
		return false
	}
}

func and(ms ...matcher) matcher {
	return func(n *html.Node) bool {
		for _, m := range ms {
			if !m(n) {
				return false
			}
		}
		return true
	}
}

func or(ms ...matcher) matcher {
	return func(n *html.Node) bool {
		for _, m := range ms {
			if m(n) {
				return true
			}
		}
		return false
	}
}

// bodyRows returns the tr elements inside a table's tbody sections.
func bodyRows(table *html.Node) []*html.Node {
	var rows []*html.Node
	for _, tbody := range findAll(table, tag("tbody")) {
		rows = append(rows, findAll(tbody, tag("tr"))...)
	}
	return rows
}

// cellByLabel returns the normalized text of the first cell labelled label.
func cellByLabel(row *html.Node, labels ...string) string {
	for _, label := range labels {
		cell := firstOf(row,
			and(tag("td"), attrEq("data-label", label)),
			attrEq("data-label", label),
		)
		if text := textContent(cell); text != "" {
			return text
		}
	}
	return ""
}

// idFromElement reads a record id from the usual data attributes, falling
// back to a link to the object's record page.
func idFromElement(n *html.Node, object string, attrs ...string) string {
	for _, key := range attrs {
		if v := strings.TrimSpace(attr(n, key)); v != "" {
			return v
		}
	}
	link := first(n, and(tag("a"), attrContains("href", "/lightning/r/"+object+"/")))
	if link != nil {
		return IDFromURL(attr(link, "href"), object)
	}
	return ""
}
