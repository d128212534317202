package extract

import (
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/IshaanNene/wbscrape/internal/types"
)

// Locator is a structural query for one value: an XPath expression and the
// attribute to read. An empty Attr reads the element's text.
type Locator struct {
	XPath string
	Attr  string
}

// Locators is an ordered fallback list; the first locator yielding a
// non-empty value wins.
type Locators []Locator

// X builds text locators from XPath expressions.
func X(exprs ...string) Locators {
	locs := make(Locators, len(exprs))
	for i, e := range exprs {
		locs[i] = Locator{XPath: e}
	}
	return locs
}

// Attr returns a copy of locs reading attr instead of text.
func (locs Locators) Attr(attr string) Locators {
	out := make(Locators, len(locs))
	for i, l := range locs {
		out[i] = Locator{XPath: l.XPath, Attr: attr}
	}
	return out
}

// Value applies the fallback list to node.
func (locs Locators) Value(node *html.Node) (string, error) {
	if node == nil {
		return "", types.ErrElementNotFound
	}
	var lastErr error = types.ErrElementNotFound
	for _, l := range locs {
		v, err := l.value(node)
		if err != nil {
			lastErr = err
			continue
		}
		if v != "" {
			return v, nil
		}
	}
	return "", lastErr
}

// Nodes returns the nodes matched by the first locator that matches anything.
func (locs Locators) Nodes(node *html.Node) []*html.Node {
	if node == nil {
		return nil
	}
	for _, l := range locs {
		nodes, err := htmlquery.QueryAll(node, l.XPath)
		if err == nil && len(nodes) > 0 {
			return nodes
		}
	}
	return nil
}

// Match returns the first locator whose XPath matches an element under node.
func (locs Locators) Match(node *html.Node) (Locator, bool) {
	if node == nil {
		return Locator{}, false
	}
	for _, l := range locs {
		n, err := htmlquery.Query(node, l.XPath)
		if err == nil && n != nil {
			return l, true
		}
	}
	return Locator{}, false
}

func (l Locator) value(node *html.Node) (string, error) {
	n, err := htmlquery.Query(node, l.XPath)
	if err != nil {
		return "", &types.ParseError{Selector: l.XPath, Err: err}
	}
	if n == nil {
		return "", types.ErrElementNotFound
	}
	return nodeValue(n, l.Attr), nil
}

func nodeValue(n *html.Node, attr string) string {
	if attr == "" {
		return strings.TrimSpace(htmlquery.InnerText(n))
	}
	return strings.TrimSpace(htmlquery.SelectAttr(n, attr))
}

// optional runs one field lookup and converts failure into a nil value,
// recording the failure in errs.
func optional(field string, locs Locators, node *html.Node, errs *[]error) *string {
	v, err := locs.Value(node)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", field, err))
		return nil
	}
	return &v
}
