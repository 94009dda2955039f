package scraper

import (
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

var (
	rowSelector       = cascadia.MustCompile("tr[data-entity-id]")
	titleSelector     = cascadia.MustCompile("td.custom__table-heading__title a")
	remoteSelector    = cascadia.MustCompile("td:nth-of-type(2) .-yes")
	adaptiveSelector  = cascadia.MustCompile("td:nth-of-type(3) .-yes")
	testTypeSelector  = cascadia.MustCompile("td:nth-of-type(4) .product-catalogue__key")
	calendarRowSelect = cascadia.MustCompile("div.product-catalogue-training-calendar__row")
	headingSelector   = cascadia.MustCompile("h4")
	paragraphSelector = cascadia.MustCompile("p")
)

// text returns the concatenated text content of n, whitespace collapsed.
func text(n *html.Node) string {
	if n == nil {
		return ""
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)

	return strings.Join(strings.Fields(b.String()), " ")
}

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
