package extractor

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

func attr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// textContent concatenates every text node below n, like DOM textContent.
func textContent(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			b.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// textLines returns the trimmed, non-empty text of every text node below n
// in document order. Separate elements render on separate lines in the
// author block, so each text node is treated as its own line.
func textLines(n *html.Node) []string {
	var lines []string
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			for _, line := range strings.Split(node.Data, "\n") {
				if line = strings.TrimSpace(line); line != "" {
					lines = append(lines, line)
				}
			}
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	if n != nil {
		walk(n)
	}
	return lines
}

// isRendered reports whether n and all of its ancestors are displayed.
// Only markup is available, so hidden attributes and inline styles stand in
// for the computed style.
func isRendered(n *html.Node) bool {
	for node := n; node != nil; node = node.Parent {
		if node.Type != html.ElementNode {
			continue
		}
		if _, ok := attr(node, "hidden"); ok {
			return false
		}
		if v, _ := attr(node, "aria-hidden"); strings.EqualFold(v, "true") {
			return false
		}
		if style, ok := attr(node, "style"); ok && styleHides(style) {
			return false
		}
	}
	return true
}

func styleHides(style string) bool {
	for _, decl := range strings.Split(style, ";") {
		key, value, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.ToLower(strings.TrimSpace(value))
		value = strings.TrimSpace(strings.TrimSuffix(value, "!important"))

		switch key {
		case "display":
			if value == "none" {
				return true
			}
		case "visibility":
			if value == "hidden" || value == "collapse" {
				return true
			}
		case "opacity":
			if f, err := strconv.ParseFloat(strings.TrimSuffix(value, "%"), 64); err == nil && f == 0 {
				return true
			}
		}
	}
	return false
}

// hasTextLabel reports whether any text node below n equals label, ignoring case.
func hasTextLabel(n *html.Node, label string) bool {
	for _, line := range textLines(n) {
		if strings.EqualFold(line, label) {
			return true
		}
	}
	return false
}
