package verses

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/unicode/norm"
)

// blockAtoms are the elements treated as block-level text units.
var blockAtoms = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Li: true, atom.Td: true, atom.Dd: true,
	atom.Blockquote: true, atom.Section: true, atom.Article: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
}

// skippedAtoms never contribute text.
var skippedAtoms = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Noscript: true, atom.Head: true, atom.Template: true,
}

// leadingHeading matches "Vers 12" at the start of a block.
var leadingHeading = regexp.MustCompile(`(?i)^\s*vers\s+(\d+)`)

// anyHeading finds heading tokens anywhere, with an optional ":" or ".".
var anyHeading = regexp.MustCompile(`(?i)\bvers\s+(\d+)(?:\s*[:.])?`)

var collapsible = regexp.MustCompile(`[ \t\r\n\f]+`)

var emphasisExpr = xpath.MustCompile(`.//b | .//strong | .//em | .//i | .//a | .//span`)

// scanBlocks visits the leaf blocks under root in document order and records
// every block carrying a "Vers N" heading and some text besides it. Later
// blocks with the same number overwrite earlier ones.
func scanBlocks(root *html.Node) map[int]string {
	found := make(map[int]string)
	for _, block := range leafBlocks(root) {
		n, ok := blockHeading(block)
		if !ok {
			continue
		}
		text := cleanLines(stripHeading(normalizeSpaces(flatten(block)), n))
		if text == "" {
			continue
		}
		found[n] = text
	}
	return found
}

// leafBlocks returns block elements that contain no nested block elements.
func leafBlocks(root *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(n *html.Node) bool // reports whether n contains a block
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && skippedAtoms[n.DataAtom] {
			return false
		}
		nested := false
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				nested = true
			}
		}
		isBlock := n.Type == html.ElementNode && blockAtoms[n.DataAtom]
		if isBlock && !nested {
			out = append(out, n)
		}
		return isBlock || nested
	}
	walk(root)
	return out
}

// blockHeading extracts the verse number from an emphasized or linked
// heading that opens the block, falling back to the block's own leading
// text. A "Vers N" link further into the block is a cross reference.
func blockHeading(block *html.Node) (int, bool) {
	for _, em := range htmlquery.QuerySelectorAll(block, emphasisExpr) {
		if !opens(block, em) {
			continue
		}
		if n, ok := headingNumber(htmlquery.InnerText(em)); ok {
			return n, true
		}
	}
	return headingNumber(flatten(block))
}

// opens reports whether no visible text precedes target inside block.
func opens(block, target *html.Node) bool {
	leading := true
	var walk func(n *html.Node) bool // reports whether to stop
	walk = func(n *html.Node) bool {
		if n == target {
			return true
		}
		switch n.Type {
		case html.TextNode:
			if strings.TrimSpace(normalizeSpaces(n.Data)) != "" {
				leading = false
				return true
			}
		case html.ElementNode:
			if skippedAtoms[n.DataAtom] {
				return false
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	walk(block)
	return leading
}

func headingNumber(text string) (int, bool) {
	m := leadingHeading.FindStringSubmatch(normalizeSpaces(text))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// stripHeading removes the first "Vers n" heading from text.
func stripHeading(text string, n int) string {
	for _, loc := range anyHeading.FindAllStringSubmatchIndex(text, -1) {
		if num, err := strconv.Atoi(text[loc[2]:loc[3]]); err == nil && num == n {
			return text[:loc[0]] + text[loc[1]:]
		}
	}
	return text
}

// flatten renders the text of n the way a browser lays it out: whitespace
// runs collapse to one space, <br> and block boundaries become line breaks.
func flatten(n *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(collapsible.ReplaceAllString(n.Data, " "))
			return
		case html.ElementNode:
			if skippedAtoms[n.DataAtom] {
				return
			}
			if n.DataAtom == atom.Br {
				sb.WriteByte('\n')
				return
			}
		}
		block := n.Type == html.ElementNode && blockAtoms[n.DataAtom]
		if block {
			sb.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			sb.WriteByte('\n')
		}
	}
	walk(n)
	return sb.String()
}

// cleanLines normalizes verse text: non-breaking spaces become spaces, text
// is NFC-normalized, and trimmed non-empty lines are joined with "\n".
func cleanLines(text string) string {
	text = norm.NFC.String(normalizeSpaces(text))
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func normalizeSpaces(text string) string {
	return strings.ReplaceAll(text, "\u00a0", " ")
}
