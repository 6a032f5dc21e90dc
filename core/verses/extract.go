package verses

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"
)

// DefaultContainerXPath locates the region of an overview page that holds
// the verse blocks.
const DefaultContainerXPath = `//*[@id='psvs' or @id='verzen' or @id='verses' or contains(concat(' ', normalize-space(@class), ' '), ' verzen ')]`

// Extractor is one strategy for finding verse blocks in a parsed document.
// It reports false when it cannot find anything, letting the next strategy
// try.
type Extractor interface {
	Name() string
	Extract(doc *html.Node) (map[int]string, bool)
}

// ContainerScan scans the blocks inside a named region of the document.
type ContainerScan struct {
	container *xpath.Expr
}

// NewContainerScan compiles the XPath expression that selects the region.
func NewContainerScan(expr string) (*ContainerScan, error) {
	compiled, err := xpath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compiling container xpath %q: %w", expr, err)
	}
	return &ContainerScan{container: compiled}, nil
}

func (c *ContainerScan) Name() string { return "container" }

func (c *ContainerScan) Extract(doc *html.Node) (map[int]string, bool) {
	region := htmlquery.QuerySelector(doc, c.container)
	if region == nil {
		return nil, false
	}
	found := scanBlocks(region)
	return found, len(found) > 0
}

// DocumentScan scans every block of the document. It is the fallback for
// pages whose named region has moved or been renamed.
type DocumentScan struct{}

func (DocumentScan) Name() string { return "document" }

func (DocumentScan) Extract(doc *html.Node) (map[int]string, bool) {
	root := htmlquery.FindOne(doc, "//body")
	if root == nil {
		root = doc
	}
	found := scanBlocks(root)
	return found, len(found) > 0
}

// TextMarkers flattens the whole document to text and cuts it at every
// "Vers N" marker. It copes with layouts where the heading and the verse
// lines live in separate blocks.
type TextMarkers struct{}

func (TextMarkers) Name() string { return "markers" }

func (TextMarkers) Extract(doc *html.Node) (map[int]string, bool) {
	text := normalizeSpaces(flatten(doc))
	markers := anyHeading.FindAllStringSubmatchIndex(text, -1)

	found := make(map[int]string)
	for i, loc := range markers {
		n, err := strconv.Atoi(text[loc[2]:loc[3]])
		if err != nil || n < 1 {
			continue
		}
		end := len(text)
		if i+1 < len(markers) {
			end = markers[i+1][0]
		}
		if segment := cleanLines(text[loc[1]:end]); segment != "" {
			found[n] = segment
		}
	}
	return found, len(found) > 0
}

// Chain evaluates extractors in order and keeps the first success.
type Chain struct {
	strategies []Extractor
}

// NewChain builds a chain from the given strategies.
func NewChain(strategies ...Extractor) *Chain {
	return &Chain{strategies: strategies}
}

// DefaultChain is container scan, then document scan, then text markers.
func DefaultChain() *Chain {
	container, err := NewContainerScan(DefaultContainerXPath)
	if err != nil {
		panic(err)
	}
	return NewChain(container, DocumentScan{}, TextMarkers{})
}

// Extract parses markup and returns the VerseMap of the first strategy that
// finds verses, together with that strategy's name. When no strategy finds
// anything the map is empty and the name is "".
func (c *Chain) Extract(markup []byte, fetchedAt time.Time) (*VerseMap, string, error) {
	doc, err := htmlquery.Parse(bytes.NewReader(markup))
	if err != nil {
		return nil, "", fmt.Errorf("parsing document: %w", err)
	}
	digest := Digest(markup)
	for _, s := range c.strategies {
		if found, ok := s.Extract(doc); ok {
			return NewVerseMap(found, digest, fetchedAt), s.Name(), nil
		}
	}
	return NewVerseMap(nil, digest, fetchedAt), "", nil
}
