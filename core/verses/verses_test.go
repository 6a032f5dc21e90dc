package verses

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/html"
)

const containerPage = `<!DOCTYPE html>
<html><head><title>Psalm 118 Vers 9</title><script>var x = "Vers 99";</script></head>
<body>
<nav><a href="/psalmen.php?psalm=117">Vers 1</a></nav>
<div id="psvs">
  <p><strong>Vers 1</strong><br>Laat Isrel nu verblijd<br>&nbsp;Den HEER' lofzingen</p>
  <p>Vers 2: Tweede regel een<br>tweede regel twee</p>
  <p><b>Vers 3</b><br>   Derde    vers   </p>
  <p>Geen kop hier</p>
</div>
<p><strong>Vers 7</strong><br>Buiten de container</p>
</body></html>`

const loosePage = `<html><body>
<div class="inhoud">
  <p><a href="#v1">Vers 1</a><br>Eerste regel</p>
  <p>Toelichting zonder kop</p>
  <p><em>vers 2</em><br>Tweede regel</p>
</div>
</body></html>`

const splitPage = `<html><body><div class="psalm">
<h3>Vers 1</h3><p>Regel een<br>Regel twee</p>
<h3>Vers 2</h3><p>Regel drie</p>
</div></body></html>`

const emptyPage = `<html><body><p>Deze pagina bestaat niet.</p></body></html>`

func extract(t *testing.T, page string) (*VerseMap, string) {
	t.Helper()
	m, strategy, err := DefaultChain().Extract([]byte(page), time.Unix(1700000000, 0))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	return m, strategy
}

func TestChain_ContainerScan(t *testing.T) {
	m, strategy := extract(t, containerPage)
	if strategy != "container" {
		t.Errorf("strategy = %q, want container", strategy)
	}

	want := map[int]string{
		1: "Laat Isrel nu verblijd\nDen HEER' lofzingen",
		2: "Tweede regel een\ntweede regel twee",
		3: "Derde vers",
	}
	if got := m.Entries(); !reflect.DeepEqual(got, want) {
		t.Errorf("Entries() = %q, want %q", got, want)
	}
	if max, ok := m.Max(); !ok || max != 3 {
		t.Errorf("Max() = %d, %v; want 3, true", max, ok)
	}
}

func TestChain_DocumentScanFallback(t *testing.T) {
	m, strategy := extract(t, loosePage)
	if strategy != "document" {
		t.Errorf("strategy = %q, want document", strategy)
	}
	if got, _ := m.Verse(1); got != "Eerste regel" {
		t.Errorf("Verse(1) = %q, want %q", got, "Eerste regel")
	}
	if got, _ := m.Verse(2); got != "Tweede regel" {
		t.Errorf("Verse(2) = %q, want %q", got, "Tweede regel")
	}
	if m.Len() != 2 {
		t.Errorf("Len() = %d, want 2", m.Len())
	}
}

func TestChain_TextMarkersFallback(t *testing.T) {
	m, strategy := extract(t, splitPage)
	if strategy != "markers" {
		t.Errorf("strategy = %q, want markers", strategy)
	}
	want := map[int]string{1: "Regel een\nRegel twee", 2: "Regel drie"}
	if got := m.Entries(); !reflect.DeepEqual(got, want) {
		t.Errorf("Entries() = %q, want %q", got, want)
	}
}

func TestChain_NothingFound(t *testing.T) {
	m, strategy := extract(t, emptyPage)
	if strategy != "" {
		t.Errorf("strategy = %q, want empty", strategy)
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0", m.Len())
	}
	if _, ok := m.Max(); ok {
		t.Error("Max() ok = true for empty map")
	}
	if m.Digest() != Digest([]byte(emptyPage)) {
		t.Error("empty map should still carry the document digest")
	}
}

func TestScanBlocks_LastOccurrenceWins(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(`<body>
		<p>Vers 1<br>oud</p>
		<p>Vers 1<br>nieuw</p>
	</body>`))
	if err != nil {
		t.Fatal(err)
	}
	found := scanBlocks(doc)
	if found[1] != "nieuw" {
		t.Errorf("found[1] = %q, want %q", found[1], "nieuw")
	}
}

func TestScanBlocks_HeadingMustOpenBlock(t *testing.T) {
	tests := []struct {
		name string
		body string
		want map[int]string
	}{
		{
			name: "cross reference link",
			body: `<p><strong>Vers 1</strong><br>Eerste regel</p>
				<p>Zie ook <a href="#v1">Vers 1</a> voor de berijming</p>`,
			want: map[int]string{1: "Eerste regel"},
		},
		{
			name: "emphasis after text",
			body: `<p>Toelichting bij <em>vers 2</em> van de psalm</p>`,
			want: map[int]string{},
		},
		{
			name: "nested leading heading",
			body: `<p> <span><b>Vers 12</b></span> kinderen<br>zingen</p>`,
			want: map[int]string{12: "kinderen\nzingen"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := html.Parse(strings.NewReader("<body>" + tt.body + "</body>"))
			if err != nil {
				t.Fatal(err)
			}
			if got := scanBlocks(doc); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("scanBlocks() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestScanBlocks_NormalizesText(t *testing.T) {
	doc, err := html.Parse(strings.NewReader("<body><p>VERS 4.<br>Café bij&nbsp;nacht<br><br>  </p></body>"))
	if err != nil {
		t.Fatal(err)
	}
	found := scanBlocks(doc)
	if got, want := found[4], "Café bij nacht"; got != want {
		t.Errorf("found[4] = %q, want %q", got, want)
	}
}

func TestScanBlocks_SkipsHeadingOnlyBlocks(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(`<body><h2>Vers 5</h2><p>losse tekst</p></body>`))
	if err != nil {
		t.Fatal(err)
	}
	if found := scanBlocks(doc); len(found) != 0 {
		t.Errorf("scanBlocks() = %q, want nothing", found)
	}
}

func TestNewContainerScan_BadExpression(t *testing.T) {
	if _, err := NewContainerScan("//*[@id="); err == nil {
		t.Error("NewContainerScan() error = nil for malformed xpath")
	}
}

func TestChain_CustomOrder(t *testing.T) {
	chain := NewChain(TextMarkers{})
	m, strategy, err := chain.Extract([]byte(containerPage), time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if strategy != "markers" {
		t.Errorf("strategy = %q, want markers", strategy)
	}
	// the marker scan sees the navigation link and the block outside the container too
	if _, ok := m.Verse(7); !ok {
		t.Error("Verse(7) missing from marker scan")
	}
}

func TestVerseMap_Immutable(t *testing.T) {
	src := map[int]string{2: "b", 1: "a"}
	fetched := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m := NewVerseMap(src, "abc", fetched)

	src[3] = "c"
	if m.Len() != 2 {
		t.Errorf("Len() = %d after mutating source map, want 2", m.Len())
	}

	entries := m.Entries()
	entries[1] = "changed"
	if got, _ := m.Verse(1); got != "a" {
		t.Errorf("Verse(1) = %q after mutating Entries(), want %q", got, "a")
	}

	if got := m.Numbers(); !reflect.DeepEqual(got, []int{1, 2}) {
		t.Errorf("Numbers() = %v, want [1 2]", got)
	}
	if !m.FetchedAt().Equal(fetched) {
		t.Errorf("FetchedAt() = %v, want %v", m.FetchedAt(), fetched)
	}
	if m.Digest() != "abc" {
		t.Errorf("Digest() = %q, want abc", m.Digest())
	}
}

func TestDigest(t *testing.T) {
	a := Digest([]byte("psalm"))
	if len(a) != 64 {
		t.Errorf("len(Digest) = %d, want 64 hex chars", len(a))
	}
	if a != Digest([]byte("psalm")) {
		t.Error("Digest is not deterministic")
	}
	if a == Digest([]byte("psalm ")) {
		t.Error("different inputs produced the same digest")
	}
}
