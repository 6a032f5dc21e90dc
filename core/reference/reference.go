// Package reference parses free-text psalm citations such as
// "Psalm 118: 1, 2 en 5" or "Ps. 23 vers 1 t/m 3 en 6" into a validated
// psalm number and an ascending, de-duplicated list of verse numbers.
package reference

import (
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/FocuswithJustin/psalter/core/envelope"
)

// MaxVerseNumber bounds verse numbers so ranges stay small.
const MaxVerseNumber = 999

// Parsed is the outcome of parsing one line of text. It is a value type and
// is never mutated after Parse returns.
type Parsed struct {
	Status  envelope.Status  `json:"status"`
	Request envelope.Request `json:"request"`
	Message string           `json:"message,omitempty"`
}

// OK reports whether the text resolved to a usable reference.
func (p Parsed) OK() bool {
	return p.Status == envelope.StatusOK
}

// Envelope converts a rejection into a response envelope. Successful parses
// have no result yet and are turned into envelopes by the lookup flow.
func (p Parsed) Envelope() *envelope.Envelope {
	if p.OK() {
		return &envelope.Envelope{Intent: envelope.Intent, Status: p.Status, Request: p.Request}
	}
	return envelope.Failure(p.Status, p.Request, p.Message)
}

// citation is the grammar of the reference header. The verse specification
// is captured token by token, whitespace included, so it can be reassembled
// verbatim and handed to the list/range normaliser.
type citation struct {
	Designator string   `( @Designator Whitespace? )?`
	Psalm      string   `@Number Whitespace?`
	Separator  string   `@( ":" | "." | VerseWord )`
	Spec       []string `@( Designator | VerseWord | Number | Punct | Word | Whitespace | Other )*`
}

// citationLexer tokenizes psalm citations. Rule order matters: the first
// matching rule wins.
var citationLexer = lexer.MustSimple([]lexer.SimpleRule{
	// "psalm", "ps", "ps." in any case
	{Name: "Designator", Pattern: `(?i)(?:psalm|ps)\.?`},
	{Name: "VerseWord", Pattern: `(?i)(?:verzen|vers)`},
	{Name: "Number", Pattern: `\d+`},
	{Name: "Punct", Pattern: `[:.,;&/\-]`},
	{Name: "Word", Pattern: `\pL+`},
	{Name: "Whitespace", Pattern: `\s+`},
	{Name: "Other", Pattern: `.`},
})

var citationParser = participle.MustBuild[citation](
	participle.Lexer(citationLexer),
)

// Parse turns text into a Parsed reference. It never fails; every problem is
// reported as an invalid_request with a message.
func Parse(text string) Parsed {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return reject(envelope.MinPsalm, "no psalm reference found")
	}

	cit, err := citationParser.ParseString("", trimmed)
	if err != nil {
		return reject(envelope.MinPsalm, "no psalm reference found"+suggestDesignator(trimmed))
	}

	psalm, inRange := parsePsalmNumber(cit.Psalm)
	if !inRange {
		return reject(psalm, fmt.Sprintf("psalm number %s out of range (%d-%d)", cit.Psalm, envelope.MinPsalm, envelope.MaxPsalm))
	}

	verses, err := parseVerseSpec(strings.Join(cit.Spec, ""))
	if err != nil {
		return reject(psalm, err.Error())
	}

	return Parsed{
		Status:  envelope.StatusOK,
		Request: envelope.Request{PsalmNumber: psalm, Verses: verses},
	}
}

func reject(psalm int, message string) Parsed {
	return Parsed{
		Status:  envelope.StatusInvalidRequest,
		Request: envelope.Request{PsalmNumber: psalm, Verses: []int{}},
		Message: message,
	}
}

// parsePsalmNumber converts the captured digits and clamps them into the
// valid range for diagnostics. Overflowing values count as too large.
func parsePsalmNumber(digits string) (int, bool) {
	n := 0
	for _, c := range digits {
		n = n*10 + int(c-'0')
		if n > envelope.MaxPsalm {
			return envelope.MaxPsalm, false
		}
	}
	if n < envelope.MinPsalm {
		return envelope.MinPsalm, false
	}
	return n, true
}

// suggestDesignator returns a hint when the first word looks like a
// misspelled "psalm".
func suggestDesignator(text string) string {
	fields := strings.Fields(strings.ToLower(text))
	if len(fields) == 0 {
		return ""
	}
	word := strings.TrimRight(fields[0], ".:0123456789")
	if word == "" || word == "psalm" || word == "ps" {
		return ""
	}
	if levenshtein.ComputeDistance(word, "psalm") <= 2 {
		return ` (did you mean "psalm"?)`
	}
	return ""
}
