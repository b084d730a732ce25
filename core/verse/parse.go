package verse

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// lineGrammar matches a corpus source line of the form "TEXT (page-line)".
//
//nolint:govet // participle grammar tags are not standard struct tags
type lineGrammar struct {
	Words []string `( @Word | @Paren )+`
	Loc   string   `@Loc`
}

// lineLexer tokenizes corpus source lines.
// Note: Loc must come before Paren so "(1-4)" lexes as a single token.
var lineLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Loc", Pattern: `\([0-9]+-[0-9]+\)`},
	{Name: "Word", Pattern: `[^\s()]+`},
	{Name: "Paren", Pattern: `[()]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

// lineParser is the participle parser for corpus source lines.
var lineParser = participle.MustBuild[lineGrammar](
	participle.Lexer(lineLexer),
	participle.Elide("Whitespace"),
)

// ParseLine parses a corpus source line like "ਆਦਿ ਸਚੁ ਜੁਗਾਦਿ ਸਚੁ ॥ (1-4)"
// into a Record carrying the verse text and its (page, line) location.
// Lines without a trailing location marker are rejected; the bulk loader
// counts them as corrupt source records instead of aborting the load.
func ParseLine(s string) (Record, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Record{}, fmt.Errorf("empty source line")
	}

	parsed, err := lineParser.ParseString("", s)
	if err != nil {
		return Record{}, fmt.Errorf("invalid verse line %q: %w", s, err)
	}

	page, line, err := parseLoc(parsed.Loc)
	if err != nil {
		return Record{}, fmt.Errorf("invalid location in %q: %w", s, err)
	}

	rec := Record{
		Gurmukhi: strings.Join(parsed.Words, " "),
		Page:     page,
		Line:     line,
	}
	if !rec.Ref().IsValid() {
		return Record{}, fmt.Errorf("non-positive location %s in %q", rec.Ref(), s)
	}
	return rec, nil
}

// parseLoc splits a "(page-line)" token into its two numbers.
func parseLoc(loc string) (page, line int, err error) {
	trimmed := strings.TrimSuffix(strings.TrimPrefix(loc, "("), ")")
	parts := strings.SplitN(trimmed, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed location %q", loc)
	}
	page, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, err
	}
	line, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, err
	}
	return page, line, nil
}
