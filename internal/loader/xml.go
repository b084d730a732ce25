package loader

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
	"github.com/hashicorp/go-multierror"

	"github.com/FocuswithJustin/PaathGuide/core/errors"
	"github.com/FocuswithJustin/PaathGuide/core/verse"
)

// verseExpr selects verse elements anywhere in the document, so both bare
// <corpus><verse>... exports and wrapped variants load the same way.
var verseExpr = xpath.MustCompile("//verse")

// parseXML reads an XML corpus export. Each <verse> element carries page
// and line attributes plus optional raag/author attributes and
// gurmukhi/transliteration/translation child elements. Verses missing
// required fields are skipped and reported, matching text-input behavior.
func parseXML(r io.Reader, source string, summary *Summary) ([]verse.Record, error) {
	doc, err := xmlquery.Parse(r)
	if err != nil {
		return nil, errors.NewIO("parse", source, err)
	}

	var records []verse.Record
	seenRefs := make(map[verse.Ref]bool)
	for i, node := range xmlquery.QuerySelectorAll(doc, verseExpr) {
		rec, err := verseFromNode(node)
		if err != nil {
			summary.Skipped++
			summary.Errors = multierror.Append(summary.Errors,
				errors.NewLoad(source, i+1, err.Error()))
			continue
		}
		if seenRefs[rec.Ref()] {
			summary.Skipped++
			summary.Errors = multierror.Append(summary.Errors,
				errors.NewLoad(source, i+1, fmt.Sprintf("duplicate location %s", rec.Ref())))
			continue
		}
		seenRefs[rec.Ref()] = true
		records = append(records, rec)
	}
	return records, nil
}

func verseFromNode(node *xmlquery.Node) (verse.Record, error) {
	page, err := intAttr(node, "page")
	if err != nil {
		return verse.Record{}, err
	}
	line, err := intAttr(node, "line")
	if err != nil {
		return verse.Record{}, err
	}

	text := childText(node, "gurmukhi")
	if text == "" {
		// Plain element text is accepted when no child element is used.
		text = strings.TrimSpace(node.InnerText())
	}
	if text == "" {
		return verse.Record{}, fmt.Errorf("verse at (%d-%d) has no text", page, line)
	}

	rec := verse.Record{
		Gurmukhi:        text,
		Page:            page,
		Line:            line,
		Transliteration: childText(node, "transliteration"),
		Translation:     childText(node, "translation"),
		Raag:            node.SelectAttr("raag"),
		Author:          node.SelectAttr("author"),
	}
	if !rec.Ref().IsValid() {
		return verse.Record{}, fmt.Errorf("non-positive location %s", rec.Ref())
	}
	return rec, nil
}

func intAttr(node *xmlquery.Node, name string) (int, error) {
	raw := node.SelectAttr(name)
	if raw == "" {
		return 0, fmt.Errorf("missing %s attribute", name)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("bad %s attribute %q", name, raw)
	}
	return v, nil
}

func childText(node *xmlquery.Node, name string) string {
	child := xmlquery.FindOne(node, name)
	if child == nil {
		return ""
	}
	return strings.TrimSpace(child.InnerText())
}
