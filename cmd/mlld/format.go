package main

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// outputFormat is the CLI-only (spec §6.1's non-goal keeps this out of
// the core) rendering step applied to the renderer's finalized document.
type outputFormat string

const (
	formatMarkdown outputFormat = "markdown"
	formatXML      outputFormat = "xml"
)

func parseOutputFormat(s string) (outputFormat, error) {
	switch outputFormat(strings.ToLower(s)) {
	case formatMarkdown, "":
		return formatMarkdown, nil
	case formatXML:
		return formatXML, nil
	default:
		return "", fmt.Errorf("mlld: unknown --format %q (want markdown or xml)", s)
	}
}

// renderOutput applies fmt to doc. markdown is the document verbatim; xml
// wraps it in a single escaped <document> element.
func renderOutput(doc string, format outputFormat) (string, error) {
	if format == formatXML {
		var sb strings.Builder
		sb.WriteString("<document>")
		if err := xml.EscapeText(&sb, []byte(doc)); err != nil {
			return "", fmt.Errorf("mlld: escaping document for --format xml: %w", err)
		}
		sb.WriteString("</document>")
		return sb.String(), nil
	}
	return doc, nil
}
