package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOutputFormatDefaultsToMarkdown(t *testing.T) {
	f, err := parseOutputFormat("")
	require.NoError(t, err)
	assert.Equal(t, formatMarkdown, f)
}

func TestParseOutputFormatAcceptsXMLCaseInsensitive(t *testing.T) {
	f, err := parseOutputFormat("XML")
	require.NoError(t, err)
	assert.Equal(t, formatXML, f)
}

func TestParseOutputFormatRejectsUnknown(t *testing.T) {
	_, err := parseOutputFormat("yaml")
	assert.Error(t, err)
}

func TestRenderOutputMarkdownIsVerbatim(t *testing.T) {
	out, err := renderOutput("hello\nworld", formatMarkdown)
	require.NoError(t, err)
	assert.Equal(t, "hello\nworld", out)
}

func TestRenderOutputXMLWrapsAndEscapes(t *testing.T) {
	out, err := renderOutput("a < b & c", formatXML)
	require.NoError(t, err)
	assert.Equal(t, "<document>a &lt; b &amp; c</document>", out)
}
