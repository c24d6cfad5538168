// Package tmpl implements mlld's interpolation & template engine (spec
// §4.3): context-aware escaping and rendering of backtick strings,
// `[[...]]` templates, and external `.att` files.
package tmpl

import (
	"fmt"
	"net/url"
	"strings"
)

// Context selects the escaping rule applied to an interpolated value
// (spec §4.3 table).
type Context string

const (
	Default      Context = "default"
	ShellCommand Context = "shell_command"
	ShellCode    Context = "shell_code"
	URL          Context = "url"
	Template     Context = "template"
	DataValue    Context = "data_value"
	FilePath     Context = "file_path"
)

// Escape applies the context's escaping rule to a rendered text fragment.
func Escape(ctx Context, text string) (string, error) {
	switch ctx {
	case Default, ShellCode, Template, DataValue:
		// identity: ShellCode values flow as positional args (no inline
		// escaping needed), Template/DataValue are caller-controlled, and
		// Default never escapes.
		return text, nil
	case ShellCommand:
		return escapeShellCommand(text), nil
	case URL:
		return url.QueryEscape(text), nil
	case FilePath:
		return escapeFilePath(text)
	default:
		return text, nil
	}
}

// escapeShellCommand backslash-escapes `\ " $` inside the double-quoted
// string a cmd body substitutes parameters into (spec §4.3).
func escapeShellCommand(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch r {
		case '\\', '"', '$':
			sb.WriteByte('\\')
			sb.WriteRune(r)
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// escapeFilePath normalizes slashes and rejects embedded null bytes.
func escapeFilePath(s string) (string, error) {
	if strings.ContainsRune(s, 0) {
		return "", fmt.Errorf("path contains null byte")
	}
	return strings.ReplaceAll(s, "\\", "/"), nil
}
