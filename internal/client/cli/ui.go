package cli

import (
	"strings"

	"github.com/fatih/color"
)

// Output styles. fatih/color turns itself off for NO_COLOR and non-terminals.
var (
	successStyle   = color.New(color.FgGreen)
	errorStyle     = color.New(color.FgRed)
	infoStyle      = color.New(color.FgCyan)
	highlightStyle = color.New(color.FgYellow)
	mutedStyle     = color.New(color.Faint)
)

func okMark() string   { return successStyle.Sprint("✓") }
func failMark() string { return errorStyle.Sprint("✗") }
func hintMark() string { return infoStyle.Sprint("→") }

// shortID keeps list output narrow; show and resolve accept the full id
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// preview is the first line of body, cut to n runes
func preview(body string, n int) string {
	line, _, _ := strings.Cut(body, "\n")
	r := []rune(line)
	if len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return line
}
