package cliui

import (
	"fmt"
	"io"

	"github.com/coder/pretty"
)

// Warn writes a highlighted notice to w. Each detail line is indented
// beneath the header.
func Warn(w io.Writer, header string, details ...string) {
	_, _ = fmt.Fprintf(w, "%s%s\n", Heading("WARN: "), pretty.Sprint(DefaultStyles.Warn, header))
	for _, d := range details {
		_, _ = fmt.Fprintf(w, "  %s %s\n", pretty.Sprint(DefaultStyles.Warn, "|"), d)
	}
}

func Warnf(w io.Writer, format string, args ...any) {
	Warn(w, fmt.Sprintf(format, args...))
}
