package cliui

import (
	"github.com/jedib0t/go-pretty/v6/table"
)

// Table returns a borderless writer whose columns are separated by two
// spaces, matching the report layout.
func Table(header ...any) table.Writer {
	tw := table.NewWriter()
	style := tw.Style()
	style.Box.PaddingLeft = ""
	style.Box.PaddingRight = "  "
	style.Options.DrawBorder = false
	style.Options.SeparateHeader = false
	style.Options.SeparateColumns = false
	if len(header) > 0 {
		tw.AppendHeader(table.Row(header))
	}
	return tw
}
