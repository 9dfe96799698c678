// Package cliui renders activity reports and server notices for humans.
package cliui

import (
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/muesli/termenv"

	"github.com/coder/pretty"
)

// DefaultStyles are the styles used by every renderer in this package.
var DefaultStyles Styles

type Styles struct {
	Code    pretty.Style
	Error   pretty.Style
	Heading pretty.Style
	Muted   pretty.Style
	Online  pretty.Style
	Time    pretty.Style
	Warn    pretty.Style
}

var (
	profile     termenv.Profile
	profileOnce sync.Once
)

func colorProfile() termenv.Profile {
	profileOnce.Do(func() {
		profile = termenv.NewOutput(os.Stdout).EnvColorProfile()
		// Test output is compared as plain text.
		if flag.Lookup("test.v") != nil {
			profile = termenv.Ascii
		}
	})
	return profile
}

func ansi(code string) termenv.Color {
	return colorProfile().Color(code)
}

// plain reports whether styles should render without escape sequences.
func plain() bool {
	return colorProfile() == termenv.Ascii
}

// Heading renders a section title such as a day label.
func Heading(s string) string {
	if plain() {
		return s
	}
	return pretty.Sprint(DefaultStyles.Heading, s)
}

// Clock renders the wall clock time of t in t's location.
func Clock(t time.Time) string {
	return pretty.Sprint(DefaultStyles.Time, t.Format(time.Kitchen))
}

func Muted(s string) string {
	return pretty.Sprint(DefaultStyles.Muted, s)
}

func Code(s string) string {
	return pretty.Sprint(DefaultStyles.Code, s)
}

func Error(s string) string {
	return pretty.Sprint(DefaultStyles.Error, s)
}

// Online is the marker shown in place of a duration for a live session.
func Online() string {
	return pretty.Sprint(DefaultStyles.Online, "online")
}

// Duration renders d as hours and minutes, or seconds when under a minute.
func Duration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

func init() {
	var padded pretty.Formatter = pretty.Nop
	if !plain() {
		padded = pretty.XPad(1, 1)
	}
	DefaultStyles = Styles{
		Code:    pretty.Style{padded, pretty.FgColor(ansi("#ED567A")), pretty.BgColor(ansi("#2C2C2C"))},
		Error:   pretty.Style{pretty.FgColor(ansi("1"))},
		Heading: pretty.Style{pretty.Bold()},
		Muted:   pretty.Style{pretty.FgColor(ansi("8"))},
		Online:  pretty.Style{pretty.FgColor(ansi("2")), pretty.Bold()},
		Time:    pretty.Style{pretty.FgColor(ansi("12"))},
		Warn:    pretty.Style{pretty.FgColor(ansi("3"))},
	}
}
