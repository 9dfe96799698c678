package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/xerrors"

	"github.com/coder/serpent"

	"github.com/coder/opsdash/activity"
	"github.com/coder/opsdash/cli/cliui"
	"github.com/coder/opsdash/opsdashsdk"
)

func (r *RootCmd) activity() *serpent.Command {
	var (
		rangeName    string
		user         string
		timezone     string
		outputFormat string
	)
	ranges := make([]string, 0, len(activity.Ranges))
	for _, rng := range activity.Ranges {
		ranges = append(ranges, string(rng))
	}

	client := new(opsdashsdk.Client)
	cmd := &serpent.Command{
		Use:   "activity",
		Short: "Show who was active, when, and for how long.",
		Middleware: serpent.Chain(
			serpent.RequireNArgs(0),
			r.InitClient(client),
		),
		Handler: func(inv *serpent.Invocation) error {
			req := opsdashsdk.ActivityRequest{
				Range:    activity.Range(rangeName),
				Timezone: timezone,
			}
			if user != "" {
				userID, err := uuid.Parse(user)
				if err != nil {
					return xerrors.Errorf("parse --user: %w", err)
				}
				req.UserID = userID
			}

			report, err := client.Activity(inv.Context(), req)
			if err != nil {
				return xerrors.Errorf("get activity: %w", err)
			}

			switch outputFormat {
			case "json":
				enc := json.NewEncoder(inv.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			default:
				if report.Truncated {
					cliui.Warnf(inv.Stderr, "Only the %d most recent sessions are included.", report.TotalSessions)
				}
				return writeReport(inv.Stdout, report)
			}
		},
	}
	cmd.Options = serpent.OptionSet{
		{
			Flag:        "range",
			Description: "Reporting window.",
			Default:     string(activity.RangeToday),
			Value:       serpent.EnumOf(&rangeName, ranges...),
		},
		{
			Flag:        "user",
			Description: "Only include sessions of the user with this ID.",
			Value:       serpent.StringOf(&user),
		},
		{
			Flag:        "tz",
			Description: "IANA time zone used for day boundaries. Defaults to the server's zone.",
			Value:       serpent.StringOf(&timezone),
		},
		{
			Flag:          "output",
			FlagShorthand: "o",
			Description:   "Output format.",
			Default:       "table",
			Value:         serpent.EnumOf(&outputFormat, "table", "json"),
		},
	}
	return cmd
}

func writeReport(w io.Writer, report activity.Report) error {
	if report.Empty {
		_, err := fmt.Fprintln(w, cliui.Muted("No sessions in this range."))
		return err
	}

	var b strings.Builder
	for _, day := range report.Days {
		_, _ = fmt.Fprintf(&b, "%s  %s\n\n", cliui.Heading(day.Label), cliui.Duration(day.Total))
		tw := cliui.Table("USER", "PAGE", "STARTED", "DURATION")
		for _, row := range day.Sessions {
			duration := cliui.Duration(row.Duration)
			if row.Live {
				duration = cliui.Online()
			}
			tw.AppendRow(table.Row{row.UserName, row.Page, cliui.Clock(row.StartedAt), duration})
		}
		_, _ = b.WriteString(tw.Render())
		_, _ = b.WriteString("\n\n")
	}

	tw := cliui.Table("USER", "ROLE", "SESSIONS", "TOTAL", "STATUS")
	for _, u := range report.Users {
		status := ""
		if u.Live {
			status = cliui.Online()
		}
		tw.AppendRow(table.Row{u.Name, u.Role, u.Sessions, cliui.Duration(u.Total), status})
	}
	_, _ = b.WriteString(tw.Render())
	_, _ = fmt.Fprintf(&b, "\n\n%d sessions, %s total\n", report.TotalSessions, cliui.Duration(report.Total))

	_, err := io.WriteString(w, b.String())
	return err
}
