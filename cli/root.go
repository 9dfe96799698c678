// Package cli implements the opsdash command line: the opsdashd server and
// operator commands that talk to it.
package cli

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"

	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"github.com/coder/serpent"

	"github.com/coder/opsdash/cli/cliui"
	"github.com/coder/opsdash/opsdashsdk"
)

const (
	varURL     = "url"
	varUserID  = "user-id"
	varVerbose = "verbose"

	envURL    = "OPSDASH_URL"
	envUserID = "OPSDASH_USER_ID"
)

// RootCmd holds the options shared by every subcommand.
type RootCmd struct {
	clientURL *url.URL
	userID    string
	verbose   bool
}

// Subcommands lists every top-level command. Please re-sort this list
// alphabetically if you change it!
func (r *RootCmd) Subcommands() []*serpent.Command {
	return []*serpent.Command{
		r.activity(),
		r.server(),
	}
}

// Command builds the root command with subcommands attached.
func (r *RootCmd) Command(subcommands []*serpent.Command) (*serpent.Command, error) {
	cmd := &serpent.Command{
		Use:   "opsdash <subcommand>",
		Short: "Team presence and session activity for the operations dashboard.",
		Long: "Run the presence and activity server, or query it.\n\n" +
			"  Start a server with an in-memory store:\n\n" +
			"    " + cliui.Code("opsdash server") + "\n\n" +
			"  Show this week's activity:\n\n" +
			"    " + cliui.Code("opsdash activity --range this-week"),
		Handler: func(inv *serpent.Invocation) error {
			return inv.Command.HelpHandler(inv)
		},
	}
	cmd.AddSubcommands(subcommands...)

	var merr error
	cmd.Walk(func(cmd *serpent.Command) {
		if cmd.Parent != nil && cmd.Handler == nil {
			merr = errors.Join(merr, xerrors.Errorf("command %q has no handler", cmd.FullName()))
		}
	})
	if merr != nil {
		return nil, merr
	}

	if r.clientURL == nil {
		r.clientURL = new(url.URL)
	}
	cmd.Options = serpent.OptionSet{
		{
			Flag:        varURL,
			Env:         envURL,
			Description: "URL of the opsdash server.",
			Default:     "http://127.0.0.1:3000",
			Value:       serpent.URLOf(r.clientURL),
			Group:       globalGroup,
		},
		{
			Flag:        varUserID,
			Env:         envUserID,
			Description: "ID of the user to act as.",
			Value:       serpent.StringOf(&r.userID),
			Group:       globalGroup,
		},
		{
			Flag:          varVerbose,
			FlagShorthand: "v",
			Env:           "OPSDASH_VERBOSE",
			Description:   "Enable verbose output.",
			Value:         serpent.BoolOf(&r.verbose),
			Group:         globalGroup,
		},
	}
	return cmd, nil
}

var globalGroup = &serpent.Group{
	Name:        "Global",
	Description: "Global options are applied to all commands.",
}

// InitClient fills in client from the root options.
func (r *RootCmd) InitClient(client *opsdashsdk.Client) serpent.MiddlewareFunc {
	return func(next serpent.HandlerFunc) serpent.HandlerFunc {
		return func(inv *serpent.Invocation) error {
			if r.clientURL == nil || r.clientURL.String() == "" {
				return xerrors.Errorf("--%s or %s must be set", varURL, envURL)
			}
			*client = *opsdashsdk.New(r.clientURL)
			if r.userID == "" {
				return xerrors.Errorf("--%s or %s must be set", varUserID, envUserID)
			}
			userID, err := uuid.Parse(r.userID)
			if err != nil {
				return xerrors.Errorf("parse --%s: %w", varUserID, err)
			}
			client.UserID = userID
			return next(inv)
		}
	}
}

// Main runs the root command with os arguments and exits.
func (r *RootCmd) Main(subcommands []*serpent.Command) {
	cmd, err := r.Command(subcommands)
	if err != nil {
		panic(err)
	}
	err = cmd.Invoke().WithOS().Run()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(1)
		}
		_, _ = fmt.Fprintln(os.Stderr, cliui.Error(err.Error()))
		os.Exit(1)
	}
}
