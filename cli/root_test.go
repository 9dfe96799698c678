package cli_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/coder/serpent"

	"github.com/coder/opsdash/cli"
	"github.com/coder/opsdash/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, testutil.GoleakOptions...)
}

// newCLI returns an invocation of the root command with output captured.
func newCLI(t *testing.T, args ...string) (*serpent.Invocation, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var root cli.RootCmd
	cmd, err := root.Command(root.Subcommands())
	require.NoError(t, err)

	inv := cmd.Invoke(args...)
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	inv.Stdout = stdout
	inv.Stderr = stderr
	inv.Stdin = new(bytes.Buffer)
	inv.Environ = serpent.Environ{}
	return inv, stdout, stderr
}

func TestRootHelp(t *testing.T) {
	t.Parallel()

	inv, stdout, _ := newCLI(t, "--help")
	require.NoError(t, inv.Run())
	require.Contains(t, stdout.String(), "activity")
	require.Contains(t, stdout.String(), "server")
}
