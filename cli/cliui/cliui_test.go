package cliui_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coder/opsdash/cli/cliui"
)

func TestDuration(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{59 * time.Second, "59s"},
		{time.Minute, "1m"},
		{45*time.Minute + 30*time.Second, "45m"},
		{time.Hour, "1h 0m"},
		{26*time.Hour + 5*time.Minute, "26h 5m"},
	} {
		require.Equal(t, tc.want, cliui.Duration(tc.in), tc.in.String())
	}
}

func TestWarn(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	cliui.Warn(&buf, "sessions are stored in memory", "set --postgres-url to persist them")
	out := buf.String()
	require.Contains(t, out, "WARN: ")
	require.Contains(t, out, "sessions are stored in memory")
	require.Contains(t, out, "set --postgres-url to persist them")
	require.Equal(t, 2, bytes.Count(buf.Bytes(), []byte("\n")))
}

func TestTable(t *testing.T) {
	t.Parallel()

	tw := cliui.Table("USER", "TOTAL")
	tw.AppendRow([]any{"Ada", "45m"})
	out := tw.Render()
	require.Contains(t, out, "USER")
	require.Contains(t, out, "Ada")
	require.NotContains(t, out, "|")
}
