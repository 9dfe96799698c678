package cli_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/coder/opsdash/activity"
	"github.com/coder/opsdash/database"
	"github.com/coder/opsdash/opsdashd/opsdashdtest"
	"github.com/coder/opsdash/testutil"
)

func TestActivity(t *testing.T) {
	t.Parallel()

	ctx := testutil.Context(t, testutil.WaitLong)
	client, api := opsdashdtest.New(t, nil)
	ada, user := opsdashdtest.CreateUser(t, client, api.Database, uuid.New(), "Ada Lovelace")

	// The harness clock reads 09:00 UTC.
	s, err := api.Database.InsertSession(ctx, database.InsertSessionParams{
		UserID:    user.ID,
		StartedAt: time.Date(2024, 3, 6, 8, 0, 0, 0, time.UTC),
		Page:      "/tasks",
	})
	require.NoError(t, err)
	_, err = api.Database.CloseSession(ctx, database.CloseSessionParams{
		ID:      s.ID,
		EndedAt: time.Date(2024, 3, 6, 8, 45, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	baseArgs := []string{"activity", "--url", ada.URL.String(), "--user-id", user.ID.String(), "--tz", "UTC"}

	t.Run("Table", func(t *testing.T) {
		t.Parallel()
		inv, stdout, _ := newCLI(t, baseArgs...)
		require.NoError(t, inv.WithContext(ctx).Run())
		out := stdout.String()
		require.Contains(t, out, "Today")
		require.Contains(t, out, "Ada Lovelace")
		require.Contains(t, out, "/tasks")
		require.Contains(t, out, "45m")
		require.Contains(t, out, "1 sessions, 45m total")
	})

	t.Run("JSON", func(t *testing.T) {
		t.Parallel()
		inv, stdout, _ := newCLI(t, append(baseArgs, "--range", "all-time", "-o", "json")...)
		require.NoError(t, inv.WithContext(ctx).Run())
		var report activity.Report
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &report))
		require.Equal(t, activity.RangeAllTime, report.Range)
		require.Equal(t, 1, report.TotalSessions)
		require.Equal(t, 45*time.Minute, report.Total)
	})

	t.Run("EmptyForOtherUser", func(t *testing.T) {
		t.Parallel()
		inv, stdout, _ := newCLI(t, append(baseArgs, "--user", uuid.NewString())...)
		require.NoError(t, inv.WithContext(ctx).Run())
		require.Contains(t, stdout.String(), "No sessions in this range.")
	})

	t.Run("InvalidRange", func(t *testing.T) {
		t.Parallel()
		inv, _, _ := newCLI(t, append(baseArgs, "--range", "fortnight")...)
		require.Error(t, inv.WithContext(ctx).Run())
	})

	t.Run("UserIDRequired", func(t *testing.T) {
		t.Parallel()
		inv, _, _ := newCLI(t, "activity", "--url", ada.URL.String())
		err := inv.WithContext(ctx).Run()
		require.ErrorContains(t, err, "--user-id")
	})
}
