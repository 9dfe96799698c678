package opsdashd_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/coder/quartz"

	"github.com/coder/opsdash/activity"
	"github.com/coder/opsdash/database"
	"github.com/coder/opsdash/opsdashd/opsdashdtest"
	"github.com/coder/opsdash/opsdashsdk"
	"github.com/coder/opsdash/testutil"
)

func TestActivity(t *testing.T) {
	t.Parallel()

	ctx := testutil.Context(t, testutil.WaitLong)
	mClock := quartz.NewMock(t)
	// 12:00 in New York, 17:00 UTC.
	mClock.Set(time.Date(2024, 3, 6, 17, 0, 0, 0, time.UTC))
	client, api := opsdashdtest.New(t, &opsdashdtest.Options{Clock: mClock})
	tenantID := uuid.New()
	ada, adaUser := opsdashdtest.CreateUser(t, client, api.Database, tenantID, "Ada Lovelace")
	_, graceUser := opsdashdtest.CreateUser(t, client, api.Database, tenantID, "Grace Hopper")

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	insert := func(userID uuid.UUID, start time.Time, length time.Duration) {
		s, err := api.Database.InsertSession(ctx, database.InsertSessionParams{
			UserID:    userID,
			StartedAt: start.UTC(),
			Page:      "/tasks",
		})
		require.NoError(t, err)
		_, err = api.Database.CloseSession(ctx, database.CloseSessionParams{ID: s.ID, EndedAt: start.Add(length).UTC()})
		require.NoError(t, err)
	}
	// 23:30 local on the 5th is already the 6th in UTC.
	insert(adaUser.ID, time.Date(2024, 3, 5, 23, 30, 0, 0, ny), 20*time.Minute)
	insert(adaUser.ID, time.Date(2024, 3, 6, 9, 0, 0, 0, ny), 45*time.Minute)
	insert(graceUser.ID, time.Date(2024, 3, 6, 10, 0, 0, 0, ny), time.Hour)

	t.Run("Today", func(t *testing.T) {
		t.Parallel()
		report, err := ada.Activity(ctx, opsdashsdk.ActivityRequest{
			Range:    activity.RangeToday,
			Timezone: "America/New_York",
		})
		require.NoError(t, err)
		require.Equal(t, activity.RangeToday, report.Range)
		require.Equal(t, "America/New_York", report.Location)
		require.Equal(t, 2, report.TotalSessions)
		require.Len(t, report.Days, 1)
		require.Equal(t, "Today", report.Days[0].Label)
		require.Equal(t, graceUser.ID, report.Users[0].UserID)
		require.Equal(t, time.Hour, report.Users[0].Total)
	})

	t.Run("ThisWeekByUser", func(t *testing.T) {
		t.Parallel()
		report, err := ada.Activity(ctx, opsdashsdk.ActivityRequest{
			Range:    activity.RangeThisWeek,
			UserID:   adaUser.ID,
			Timezone: "America/New_York",
		})
		require.NoError(t, err)
		require.Equal(t, 2, report.TotalSessions)
		require.Len(t, report.Days, 2)
		require.Equal(t, "Yesterday", report.Days[1].Label)
		require.Equal(t, 65*time.Minute, report.Total)
	})

	t.Run("EmptyRange", func(t *testing.T) {
		t.Parallel()
		report, err := ada.Activity(ctx, opsdashsdk.ActivityRequest{
			Range:    activity.RangeToday,
			UserID:   uuid.New(),
			Timezone: "America/New_York",
		})
		require.NoError(t, err)
		require.True(t, report.Empty)
		require.Empty(t, report.Days)
	})

	t.Run("OtherTenant", func(t *testing.T) {
		t.Parallel()
		outsider, _ := opsdashdtest.CreateUser(t, client, api.Database, uuid.New(), "Bob Builder")
		report, err := outsider.Activity(ctx, opsdashsdk.ActivityRequest{
			Range:    activity.RangeAllTime,
			Timezone: "America/New_York",
		})
		require.NoError(t, err)
		require.True(t, report.Empty)
		require.Zero(t, report.TotalSessions)
		require.Empty(t, report.Users)

		report, err = outsider.Activity(ctx, opsdashsdk.ActivityRequest{
			Range:    activity.RangeAllTime,
			UserID:   adaUser.ID,
			Timezone: "America/New_York",
		})
		require.NoError(t, err)
		require.True(t, report.Empty)
	})

	t.Run("InvalidQuery", func(t *testing.T) {
		t.Parallel()
		res, err := ada.Request(ctx, http.MethodGet, "/api/v1/activity?range=fortnight&user=bob&tz=Mars/Olympus", nil)
		require.NoError(t, err)
		err = opsdashsdk.ReadBodyAsError(res)
		require.True(t, opsdashsdk.IsStatus(err, http.StatusBadRequest), "got %v", err)

		var apiErr *opsdashsdk.Error
		require.ErrorAs(t, err, &apiErr)
		fields := make([]string, 0, len(apiErr.Validations))
		for _, v := range apiErr.Validations {
			fields = append(fields, v.Field)
		}
		require.ElementsMatch(t, []string{"range", "user", "tz"}, fields)
	})
}
