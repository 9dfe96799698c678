package opsdashd_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/coder/opsdash/opsdashd/opsdashdtest"
	"github.com/coder/opsdash/opsdashsdk"
	"github.com/coder/opsdash/presence"
	"github.com/coder/opsdash/testutil"
)

// awaitRoster reads messages until one carries a roster that satisfies ok.
func awaitRoster(ctx context.Context, t *testing.T, conn *opsdashsdk.PresenceConn, ok func([]presence.Entry) bool) []presence.Entry {
	t.Helper()
	for {
		msg, err := conn.Recv(ctx)
		require.NoError(t, err)
		if msg.Type != opsdashsdk.PresenceMessageRoster {
			continue
		}
		if ok(msg.Roster) {
			return msg.Roster
		}
	}
}

func find(roster []presence.Entry, userID uuid.UUID) (presence.Entry, bool) {
	for _, e := range roster {
		if e.UserID == userID {
			return e, true
		}
	}
	return presence.Entry{}, false
}

func onPage(userID uuid.UUID, page string) func([]presence.Entry) bool {
	return func(roster []presence.Entry) bool {
		e, ok := find(roster, userID)
		return ok && e.Page == page
	}
}

func absent(userID uuid.UUID) func([]presence.Entry) bool {
	return func(roster []presence.Entry) bool {
		_, ok := find(roster, userID)
		return !ok
	}
}

func TestWatchPresence(t *testing.T) {
	t.Parallel()

	t.Run("SessionThenSelfFirst", func(t *testing.T) {
		t.Parallel()
		ctx := testutil.Context(t, testutil.WaitLong)
		client, api := opsdashdtest.New(t, nil)
		ada, user := opsdashdtest.CreateUser(t, client, api.Database, uuid.New(), "Ada Lovelace")

		conn, err := ada.WatchPresence(ctx, user.TenantID, "/tasks")
		require.NoError(t, err)
		defer conn.Close()

		msg, err := conn.Recv(ctx)
		require.NoError(t, err)
		require.Equal(t, opsdashsdk.PresenceMessageSession, msg.Type)
		require.NotEqual(t, uuid.Nil, msg.SessionID)

		s, err := api.Database.GetSessionByID(ctx, msg.SessionID)
		require.NoError(t, err)
		require.Equal(t, user.ID, s.UserID)
		require.Equal(t, "/tasks", s.Page)

		// The tab's own entry is present before any sync arrives.
		msg, err = conn.Recv(ctx)
		require.NoError(t, err)
		require.Equal(t, opsdashsdk.PresenceMessageRoster, msg.Type)
		require.NotEmpty(t, msg.Roster)
		require.Equal(t, user.ID, msg.Roster[0].UserID)
		require.Equal(t, "Ada Lovelace", msg.Roster[0].FullName)
		require.Equal(t, "/tasks", msg.Roster[0].Page)
	})

	t.Run("PeersNavigateAndLeave", func(t *testing.T) {
		t.Parallel()
		ctx := testutil.Context(t, testutil.WaitLong)
		client, api := opsdashdtest.New(t, nil)
		tenantID := uuid.New()
		ada, adaUser := opsdashdtest.CreateUser(t, client, api.Database, tenantID, "Ada Lovelace")
		grace, graceUser := opsdashdtest.CreateUser(t, client, api.Database, tenantID, "Grace Hopper")

		adaConn, err := ada.WatchPresence(ctx, tenantID, "/tasks")
		require.NoError(t, err)
		defer adaConn.Close()
		graceConn, err := grace.WatchPresence(ctx, tenantID, "/finance")
		require.NoError(t, err)

		awaitRoster(ctx, t, adaConn, onPage(graceUser.ID, "/finance"))
		awaitRoster(ctx, t, graceConn, onPage(adaUser.ID, "/tasks"))

		require.NoError(t, graceConn.Navigate(ctx, "/settings"))
		// Grace's own tab reflects the move without waiting for a sync.
		awaitRoster(ctx, t, graceConn, onPage(graceUser.ID, "/settings"))
		awaitRoster(ctx, t, adaConn, onPage(graceUser.ID, "/settings"))

		require.NoError(t, graceConn.Close())
		awaitRoster(ctx, t, adaConn, absent(graceUser.ID))
	})

	t.Run("TenantsAreIsolated", func(t *testing.T) {
		t.Parallel()
		ctx := testutil.Context(t, testutil.WaitLong)
		client, api := opsdashdtest.New(t, nil)
		ada, adaUser := opsdashdtest.CreateUser(t, client, api.Database, uuid.New(), "Ada Lovelace")
		grace, graceUser := opsdashdtest.CreateUser(t, client, api.Database, uuid.New(), "Grace Hopper")

		adaConn, err := ada.WatchPresence(ctx, adaUser.TenantID, "/tasks")
		require.NoError(t, err)
		defer adaConn.Close()
		graceConn, err := grace.WatchPresence(ctx, graceUser.TenantID, "/tasks")
		require.NoError(t, err)
		defer graceConn.Close()

		require.NoError(t, graceConn.Navigate(ctx, "/finance"))
		awaitRoster(ctx, t, graceConn, onPage(graceUser.ID, "/finance"))
		require.NoError(t, adaConn.Navigate(ctx, "/done"))
		roster := awaitRoster(ctx, t, adaConn, onPage(adaUser.ID, "/done"))
		require.Len(t, roster, 1)
	})

	t.Run("ForeignTenantForbidden", func(t *testing.T) {
		t.Parallel()
		ctx := testutil.Context(t, testutil.WaitShort)
		client, api := opsdashdtest.New(t, nil)
		ada, _ := opsdashdtest.CreateUser(t, client, api.Database, uuid.New(), "Ada Lovelace")

		_, err := ada.WatchPresence(ctx, uuid.New(), "/tasks")
		require.True(t, opsdashsdk.IsStatus(err, http.StatusForbidden), "got %v", err)
	})

	t.Run("DisconnectClosesSession", func(t *testing.T) {
		t.Parallel()
		ctx := testutil.Context(t, testutil.WaitLong)
		client, api := opsdashdtest.New(t, nil)
		ada, user := opsdashdtest.CreateUser(t, client, api.Database, uuid.New(), "Ada Lovelace")

		conn, err := ada.WatchPresence(ctx, user.TenantID, "/tasks")
		require.NoError(t, err)
		msg, err := conn.Recv(ctx)
		require.NoError(t, err)
		require.NoError(t, conn.Navigate(ctx, "/finance"))
		awaitRoster(ctx, t, conn, onPage(user.ID, "/finance"))
		require.NoError(t, conn.Close())

		require.Eventually(t, func() bool {
			s, err := api.Database.GetSessionByID(ctx, msg.SessionID)
			return err == nil && s.Closed()
		}, testutil.WaitShort, testutil.IntervalFast)

		s, err := api.Database.GetSessionByID(ctx, msg.SessionID)
		require.NoError(t, err)
		require.Equal(t, "/finance", s.Page)
		require.False(t, s.EndedAt.Time.Before(s.StartedAt))
	})

	t.Run("ShutdownClosesSessions", func(t *testing.T) {
		t.Parallel()
		ctx := testutil.Context(t, testutil.WaitLong)
		client, api := opsdashdtest.New(t, nil)
		ada, user := opsdashdtest.CreateUser(t, client, api.Database, uuid.New(), "Ada Lovelace")

		conn, err := ada.WatchPresence(ctx, user.TenantID, "/tasks")
		require.NoError(t, err)
		defer conn.Close()
		msg, err := conn.Recv(ctx)
		require.NoError(t, err)

		require.NoError(t, api.Close())
		s, err := api.Database.GetSessionByID(ctx, msg.SessionID)
		require.NoError(t, err)
		require.True(t, s.Closed())

		// New connections are refused once closing.
		_, err = ada.WatchPresence(ctx, user.TenantID, "/tasks")
		require.Error(t, err)
	})
}

func TestPostSessionClose(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t, testutil.WaitLong)
	client, api := opsdashdtest.New(t, nil)
	tenantID := uuid.New()
	ada, user := opsdashdtest.CreateUser(t, client, api.Database, tenantID, "Ada Lovelace")
	grace, _ := opsdashdtest.CreateUser(t, client, api.Database, tenantID, "Grace Hopper")

	conn, err := ada.WatchPresence(ctx, user.TenantID, "/tasks")
	require.NoError(t, err)
	defer conn.Close()
	msg, err := conn.Recv(ctx)
	require.NoError(t, err)

	err = grace.CloseSession(ctx, msg.SessionID)
	require.True(t, opsdashsdk.IsStatus(err, http.StatusForbidden), "got %v", err)

	err = ada.CloseSession(ctx, uuid.New())
	require.True(t, opsdashsdk.IsStatus(err, http.StatusNotFound), "got %v", err)

	// The beacon lands before the connection notices the tab is gone.
	require.NoError(t, ada.CloseSession(ctx, msg.SessionID))
	first, err := api.Database.GetSessionByID(ctx, msg.SessionID)
	require.NoError(t, err)
	require.True(t, first.Closed())

	require.NoError(t, ada.CloseSession(ctx, msg.SessionID))
	require.NoError(t, conn.Close())

	// Neither the repeated beacon nor the disconnect moves ended_at.
	require.Never(t, func() bool {
		s, err := api.Database.GetSessionByID(ctx, msg.SessionID)
		return err != nil || !s.EndedAt.Time.Equal(first.EndedAt.Time)
	}, 250*time.Millisecond, testutil.IntervalFast)
}

func TestSessionCloseRateLimit(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t, testutil.WaitShort)
	client, api := opsdashdtest.New(t, &opsdashdtest.Options{SessionCloseRateLimit: 2})
	tenantID := uuid.New()
	ada, _ := opsdashdtest.CreateUser(t, client, api.Database, tenantID, "Ada Lovelace")
	grace, _ := opsdashdtest.CreateUser(t, client, api.Database, tenantID, "Grace Hopper")

	for range 2 {
		err := ada.CloseSession(ctx, uuid.New())
		require.True(t, opsdashsdk.IsStatus(err, http.StatusNotFound), "got %v", err)
	}
	err := ada.CloseSession(ctx, uuid.New())
	require.True(t, opsdashsdk.IsStatus(err, http.StatusTooManyRequests), "got %v", err)

	// The limit is per user.
	err = grace.CloseSession(ctx, uuid.New())
	require.True(t, opsdashsdk.IsStatus(err, http.StatusNotFound), "got %v", err)
}
