package presence_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coder/opsdash/presence"
	"github.com/coder/opsdash/testutil"
)

func TestPubsubTransport(t *testing.T) {
	t.Parallel()

	t.Run("SnapshotOrderedByFirstSeen", func(t *testing.T) {
		t.Parallel()
		ctx := testutil.Context(t, testutil.WaitShort)
		h := newHarness(t)

		snaps := make(chan presence.Snapshot, 16)
		observer, err := h.transport.Join(ctx, "presence:test", "observer", func(s presence.Snapshot) {
			snaps <- s
		})
		require.NoError(t, err)
		defer observer.Leave()

		first, err := h.transport.Join(ctx, "presence:test", "first", nil)
		require.NoError(t, err)
		defer first.Leave()
		require.NoError(t, first.Track(ctx, json.RawMessage(`{"n":1}`)))
		require.Equal(t, presence.Snapshot{{Key: "first", State: json.RawMessage(`{"n":1}`)}},
			testutil.RequireReceive(ctx, t, snaps))

		second, err := h.transport.Join(ctx, "presence:test", "second", nil)
		require.NoError(t, err)
		defer second.Leave()
		require.NoError(t, second.Track(ctx, json.RawMessage(`{"n":2}`)))
		snap := testutil.RequireReceive(ctx, t, snaps)
		require.Len(t, snap, 2)
		require.Equal(t, "first", snap[0].Key)
		require.Equal(t, "second", snap[1].Key)

		// Updating state keeps the member's position.
		require.NoError(t, first.Track(ctx, json.RawMessage(`{"n":3}`)))
		snap = testutil.RequireReceive(ctx, t, snaps)
		require.Equal(t, "first", snap[0].Key)
		require.JSONEq(t, `{"n":3}`, string(snap[0].State))

		require.NoError(t, first.Leave())
		snap = testutil.RequireReceive(ctx, t, snaps)
		require.Equal(t, presence.Snapshot{{Key: "second", State: json.RawMessage(`{"n":2}`)}}, snap)
	})

	t.Run("TrackAfterLeave", func(t *testing.T) {
		t.Parallel()
		ctx := testutil.Context(t, testutil.WaitShort)
		h := newHarness(t)

		m, err := h.transport.Join(ctx, "presence:test", "key", nil)
		require.NoError(t, err)
		require.NoError(t, m.Leave())
		require.NoError(t, m.Leave())
		require.Error(t, m.Track(ctx, json.RawMessage(`{}`)))
		require.Equal(t, 0, h.ps.Subscribers("presence:test"))
	})

	t.Run("InvalidJoin", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)

		_, err := h.transport.Join(context.Background(), "presence:test", "", nil)
		require.Error(t, err)

		canceled, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = h.transport.Join(canceled, "presence:test", "key", nil)
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("InvalidState", func(t *testing.T) {
		t.Parallel()
		ctx := testutil.Context(t, testutil.WaitShort)
		h := newHarness(t)

		m, err := h.transport.Join(ctx, "presence:test", "key", nil)
		require.NoError(t, err)
		defer m.Leave()
		require.Error(t, m.Track(ctx, json.RawMessage(`{`)))
	})
}
