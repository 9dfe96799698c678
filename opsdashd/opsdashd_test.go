package opsdashd_test

import (
	"io"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/coder/opsdash/opsdashd/opsdashdtest"
	"github.com/coder/opsdash/opsdashsdk"
	"github.com/coder/opsdash/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, testutil.GoleakOptions...)
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t, testutil.WaitShort)
	client, _ := opsdashdtest.New(t, nil)

	health, err := client.Health(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, health.DatabaseLatency)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t, testutil.WaitShort)
	reg := prometheus.NewRegistry()
	client, api := opsdashdtest.New(t, &opsdashdtest.Options{PrometheusRegistry: reg})
	ada, user := opsdashdtest.CreateUser(t, client, api.Database, uuid.New(), "Ada Lovelace")

	conn, err := ada.WatchPresence(ctx, user.TenantID, "/tasks")
	require.NoError(t, err)
	defer conn.Close()
	msg, err := conn.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, opsdashsdk.PresenceMessageSession, msg.Type)

	require.Equal(t, float64(1), testutil.PromCounterValue(t, reg, "opsdash_sessions_opened_total"))
	require.Equal(t, float64(1), testutil.PromGaugeValue(t, reg, "opsdash_presence_connections"))

	res, err := client.Request(ctx, http.MethodGet, "/metrics", nil)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "opsdash_sessions_opened_total 1")
}

func TestIdentityRequired(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t, testutil.WaitShort)
	client, _ := opsdashdtest.New(t, nil)

	_, err := client.Activity(ctx, opsdashsdk.ActivityRequest{})
	require.True(t, opsdashsdk.IsStatus(err, http.StatusUnauthorized), "got %v", err)

	client.UserID = uuid.New()
	_, err = client.Activity(ctx, opsdashsdk.ActivityRequest{})
	require.True(t, opsdashsdk.IsStatus(err, http.StatusUnauthorized), "got %v", err)
}

func TestUnknownRoute(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t, testutil.WaitShort)
	client, api := opsdashdtest.New(t, nil)
	ada, _ := opsdashdtest.CreateUser(t, client, api.Database, uuid.New(), "Ada Lovelace")

	res, err := ada.Request(ctx, http.MethodGet, "/api/v1/nothing-here", nil)
	require.NoError(t, err)
	err = opsdashsdk.ReadBodyAsError(res)
	require.True(t, opsdashsdk.IsStatus(err, http.StatusNotFound), "got %v", err)
}

func TestCORS(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t, testutil.WaitShort)
	client, _ := opsdashdtest.New(t, &opsdashdtest.Options{
		AllowedOrigins: []string{"https://dash.example.com"},
	})

	preflight := func(origin string) *http.Response {
		req, err := http.NewRequestWithContext(ctx, http.MethodOptions, client.URL.String()+"/api/v1/activity", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodGet)
		req.Header.Set("Access-Control-Request-Headers", opsdashsdk.UserIDHeader)
		res, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		_ = res.Body.Close()
		return res
	}

	res := preflight("https://dash.example.com")
	require.Equal(t, "https://dash.example.com", res.Header.Get("Access-Control-Allow-Origin"))

	res = preflight("https://evil.example.com")
	require.Empty(t, res.Header.Get("Access-Control-Allow-Origin"))
}
