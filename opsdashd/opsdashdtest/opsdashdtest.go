// Package opsdashdtest runs an in-process opsdashd for tests.
package opsdashdtest

import (
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/coder/quartz"

	"github.com/coder/opsdash/database"
	"github.com/coder/opsdash/database/dbtestutil"
	"github.com/coder/opsdash/database/pubsub"
	"github.com/coder/opsdash/opsdashd"
	"github.com/coder/opsdash/opsdashsdk"
	"github.com/coder/opsdash/testutil"
)

type Options struct {
	Database database.Store
	Pubsub   pubsub.Pubsub
	// Clock defaults to a mock clock set to a fixed instant.
	Clock              quartz.Clock
	PrometheusRegistry *prometheus.Registry
	ReportMaxRows      int32

	AllowedOrigins        []string
	SessionCloseRateLimit int
}

// New starts an opsdashd server and returns an unauthenticated client for
// it. Everything is torn down with the test.
func New(t testing.TB, options *Options) (*opsdashsdk.Client, *opsdashd.API) {
	t.Helper()
	if options == nil {
		options = &Options{}
	}
	if options.Database == nil {
		options.Database, options.Pubsub = dbtestutil.NewDB(t)
	}
	if options.Clock == nil {
		mClock := quartz.NewMock(t)
		mClock.Set(time.Date(2024, 3, 6, 9, 0, 0, 0, time.UTC))
		options.Clock = mClock
	}

	api := opsdashd.New(&opsdashd.Options{
		Logger:             testutil.Logger(t).Named("opsdashd"),
		Database:           options.Database,
		Pubsub:             options.Pubsub,
		Clock:              options.Clock,
		PrometheusRegistry: options.PrometheusRegistry,
		ReportMaxRows:      options.ReportMaxRows,

		AllowedOrigins:        options.AllowedOrigins,
		SessionCloseRateLimit: options.SessionCloseRateLimit,
	})
	srv := httptest.NewServer(api.RootHandler)
	t.Cleanup(func() {
		_ = api.Close()
		srv.Close()
	})

	serverURL, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return opsdashsdk.New(serverURL), api
}

// CreateUser adds a user to the identity directory and returns a client
// acting as them.
func CreateUser(t testing.TB, client *opsdashsdk.Client, db database.Store, tenantID uuid.UUID, name string) (*opsdashsdk.Client, database.User) {
	t.Helper()
	user, err := db.InsertUser(testutil.Context(t, testutil.WaitShort), database.InsertUserParams{
		TenantID:  tenantID,
		FullName:  name,
		AvatarURL: "https://example.com/" + url.PathEscape(name) + ".png",
		Role:      "member",
	})
	require.NoError(t, err)

	userClient := opsdashsdk.New(client.URL)
	userClient.HTTPClient = client.HTTPClient
	userClient.UserID = user.ID
	return userClient, user
}
