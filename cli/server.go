package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"cdr.dev/slog/v3"
	"cdr.dev/slog/v3/sloggers/sloghuman"
	"github.com/coder/retry"
	"github.com/coder/serpent"

	"github.com/coder/opsdash/activity"
	"github.com/coder/opsdash/cli/cliui"
	"github.com/coder/opsdash/database"
	"github.com/coder/opsdash/database/dbmem"
	"github.com/coder/opsdash/database/migrations"
	"github.com/coder/opsdash/database/pubsub"
	"github.com/coder/opsdash/opsdashd"
	"github.com/coder/opsdash/presence"
	"github.com/coder/opsdash/session"
)

// ServerOptions is the server's configuration, bound to flags and
// environment variables.
type ServerOptions struct {
	HTTPAddress             string
	PostgresURL             string
	RedisURL                string
	HeartbeatInterval       time.Duration
	PresenceRefreshInterval time.Duration
	PresenceExpireAfter     time.Duration
	ReportMaxRows           int64
	AllowedOrigins          []string
	SessionCloseRateLimit   int64
}

func (o *ServerOptions) attach(opts *serpent.OptionSet) {
	*opts = append(*opts,
		serpent.Option{
			Name:        "HTTP Address",
			Flag:        "http-address",
			Env:         "OPSDASH_HTTP_ADDRESS",
			Description: "HTTP bind address of the server.",
			Default:     "127.0.0.1:3000",
			Value:       serpent.StringOf(&o.HTTPAddress),
		},
		serpent.Option{
			Name:        "Postgres Connection URL",
			Flag:        "postgres-url",
			Env:         "OPSDASH_PG_CONNECTION_URL",
			Description: "URL of a PostgreSQL database. If empty, sessions are kept in memory and lost on restart.",
			Value:       serpent.StringOf(&o.PostgresURL),
		},
		serpent.Option{
			Name:        "Redis URL",
			Flag:        "redis-url",
			Env:         "OPSDASH_REDIS_URL",
			Description: "URL of a Redis server used for presence messages. If empty, Postgres LISTEN/NOTIFY is used, or an in-process bus without Postgres.",
			Value:       serpent.StringOf(&o.RedisURL),
		},
		serpent.Option{
			Name:        "Heartbeat Interval",
			Flag:        "heartbeat-interval",
			Env:         "OPSDASH_HEARTBEAT_INTERVAL",
			Description: "How often an open session's last seen time is refreshed.",
			Default:     session.DefaultHeartbeatInterval.String(),
			Value:       serpent.DurationOf(&o.HeartbeatInterval),
		},
		serpent.Option{
			Name:        "Presence Refresh Interval",
			Flag:        "presence-refresh-interval",
			Env:         "OPSDASH_PRESENCE_REFRESH_INTERVAL",
			Description: "How often each tab re-announces its presence state.",
			Default:     presence.DefaultRefreshInterval.String(),
			Value:       serpent.DurationOf(&o.PresenceRefreshInterval),
		},
		serpent.Option{
			Name:        "Presence Expire After",
			Flag:        "presence-expire-after",
			Env:         "OPSDASH_PRESENCE_EXPIRE_AFTER",
			Description: "How long a silent tab stays in the roster.",
			Default:     presence.DefaultExpireAfter.String(),
			Value:       serpent.DurationOf(&o.PresenceExpireAfter),
		},
		serpent.Option{
			Name:        "Report Max Rows",
			Flag:        "report-max-rows",
			Env:         "OPSDASH_REPORT_MAX_ROWS",
			Description: "The most sessions an activity report reads.",
			Default:     fmt.Sprint(activity.DefaultMaxRows),
			Value:       serpent.Int64Of(&o.ReportMaxRows),
		},
		serpent.Option{
			Name:        "Allowed Origins",
			Flag:        "allowed-origins",
			Env:         "OPSDASH_ALLOWED_ORIGINS",
			Description: "Browser origins allowed to call the API, such as the dashboard sending the session close beacon.",
			Value:       serpent.StringArrayOf(&o.AllowedOrigins),
		},
		serpent.Option{
			Name:        "Session Close Rate Limit",
			Flag:        "session-close-rate-limit",
			Env:         "OPSDASH_SESSION_CLOSE_RATE_LIMIT",
			Description: "Session close requests allowed per user per minute. Set to -1 to disable.",
			Default:     fmt.Sprint(opsdashd.DefaultSessionCloseRateLimit),
			Value:       serpent.Int64Of(&o.SessionCloseRateLimit),
		},
	)
}

func (o *ServerOptions) valid() error {
	if o.PresenceExpireAfter <= o.PresenceRefreshInterval {
		return xerrors.Errorf("presence expire after (%s) must be longer than the refresh interval (%s)",
			o.PresenceExpireAfter, o.PresenceRefreshInterval)
	}
	if o.HeartbeatInterval <= 0 {
		return xerrors.New("heartbeat interval must be positive")
	}
	if o.ReportMaxRows <= 0 || o.ReportMaxRows > int64(^uint32(0)>>1) {
		return xerrors.Errorf("report max rows %d is out of range", o.ReportMaxRows)
	}
	if o.SessionCloseRateLimit == 0 || o.SessionCloseRateLimit < -1 {
		return xerrors.Errorf("session close rate limit must be positive or -1, got %d", o.SessionCloseRateLimit)
	}
	return nil
}

func (r *RootCmd) server() *serpent.Command {
	var opts ServerOptions
	cmd := &serpent.Command{
		Use:        "server",
		Short:      "Start the opsdash server.",
		Middleware: serpent.RequireNArgs(0),
		Handler: func(inv *serpent.Invocation) error {
			if err := opts.valid(); err != nil {
				return err
			}

			logger := slog.Make(sloghuman.Sink(inv.Stderr))
			if r.verbose {
				logger = logger.Leveled(slog.LevelDebug)
			}

			ctx, stop := inv.SignalNotifyContext(inv.Context(), StopSignals...)
			defer stop()

			return runServer(ctx, logger, inv.Stdout, opts)
		},
	}
	opts.attach(&cmd.Options)
	return cmd
}

func runServer(ctx context.Context, logger slog.Logger, out io.Writer, opts ServerOptions) error {
	var (
		db    database.Store
		sqlDB *sql.DB
		ps    pubsub.Pubsub
		err   error
	)
	if opts.PostgresURL == "" {
		cliui.Warn(out, "No Postgres URL configured; sessions are stored in memory and lost on restart.")
		db = dbmem.New()
	} else {
		sqlDB, err = ConnectToPostgres(ctx, logger, opts.PostgresURL)
		if err != nil {
			return xerrors.Errorf("connect to postgres: %w", err)
		}
		defer sqlDB.Close()
		db = database.New(sqlDB)
	}

	switch {
	case opts.RedisURL != "":
		redisOpts, err := redis.ParseURL(opts.RedisURL)
		if err != nil {
			return xerrors.Errorf("parse redis url: %w", err)
		}
		rdb := redis.NewClient(redisOpts)
		defer rdb.Close()
		redisPubsub, err := pubsub.NewRedis(ctx, logger.Named("pubsub"), rdb)
		if err != nil {
			return xerrors.Errorf("create redis pubsub: %w", err)
		}
		ps = redisPubsub
	case sqlDB != nil:
		pgPubsub, err := pubsub.NewPG(ctx, logger.Named("pubsub"), sqlDB, opts.PostgresURL)
		if err != nil {
			return xerrors.Errorf("create postgres pubsub: %w", err)
		}
		ps = pgPubsub
	default:
		ps = pubsub.NewInMemory()
	}
	defer ps.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	api := opsdashd.New(&opsdashd.Options{
		Logger:                  logger.Named("opsdashd"),
		Database:                db,
		Pubsub:                  ps,
		PrometheusRegistry:      reg,
		HeartbeatInterval:       opts.HeartbeatInterval,
		PresenceRefreshInterval: opts.PresenceRefreshInterval,
		PresenceExpireAfter:     opts.PresenceExpireAfter,
		ReportMaxRows:           int32(opts.ReportMaxRows),
		AllowedOrigins:          opts.AllowedOrigins,
		SessionCloseRateLimit:   int(opts.SessionCloseRateLimit),
	})

	listener, err := net.Listen("tcp", opts.HTTPAddress)
	if err != nil {
		_ = api.Close()
		return xerrors.Errorf("listen on %q: %w", opts.HTTPAddress, err)
	}
	server := &http.Server{
		Handler:           api.RootHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	_, _ = fmt.Fprintf(out, "Started HTTP listener at http://%s\n", listener.Addr())

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		err := server.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	eg.Go(func() error {
		<-egCtx.Done()
		_, _ = fmt.Fprintln(out, "Shutting down API server...")
		// Stop accepting new connections and give in-flight requests
		// 5 seconds to complete.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		if err != nil {
			logger.Warn(ctx, "api server shutdown took longer than 5s", slog.Error(err))
		}
		// Websockets are hijacked and not covered by Shutdown. Closing
		// them ends their sessions.
		_, _ = fmt.Fprintln(out, "Waiting for presence connections to close...")
		return api.Close()
	})
	err = eg.Wait()
	if err != nil {
		return xerrors.Errorf("serve: %w", err)
	}
	_, _ = fmt.Fprintln(out, "Gracefully shut down")
	return nil
}

// ConnectToPostgres opens dbURL, retrying until the database answers, and
// migrates it to the latest version.
func ConnectToPostgres(ctx context.Context, logger slog.Logger, dbURL string) (*sql.DB, error) {
	logger.Debug(ctx, "connecting to postgresql")

	const maxAttempts = 10
	var (
		sqlDB   *sql.DB
		err     error
		attempt int
	)
	for r := retry.New(time.Second, 10*time.Second); r.Wait(ctx); {
		attempt++
		sqlDB, err = pingPostgres(ctx, dbURL)
		if err == nil {
			break
		}
		logger.Warn(ctx, "failed to connect to postgres",
			slog.F("attempt", attempt), slog.Error(err))
		if attempt >= maxAttempts {
			return nil, xerrors.Errorf("ping postgres after %d attempts: %w", attempt, err)
		}
	}
	if sqlDB == nil {
		return nil, xerrors.Errorf("connect to postgres: %w", ctx.Err())
	}

	err = migrations.Up(sqlDB)
	if err != nil {
		_ = sqlDB.Close()
		return nil, xerrors.Errorf("migrate up: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(3)
	logger.Debug(ctx, "connected to postgresql")
	return sqlDB, nil
}

func pingPostgres(ctx context.Context, dbURL string) (*sql.DB, error) {
	sqlDB, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, xerrors.Errorf("open: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, xerrors.Errorf("ping: %w", err)
	}
	return sqlDB, nil
}
