// Package opsdashd serves the presence and activity API. Each websocket
// connection to the presence endpoint plays the part of one browser tab: it
// owns one session Recorder and one presence Client for its lifetime.
package opsdashd

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cdr.dev/slog/v3"
	"github.com/coder/quartz"

	"github.com/coder/opsdash/activity"
	"github.com/coder/opsdash/database"
	"github.com/coder/opsdash/database/pubsub"
	"github.com/coder/opsdash/opsdashd/activewebsockets"
	"github.com/coder/opsdash/opsdashd/httpapi"
	"github.com/coder/opsdash/opsdashd/httpmw"
	"github.com/coder/opsdash/opsdashsdk"
	"github.com/coder/opsdash/presence"
	"github.com/coder/opsdash/session"
)

// Options are required parameters for opsdashd to start.
type Options struct {
	Logger   slog.Logger
	Database database.Store
	Pubsub   pubsub.Pubsub
	// Clock defaults to the real clock.
	Clock quartz.Clock
	// PrometheusRegistry is served on /metrics. Nil creates a fresh registry.
	PrometheusRegistry *prometheus.Registry

	HeartbeatInterval       time.Duration
	PresenceRefreshInterval time.Duration
	PresenceExpireAfter     time.Duration
	ReportMaxRows           int32

	// AllowedOrigins may call the API from a browser, which is how pages
	// send the unload beacon. Empty disables CORS.
	AllowedOrigins []string
	// SessionCloseRateLimit caps beacon requests per user per minute.
	// Zero uses the default and a negative value disables the limit.
	SessionCloseRateLimit int
}

const DefaultSessionCloseRateLimit = 60

// API is the opsdashd HTTP handler.
type API struct {
	*Options

	RootHandler chi.Router

	ctx    context.Context
	cancel context.CancelFunc

	websockets      *activewebsockets.Active
	transport       *presence.PubsubTransport
	reporter        *activity.Reporter
	sessionMetrics  *session.Metrics
	presenceMetrics *presence.Metrics
}

// New constructs the opsdashd API. Close must be called to release open
// websocket connections.
func New(options *Options) *API {
	if options == nil {
		options = &Options{}
	}
	if options.Clock == nil {
		options.Clock = quartz.NewReal()
	}
	if options.PrometheusRegistry == nil {
		options.PrometheusRegistry = prometheus.NewRegistry()
	}
	if options.HeartbeatInterval == 0 {
		options.HeartbeatInterval = session.DefaultHeartbeatInterval
	}
	if options.PresenceRefreshInterval == 0 {
		options.PresenceRefreshInterval = presence.DefaultRefreshInterval
	}
	if options.PresenceExpireAfter == 0 {
		options.PresenceExpireAfter = presence.DefaultExpireAfter
	}
	if options.ReportMaxRows == 0 {
		options.ReportMaxRows = activity.DefaultMaxRows
	}
	if options.SessionCloseRateLimit == 0 {
		options.SessionCloseRateLimit = DefaultSessionCloseRateLimit
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := chi.NewRouter()
	api := &API{
		Options:     options,
		RootHandler: r,
		ctx:         ctx,
		cancel:      cancel,
		websockets:  activewebsockets.New(ctx),
		transport: presence.NewPubsubTransport(options.Pubsub,
			presence.WithTransportLogger(options.Logger.Named("presence_transport")),
			presence.WithTransportClock(options.Clock),
			presence.WithRefreshInterval(options.PresenceRefreshInterval),
			presence.WithExpireAfter(options.PresenceExpireAfter),
		),
		reporter: activity.NewReporter(options.Database,
			activity.WithLogger(options.Logger.Named("activity")),
			activity.WithClock(options.Clock),
			activity.WithMaxRows(options.ReportMaxRows),
		),
		sessionMetrics:  session.NewMetrics(options.PrometheusRegistry),
		presenceMetrics: presence.NewMetrics(options.PrometheusRegistry),
	}
	api.registerConnectionGauge()

	r.Use(
		httpmw.AttachRequestID,
		httpmw.Logger(options.Logger.Named("http")),
		httpmw.Recover(options.Logger),
	)
	r.Get("/healthz", api.healthz)
	r.Handle("/metrics", promhttp.HandlerFor(options.PrometheusRegistry, promhttp.HandlerOpts{}))
	r.Route("/api/v1", func(r chi.Router) {
		if len(options.AllowedOrigins) > 0 {
			// Preflight requests carry no identity, so CORS runs first.
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins: options.AllowedOrigins,
				AllowedMethods: []string{http.MethodGet, http.MethodPost},
				AllowedHeaders: []string{opsdashsdk.UserIDHeader, "Content-Type"},
				ExposedHeaders: []string{httpmw.RequestIDHeader},
				MaxAge:         300,
			}))
		}
		r.Use(httpmw.ExtractUser(options.Database))
		r.NotFound(func(rw http.ResponseWriter, _ *http.Request) {
			httpapi.ResourceNotFound(rw)
		})
		r.Get("/tenants/{tenant}/presence/watch", api.watchPresence)
		r.With(api.sessionCloseLimiter()).Post("/sessions/{session}/close", api.postSessionClose)
		r.Get("/activity", api.getActivity)
	})
	return api
}

// sessionCloseLimiter throttles the unload beacon per acting user. A page
// sends it at most once per tab, so a burst means a misbehaving client.
func (api *API) sessionCloseLimiter() func(http.Handler) http.Handler {
	if api.SessionCloseRateLimit < 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		api.SessionCloseRateLimit,
		time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return httpmw.User(r).ID.String(), nil
		}),
		httprate.WithLimitHandler(func(rw http.ResponseWriter, r *http.Request) {
			httpapi.Write(r.Context(), rw, http.StatusTooManyRequests, opsdashsdk.Response{
				Message: "Too many session close requests. Please try again later.",
			})
		}),
	)
}

func (api *API) registerConnectionGauge() {
	gauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "opsdash",
		Name:      "presence_connections",
		Help:      "Number of connected presence websockets.",
	}, func() float64 {
		return float64(api.websockets.Count())
	})
	api.PrometheusRegistry.MustRegister(gauge)
}

func (api *API) healthz(rw http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	latency, err := api.Database.Ping(ctx)
	if err != nil {
		httpapi.Write(ctx, rw, http.StatusServiceUnavailable, opsdashsdk.Response{
			Message: "Database is unreachable.",
			Detail:  err.Error(),
		})
		return
	}
	httpapi.Write(ctx, rw, http.StatusOK, opsdashsdk.HealthResponse{
		DatabaseLatency: latency.String(),
	})
}

// Close ends every presence connection, which closes their sessions, and
// waits for them to finish.
func (api *API) Close() error {
	api.cancel()
	api.websockets.Close()
	return nil
}
