package opsdashd

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"cdr.dev/slog/v3"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/coder/opsdash/database"
	"github.com/coder/opsdash/opsdashd/httpapi"
	"github.com/coder/opsdash/opsdashd/httpmw"
	"github.com/coder/opsdash/opsdashsdk"
	"github.com/coder/opsdash/presence"
	"github.com/coder/opsdash/session"
)

func (api *API) watchPresence(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := httpmw.User(r)
	tenantID, ok := httpmw.ParseUUIDParam(rw, r, "tenant")
	if !ok {
		return
	}
	if tenantID != user.TenantID {
		httpapi.Forbidden(rw)
		return
	}
	page := r.URL.Query().Get("page")

	api.websockets.Accept(rw, r, nil, func(ctx context.Context, conn *websocket.Conn) {
		api.servePresence(ctx, conn, user, page)
	})
	api.Logger.Debug(ctx, "presence connection ended", slog.F("user_id", user.ID))
}

// tab is the server half of one presence connection.
type tab struct {
	logger   slog.Logger
	user     database.User
	recorder *session.Recorder
	client   *presence.Client

	// changed is signaled whenever the roster or the page changes.
	changed chan struct{}

	mu     sync.Mutex
	page   string
	roster []presence.Entry
}

func (t *tab) signal() {
	select {
	case t.changed <- struct{}{}:
	default:
	}
}

func (t *tab) currentRoster() []presence.Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.roster
}

func (api *API) servePresence(ctx context.Context, conn *websocket.Conn, user database.User, page string) {
	logger := api.Logger.With(slog.F("user_id", user.ID), slog.F("tenant_id", user.TenantID))
	t := &tab{
		logger: logger,
		user:   user,
		recorder: session.New(api.Database,
			session.WithLogger(logger.Named("session")),
			session.WithClock(api.Clock),
			session.WithHeartbeatInterval(api.HeartbeatInterval),
			session.WithMetrics(api.sessionMetrics),
		),
		client: presence.NewClient(api.transport,
			presence.WithLogger(logger.Named("presence")),
			presence.WithClock(api.Clock),
			presence.WithMetrics(api.presenceMetrics),
		),
		changed: make(chan struct{}, 1),
		page:    page,
	}

	sessionID, _ := t.recorder.Open(ctx, user.ID, page)
	// Close the session before leaving the channel. Teardown must run even
	// though ctx is already done by then.
	defer func() {
		teardown := context.WithoutCancel(ctx)
		t.recorder.Close(teardown)
		t.client.Leave(teardown)
	}()

	err := wsjson.Write(ctx, conn, opsdashsdk.PresenceServerMessage{
		Type:      opsdashsdk.PresenceMessageSession,
		SessionID: sessionID,
	})
	if err != nil {
		logger.Debug(ctx, "write session message", slog.Error(err))
		return
	}

	cancelSync := t.client.OnSync(func(roster []presence.Entry) {
		t.mu.Lock()
		t.roster = roster
		t.mu.Unlock()
		t.signal()
	})
	defer cancelSync()
	t.client.Join(ctx, user.TenantID, user.ID)
	t.client.Publish(ctx, api.selfEntry(t))
	t.signal()

	readCtx, cancelRead := context.WithCancel(ctx)
	navigations := make(chan string)
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		t.read(readCtx, conn, navigations)
	}()
	defer func() {
		cancelRead()
		<-readDone
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-readDone:
			return
		case page := <-navigations:
			t.mu.Lock()
			t.page = page
			t.mu.Unlock()
			t.recorder.Navigate(ctx, page)
			t.client.Publish(ctx, api.selfEntry(t))
			t.signal()
		case <-t.changed:
			err := wsjson.Write(ctx, conn, opsdashsdk.PresenceServerMessage{
				Type:   opsdashsdk.PresenceMessageRoster,
				Roster: presence.Merge(t.currentRoster(), api.selfEntry(t)),
			})
			if err != nil {
				logger.Debug(ctx, "write roster message", slog.Error(err))
				return
			}
		}
	}
}

func (api *API) selfEntry(t *tab) presence.Entry {
	t.mu.Lock()
	page := t.page
	t.mu.Unlock()
	return presence.SelfEntry(t.user, page, api.Clock.Now())
}

// read forwards navigations until the connection closes or ctx ends.
// Malformed messages are logged and skipped.
func (t *tab) read(ctx context.Context, conn *websocket.Conn, navigations chan<- string) {
	for {
		var msg opsdashsdk.PresenceClientMessage
		err := wsjson.Read(ctx, conn, &msg)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				t.logger.Debug(ctx, "read presence message", slog.Error(err))
			}
			return
		}
		if msg.Type != opsdashsdk.PresenceMessageNavigate {
			t.logger.Warn(ctx, "ignoring unknown presence message", slog.F("type", msg.Type))
			continue
		}
		select {
		case navigations <- msg.Page:
		case <-ctx.Done():
			return
		}
	}
}

// postSessionClose is the unload beacon. It races the connection's own close;
// whichever lands second is a no-op.
func (api *API) postSessionClose(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := httpmw.User(r)
	sessionID, ok := httpmw.ParseUUIDParam(rw, r, "session")
	if !ok {
		return
	}

	_, err := session.CloseByID(ctx, api.Database, api.Clock, user.ID, sessionID)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrNotFound):
		httpapi.ResourceNotFound(rw)
		return
	case errors.Is(err, session.ErrNotOwner):
		httpapi.Forbidden(rw)
		return
	default:
		httpapi.InternalServerError(rw, err)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}
