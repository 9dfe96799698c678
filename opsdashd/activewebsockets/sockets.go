package activewebsockets

import (
	"context"
	"net/http"
	"runtime/pprof"
	"sync"

	"github.com/coder/websocket"

	"github.com/coder/opsdash/opsdashd/httpapi"
	"github.com/coder/opsdash/opsdashsdk"
)

// Active tracks open websocket connections. All connections are closed when
// the parent context is canceled or Close is called.
type Active struct {
	ctx    context.Context
	cancel func()

	mu   sync.Mutex
	wg   sync.WaitGroup
	open int
}

func New(ctx context.Context) *Active {
	ctx, cancel := context.WithCancel(ctx)
	return &Active{
		ctx:    ctx,
		cancel: cancel,
	}
}

// Accept accepts a websocket connection and calls f with it. The context
// passed to f is canceled when the connection must end, and the connection is
// closed once f returns.
func (a *Active) Accept(rw http.ResponseWriter, r *http.Request, options *websocket.AcceptOptions, f func(ctx context.Context, conn *websocket.Conn)) {
	// Checked under mu so Close never races a late wg.Add.
	a.mu.Lock()
	if err := a.ctx.Err(); err != nil {
		a.mu.Unlock()
		httpapi.Write(r.Context(), rw, http.StatusServiceUnavailable, opsdashsdk.Response{
			Message: "No longer accepting websocket requests.",
			Detail:  err.Error(),
		})
		return
	}
	a.wg.Add(1)
	a.open++
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.open--
		a.mu.Unlock()
		a.wg.Done()
	}()

	conn, err := websocket.Accept(rw, r, options)
	if err != nil {
		// Accept has already written the handshake failure.
		return
	}
	// The connection ends when the server shuts down or the request context
	// ends, whichever comes first.
	ctx, cancel := context.WithCancel(a.ctx)
	defer cancel()
	stop := context.AfterFunc(r.Context(), cancel)
	defer stop()
	closeConnOnContext(ctx, conn)

	f(ctx, conn)
	_ = conn.Close(websocket.StatusNormalClosure, "")
}

// closeConnOnContext launches a go routine that will watch a given context
// and close a websocket connection if that context is canceled.
func closeConnOnContext(ctx context.Context, conn *websocket.Conn) {
	// Labeling the go routine for goroutine dumps/debugging.
	go pprof.Do(ctx, pprof.Labels("service", "ActiveWebsockets"), func(ctx context.Context) {
		<-ctx.Done()
		_ = conn.Close(websocket.StatusGoingAway, "")
	})
}

// Count returns the number of connections currently being served.
func (a *Active) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.open
}

// Close will close all active websocket connections and wait for them to
// finish.
func (a *Active) Close() {
	a.mu.Lock()
	a.cancel()
	a.mu.Unlock()
	a.wg.Wait()
}
