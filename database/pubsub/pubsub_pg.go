package pubsub

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"golang.org/x/xerrors"

	"cdr.dev/slog/v3"
)

// PGPubsub is a Pubsub implementation using PostgreSQL LISTEN/NOTIFY.
type PGPubsub struct {
	logger     slog.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	listenDone chan struct{}
	pgListener *pq.Listener
	db         *sql.DB

	mut       sync.Mutex
	queues    map[string]map[uuid.UUID]*msgQueue
	closeOnce sync.Once
	closeErr  error
}

var _ Pubsub = (*PGPubsub)(nil)

// NewPG creates a new Pubsub implementation using a PostgreSQL connection.
// connectURL is used by the dedicated listener connection; db is used to
// publish.
func NewPG(startCtx context.Context, logger slog.Logger, db *sql.DB, connectURL string) (*PGPubsub, error) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &PGPubsub{
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		listenDone: make(chan struct{}),
		db:         db,
		queues:     make(map[string]map[uuid.UUID]*msgQueue),
	}

	errCh := make(chan error, 1)
	var firstEvent sync.Once
	p.pgListener = pq.NewListener(connectURL, time.Second, 10*time.Second, func(event pq.ListenerEventType, err error) {
		firstEvent.Do(func() {
			errCh <- err
		})
		switch event {
		case pq.ListenerEventConnected:
			logger.Debug(ctx, "pubsub listener connected")
		case pq.ListenerEventDisconnected:
			logger.Warn(ctx, "pubsub listener disconnected", slog.Error(err))
		case pq.ListenerEventReconnected:
			logger.Info(ctx, "pubsub listener reconnected")
			p.recordReconnect()
		case pq.ListenerEventConnectionAttemptFailed:
			logger.Warn(ctx, "pubsub listener connection attempt failed", slog.Error(err))
		}
	})

	select {
	case err := <-errCh:
		if err != nil {
			cancel()
			_ = p.pgListener.Close()
			return nil, xerrors.Errorf("create pq listener: %w", err)
		}
	case <-startCtx.Done():
		cancel()
		_ = p.pgListener.Close()
		return nil, startCtx.Err()
	}

	go p.listen()
	logger.Info(ctx, "pubsub has started")
	return p, nil
}

func (p *PGPubsub) Subscribe(event string, listener Listener) (cancel func(), err error) {
	return p.subscribeQueue(event, newMsgQueue(p.ctx, listener, nil))
}

func (p *PGPubsub) SubscribeWithErr(event string, listener ListenerWithErr) (cancel func(), err error) {
	return p.subscribeQueue(event, newMsgQueue(p.ctx, nil, listener))
}

func (p *PGPubsub) subscribeQueue(event string, newQ *msgQueue) (cancel func(), err error) {
	p.mut.Lock()
	defer p.mut.Unlock()
	defer func() {
		if err != nil {
			newQ.close()
		}
	}()

	err = p.pgListener.Listen(event)
	if errors.Is(err, pq.ErrChannelAlreadyOpen) {
		// It's ok if it's already open!
		err = nil
	}
	if err != nil {
		return nil, xerrors.Errorf("listen: %w", err)
	}

	eventQs, ok := p.queues[event]
	if !ok {
		eventQs = make(map[uuid.UUID]*msgQueue)
		p.queues[event] = eventQs
	}
	id := uuid.New()
	eventQs[id] = newQ
	return func() {
		p.mut.Lock()
		defer p.mut.Unlock()
		listeners := p.queues[event]
		q, ok := listeners[id]
		if !ok {
			return
		}
		q.close()
		delete(listeners, id)

		if len(listeners) == 0 {
			delete(p.queues, event)
			uErr := p.pgListener.Unlisten(event)
			if uErr != nil && !errors.Is(uErr, pq.ErrChannelNotOpen) {
				p.logger.Warn(p.ctx, "failed to unlisten", slog.Error(uErr), slog.F("event", event))
			}
		}
	}, nil
}

func (p *PGPubsub) Publish(event string, message []byte) error {
	// This is safe because we are calling pq.QuoteLiteral. pg_notify doesn't
	// support the first parameter being a prepared statement.
	//nolint:gosec
	_, err := p.db.ExecContext(p.ctx, `select pg_notify(`+pq.QuoteLiteral(event)+`, $1)`, message)
	if err != nil {
		return xerrors.Errorf("exec pg_notify: %w", err)
	}
	return nil
}

// Close closes the pubsub instance.
func (p *PGPubsub) Close() error {
	p.closeOnce.Do(func() {
		p.logger.Info(p.ctx, "pubsub is closing")
		p.cancel()
		p.closeErr = p.pgListener.Close()
		<-p.listenDone

		p.mut.Lock()
		defer p.mut.Unlock()
		for _, qs := range p.queues {
			for _, q := range qs {
				q.close()
			}
		}
		p.queues = make(map[string]map[uuid.UUID]*msgQueue)
		p.logger.Debug(context.Background(), "pubsub closed")
	})
	return p.closeErr
}

// listen begins receiving messages on the pq listener.
func (p *PGPubsub) listen() {
	defer close(p.listenDone)
	for {
		var (
			notif *pq.Notification
			ok    bool
		)
		select {
		case <-p.ctx.Done():
			return
		case notif, ok = <-p.pgListener.Notify:
			if !ok {
				return
			}
		}
		// A nil notification can be dispatched on reconnect.
		if notif == nil {
			continue
		}
		p.listenReceive(notif)
	}
}

func (p *PGPubsub) listenReceive(notif *pq.Notification) {
	p.mut.Lock()
	defer p.mut.Unlock()
	extra := []byte(notif.Extra)
	for _, q := range p.queues[notif.Channel] {
		q.enqueue(extra)
	}
}

// recordReconnect tells every subscriber that notifications sent while the
// listener was disconnected are lost.
func (p *PGPubsub) recordReconnect() {
	p.mut.Lock()
	defer p.mut.Unlock()
	for _, qs := range p.queues {
		for _, q := range qs {
			q.dropped()
		}
	}
}
