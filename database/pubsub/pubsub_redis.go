package pubsub

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/xerrors"

	"cdr.dev/slog/v3"
)

// RedisPubsub is a Pubsub implementation using Redis PUBLISH/SUBSCRIBE. Each
// event with at least one listener holds its own subscription connection.
type RedisPubsub struct {
	logger slog.Logger
	client redis.UniversalClient
	ctx    context.Context
	cancel context.CancelFunc

	mut    sync.Mutex
	closed bool
	events map[string]*redisEvent
	wg     sync.WaitGroup
}

type redisEvent struct {
	sub    *redis.PubSub
	queues map[uuid.UUID]*msgQueue
}

var _ Pubsub = (*RedisPubsub)(nil)

// NewRedis creates a Pubsub backed by client. The client is not closed by
// Close.
func NewRedis(ctx context.Context, logger slog.Logger, client redis.UniversalClient) (*RedisPubsub, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, xerrors.Errorf("ping redis: %w", err)
	}
	rctx, cancel := context.WithCancel(context.Background())
	return &RedisPubsub{
		logger: logger,
		client: client,
		ctx:    rctx,
		cancel: cancel,
		events: make(map[string]*redisEvent),
	}, nil
}

func (r *RedisPubsub) Subscribe(event string, listener Listener) (cancel func(), err error) {
	return r.subscribeQueue(event, newMsgQueue(r.ctx, listener, nil))
}

func (r *RedisPubsub) SubscribeWithErr(event string, listener ListenerWithErr) (cancel func(), err error) {
	return r.subscribeQueue(event, newMsgQueue(r.ctx, nil, listener))
}

func (r *RedisPubsub) subscribeQueue(event string, q *msgQueue) (cancel func(), err error) {
	r.mut.Lock()
	defer r.mut.Unlock()
	if r.closed {
		q.close()
		return nil, xerrors.New("pubsub is closed")
	}

	ev, ok := r.events[event]
	if !ok {
		sub := r.client.Subscribe(r.ctx, event)
		// Wait for the subscription confirmation so a Publish issued after
		// Subscribe returns is not missed.
		if _, err := sub.Receive(r.ctx); err != nil {
			_ = sub.Close()
			q.close()
			return nil, xerrors.Errorf("subscribe %q: %w", event, err)
		}
		ev = &redisEvent{sub: sub, queues: make(map[uuid.UUID]*msgQueue)}
		r.events[event] = ev
		r.wg.Add(1)
		go r.receive(event, ev)
	}

	id := uuid.New()
	ev.queues[id] = q
	return func() {
		r.mut.Lock()
		defer r.mut.Unlock()
		q, ok := ev.queues[id]
		if !ok {
			return
		}
		q.close()
		delete(ev.queues, id)
		if len(ev.queues) == 0 && r.events[event] == ev {
			delete(r.events, event)
			if err := ev.sub.Close(); err != nil {
				r.logger.Warn(r.ctx, "close redis subscription", slog.F("event", event), slog.Error(err))
			}
		}
	}, nil
}

func (r *RedisPubsub) receive(event string, ev *redisEvent) {
	defer r.wg.Done()
	for msg := range ev.sub.Channel() {
		payload := []byte(msg.Payload)
		r.mut.Lock()
		for _, q := range ev.queues {
			q.enqueue(payload)
		}
		r.mut.Unlock()
	}
	r.logger.Debug(r.ctx, "redis subscription ended", slog.F("event", event))
}

func (r *RedisPubsub) Publish(event string, message []byte) error {
	err := r.client.Publish(r.ctx, event, message).Err()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return xerrors.New("pubsub is closed")
		}
		return xerrors.Errorf("redis publish: %w", err)
	}
	return nil
}

// Close unsubscribes every event and waits for the receive loops to exit.
func (r *RedisPubsub) Close() error {
	r.mut.Lock()
	if r.closed {
		r.mut.Unlock()
		return nil
	}
	r.closed = true
	var errs []error
	for event, ev := range r.events {
		for _, q := range ev.queues {
			q.close()
		}
		if err := ev.sub.Close(); err != nil {
			errs = append(errs, xerrors.Errorf("close %q: %w", event, err))
		}
	}
	r.events = make(map[string]*redisEvent)
	r.mut.Unlock()

	r.wg.Wait()
	r.cancel()
	return errors.Join(errs...)
}
