// Package pubsub broadcasts messages between processes sharing a backend.
// Presence channels are built on top of it.
package pubsub

import (
	"context"
	"sync"

	"golang.org/x/xerrors"
)

// Listener represents a pubsub handler.
type Listener func(ctx context.Context, message []byte)

// ListenerWithErr represents a pubsub handler that can also receive error
// indications.
type ListenerWithErr func(ctx context.Context, message []byte, err error)

// ErrDroppedMessages is sent to ListenerWithErr if messages are dropped or
// might have been dropped, for example after a reconnect to the backend.
var ErrDroppedMessages = xerrors.New("dropped messages")

// Pubsub is a generic interface for broadcasting and receiving messages.
// Implementors should assume high-availability with the backing implementation.
//
// Messages published by one publisher on one event are delivered to each
// listener in the order they were published.
type Pubsub interface {
	Subscribe(event string, listener Listener) (cancel func(), err error)
	SubscribeWithErr(event string, listener ListenerWithErr) (cancel func(), err error)
	Publish(event string, message []byte) error
	Close() error
}

// BufferSize is the maximum number of unhandled messages we will buffer
// for a subscriber before dropping messages.
const BufferSize = 2048

type msgOrErr struct {
	msg []byte
	err error
}

// msgQueue delivers messages to one listener in order on its own goroutine,
// so a slow listener cannot stall the backend's receive loop.
type msgQueue struct {
	ctx    context.Context
	cond   *sync.Cond
	q      [BufferSize]msgOrErr
	front  int
	size   int
	closed bool
	l      Listener
	le     ListenerWithErr
}

func newMsgQueue(ctx context.Context, l Listener, le ListenerWithErr) *msgQueue {
	if l == nil && le == nil {
		panic("l or le must be non-nil")
	}
	q := &msgQueue{
		ctx:  ctx,
		cond: sync.NewCond(&sync.Mutex{}),
		l:    l,
		le:   le,
	}
	go q.run()
	return q
}

func (q *msgQueue) run() {
	for {
		q.cond.L.Lock()
		for q.size == 0 && !q.closed {
			q.cond.Wait()
		}
		if q.closed {
			q.cond.L.Unlock()
			return
		}
		item := q.q[q.front]
		q.front = (q.front + 1) % BufferSize
		q.size--
		q.cond.L.Unlock()

		// Plain listeners have no way to learn about dropped messages.
		if q.l != nil && item.err == nil {
			q.l(q.ctx, item.msg)
			continue
		}
		if q.le != nil {
			q.le(q.ctx, item.msg, item.err)
		}
	}
}

func (q *msgQueue) enqueue(msg []byte) {
	q.cond.L.Lock()
	defer q.cond.L.Unlock()

	if q.size == BufferSize {
		// Overwrite the newest message with a drop marker so the listener
		// learns that it has fallen behind.
		i := (q.front + q.size - 1) % BufferSize
		q.q[i] = msgOrErr{err: ErrDroppedMessages}
		q.cond.Broadcast()
		return
	}
	i := (q.front + q.size) % BufferSize
	q.q[i] = msgOrErr{msg: msg}
	q.size++
	q.cond.Broadcast()
}

func (q *msgQueue) dropped() {
	q.cond.L.Lock()
	defer q.cond.L.Unlock()

	if q.size == BufferSize {
		i := (q.front + q.size - 1) % BufferSize
		q.q[i] = msgOrErr{err: ErrDroppedMessages}
		q.cond.Broadcast()
		return
	}
	i := (q.front + q.size) % BufferSize
	q.q[i] = msgOrErr{err: ErrDroppedMessages}
	q.size++
	q.cond.Broadcast()
}

func (q *msgQueue) close() {
	q.cond.L.Lock()
	defer q.cond.L.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
