package pubsub

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// genericListener is either a Listener or ListenerWithErr
type genericListener struct {
	l  Listener
	le ListenerWithErr
}

func (g genericListener) send(ctx context.Context, message []byte) {
	if g.l != nil {
		g.l(ctx, message)
	}
	if g.le != nil {
		g.le(ctx, message, nil)
	}
}

// MemoryPubsub is an in-memory Pubsub implementation. It's an exported type so
// that test code can do type checks.
//
// Publish returns once every listener has handled the message.
type MemoryPubsub struct {
	mut       sync.RWMutex
	listeners map[string]map[uuid.UUID]genericListener
}

var _ Pubsub = (*MemoryPubsub)(nil)

func NewInMemory() *MemoryPubsub {
	return &MemoryPubsub{
		listeners: make(map[string]map[uuid.UUID]genericListener),
	}
}

func (m *MemoryPubsub) Subscribe(event string, listener Listener) (cancel func(), err error) {
	return m.subscribeGeneric(event, genericListener{l: listener})
}

func (m *MemoryPubsub) SubscribeWithErr(event string, listener ListenerWithErr) (cancel func(), err error) {
	return m.subscribeGeneric(event, genericListener{le: listener})
}

func (m *MemoryPubsub) subscribeGeneric(event string, listener genericListener) (cancel func(), err error) {
	m.mut.Lock()
	defer m.mut.Unlock()

	listeners, ok := m.listeners[event]
	if !ok {
		listeners = map[uuid.UUID]genericListener{}
		m.listeners[event] = listeners
	}
	id := uuid.New()
	listeners[id] = listener
	return func() {
		m.mut.Lock()
		defer m.mut.Unlock()
		listeners := m.listeners[event]
		delete(listeners, id)
		if len(listeners) == 0 {
			delete(m.listeners, event)
		}
	}, nil
}

func (m *MemoryPubsub) Publish(event string, message []byte) error {
	// Listeners are copied out so a listener that publishes or cancels does
	// not deadlock against a pending Subscribe.
	m.mut.RLock()
	listeners := make([]genericListener, 0, len(m.listeners[event]))
	for _, l := range m.listeners[event] {
		listeners = append(listeners, l)
	}
	m.mut.RUnlock()

	var wg sync.WaitGroup
	for _, listener := range listeners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			listener.send(context.Background(), message)
		}()
	}
	wg.Wait()

	return nil
}

// Subscribers returns the number of listeners on event.
func (m *MemoryPubsub) Subscribers(event string) int {
	m.mut.RLock()
	defer m.mut.RUnlock()
	return len(m.listeners[event])
}

func (*MemoryPubsub) Close() error {
	return nil
}
