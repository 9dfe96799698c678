package presence

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"cdr.dev/slog/v3"
	"github.com/coder/quartz"

	"github.com/coder/opsdash/database/pubsub"
)

const (
	// DefaultRefreshInterval is how often members re-announce their state.
	DefaultRefreshInterval = 15 * time.Second
	// DefaultExpireAfter is how long a silent member stays in snapshots.
	// It spans several refreshes so one lost message does not evict anyone.
	DefaultExpireAfter = 45 * time.Second
)

type messageType string

const (
	messageState messageType = "state"
	messageLeave messageType = "leave"
	messageQuery messageType = "query"
)

// message is the wire format on a presence channel. Ref identifies one
// membership; Key is the identity it tracks state for.
type message struct {
	Type  messageType     `json:"type"`
	Ref   string          `json:"ref,omitempty"`
	Key   string          `json:"key,omitempty"`
	State json.RawMessage `json:"state,omitempty"`
}

// PubsubTransport implements Transport on top of a pubsub.Pubsub. Members
// announce their state when they track it, when asked by a joining member,
// and on every refresh. Members that stop announcing expire, which is how a
// crashed or disconnected client leaves its peers' snapshots.
type PubsubTransport struct {
	ps              pubsub.Pubsub
	logger          slog.Logger
	clock           quartz.Clock
	refreshInterval time.Duration
	expireAfter     time.Duration
}

var _ Transport = (*PubsubTransport)(nil)

type TransportOption func(*PubsubTransport)

func WithTransportLogger(logger slog.Logger) TransportOption {
	return func(t *PubsubTransport) {
		t.logger = logger
	}
}

func WithTransportClock(clock quartz.Clock) TransportOption {
	return func(t *PubsubTransport) {
		t.clock = clock
	}
}

// WithRefreshInterval sets how often members re-announce themselves.
func WithRefreshInterval(d time.Duration) TransportOption {
	return func(t *PubsubTransport) {
		t.refreshInterval = d
	}
}

// WithExpireAfter sets how long a member that stopped announcing is kept.
func WithExpireAfter(d time.Duration) TransportOption {
	return func(t *PubsubTransport) {
		t.expireAfter = d
	}
}

func NewPubsubTransport(ps pubsub.Pubsub, opts ...TransportOption) *PubsubTransport {
	t := &PubsubTransport{
		ps:              ps,
		logger:          slog.Logger{},
		clock:           quartz.NewReal(),
		refreshInterval: DefaultRefreshInterval,
		expireAfter:     DefaultExpireAfter,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *PubsubTransport) Join(ctx context.Context, channel, key string, onSync func(Snapshot)) (Membership, error) {
	if key == "" {
		return nil, xerrors.New("presence key is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	ref := uuid.NewString()
	m := &groupMember{
		t:          t,
		logger:     t.logger.With(slog.F("channel", channel), slog.F("ref", ref)),
		channel:    channel,
		key:        key,
		ref:        ref,
		onSync:     onSync,
		ctx:        loopCtx,
		cancel:     cancel,
		loopDone:   make(chan struct{}),
		announceCh: make(chan struct{}, 1),
		resyncCh:   make(chan struct{}, 1),
		dirtyCh:    make(chan struct{}, 1),
		peers:      make(map[string]*peer),
	}

	cancelSub, err := t.ps.SubscribeWithErr(channel, m.handle)
	if err != nil {
		cancel()
		return nil, xerrors.Errorf("subscribe to %q: %w", channel, err)
	}
	m.cancelSub = cancelSub
	m.ticker = t.clock.TickerFunc(loopCtx, t.refreshInterval, m.refresh, "presence", "refresh")
	go m.loop()

	// Existing members answer with their state.
	if err := m.publish(message{Type: messageQuery, Ref: ref}); err != nil {
		_ = m.Leave()
		return nil, xerrors.Errorf("query members: %w", err)
	}
	m.logger.Debug(ctx, "joined presence channel")
	return m, nil
}

type peer struct {
	key      string
	state    json.RawMessage
	seq      uint64
	lastSeen time.Time
}

type groupMember struct {
	t       *PubsubTransport
	logger  slog.Logger
	channel string
	key     string
	ref     string
	onSync  func(Snapshot)

	ctx       context.Context
	cancel    context.CancelFunc
	cancelSub func()
	ticker    quartz.Waiter
	loopDone  chan struct{}

	// Signals for the loop. Each has capacity one so repeated signals
	// coalesce and senders never block.
	announceCh chan struct{}
	resyncCh   chan struct{}
	dirtyCh    chan struct{}

	// pubMu makes reading state and publishing it atomic, so an
	// announcement never sends a state older than one already tracked.
	pubMu sync.Mutex

	mu    sync.Mutex
	state json.RawMessage
	peers map[string]*peer
	seq   uint64

	leaveOnce sync.Once
	leaveErr  error
}

func signal(c chan struct{}) {
	select {
	case c <- struct{}{}:
	default:
	}
}

// loop owns publishing of announcements and delivery of snapshots, so
// onSync is never called concurrently and never from a pubsub callback.
func (m *groupMember) loop() {
	defer close(m.loopDone)
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.announceCh:
			m.announce()
		case <-m.resyncCh:
			if err := m.publish(message{Type: messageQuery, Ref: m.ref}); err != nil {
				m.logger.Warn(m.ctx, "failed to query presence members", slog.Error(err))
			}
		case <-m.dirtyCh:
			if m.onSync != nil {
				m.onSync(m.snapshot())
			}
		}
	}
}

func (m *groupMember) handle(_ context.Context, raw []byte, err error) {
	if m.ctx.Err() != nil {
		return
	}
	if err != nil {
		if errors.Is(err, pubsub.ErrDroppedMessages) {
			m.logger.Warn(m.ctx, "presence messages dropped, resyncing")
			signal(m.resyncCh)
			signal(m.announceCh)
			return
		}
		m.logger.Warn(m.ctx, "presence subscription error", slog.Error(err))
		return
	}

	var msg message
	if err := json.Unmarshal(raw, &msg); err != nil {
		m.logger.Warn(m.ctx, "invalid presence message", slog.Error(err), slog.F("size", len(raw)))
		return
	}
	switch msg.Type {
	case messageState:
		if msg.Ref == "" || msg.Key == "" || len(msg.State) == 0 {
			m.logger.Warn(m.ctx, "incomplete presence state message", slog.F("ref", msg.Ref), slog.F("key", msg.Key))
			return
		}
		m.upsert(msg.Ref, msg.Key, msg.State)
	case messageLeave:
		m.remove(msg.Ref)
	case messageQuery:
		if msg.Ref != m.ref {
			signal(m.announceCh)
		}
	default:
		m.logger.Warn(m.ctx, "unknown presence message type", slog.F("type", msg.Type))
	}
}

func (m *groupMember) upsert(ref, key string, state json.RawMessage) {
	now := m.t.clock.Now()

	m.mu.Lock()
	p, ok := m.peers[ref]
	changed := !ok || p.key != key || !bytes.Equal(p.state, state)
	if !ok {
		m.seq++
		p = &peer{seq: m.seq}
		m.peers[ref] = p
	}
	p.key = key
	p.state = state
	p.lastSeen = now
	m.mu.Unlock()

	if changed {
		signal(m.dirtyCh)
	}
}

func (m *groupMember) remove(ref string) {
	m.mu.Lock()
	_, ok := m.peers[ref]
	delete(m.peers, ref)
	m.mu.Unlock()

	if ok {
		signal(m.dirtyCh)
	}
}

// refresh runs on every tick: announce ourselves and drop silent peers.
func (m *groupMember) refresh() error {
	signal(m.announceCh)

	now := m.t.clock.Now()
	expired := 0
	m.mu.Lock()
	for ref, p := range m.peers {
		if ref == m.ref {
			continue
		}
		if now.Sub(p.lastSeen) >= m.t.expireAfter {
			delete(m.peers, ref)
			expired++
		}
	}
	m.mu.Unlock()

	if expired > 0 {
		m.logger.Debug(m.ctx, "expired silent presence members", slog.F("count", expired))
		signal(m.dirtyCh)
	}
	return nil
}

func (m *groupMember) snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	peers := make([]*peer, 0, len(m.peers))
	for _, p := range m.peers {
		peers = append(peers, p)
	}
	sort.Slice(peers, func(i, j int) bool {
		return peers[i].seq < peers[j].seq
	})
	snap := make(Snapshot, 0, len(peers))
	for _, p := range peers {
		snap = append(snap, Member{Key: p.key, State: p.state})
	}
	return snap
}

func (m *groupMember) announce() {
	m.pubMu.Lock()
	defer m.pubMu.Unlock()

	m.mu.Lock()
	state := m.state
	m.mu.Unlock()
	if state == nil {
		return
	}
	err := m.publish(message{Type: messageState, Ref: m.ref, Key: m.key, State: state})
	if err != nil {
		m.logger.Warn(m.ctx, "failed to announce presence", slog.Error(err))
	}
}

func (m *groupMember) publish(msg message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return xerrors.Errorf("encode presence message: %w", err)
	}
	return m.t.ps.Publish(m.channel, raw)
}

func (m *groupMember) Track(_ context.Context, state json.RawMessage) error {
	if m.ctx.Err() != nil {
		return xerrors.New("membership has left the channel")
	}
	if !json.Valid(state) {
		return xerrors.New("presence state is not valid JSON")
	}
	owned := append(json.RawMessage(nil), state...)
	m.pubMu.Lock()
	defer m.pubMu.Unlock()

	m.mu.Lock()
	m.state = owned
	m.mu.Unlock()
	return m.publish(message{Type: messageState, Ref: m.ref, Key: m.key, State: owned})
}

// Leave must not be called from onSync.
func (m *groupMember) Leave() error {
	m.leaveOnce.Do(func() {
		m.cancel()
		_ = m.ticker.Wait()
		<-m.loopDone
		m.cancelSub()

		err := m.publish(message{Type: messageLeave, Ref: m.ref})
		if err != nil {
			m.leaveErr = xerrors.Errorf("publish leave: %w", err)
		}
		m.logger.Debug(context.Background(), "left presence channel")
	})
	return m.leaveErr
}
