package presence

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"cdr.dev/slog/v3"
	"github.com/coder/quartz"
)

// Client publishes one tab's presence and keeps the roster of its tenant's
// channel. Transport failures are logged and swallowed: a client that cannot
// reach the channel simply has an empty roster and is invisible to peers.
type Client struct {
	transport Transport
	logger    slog.Logger
	clock     quartz.Clock
	metrics   *Metrics

	// joinMu serializes Join and Leave. It is never held while calling
	// handlers.
	joinMu sync.Mutex
	// publishMu orders publishes so an older state never lands after a
	// newer one.
	publishMu sync.Mutex

	mu         sync.Mutex
	tenantID   uuid.UUID
	userID     uuid.UUID
	membership Membership
	generation uint64
	// state is the latest state handed to Publish. It is kept across
	// Leave so a later Join republishes it.
	state    *Entry
	roster   []Entry
	handlers map[uint64]func([]Entry)
	nextID   uint64
}

type Option func(*Client)

func WithLogger(logger slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithClock(clock quartz.Clock) Option {
	return func(c *Client) {
		c.clock = clock
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient returns a Client that has not joined any channel. Call Leave
// when done with it.
func NewClient(transport Transport, opts ...Option) *Client {
	c := &Client{
		transport: transport,
		logger:    slog.Logger{},
		clock:     quartz.NewReal(),
		handlers:  make(map[uint64]func([]Entry)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = NewMetrics(nil)
	}
	return c
}

// Join subscribes to the tenant's channel as userID. Joining the channel the
// client is already on is a no-op; joining a different one leaves the old
// channel first. State published before Join is published once the
// subscription is acknowledged, as is the last state when switching tenants.
func (c *Client) Join(ctx context.Context, tenantID, userID uuid.UUID) {
	c.joinMu.Lock()
	defer c.joinMu.Unlock()

	c.mu.Lock()
	if c.membership != nil && c.tenantID == tenantID && c.userID == userID {
		c.mu.Unlock()
		return
	}
	old := c.membership
	c.membership = nil
	c.generation++
	generation := c.generation
	c.tenantID = tenantID
	c.userID = userID
	c.roster = nil
	if c.state != nil && c.state.UserID != userID {
		// Never publish one identity's state under another.
		c.state = nil
	}
	c.mu.Unlock()

	if old != nil {
		c.leaveMembership(ctx, old)
	}

	logger := c.logger.With(slog.F("tenant_id", tenantID), slog.F("user_id", userID))
	membership, err := c.transport.Join(ctx, ChannelName(tenantID), userID.String(), func(snap Snapshot) {
		c.handleSync(generation, snap)
	})
	if err != nil {
		c.metrics.PublishErrors.Inc()
		logger.Warn(ctx, "failed to join presence channel, continuing without presence", slog.Error(err))
		return
	}
	c.metrics.RostersActive.Inc()
	logger.Debug(ctx, "joined presence channel")

	c.mu.Lock()
	c.membership = membership
	c.mu.Unlock()

	c.flush(ctx)
}

// Publish broadcasts the client's state keyed by its user. online_at is set
// when the state is actually sent. Before Join the state is held and sent
// right after Join.
func (c *Client) Publish(ctx context.Context, state Entry) {
	c.mu.Lock()
	if state.UserID == uuid.Nil {
		state.UserID = c.userID
	}
	c.state = &state
	joined := c.membership != nil
	c.mu.Unlock()

	if !joined {
		c.logger.Debug(ctx, "deferring presence publish until joined", slog.F("page", state.Page))
		return
	}
	c.flush(ctx)
}

// flush sends the latest state, if any, to the current membership.
func (c *Client) flush(ctx context.Context) {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()

	c.mu.Lock()
	membership := c.membership
	if membership == nil || c.state == nil {
		c.mu.Unlock()
		return
	}
	c.state.OnlineAt = c.clock.Now()
	state := *c.state
	c.mu.Unlock()

	raw, err := json.Marshal(state)
	if err == nil {
		err = membership.Track(ctx, raw)
	}
	if err != nil {
		c.metrics.PublishErrors.Inc()
		c.logger.Warn(ctx, "failed to publish presence", slog.F("page", state.Page), slog.Error(err))
	}
}

func (c *Client) handleSync(generation uint64, snap Snapshot) {
	entries := make([]Entry, 0, len(snap))
	for _, member := range snap {
		entry, err := ParseEntry(member.State)
		if err != nil {
			c.logger.Warn(context.Background(), "dropping invalid presence entry", slog.F("key", member.Key), slog.Error(err))
			continue
		}
		if entry.UserID.String() != member.Key {
			c.logger.Warn(context.Background(), "dropping presence entry published under another key",
				slog.F("key", member.Key), slog.F("user_id", entry.UserID))
			continue
		}
		entries = append(entries, entry)
	}
	roster := reduce(entries)

	c.mu.Lock()
	if generation != c.generation {
		// A sync from a channel we already left.
		c.mu.Unlock()
		return
	}
	c.roster = roster
	handlers := make([]func([]Entry), 0, len(c.handlers))
	for _, h := range c.handlers {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(copyEntries(roster))
	}
}

// OnSync registers handler to receive the reduced roster after every
// membership sync. Handlers run serially and must not call Join or Leave.
func (c *Client) OnSync(handler func([]Entry)) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.handlers[id] = handler
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers, id)
	}
}

// Roster returns the latest reduced roster: one entry per user, first seen
// wins.
func (c *Client) Roster() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyEntries(c.roster)
}

// Joined reports whether the client currently holds a channel membership.
func (c *Client) Joined() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.membership != nil
}

// Leave tears down the membership. Peers drop this client from their next
// sync.
func (c *Client) Leave(ctx context.Context) {
	c.joinMu.Lock()
	defer c.joinMu.Unlock()

	c.mu.Lock()
	old := c.membership
	c.membership = nil
	c.generation++
	c.roster = nil
	c.mu.Unlock()

	if old != nil {
		c.leaveMembership(ctx, old)
	}
}

func (c *Client) leaveMembership(ctx context.Context, m Membership) {
	c.metrics.RostersActive.Dec()
	if err := m.Leave(); err != nil {
		c.logger.Warn(ctx, "failed to leave presence channel", slog.Error(err))
	}
}

func copyEntries(entries []Entry) []Entry {
	if entries == nil {
		return []Entry{}
	}
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}
