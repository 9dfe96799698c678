package presence

import (
	"context"
	"encoding/json"
)

// Member is one tracked state in a group snapshot. Several members may share
// a key, for example one user with two tabs open.
type Member struct {
	Key   string
	State json.RawMessage
}

// Snapshot is the full membership of a group, ordered by when each member was
// first observed.
type Snapshot []Member

// Transport joins scoped groups that sync their membership to every member.
type Transport interface {
	// Join subscribes to channel. onSync receives the full membership
	// every time it changes, serially, until the membership is left.
	// Join returns once the subscription is acknowledged.
	Join(ctx context.Context, channel, key string, onSync func(Snapshot)) (Membership, error)
}

// Membership is a joined group.
type Membership interface {
	// Track publishes state under the membership's key, replacing any
	// previously tracked state.
	Track(ctx context.Context, state json.RawMessage) error
	// Leave removes this member from every peer's next snapshot. It is safe
	// to call more than once.
	Leave() error
}
