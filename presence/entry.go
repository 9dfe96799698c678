// Package presence publishes a client's live state into a tenant-scoped group
// and reduces the group's membership snapshots into a roster of peers.
package presence

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"github.com/coder/opsdash/database"
)

// UnknownName labels entries whose publisher did not send a name.
const UnknownName = "Unknown"

// Entry is one user's live state as seen by peers on the channel.
type Entry struct {
	UserID    uuid.UUID `json:"user_id"`
	FullName  string    `json:"full_name"`
	AvatarURL string    `json:"avatar_url"`
	Role      string    `json:"role"`
	Page      string    `json:"page"`
	OnlineAt  time.Time `json:"online_at"`
}

// ChannelName is the group a tenant's clients join. Tenants never share a
// channel.
func ChannelName(tenantID uuid.UUID) string {
	return "presence:tenant:" + tenantID.String()
}

// ParseEntry decodes an entry received from the channel. Entries without a
// user are rejected; missing display fields are defaulted.
func ParseEntry(raw []byte) (Entry, error) {
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, xerrors.Errorf("decode entry: %w", err)
	}
	if e.UserID == uuid.Nil {
		return Entry{}, xerrors.New("entry has no user_id")
	}
	e.FullName = strings.TrimSpace(e.FullName)
	if e.FullName == "" {
		e.FullName = UnknownName
	}
	return e, nil
}

// SelfEntry synthesizes the acting user's entry from identity fields known
// locally. It is never published.
func SelfEntry(user database.User, page string, now time.Time) Entry {
	name := strings.TrimSpace(user.FullName)
	if name == "" {
		name = UnknownName
	}
	return Entry{
		UserID:    user.ID,
		FullName:  name,
		AvatarURL: user.AvatarURL,
		Role:      user.Role,
		Page:      page,
		OnlineAt:  now,
	}
}
