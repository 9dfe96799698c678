package opsdashsdk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/coder/opsdash/presence"
)

type PresenceMessageType string

const (
	// PresenceMessageSession is sent once, after the tab's session is opened.
	// SessionID is uuid.Nil when the session store was unavailable.
	PresenceMessageSession PresenceMessageType = "session"
	// PresenceMessageRoster carries the merged roster, the tab's own entry
	// included.
	PresenceMessageRoster PresenceMessageType = "roster"
	// PresenceMessageNavigate is sent by the tab when its page changes.
	PresenceMessageNavigate PresenceMessageType = "navigate"
)

// PresenceServerMessage is sent from opsdashd to a watching tab.
type PresenceServerMessage struct {
	Type      PresenceMessageType `json:"type"`
	SessionID uuid.UUID           `json:"session_id,omitempty"`
	Roster    []presence.Entry    `json:"roster,omitempty"`
}

// PresenceClientMessage is sent from a tab to opsdashd.
type PresenceClientMessage struct {
	Type PresenceMessageType `json:"type"`
	Page string              `json:"page,omitempty"`
}

// PresenceConn is one tab's presence connection. Closing it ends the tab's
// session and removes it from the roster.
type PresenceConn struct {
	conn *websocket.Conn
}

// WatchPresence connects a tab on page to the tenant's presence channel.
func (c *Client) WatchPresence(ctx context.Context, tenantID uuid.UUID, page string) (*PresenceConn, error) {
	serverURL, err := c.URL.Parse(fmt.Sprintf("/api/v1/tenants/%s/presence/watch", tenantID))
	if err != nil {
		return nil, xerrors.Errorf("parse url: %w", err)
	}
	q := url.Values{}
	q.Set("page", page)
	serverURL.RawQuery = q.Encode()

	header := http.Header{}
	c.setHeaders(header)
	//nolint:bodyclose
	conn, res, err := websocket.Dial(ctx, serverURL.String(), &websocket.DialOptions{
		HTTPClient: c.HTTPClient,
		HTTPHeader: header,
	})
	if err != nil {
		if res == nil {
			return nil, xerrors.Errorf("dial presence: %w", err)
		}
		return nil, ReadBodyAsError(res)
	}
	return &PresenceConn{conn: conn}, nil
}

// Recv blocks until the next server message.
func (p *PresenceConn) Recv(ctx context.Context) (PresenceServerMessage, error) {
	var msg PresenceServerMessage
	if err := wsjson.Read(ctx, p.conn, &msg); err != nil {
		return PresenceServerMessage{}, xerrors.Errorf("read presence message: %w", err)
	}
	return msg, nil
}

// Navigate reports that the tab moved to page.
func (p *PresenceConn) Navigate(ctx context.Context, page string) error {
	err := wsjson.Write(ctx, p.conn, PresenceClientMessage{
		Type: PresenceMessageNavigate,
		Page: page,
	})
	if err != nil {
		return xerrors.Errorf("write navigate: %w", err)
	}
	return nil
}

func (p *PresenceConn) Close() error {
	return p.conn.Close(websocket.StatusNormalClosure, "")
}
