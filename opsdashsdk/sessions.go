package opsdashsdk

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// CloseSession ends a session owned by the client's user. Closing an already
// closed session succeeds.
func (c *Client) CloseSession(ctx context.Context, sessionID uuid.UUID) error {
	res, err := c.Request(ctx, http.MethodPost, fmt.Sprintf("/api/v1/sessions/%s/close", sessionID), nil)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusNoContent {
		return ReadBodyAsError(res)
	}
	return nil
}
