package opsdashsdk

import (
	"context"
	"encoding/json"
	"net/http"

	"golang.org/x/xerrors"
)

type HealthResponse struct {
	DatabaseLatency string `json:"database_latency"`
}

// Health reports whether the server can reach its database.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	res, err := c.Request(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return HealthResponse{}, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return HealthResponse{}, ReadBodyAsError(res)
	}
	var health HealthResponse
	if err := json.NewDecoder(res.Body).Decode(&health); err != nil {
		return HealthResponse{}, xerrors.Errorf("decode health: %w", err)
	}
	return health, nil
}
