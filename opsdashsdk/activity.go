package opsdashsdk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"github.com/coder/opsdash/activity"
)

type ActivityRequest struct {
	// Range is one of activity.Ranges. Empty means today.
	Range activity.Range
	// UserID restricts the report to one user.
	UserID uuid.UUID
	// Timezone is an IANA zone name used for the viewer's calendar. Empty
	// means the server's zone.
	Timezone string
}

// Activity fetches an activity report.
func (c *Client) Activity(ctx context.Context, req ActivityRequest) (activity.Report, error) {
	q := url.Values{}
	if req.Range != "" {
		q.Set("range", string(req.Range))
	}
	if req.UserID != uuid.Nil {
		q.Set("user", req.UserID.String())
	}
	if req.Timezone != "" {
		q.Set("tz", req.Timezone)
	}
	path := "/api/v1/activity"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	res, err := c.Request(ctx, http.MethodGet, path, nil)
	if err != nil {
		return activity.Report{}, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return activity.Report{}, ReadBodyAsError(res)
	}
	var report activity.Report
	if err := json.NewDecoder(res.Body).Decode(&report); err != nil {
		return activity.Report{}, xerrors.Errorf("decode report: %w", err)
	}
	return report, nil
}
