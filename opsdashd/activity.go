package opsdashd

import (
	"net/http"
	"time"
	// Viewer zones must resolve even on hosts without a zoneinfo database.
	_ "time/tzdata"

	"github.com/google/uuid"

	"github.com/coder/opsdash/activity"
	"github.com/coder/opsdash/database"
	"github.com/coder/opsdash/opsdashd/httpapi"
	"github.com/coder/opsdash/opsdashd/httpmw"
	"github.com/coder/opsdash/opsdashsdk"
)

func (api *API) getActivity(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	var validations []opsdashsdk.ValidationError
	rng, err := activity.ParseRange(q.Get("range"))
	if err != nil {
		validations = append(validations, opsdashsdk.ValidationError{Field: "range", Detail: err.Error()})
	}
	var userID uuid.UUID
	if raw := q.Get("user"); raw != "" {
		userID, err = uuid.Parse(raw)
		if err != nil {
			validations = append(validations, opsdashsdk.ValidationError{Field: "user", Detail: err.Error()})
		}
	}
	loc := time.Local
	if raw := q.Get("tz"); raw != "" {
		loc, err = time.LoadLocation(raw)
		if err != nil {
			validations = append(validations, opsdashsdk.ValidationError{Field: "tz", Detail: err.Error()})
		}
	}
	if len(validations) > 0 {
		httpapi.Write(ctx, rw, http.StatusBadRequest, opsdashsdk.Response{
			Message:     "Invalid query parameters.",
			Validations: validations,
		})
		return
	}

	report, err := api.reporter.Report(ctx, activity.Filter{
		Range:    rng,
		TenantID: httpmw.User(r).TenantID,
		UserID:   userID,
		Location: loc,
	})
	if database.IsQueryCanceledError(err) {
		// The viewer went away.
		return
	}
	if err != nil {
		httpapi.Write(ctx, rw, http.StatusInternalServerError, opsdashsdk.Response{
			Message: "Internal error building activity report.",
			Detail:  err.Error(),
		})
		return
	}
	httpapi.Write(ctx, rw, http.StatusOK, report)
}
