// Package httpmw holds the chi middleware shared by opsdashd routes.
package httpmw

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/coder/opsdash/opsdashd/httpapi"
	"github.com/coder/opsdash/opsdashsdk"
)

// ParseUUIDParam consumes a url parameter and parses it as a UUID.
func ParseUUIDParam(rw http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	rawID := chi.URLParam(r, param)
	if rawID == "" {
		httpapi.Write(r.Context(), rw, http.StatusBadRequest, opsdashsdk.Response{
			Message: fmt.Sprintf("%q must be provided.", param),
		})
		return uuid.UUID{}, false
	}

	parsed, err := uuid.Parse(rawID)
	if err != nil {
		httpapi.Write(r.Context(), rw, http.StatusBadRequest, opsdashsdk.Response{
			Message: fmt.Sprintf("Invalid UUID %q.", rawID),
			Detail:  err.Error(),
			Validations: []opsdashsdk.ValidationError{
				{Field: param, Detail: "must be a uuid"},
			},
		})
		return uuid.UUID{}, false
	}

	return parsed, true
}
