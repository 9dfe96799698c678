package httpmw

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/coder/opsdash/database"
	"github.com/coder/opsdash/opsdashd/httpapi"
	"github.com/coder/opsdash/opsdashsdk"
)

// UserStore is a subset of database.Store.
type UserStore interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (database.User, error)
}

type userContextKey struct{}

// User returns the acting user from the ExtractUser handler.
func User(r *http.Request) database.User {
	user, ok := r.Context().Value(userContextKey{}).(database.User)
	if !ok {
		panic("developer error: user middleware not provided")
	}
	return user
}

// ExtractUser resolves the opsdashsdk.UserIDHeader against the identity
// directory. Requests without the header, or for a user that does not exist,
// are rejected with 401.
func ExtractUser(db UserStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			raw := r.Header.Get(opsdashsdk.UserIDHeader)
			if raw == "" {
				httpapi.Write(ctx, rw, http.StatusUnauthorized, opsdashsdk.Response{
					Message: "User identity required.",
					Detail:  "Set the " + opsdashsdk.UserIDHeader + " header.",
				})
				return
			}
			userID, err := uuid.Parse(raw)
			if err != nil {
				httpapi.Write(ctx, rw, http.StatusUnauthorized, opsdashsdk.Response{
					Message: "Invalid user identity.",
					Detail:  err.Error(),
				})
				return
			}
			user, err := db.GetUserByID(ctx, userID)
			if err != nil {
				if httpapi.Is404Error(err) {
					httpapi.Write(ctx, rw, http.StatusUnauthorized, opsdashsdk.Response{
						Message: "Unknown user.",
					})
					return
				}
				httpapi.Write(ctx, rw, http.StatusInternalServerError, opsdashsdk.Response{
					Message: "Internal error fetching user.",
					Detail:  err.Error(),
				})
				return
			}

			ctx = context.WithValue(ctx, userContextKey{}, user)
			next.ServeHTTP(rw, r.WithContext(ctx))
		})
	}
}
