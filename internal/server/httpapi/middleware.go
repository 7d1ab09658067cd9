package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/peertutor/tutorchat/internal/server/auth"
)

type ctxKey int

const identityKey ctxKey = iota

// Identity is the authenticated caller, extracted from the bearer token
// once per request.
type Identity struct {
	UserID    string
	SessionID string
}

func identityFrom(ctx context.Context) Identity {
	id, _ := ctx.Value(identityKey).(Identity)
	return id
}

// requireAuth rejects requests without a valid bearer token and stashes the
// caller identity in the request context.
func (h *Handler) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing credentials")
			return
		}

		userID, sessionID, err := auth.ParseToken(token, h.jwtSecret)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, Identity{UserID: userID, SessionID: sessionID})
		next(w, r.WithContext(ctx))
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(h, "Bearer "); ok {
		return after
	}
	return ""
}
