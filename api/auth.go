package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/warp/registration-engine/registration"
)

type contextKey int

const actorKey contextKey = iota

// Authenticate resolves "Authorization: Bearer <token>" to the acting user
// and organization. Requests without a known token get 401.
func (h *Handler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeErrorCode(w, http.StatusUnauthorized, "not_authenticated", "Missing bearer token", nil)
			return
		}

		actor, err := h.Store.ActorByToken(r.Context(), strings.TrimSpace(token))
		if err != nil {
			if registration.IsNotFound(err) {
				writeErrorCode(w, http.StatusUnauthorized, "not_authenticated", "Unknown token", nil)
				return
			}
			h.writeEngineError(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), *actor)))
	})
}

// WithActor returns a context carrying actor.
func WithActor(ctx context.Context, actor registration.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFrom returns the actor placed on ctx by Authenticate.
func ActorFrom(ctx context.Context) (registration.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(registration.Actor)
	return actor, ok
}

// mustActor is used by handlers mounted behind Authenticate.
func mustActor(r *http.Request) registration.Actor {
	actor, ok := ActorFrom(r.Context())
	if !ok {
		panic("api: handler mounted without Authenticate middleware")
	}
	return actor
}
