package httpapi

import (
	"context"
	"net/http"
	"strings"

	"pso/admission-service/internal/models"
)

type actorContextKey struct{}

// actor is the caller identity resolved by the gateway and forwarded
// via the X-Actor-ID and X-Actor-Role headers.
type actor struct {
	ID   string
	Role string
}

func IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicEndpoint(r) {
			next.ServeHTTP(w, r)
			return
		}
		caller, ok := actorFromRequest(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid identity headers")
			return
		}
		ctx := context.WithValue(r.Context(), actorContextKey{}, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func actorFromRequest(r *http.Request) (actor, bool) {
	id := strings.TrimSpace(r.Header.Get("X-Actor-ID"))
	role := strings.ToLower(strings.TrimSpace(r.Header.Get("X-Actor-Role")))
	if !isValidUUID(id) {
		return actor{}, false
	}
	if role != models.RoleCitizen && role != models.RoleOfficer {
		return actor{}, false
	}
	return actor{ID: id, Role: role}, true
}

func actorFromContext(ctx context.Context) (actor, bool) {
	value := ctx.Value(actorContextKey{})
	if value == nil {
		return actor{}, false
	}
	caller, ok := value.(actor)
	return caller, ok
}

func requireActor(w http.ResponseWriter, r *http.Request) (actor, bool) {
	caller, ok := actorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid identity headers")
		return actor{}, false
	}
	return caller, true
}

func requireOfficer(w http.ResponseWriter, r *http.Request) (actor, bool) {
	caller, ok := requireActor(w, r)
	if !ok {
		return actor{}, false
	}
	if caller.Role != models.RoleOfficer {
		writeError(w, http.StatusForbidden, "access_denied", "officer role required")
		return actor{}, false
	}
	return caller, true
}

func isPublicEndpoint(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/metrics":
		return true
	case "/api/services", "/api/queues", "/api/slots":
		return r.Method == http.MethodGet
	default:
		return r.Method == http.MethodOptions
	}
}
