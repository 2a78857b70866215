package httpx

import (
	"net/http"

	"github.com/odyssey-erp/odyssey-backoffice/internal/shared"
)

// RequireScope returns the tenant scope resolved by the scope middleware.
func RequireScope(r *http.Request) (shared.Scope, error) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		return shared.Scope{}, ErrUnauthorized
	}
	return scope, nil
}
