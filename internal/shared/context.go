package shared

import "context"

// Scope carries the tenant and acting user resolved by the identity layer. Core
// services receive both values as explicit parameters; the scope only travels from
// the HTTP middleware to the handlers.
type Scope struct {
	CompanyID int64
	ActorID   int64
}

type scopeContextKey struct{}

// ContextWithScope stores the scope in context.
func ContextWithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeContextKey{}, scope)
}

// ScopeFromContext extracts the scope from context.
func ScopeFromContext(ctx context.Context) (Scope, bool) {
	scope, ok := ctx.Value(scopeContextKey{}).(Scope)
	return scope, ok && scope.CompanyID > 0
}
