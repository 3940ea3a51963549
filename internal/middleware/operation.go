package middleware

import (
	"context"
	"net/http"

	"taskdeck/internal/auth"
)

// Operation classifies a route as reading or mutating state. Routes
// declare their class explicitly through WithOperation instead of the
// gate inferring it from the HTTP verb.
type Operation int

const (
	// OpRead marks routes that only read state. Reads are never
	// gated on unlock status.
	OpRead Operation = iota
	// OpWrite marks routes that mutate state. Writes pass the unlock
	// gate after the trial window closes.
	OpWrite
)

// String returns the operation name for logs and metrics
func (op Operation) String() string {
	if op == OpWrite {
		return "write"
	}
	return "read"
}

type ctxKey int

const (
	operationCtxKey ctxKey = iota
	exemptCtxKey
	identityCtxKey
)

// WithOperation returns middleware tagging every request in a route
// group with the given operation class.
func WithOperation(op Operation) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), operationCtxKey, op)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ExemptFromGate marks a route group as opted out of unlock gating.
// Identity extraction still runs; only the trial/unlock decision is
// skipped. The unlock endpoint itself uses this.
func ExemptFromGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), exemptCtxKey, true)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OperationFromContext returns the tagged operation, defaulting to
// OpWrite: an untagged route is treated as mutating so a missing tag
// fails closed.
func OperationFromContext(ctx context.Context) Operation {
	if op, ok := ctx.Value(operationCtxKey).(Operation); ok {
		return op
	}
	return OpWrite
}

// IsExempt reports whether the route opted out of gating
func IsExempt(ctx context.Context) bool {
	exempt, _ := ctx.Value(exemptCtxKey).(bool)
	return exempt
}

// WithIdentity stores the verified identity in the context
func WithIdentity(ctx context.Context, id *auth.Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey, id)
}

// IdentityFromContext returns the verified identity attached by the
// gate, or nil when the request carried no valid credential.
func IdentityFromContext(ctx context.Context) *auth.Identity {
	id, _ := ctx.Value(identityCtxKey).(*auth.Identity)
	return id
}
