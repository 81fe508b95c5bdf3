// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// This package defines context keys and getter/setter functions for values
// that are typically set by middleware but consumed by services. By keeping
// it free of net/http dependencies, services can import only what they need
// without pulling in HTTP-related code.
//
// Usage in services (read values):
//
//	actor := requestcontext.ActorID(ctx)
//	requestID := requestcontext.RequestID(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in middleware (set values):
//
//	ctx = requestcontext.WithActorID(ctx, actorID)
//	ctx = requestcontext.WithRequestID(ctx, requestID)
package requestcontext

import (
	"context"
	"sync"
	"time"

	id "caseflow/pkg/domain"
)

// Context key types (unexported for encapsulation).
type (
	actorIDKey     struct{}
	tenantIDKey    struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
	identityKey    struct{}
)

// Identity is a mutable carrier for the identity resolved during a request.
// The lifecycle middleware installs it before authentication runs; WithActorID
// and WithTenantID fill it in, so completion logging can attribute the request
// even though the resolved values live in a child context. The mutex exists
// because a client-disconnect completion can read from another goroutine.
type Identity struct {
	mu       sync.Mutex
	actorID  id.UserID
	tenantID id.TenantID
}

// Actor returns the resolved actor, or the zero value if none was resolved.
func (i *Identity) Actor() id.UserID {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.actorID
}

// Tenant returns the resolved tenant, or the zero value if none was resolved.
func (i *Identity) Tenant() id.TenantID {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.tenantID
}

func (i *Identity) setActor(actorID id.UserID) {
	i.mu.Lock()
	i.actorID = actorID
	i.mu.Unlock()
}

func (i *Identity) setTenant(tenantID id.TenantID) {
	i.mu.Lock()
	i.tenantID = tenantID
	i.mu.Unlock()
}

// WithIdentity installs a fresh identity carrier and returns it alongside the
// derived context.
func WithIdentity(ctx context.Context) (context.Context, *Identity) {
	carrier := &Identity{}
	return context.WithValue(ctx, identityKey{}, carrier), carrier
}

func identityFrom(ctx context.Context) (*Identity, bool) {
	carrier, ok := ctx.Value(identityKey{}).(*Identity)
	return carrier, ok
}

// ActorID retrieves the authenticated actor from the context.
// Returns the zero value (nil UUID) if not set.
func ActorID(ctx context.Context) id.UserID {
	if actorID, ok := ctx.Value(actorIDKey{}).(id.UserID); ok {
		return actorID
	}
	return id.UserID{}
}

// WithActorID injects an actor ID into the context. The request's identity
// carrier, when present, is updated too so the lifecycle completion log can
// see the actor resolved further down the middleware chain.
func WithActorID(ctx context.Context, actorID id.UserID) context.Context {
	if carrier, ok := identityFrom(ctx); ok {
		carrier.setActor(actorID)
	}
	return context.WithValue(ctx, actorIDKey{}, actorID)
}

// TenantID retrieves the tenant scope of the request from the context.
// Returns the zero value (nil UUID) if not set.
func TenantID(ctx context.Context) id.TenantID {
	if tenantID, ok := ctx.Value(tenantIDKey{}).(id.TenantID); ok {
		return tenantID
	}
	return id.TenantID{}
}

// WithTenantID injects a tenant ID into the context, updating the request's
// identity carrier when present.
func WithTenantID(ctx context.Context, tenantID id.TenantID) context.Context {
	if carrier, ok := identityFrom(ctx); ok {
		carrier.setTenant(tenantID)
	}
	return context.WithValue(ctx, tenantIDKey{}, tenantID)
}

// RequestID retrieves the correlation id from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(requestIDKey{}).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a correlation id into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (for non-HTTP contexts like workers,
// CLI, tests). All operations within a single request share one "now" so
// audit timestamps and deletion metadata stay consistent.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
// Useful for service unit tests that don't run the full middleware chain.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
