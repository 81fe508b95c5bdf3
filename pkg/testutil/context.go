package testutil

import (
	"net/http"

	id "caseflow/pkg/domain"
	"caseflow/pkg/requestcontext"
)

// WithActor adds actor and tenant IDs to the request context, simulating
// what the actor middleware does for authenticated requests.
func WithActor(req *http.Request, actorID id.UserID, tenantID id.TenantID) *http.Request {
	ctx := requestcontext.WithActorID(req.Context(), actorID)
	ctx = requestcontext.WithTenantID(ctx, tenantID)
	return req.WithContext(ctx)
}

// WithRequestID adds a correlation id to the request context.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}
