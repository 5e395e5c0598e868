package authorization

import (
	"context"
	"time"
)

// GrantRepository defines persistence for standing grants.
type GrantRepository interface {
	// CreateGrant persists a new grant.
	CreateGrant(ctx context.Context, g *Grant) error

	// GetGrant returns a grant by ID.
	// Returns shared.ErrGrantNotFound if the grant does not exist.
	GetGrant(ctx context.Context, id string) (*Grant, error)

	// ListUsableGrants returns the user's grants for a course that are active
	// and not expired at the given instant. Expired grants are filtered by the
	// query; no write happens on expiry.
	ListUsableGrants(ctx context.Context, userID, courseID string, now time.Time) ([]*Grant, error)

	// DeactivateGrant flips a grant inactive (admin revocation).
	// Returns shared.ErrGrantNotFound if the grant does not exist.
	DeactivateGrant(ctx context.Context, id string) error
}

// RequestRepository defines persistence for access requests. The terminal
// transitions run through Resolve* methods so the status guard and the write
// are one atomic operation.
type RequestRepository interface {
	// CreateRequest persists a new pending request. If a pending request for
	// the same (user, course, lesson) already exists, returns
	// shared.ErrDuplicateRequest.
	CreateRequest(ctx context.Context, r *Request) error

	// GetRequest returns a request by ID.
	// Returns shared.ErrRequestNotFound if the request does not exist.
	GetRequest(ctx context.Context, id string) (*Request, error)

	// FindPendingRequest returns the pending request for a
	// (user, course, lesson) tuple, or shared.ErrRequestNotFound.
	FindPendingRequest(ctx context.Context, userID, courseID, lessonID string) (*Request, error)

	// ListPendingRequests returns the admin queue sorted by creation time
	// ascending (FIFO fairness).
	ListPendingRequests(ctx context.Context, courseID string, limit int) ([]*Request, error)

	// ResolveApprove atomically creates the grant and flips the request to
	// approved with a back-reference, guarded on status = pending. Both writes
	// succeed or neither does. Returns shared.ErrRequestProcessed when the
	// request is no longer pending and shared.ErrRequestNotFound when it does
	// not exist.
	ResolveApprove(ctx context.Context, r *Request, g *Grant) error

	// ResolveReject flips the request to rejected with its reason, guarded on
	// status = pending. Error contract matches ResolveApprove.
	ResolveReject(ctx context.Context, r *Request) error
}
