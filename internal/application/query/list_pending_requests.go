package query

import (
	"context"
	"fmt"

	"github.com/curso-hub/curso-access-hub/internal/domain/authorization"
	"github.com/curso-hub/curso-access-hub/internal/domain/catalog"
	"github.com/curso-hub/curso-access-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST PENDING REQUESTS QUERY
// The admin queue: pending requests sorted oldest first so resolution stays
// FIFO-fair. Only admins may read it.
// ══════════════════════════════════════════════════════════════════════════════

// DefaultQueueLimit caps the admin queue page size.
const DefaultQueueLimit = 50

// ListPendingRequestsQuery filters the queue.
type ListPendingRequestsQuery struct {
	// AdminID is the admin reading the queue.
	AdminID string

	// CourseID optionally narrows the queue to one course.
	CourseID string

	// Limit caps the result; defaults to DefaultQueueLimit.
	Limit int
}

// Validate validates the query.
func (q ListPendingRequestsQuery) Validate() error {
	if q.AdminID == "" {
		return shared.WrapError("authorization", "ListPending", shared.ErrInvalidID, "admin_id is required", nil)
	}
	return nil
}

// ListPendingRequestsResult is the FIFO-ordered admin queue.
type ListPendingRequestsResult struct {
	Requests []*authorization.Request
}

// ListPendingRequestsHandler handles the ListPendingRequestsQuery.
type ListPendingRequestsHandler struct {
	catalogReader catalog.Reader
	requestRepo   authorization.RequestRepository
}

// NewListPendingRequestsHandler creates a new ListPendingRequestsHandler.
func NewListPendingRequestsHandler(catalogReader catalog.Reader, requestRepo authorization.RequestRepository) *ListPendingRequestsHandler {
	return &ListPendingRequestsHandler{
		catalogReader: catalogReader,
		requestRepo:   requestRepo,
	}
}

// Handle executes the pending request listing.
func (h *ListPendingRequestsHandler) Handle(ctx context.Context, q ListPendingRequestsQuery) (*ListPendingRequestsResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	admin, err := h.catalogReader.GetUser(ctx, q.AdminID)
	if err != nil {
		return nil, err
	}
	if !admin.Admin {
		return nil, shared.ErrAdminRequired
	}

	limit := q.Limit
	if limit <= 0 || limit > DefaultQueueLimit {
		limit = DefaultQueueLimit
	}

	requests, err := h.requestRepo.ListPendingRequests(ctx, q.CourseID, limit)
	if err != nil {
		return nil, fmt.Errorf("list_pending_requests: %w", err)
	}

	return &ListPendingRequestsResult{Requests: requests}, nil
}
