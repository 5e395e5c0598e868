package command

import (
	"context"
	"fmt"
	"time"

	"github.com/curso-hub/curso-access-hub/internal/domain/authorization"
	"github.com/curso-hub/curso-access-hub/internal/domain/catalog"
	"github.com/curso-hub/curso-access-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REJECT REQUEST COMMAND
// Rejects a pending request with a mandatory reason. No grant is created; the
// status flip runs through the same guarded resolve as approvals.
// ══════════════════════════════════════════════════════════════════════════════

// RejectRequestCommand contains the data to reject an access request.
type RejectRequestCommand struct {
	// RequestID identifies the pending request.
	RequestID string

	// AdminID is the admin performing the rejection.
	AdminID string

	// Reason explains the rejection to the learner. Required.
	Reason string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c RejectRequestCommand) Validate() error {
	if c.RequestID == "" {
		return shared.WrapError("authorization", "Reject", shared.ErrInvalidID, "request_id is required", nil)
	}
	if c.AdminID == "" {
		return shared.WrapError("authorization", "Reject", shared.ErrInvalidID, "admin_id is required", nil)
	}
	if c.Reason == "" {
		return shared.ErrRejectReasonMissing
	}
	return nil
}

// RejectRequestResult contains the rejected request.
type RejectRequestResult struct {
	Request *authorization.Request
}

// RejectRequestHandler handles the RejectRequestCommand.
type RejectRequestHandler struct {
	catalogReader catalog.Reader
	requestRepo   authorization.RequestRepository
	publisher     shared.EventPublisher
}

// NewRejectRequestHandler creates a new RejectRequestHandler.
func NewRejectRequestHandler(
	catalogReader catalog.Reader,
	requestRepo authorization.RequestRepository,
	publisher shared.EventPublisher,
) *RejectRequestHandler {
	return &RejectRequestHandler{
		catalogReader: catalogReader,
		requestRepo:   requestRepo,
		publisher:     publisher,
	}
}

// Handle executes the reject request command.
func (h *RejectRequestHandler) Handle(ctx context.Context, cmd RejectRequestCommand) (*RejectRequestResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	admin, err := h.catalogReader.GetUser(ctx, cmd.AdminID)
	if err != nil {
		return nil, err
	}
	if !admin.Admin {
		return nil, shared.ErrAdminRequired
	}

	req, err := h.requestRepo.GetRequest(ctx, cmd.RequestID)
	if err != nil {
		return nil, err
	}

	if err := req.Reject(cmd.AdminID, cmd.Reason, time.Now().UTC()); err != nil {
		return nil, err
	}

	if err := h.requestRepo.ResolveReject(ctx, req); err != nil {
		return nil, fmt.Errorf("reject_request: resolve: %w", err)
	}

	if h.publisher != nil {
		ev := shared.NewRequestRejectedEvent(req.ID, req.UserID, req.LessonID, cmd.AdminID)
		ev.CorrelationID = cmd.CorrelationID
		if err := h.publisher.Publish(ev); err != nil {
			return nil, fmt.Errorf("reject_request: publish event: %w", err)
		}
	}

	return &RejectRequestResult{Request: req}, nil
}
