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
// APPROVE REQUEST COMMAND
// Approves a pending request: the lesson-level grant and the status flip are
// one logical unit, executed through the repository's transactional resolve so
// a failure of either half leaves the request pending and no grant behind.
// ══════════════════════════════════════════════════════════════════════════════

// ApproveRequestCommand contains the data to approve an access request.
type ApproveRequestCommand struct {
	// RequestID identifies the pending request.
	RequestID string

	// AdminID is the admin performing the approval.
	AdminID string

	// Reason is the optional approval note, recorded on the grant.
	Reason string

	// ExpiresAt optionally time-limits the resulting grant.
	ExpiresAt *time.Time

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c ApproveRequestCommand) Validate() error {
	if c.RequestID == "" {
		return shared.WrapError("authorization", "Approve", shared.ErrInvalidID, "request_id is required", nil)
	}
	if c.AdminID == "" {
		return shared.WrapError("authorization", "Approve", shared.ErrInvalidID, "admin_id is required", nil)
	}
	return nil
}

// ApproveRequestResult contains the approved request and the grant it produced.
type ApproveRequestResult struct {
	Request *authorization.Request
	Grant   *authorization.Grant
}

// ApproveRequestHandler handles the ApproveRequestCommand.
type ApproveRequestHandler struct {
	catalogReader catalog.Reader
	requestRepo   authorization.RequestRepository
	publisher     shared.EventPublisher
}

// NewApproveRequestHandler creates a new ApproveRequestHandler.
func NewApproveRequestHandler(
	catalogReader catalog.Reader,
	requestRepo authorization.RequestRepository,
	publisher shared.EventPublisher,
) *ApproveRequestHandler {
	return &ApproveRequestHandler{
		catalogReader: catalogReader,
		requestRepo:   requestRepo,
		publisher:     publisher,
	}
}

// Handle executes the approve request command.
func (h *ApproveRequestHandler) Handle(ctx context.Context, cmd ApproveRequestCommand) (*ApproveRequestResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	if err := h.requireAdmin(ctx, cmd.AdminID); err != nil {
		return nil, err
	}

	req, err := h.requestRepo.GetRequest(ctx, cmd.RequestID)
	if err != nil {
		return nil, err
	}
	if req.Status.IsTerminal() {
		return nil, shared.ErrRequestProcessed
	}

	now := time.Now().UTC()
	grant, err := authorization.NewGrant(
		req.UserID, req.CourseID, authorization.GrantLesson,
		"", req.LessonID, cmd.AdminID, cmd.Reason, cmd.ExpiresAt, now,
	)
	if err != nil {
		return nil, err
	}

	if err := req.Approve(grant.ID, cmd.AdminID, now); err != nil {
		return nil, err
	}

	// Grant insert + guarded status flip happen in one transaction; a
	// concurrent resolution loses on the status = pending guard.
	if err := h.requestRepo.ResolveApprove(ctx, req, grant); err != nil {
		return nil, fmt.Errorf("approve_request: resolve: %w", err)
	}

	if h.publisher != nil {
		ev := shared.NewRequestApprovedEvent(req.ID, req.UserID, req.LessonID, grant.ID, cmd.AdminID)
		ev.CorrelationID = cmd.CorrelationID
		if err := h.publisher.Publish(ev); err != nil {
			return nil, fmt.Errorf("approve_request: publish event: %w", err)
		}
	}

	return &ApproveRequestResult{Request: req, Grant: grant}, nil
}

// requireAdmin rejects resolutions by non-admin users.
func (h *ApproveRequestHandler) requireAdmin(ctx context.Context, adminID string) error {
	user, err := h.catalogReader.GetUser(ctx, adminID)
	if err != nil {
		return err
	}
	if !user.Admin {
		return shared.ErrAdminRequired
	}
	return nil
}
