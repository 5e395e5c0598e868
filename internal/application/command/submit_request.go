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
// SUBMIT REQUEST COMMAND
// Creates a pending access request for a lesson. Duplicate pending requests
// for the same (user, course, lesson) tuple are a conflict for learners and a
// success for the auto-chain trigger, which simply receives the existing id.
// ══════════════════════════════════════════════════════════════════════════════

// SubmitRequestCommand contains the data to submit an access request.
type SubmitRequestCommand struct {
	// UserID is the learner the request is for.
	UserID string

	// CourseID is the course the lesson belongs to.
	CourseID string

	// LessonID is the lesson being requested.
	LessonID string

	// Origin distinguishes learner submissions from auto-chain submissions.
	Origin authorization.RequestOrigin

	// Reason is the optional learner-provided justification.
	Reason string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c SubmitRequestCommand) Validate() error {
	if c.UserID == "" {
		return shared.WrapError("authorization", "Submit", shared.ErrInvalidID, "user_id is required", nil)
	}
	if c.CourseID == "" {
		return shared.WrapError("authorization", "Submit", shared.ErrInvalidID, "course_id is required", nil)
	}
	if c.LessonID == "" {
		return shared.WrapError("authorization", "Submit", shared.ErrInvalidID, "lesson_id is required", nil)
	}
	if !c.Origin.IsValid() {
		return shared.WrapError("authorization", "Submit", shared.ErrInvalidInput, "unknown request origin", nil)
	}
	return nil
}

// SubmitRequestResult contains the submitted (or existing) request.
type SubmitRequestResult struct {
	Request *authorization.Request

	// Existing reports that a pending request was already in the queue and
	// was returned instead of a new one (automatic origin only).
	Existing bool
}

// SubmitRequestHandler handles the SubmitRequestCommand.
type SubmitRequestHandler struct {
	catalogReader catalog.Reader
	requestRepo   authorization.RequestRepository
	policy        *authorization.Policy
	publisher     shared.EventPublisher
}

// NewSubmitRequestHandler creates a new SubmitRequestHandler.
func NewSubmitRequestHandler(
	catalogReader catalog.Reader,
	requestRepo authorization.RequestRepository,
	policy *authorization.Policy,
	publisher shared.EventPublisher,
) *SubmitRequestHandler {
	return &SubmitRequestHandler{
		catalogReader: catalogReader,
		requestRepo:   requestRepo,
		policy:        policy,
		publisher:     publisher,
	}
}

// Handle executes the submit request command.
func (h *SubmitRequestHandler) Handle(ctx context.Context, cmd SubmitRequestCommand) (*SubmitRequestResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	res, err := catalog.Resolve(ctx, h.catalogReader, cmd.LessonID)
	if err != nil {
		return nil, fmt.Errorf("submit_request: resolve lesson: %w", err)
	}
	if res.Course.ID != cmd.CourseID {
		return nil, shared.ErrCourseMismatch
	}

	// The category gate runs before the workflow is even entered, so a learner
	// outside the course's track never lands in the admin queue. Automatic
	// submissions skip it: the chain only fires for lessons the user already
	// reached within an allowed course.
	if cmd.Origin == authorization.OriginManual {
		user, err := h.catalogReader.GetUser(ctx, cmd.UserID)
		if err != nil {
			return nil, fmt.Errorf("submit_request: get user: %w", err)
		}
		if !h.policy.Allowed(user.Track, res.Course.Subject) {
			return nil, shared.ErrTrackNotAllowed
		}
	}

	// Idempotent re-submission for the automatic origin; conflict for manual.
	existing, err := h.requestRepo.FindPendingRequest(ctx, cmd.UserID, cmd.CourseID, cmd.LessonID)
	switch {
	case err == nil:
		if cmd.Origin == authorization.OriginAutomatic {
			return &SubmitRequestResult{Request: existing, Existing: true}, nil
		}
		return nil, shared.ErrDuplicateRequest
	case shared.IsNotFound(err):
		// No pending request, continue.
	default:
		return nil, fmt.Errorf("submit_request: find pending: %w", err)
	}

	req, err := authorization.NewRequest(
		cmd.UserID, cmd.CourseID, res.Module.ID, cmd.LessonID,
		cmd.Origin, cmd.Reason, time.Now().UTC(),
	)
	if err != nil {
		return nil, err
	}

	if err := h.requestRepo.CreateRequest(ctx, req); err != nil {
		// A concurrent submission may win the race between the pending lookup
		// and the insert; the partial unique index surfaces it here.
		if shared.IsConflict(err) && cmd.Origin == authorization.OriginAutomatic {
			if existing, findErr := h.requestRepo.FindPendingRequest(ctx, cmd.UserID, cmd.CourseID, cmd.LessonID); findErr == nil {
				return &SubmitRequestResult{Request: existing, Existing: true}, nil
			}
		}
		return nil, fmt.Errorf("submit_request: create: %w", err)
	}

	if h.publisher != nil {
		ev := shared.NewRequestSubmittedEvent(req.ID, req.UserID, req.CourseID, req.LessonID, string(req.Origin))
		ev.CorrelationID = cmd.CorrelationID
		if err := h.publisher.Publish(ev); err != nil {
			return nil, fmt.Errorf("submit_request: publish event: %w", err)
		}
	}

	return &SubmitRequestResult{Request: req}, nil
}
