package query

import (
	"context"
	"fmt"

	"github.com/curso-hub/curso-access-hub/internal/domain/authorization"
	"github.com/curso-hub/curso-access-hub/internal/domain/catalog"
	"github.com/curso-hub/curso-access-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATEGORY GATE QUERY
// Runs the track-to-subject policy at the transport boundary, before any
// grant evaluation. The gate and the grant evaluator are independent layers;
// both must pass for an access check to come back permitted.
// ══════════════════════════════════════════════════════════════════════════════

// CategoryGateQuery identifies the (user, course) pair to gate.
type CategoryGateQuery struct {
	UserID   string
	CourseID string
}

// Validate validates the query.
func (q CategoryGateQuery) Validate() error {
	if q.UserID == "" || q.CourseID == "" {
		return shared.WrapError("authorization", "CategoryGate", shared.ErrInvalidID, "user_id and course_id are required", nil)
	}
	return nil
}

// CategoryGateHandler handles the CategoryGateQuery.
type CategoryGateHandler struct {
	catalogReader catalog.Reader
	policy        *authorization.Policy
}

// NewCategoryGateHandler creates a new CategoryGateHandler.
func NewCategoryGateHandler(catalogReader catalog.Reader, policy *authorization.Policy) *CategoryGateHandler {
	return &CategoryGateHandler{catalogReader: catalogReader, policy: policy}
}

// Handle returns nil when the user's track covers the course's subject and
// ErrTrackNotAllowed when it does not. Unknown ids surface as not-found.
func (h *CategoryGateHandler) Handle(ctx context.Context, q CategoryGateQuery) error {
	if err := q.Validate(); err != nil {
		return err
	}

	user, err := h.catalogReader.GetUser(ctx, q.UserID)
	if err != nil {
		return fmt.Errorf("category_gate: get user: %w", err)
	}

	course, err := h.catalogReader.GetCourse(ctx, q.CourseID)
	if err != nil {
		return fmt.Errorf("category_gate: get course: %w", err)
	}

	if !h.policy.Allowed(user.Track, course.Subject) {
		return shared.ErrTrackNotAllowed
	}
	return nil
}
