// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/curso-hub/curso-access-hub/internal/domain/authorization"
	"github.com/curso-hub/curso-access-hub/internal/domain/catalog"
	"github.com/curso-hub/curso-access-hub/internal/domain/progress"
	"github.com/curso-hub/curso-access-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATE ACCESS QUERY
// Decides whether a user may open a lesson. "Not permitted" is a normal
// result, never an error; only structural problems (unknown ids) surface as
// errors. Short-circuit order: prior completion, then course-wide, module,
// and lesson grants, then denial.
// ══════════════════════════════════════════════════════════════════════════════

// Denial and permission reasons returned to the transport layer.
const (
	ReasonAlreadyCompleted = "already completed"
	ReasonCourseUnlocked   = "course fully unlocked"
	ReasonModuleUnlocked   = "module unlocked"
	ReasonLessonUnlocked   = "lesson specifically unlocked"
	ReasonNoAuthorization  = "no authorization"
)

// EvaluateAccessQuery identifies the (user, course, lesson) triple to check.
type EvaluateAccessQuery struct {
	UserID   string
	CourseID string
	LessonID string
}

// Validate validates the query.
func (q EvaluateAccessQuery) Validate() error {
	if q.UserID == "" || q.CourseID == "" || q.LessonID == "" {
		return shared.WrapError("authorization", "Evaluate", shared.ErrInvalidID, "user_id, course_id and lesson_id are required", nil)
	}
	return nil
}

// EvaluateAccessResult is the access decision.
type EvaluateAccessResult struct {
	Permitted bool
	Reason    string
}

// EvaluateAccessHandler handles the EvaluateAccessQuery.
type EvaluateAccessHandler struct {
	catalogReader catalog.Reader
	progressRepo  progress.Repository
	grantRepo     authorization.GrantRepository

	// now is swappable for tests; defaults to time.Now.
	now func() time.Time
}

// NewEvaluateAccessHandler creates a new EvaluateAccessHandler.
func NewEvaluateAccessHandler(
	catalogReader catalog.Reader,
	progressRepo progress.Repository,
	grantRepo authorization.GrantRepository,
) *EvaluateAccessHandler {
	return &EvaluateAccessHandler{
		catalogReader: catalogReader,
		progressRepo:  progressRepo,
		grantRepo:     grantRepo,
		now:           time.Now,
	}
}

// WithClock replaces the evaluator's clock. Used by tests to control expiry.
func (h *EvaluateAccessHandler) WithClock(now func() time.Time) *EvaluateAccessHandler {
	h.now = now
	return h
}

// Handle executes the access evaluation.
func (h *EvaluateAccessHandler) Handle(ctx context.Context, q EvaluateAccessQuery) (*EvaluateAccessResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	lesson, err := h.catalogReader.GetLesson(ctx, q.LessonID)
	if err != nil {
		return nil, err
	}

	// 1. Review is always allowed: a completed lesson stays open regardless
	//    of grants.
	lp, err := h.progressRepo.GetLessonProgress(ctx, q.UserID, q.LessonID)
	switch {
	case err == nil:
		if lp.Completed {
			return &EvaluateAccessResult{Permitted: true, Reason: ReasonAlreadyCompleted}, nil
		}
	case shared.IsNotFound(err):
		// No record, fall through to grants.
	default:
		return nil, fmt.Errorf("evaluate_access: load progress: %w", err)
	}

	// 2. Standing grants, widest scope first. Expired grants never reach us;
	//    the repository filters them at read time.
	grants, err := h.grantRepo.ListUsableGrants(ctx, q.UserID, q.CourseID, h.now())
	if err != nil {
		return nil, fmt.Errorf("evaluate_access: list grants: %w", err)
	}

	for _, kind := range []authorization.GrantKind{authorization.GrantCourse, authorization.GrantModule, authorization.GrantLesson} {
		for _, g := range grants {
			if g.Kind != kind || !g.Covers(lesson.ModuleID, lesson.ID) {
				continue
			}
			switch kind {
			case authorization.GrantCourse:
				return &EvaluateAccessResult{Permitted: true, Reason: ReasonCourseUnlocked}, nil
			case authorization.GrantModule:
				return &EvaluateAccessResult{Permitted: true, Reason: ReasonModuleUnlocked}, nil
			default:
				return &EvaluateAccessResult{Permitted: true, Reason: ReasonLessonUnlocked}, nil
			}
		}
	}

	// 3. Nothing matched.
	return &EvaluateAccessResult{Permitted: false, Reason: ReasonNoAuthorization}, nil
}
