package query

import (
	"context"
	"fmt"

	"github.com/curso-hub/curso-access-hub/internal/domain/catalog"
	"github.com/curso-hub/curso-access-hub/internal/domain/progress"
	"github.com/curso-hub/curso-access-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET COURSE PROGRESS QUERY
// Returns the stored course roll-up plus the per-module breakdown. Modules the
// user never touched report zero rather than being omitted, so the client can
// render the full course outline.
// ══════════════════════════════════════════════════════════════════════════════

// GetCourseProgressQuery identifies the (user, course) pair.
type GetCourseProgressQuery struct {
	UserID   string
	CourseID string
}

// Validate validates the query.
func (q GetCourseProgressQuery) Validate() error {
	if q.UserID == "" || q.CourseID == "" {
		return shared.WrapError("progress", "GetCourseProgress", shared.ErrInvalidID, "user_id and course_id are required", nil)
	}
	return nil
}

// ModuleBreakdown is one module's share of the course progress.
type ModuleBreakdown struct {
	ModuleID string
	Percent  shared.Percent
}

// GetCourseProgressResult is the course roll-up with its module breakdown.
type GetCourseProgressResult struct {
	CourseID string
	Percent  shared.Percent
	Modules  []ModuleBreakdown
}

// GetCourseProgressHandler handles the GetCourseProgressQuery.
type GetCourseProgressHandler struct {
	catalogReader catalog.Reader
	progressRepo  progress.Repository
}

// NewGetCourseProgressHandler creates a new GetCourseProgressHandler.
func NewGetCourseProgressHandler(catalogReader catalog.Reader, progressRepo progress.Repository) *GetCourseProgressHandler {
	return &GetCourseProgressHandler{
		catalogReader: catalogReader,
		progressRepo:  progressRepo,
	}
}

// Handle executes the course progress query.
func (h *GetCourseProgressHandler) Handle(ctx context.Context, q GetCourseProgressQuery) (*GetCourseProgressResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	course, err := h.catalogReader.GetCourse(ctx, q.CourseID)
	if err != nil {
		return nil, err
	}

	modules, err := h.catalogReader.ListActiveModules(ctx, course.ID)
	if err != nil {
		return nil, fmt.Errorf("get_course_progress: list modules: %w", err)
	}

	moduleIDs := make([]string, 0, len(modules))
	for _, m := range modules {
		moduleIDs = append(moduleIDs, m.ID)
	}

	rollups, err := h.progressRepo.ListModuleProgress(ctx, q.UserID, moduleIDs)
	if err != nil {
		return nil, fmt.Errorf("get_course_progress: list module rollups: %w", err)
	}
	byModule := make(map[string]shared.Percent, len(rollups))
	for _, mp := range rollups {
		byModule[mp.ModuleID] = mp.Percent
	}

	result := &GetCourseProgressResult{CourseID: course.ID}
	for _, m := range modules {
		result.Modules = append(result.Modules, ModuleBreakdown{
			ModuleID: m.ID,
			Percent:  byModule[m.ID],
		})
	}

	cp, err := h.progressRepo.GetCourseProgress(ctx, q.UserID, course.ID)
	switch {
	case err == nil:
		result.Percent = cp.Percent
	case shared.IsNotFound(err):
		// Never computed: the user has no completions in this course.
		result.Percent = 0
	default:
		return nil, fmt.Errorf("get_course_progress: load course rollup: %w", err)
	}

	return result, nil
}
