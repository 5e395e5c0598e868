package progress

import (
	"context"
)

// Repository defines persistence for completion records and roll-ups.
// Implementations live in infrastructure/persistence.
type Repository interface {
	// ─────────────────────────────────────────────────────────────────────────
	// Lesson completion records
	// ─────────────────────────────────────────────────────────────────────────

	// GetLessonProgress returns the record for a (user, lesson) pair.
	// Returns shared.ErrProgressNotFound when no record exists.
	GetLessonProgress(ctx context.Context, userID, lessonID string) (*LessonProgress, error)

	// UpsertLessonProgress creates or updates the record for its
	// (user, lesson) pair. Never produces a duplicate pair.
	UpsertLessonProgress(ctx context.Context, lp *LessonProgress) error

	// ListLessonProgressByLessons returns the user's records restricted to
	// the given lesson IDs. Missing pairs are simply absent from the result.
	ListLessonProgressByLessons(ctx context.Context, userID string, lessonIDs []string) ([]*LessonProgress, error)

	// ─────────────────────────────────────────────────────────────────────────
	// Roll-ups
	// ─────────────────────────────────────────────────────────────────────────

	// GetModuleProgress returns the module roll-up for a (user, module) pair.
	// Returns shared.ErrProgressNotFound when no roll-up has been computed yet.
	GetModuleProgress(ctx context.Context, userID, moduleID string) (*ModuleProgress, error)

	// UpsertModuleProgress stores a recomputed module roll-up.
	UpsertModuleProgress(ctx context.Context, mp *ModuleProgress) error

	// ListModuleProgress returns the user's roll-ups for the given modules.
	ListModuleProgress(ctx context.Context, userID string, moduleIDs []string) ([]*ModuleProgress, error)

	// GetCourseProgress returns the course roll-up for a (user, course) pair.
	// Returns shared.ErrProgressNotFound when no roll-up has been computed yet.
	GetCourseProgress(ctx context.Context, userID, courseID string) (*CourseProgress, error)

	// UpsertCourseProgress stores a recomputed course roll-up.
	UpsertCourseProgress(ctx context.Context, cp *CourseProgress) error
}
