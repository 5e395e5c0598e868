// Package progress holds the completion records: per-lesson completion flags
// and the module/course percentage roll-ups derived from them. Roll-ups are
// always recomputed from the full set of lesson records, never incremented,
// so concurrent recomputations converge to the same value.
package progress

import (
	"time"

	"github.com/curso-hub/curso-access-hub/internal/domain/shared"
)

// LessonProgress is the authoritative completion record for a (user, lesson)
// pair. At most one record exists per pair; repeated completion events update
// it in place.
type LessonProgress struct {
	UserID      string
	LessonID    string
	Completed   bool
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewLessonProgress creates a completion record. CompletedAt is set only when
// completed is true.
func NewLessonProgress(userID, lessonID string, completed bool, now time.Time) *LessonProgress {
	lp := &LessonProgress{
		UserID:    userID,
		LessonID:  lessonID,
		Completed: completed,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if completed {
		t := now
		lp.CompletedAt = &t
	}
	return lp
}

// MarkCompleted flips the completion flag. Clearing a completion also clears
// the timestamp; re-completing refreshes it.
func (lp *LessonProgress) MarkCompleted(completed bool, now time.Time) {
	lp.Completed = completed
	lp.UpdatedAt = now
	if completed {
		t := now
		lp.CompletedAt = &t
	} else {
		lp.CompletedAt = nil
	}
}

// Validate checks structural invariants.
func (lp *LessonProgress) Validate() error {
	if lp.UserID == "" || lp.LessonID == "" {
		return shared.WrapError("progress", "Validate", shared.ErrInvalidID, "user and lesson ids are required", nil)
	}
	if lp.Completed && lp.CompletedAt == nil {
		return shared.WrapError("progress", "Validate", shared.ErrInvalidEntity, "completed record missing completion timestamp", nil)
	}
	return nil
}

// ModuleProgress is the recomputed module roll-up for a (user, module) pair.
// Clients never write the percentage directly.
type ModuleProgress struct {
	UserID    string
	ModuleID  string
	Percent   shared.Percent
	UpdatedAt time.Time
}

// CourseProgress is the recomputed course roll-up for a (user, course) pair,
// aggregated across all active modules of the course.
type CourseProgress struct {
	UserID    string
	CourseID  string
	Percent   shared.Percent
	UpdatedAt time.Time
}

// ComputeRollup derives a percentage from a set of lesson records against the
// lessons currently active in the scope. Records for lessons outside the
// active set are ignored, so deactivating a lesson self-corrects the roll-up
// on the next recomputation.
func ComputeRollup(records []*LessonProgress, activeLessonIDs []string) shared.Percent {
	return shared.RatioPercent(CountCompleted(records, activeLessonIDs), len(activeLessonIDs))
}

// CountCompleted counts the completed records among the active lessons.
// Rounding can push a roll-up to 100 with lessons still open, so finish
// detection compares this count against the active total instead of the
// stored percentage.
func CountCompleted(records []*LessonProgress, activeLessonIDs []string) int {
	active := make(map[string]struct{}, len(activeLessonIDs))
	for _, id := range activeLessonIDs {
		active[id] = struct{}{}
	}

	completed := 0
	for _, r := range records {
		if !r.Completed {
			continue
		}
		if _, ok := active[r.LessonID]; ok {
			completed++
		}
	}
	return completed
}
