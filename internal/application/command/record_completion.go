// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"fmt"
	"time"

	"github.com/curso-hub/curso-access-hub/internal/domain/catalog"
	"github.com/curso-hub/curso-access-hub/internal/domain/progress"
	"github.com/curso-hub/curso-access-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD COMPLETION COMMAND
// Upserts the lesson completion record, then recomputes the module and course
// roll-ups from the full record set, in that order. LessonProgress stays
// authoritative: a crash between the steps is recovered by re-running the
// aggregation, which is idempotent.
// ══════════════════════════════════════════════════════════════════════════════

// RecordCompletionCommand contains the data to record a lesson completion.
type RecordCompletionCommand struct {
	// UserID is the learner marking the lesson.
	UserID string

	// LessonID is the lesson being marked.
	LessonID string

	// Completed is the new completion flag. False clears a prior completion.
	Completed bool

	// Timestamp is when the completion occurred (defaults to now if zero).
	Timestamp time.Time

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c RecordCompletionCommand) Validate() error {
	if c.UserID == "" {
		return shared.WrapError("progress", "RecordCompletion", shared.ErrInvalidID, "user_id is required", nil)
	}
	if c.LessonID == "" {
		return shared.WrapError("progress", "RecordCompletion", shared.ErrInvalidID, "lesson_id is required", nil)
	}
	return nil
}

// RecordCompletionResult contains the updated records after aggregation.
type RecordCompletionResult struct {
	LessonProgress *progress.LessonProgress
	ModuleProgress *progress.ModuleProgress
	CourseProgress *progress.CourseProgress

	// CourseFinished reports that every active lesson of the course is now
	// complete.
	CourseFinished bool

	// Events contains domain events generated by the aggregation. They are
	// already published; the slice exists for callers that inspect them.
	Events []shared.Event
}

// RecordCompletionHandler handles the RecordCompletionCommand.
type RecordCompletionHandler struct {
	catalogReader catalog.Reader
	progressRepo  progress.Repository
	publisher     shared.EventPublisher
}

// NewRecordCompletionHandler creates a new RecordCompletionHandler.
func NewRecordCompletionHandler(
	catalogReader catalog.Reader,
	progressRepo progress.Repository,
	publisher shared.EventPublisher,
) *RecordCompletionHandler {
	return &RecordCompletionHandler{
		catalogReader: catalogReader,
		progressRepo:  progressRepo,
		publisher:     publisher,
	}
}

// Handle executes the record completion command.
func (h *RecordCompletionHandler) Handle(ctx context.Context, cmd RecordCompletionCommand) (*RecordCompletionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	timestamp := cmd.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	res, err := catalog.Resolve(ctx, h.catalogReader, cmd.LessonID)
	if err != nil {
		return nil, fmt.Errorf("record_completion: resolve lesson: %w", err)
	}

	// 1. Upsert the authoritative completion record.
	lp, err := h.progressRepo.GetLessonProgress(ctx, cmd.UserID, cmd.LessonID)
	switch {
	case err == nil:
		lp.MarkCompleted(cmd.Completed, timestamp)
	case shared.IsNotFound(err):
		lp = progress.NewLessonProgress(cmd.UserID, cmd.LessonID, cmd.Completed, timestamp)
	default:
		return nil, fmt.Errorf("record_completion: load lesson progress: %w", err)
	}
	if err := h.progressRepo.UpsertLessonProgress(ctx, lp); err != nil {
		return nil, fmt.Errorf("record_completion: upsert lesson progress: %w", err)
	}

	// 2. Module roll-up.
	mp, err := h.recomputeModule(ctx, cmd.UserID, res.Module, timestamp)
	if err != nil {
		return nil, err
	}

	// 3. Course roll-up.
	cp, finished, err := h.recomputeCourse(ctx, cmd.UserID, res.Course, timestamp)
	if err != nil {
		return nil, err
	}

	result := &RecordCompletionResult{
		LessonProgress: lp,
		ModuleProgress: mp,
		CourseProgress: cp,
		CourseFinished: finished,
	}

	if cmd.Completed {
		ev := shared.NewLessonCompletedEvent(
			cmd.UserID, res.Course.ID, res.Module.ID, res.Lesson.ID,
			mp.Percent.Int(), cp.Percent.Int(),
		)
		ev.CorrelationID = cmd.CorrelationID
		result.Events = append(result.Events, ev)
		if finished {
			result.Events = append(result.Events, shared.NewCourseFinishedEvent(cmd.UserID, res.Course.ID))
		}
	}

	// Publishing is fire-and-forget on an async bus; the completion response
	// does not wait for the auto-chain.
	if h.publisher != nil {
		for _, ev := range result.Events {
			if err := h.publisher.Publish(ev); err != nil {
				return nil, fmt.Errorf("record_completion: publish event: %w", err)
			}
		}
	}

	return result, nil
}

// recomputeModule recomputes and stores the module roll-up from the full set
// of the user's records within the module's active lessons.
func (h *RecordCompletionHandler) recomputeModule(ctx context.Context, userID string, mod *catalog.Module, now time.Time) (*progress.ModuleProgress, error) {
	lessons, err := h.catalogReader.ListActiveLessons(ctx, mod.ID)
	if err != nil {
		return nil, fmt.Errorf("record_completion: list module lessons: %w", err)
	}

	ids := lessonIDs(lessons)
	records, err := h.progressRepo.ListLessonProgressByLessons(ctx, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("record_completion: list module records: %w", err)
	}

	mp := &progress.ModuleProgress{
		UserID:    userID,
		ModuleID:  mod.ID,
		Percent:   progress.ComputeRollup(records, ids),
		UpdatedAt: now,
	}
	if err := h.progressRepo.UpsertModuleProgress(ctx, mp); err != nil {
		return nil, fmt.Errorf("record_completion: upsert module progress: %w", err)
	}
	return mp, nil
}

// recomputeCourse recomputes and stores the course roll-up across all active
// modules of the course.
func (h *RecordCompletionHandler) recomputeCourse(ctx context.Context, userID string, course *catalog.Course, now time.Time) (*progress.CourseProgress, bool, error) {
	modules, err := h.catalogReader.ListActiveModules(ctx, course.ID)
	if err != nil {
		return nil, false, fmt.Errorf("record_completion: list course modules: %w", err)
	}

	var allIDs []string
	for _, m := range modules {
		lessons, err := h.catalogReader.ListActiveLessons(ctx, m.ID)
		if err != nil {
			return nil, false, fmt.Errorf("record_completion: list course lessons: %w", err)
		}
		allIDs = append(allIDs, lessonIDs(lessons)...)
	}

	records, err := h.progressRepo.ListLessonProgressByLessons(ctx, userID, allIDs)
	if err != nil {
		return nil, false, fmt.Errorf("record_completion: list course records: %w", err)
	}

	cp := &progress.CourseProgress{
		UserID:    userID,
		CourseID:  course.ID,
		Percent:   progress.ComputeRollup(records, allIDs),
		UpdatedAt: now,
	}
	if err := h.progressRepo.UpsertCourseProgress(ctx, cp); err != nil {
		return nil, false, fmt.Errorf("record_completion: upsert course progress: %w", err)
	}

	finished := len(allIDs) > 0 && progress.CountCompleted(records, allIDs) == len(allIDs)
	return cp, finished, nil
}

func lessonIDs(lessons []*catalog.Lesson) []string {
	ids := make([]string, 0, len(lessons))
	for _, l := range lessons {
		ids = append(ids, l.ID)
	}
	return ids
}
