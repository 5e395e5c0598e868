// Package postgres implements the PostgreSQL persistence layer for the
// course access hub.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/curso-hub/curso-access-hub/internal/domain/progress"
	"github.com/curso-hub/curso-access-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ProgressRepository implements progress.Repository for PostgreSQL.
type ProgressRepository struct {
	conn *Connection
}

// NewProgressRepository creates a new ProgressRepository.
func NewProgressRepository(conn *Connection) *ProgressRepository {
	return &ProgressRepository{conn: conn}
}

// ─────────────────────────────────────────────────────────────────────────────
// Lesson completion records
// ─────────────────────────────────────────────────────────────────────────────

// GetLessonProgress returns the record for a (user, lesson) pair.
func (r *ProgressRepository) GetLessonProgress(ctx context.Context, userID, lessonID string) (*progress.LessonProgress, error) {
	query := `
		SELECT user_id, lesson_id, completed, completed_at, created_at, updated_at
		FROM lesson_progress
		WHERE user_id = $1 AND lesson_id = $2
	`

	var lp progress.LessonProgress
	err := r.conn.QueryRow(ctx, query, userID, lessonID).Scan(
		&lp.UserID,
		&lp.LessonID,
		&lp.Completed,
		&lp.CompletedAt,
		&lp.CreatedAt,
		&lp.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrProgressNotFound
		}
		return nil, fmt.Errorf("failed to get lesson progress: %w", err)
	}

	return &lp, nil
}

// UpsertLessonProgress creates or updates the record for its (user, lesson)
// pair. The primary key on (user_id, lesson_id) makes replays converge on a
// single row.
func (r *ProgressRepository) UpsertLessonProgress(ctx context.Context, lp *progress.LessonProgress) error {
	query := `
		INSERT INTO lesson_progress (user_id, lesson_id, completed, completed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, lesson_id) DO UPDATE SET
			completed = EXCLUDED.completed,
			completed_at = EXCLUDED.completed_at,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.conn.Exec(ctx, query,
		lp.UserID,
		lp.LessonID,
		lp.Completed,
		lp.CompletedAt,
		lp.CreatedAt,
		lp.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert lesson progress: %w", err)
	}

	return nil
}

// ListLessonProgressByLessons returns the user's records restricted to the
// given lesson IDs.
func (r *ProgressRepository) ListLessonProgressByLessons(ctx context.Context, userID string, lessonIDs []string) ([]*progress.LessonProgress, error) {
	if len(lessonIDs) == 0 {
		return []*progress.LessonProgress{}, nil
	}

	query := `
		SELECT user_id, lesson_id, completed, completed_at, created_at, updated_at
		FROM lesson_progress
		WHERE user_id = $1 AND lesson_id = ANY($2)
	`

	rows, err := r.conn.Query(ctx, query, userID, lessonIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list lesson progress: %w", err)
	}
	defer rows.Close()

	records := make([]*progress.LessonProgress, 0, len(lessonIDs))
	for rows.Next() {
		var lp progress.LessonProgress
		if err := rows.Scan(
			&lp.UserID,
			&lp.LessonID,
			&lp.Completed,
			&lp.CompletedAt,
			&lp.CreatedAt,
			&lp.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan lesson progress: %w", err)
		}
		records = append(records, &lp)
	}

	return records, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Roll-ups
// ─────────────────────────────────────────────────────────────────────────────

// GetModuleProgress returns the module roll-up for a (user, module) pair.
func (r *ProgressRepository) GetModuleProgress(ctx context.Context, userID, moduleID string) (*progress.ModuleProgress, error) {
	query := `
		SELECT user_id, module_id, percent, updated_at
		FROM module_progress
		WHERE user_id = $1 AND module_id = $2
	`

	var mp progress.ModuleProgress
	var percent int
	err := r.conn.QueryRow(ctx, query, userID, moduleID).Scan(&mp.UserID, &mp.ModuleID, &percent, &mp.UpdatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrProgressNotFound
		}
		return nil, fmt.Errorf("failed to get module progress: %w", err)
	}
	mp.Percent = shared.Percent(percent)

	return &mp, nil
}

// UpsertModuleProgress stores a recomputed module roll-up.
func (r *ProgressRepository) UpsertModuleProgress(ctx context.Context, mp *progress.ModuleProgress) error {
	query := `
		INSERT INTO module_progress (user_id, module_id, percent, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, module_id) DO UPDATE SET
			percent = EXCLUDED.percent,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.conn.Exec(ctx, query, mp.UserID, mp.ModuleID, mp.Percent.Int(), ensureTime(mp.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert module progress: %w", err)
	}

	return nil
}

// ListModuleProgress returns the user's roll-ups for the given modules.
func (r *ProgressRepository) ListModuleProgress(ctx context.Context, userID string, moduleIDs []string) ([]*progress.ModuleProgress, error) {
	if len(moduleIDs) == 0 {
		return []*progress.ModuleProgress{}, nil
	}

	query := `
		SELECT user_id, module_id, percent, updated_at
		FROM module_progress
		WHERE user_id = $1 AND module_id = ANY($2)
	`

	rows, err := r.conn.Query(ctx, query, userID, moduleIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list module progress: %w", err)
	}
	defer rows.Close()

	rollups := make([]*progress.ModuleProgress, 0, len(moduleIDs))
	for rows.Next() {
		var mp progress.ModuleProgress
		var percent int
		if err := rows.Scan(&mp.UserID, &mp.ModuleID, &percent, &mp.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan module progress: %w", err)
		}
		mp.Percent = shared.Percent(percent)
		rollups = append(rollups, &mp)
	}

	return rollups, rows.Err()
}

// GetCourseProgress returns the course roll-up for a (user, course) pair.
func (r *ProgressRepository) GetCourseProgress(ctx context.Context, userID, courseID string) (*progress.CourseProgress, error) {
	query := `
		SELECT user_id, course_id, percent, updated_at
		FROM course_progress
		WHERE user_id = $1 AND course_id = $2
	`

	var cp progress.CourseProgress
	var percent int
	err := r.conn.QueryRow(ctx, query, userID, courseID).Scan(&cp.UserID, &cp.CourseID, &percent, &cp.UpdatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrProgressNotFound
		}
		return nil, fmt.Errorf("failed to get course progress: %w", err)
	}
	cp.Percent = shared.Percent(percent)

	return &cp, nil
}

// UpsertCourseProgress stores a recomputed course roll-up.
func (r *ProgressRepository) UpsertCourseProgress(ctx context.Context, cp *progress.CourseProgress) error {
	query := `
		INSERT INTO course_progress (user_id, course_id, percent, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, course_id) DO UPDATE SET
			percent = EXCLUDED.percent,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.conn.Exec(ctx, query, cp.UserID, cp.CourseID, cp.Percent.Int(), ensureTime(cp.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert course progress: %w", err)
	}

	return nil
}

// ensureTime substitutes the current instant for a zero timestamp.
func ensureTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
