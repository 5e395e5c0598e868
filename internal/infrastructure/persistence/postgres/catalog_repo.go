// Package postgres implements the PostgreSQL persistence layer for the
// course access hub.
package postgres

import (
	"context"
	"fmt"

	"github.com/curso-hub/curso-access-hub/internal/domain/catalog"
	"github.com/curso-hub/curso-access-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG READER IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// MediaDecrypter decrypts lesson media URLs stored encrypted at rest.
type MediaDecrypter interface {
	Decrypt(ciphertext string) (string, error)
}

// CatalogRepository implements catalog.Reader for PostgreSQL. The catalog
// tables are owned by the course-management subsystem; this repository only
// reads them.
type CatalogRepository struct {
	conn  *Connection
	media MediaDecrypter
}

// NewCatalogRepository creates a new CatalogRepository. A nil decrypter means
// media URLs are stored in plaintext.
func NewCatalogRepository(conn *Connection, media MediaDecrypter) *CatalogRepository {
	return &CatalogRepository{conn: conn, media: media}
}

// GetUser returns a user by ID.
func (r *CatalogRepository) GetUser(ctx context.Context, id string) (*catalog.User, error) {
	query := `
		SELECT id, track, is_active, is_admin
		FROM users
		WHERE id = $1
	`

	var u catalog.User
	err := r.conn.QueryRow(ctx, query, id).Scan(&u.ID, &u.Track, &u.Active, &u.Admin)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &u, nil
}

// GetCourse returns a course by ID.
func (r *CatalogRepository) GetCourse(ctx context.Context, id string) (*catalog.Course, error) {
	query := `
		SELECT id, subject, title, is_active
		FROM courses
		WHERE id = $1
	`

	var c catalog.Course
	err := r.conn.QueryRow(ctx, query, id).Scan(&c.ID, &c.Subject, &c.Title, &c.Active)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrCourseNotFound
		}
		return nil, fmt.Errorf("failed to get course: %w", err)
	}

	return &c, nil
}

// GetModule returns a module by ID.
func (r *CatalogRepository) GetModule(ctx context.Context, id string) (*catalog.Module, error) {
	query := `
		SELECT id, course_id, ordem, title, is_active
		FROM modules
		WHERE id = $1
	`

	var m catalog.Module
	var ordem int
	err := r.conn.QueryRow(ctx, query, id).Scan(&m.ID, &m.CourseID, &ordem, &m.Title, &m.Active)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrModuleNotFound
		}
		return nil, fmt.Errorf("failed to get module: %w", err)
	}
	m.Ordem = shared.Ordem(ordem)

	return &m, nil
}

// GetLesson returns a lesson by ID with its media URL decrypted.
func (r *CatalogRepository) GetLesson(ctx context.Context, id string) (*catalog.Lesson, error) {
	query := `
		SELECT id, module_id, ordem, title, media_url, is_active
		FROM lessons
		WHERE id = $1
	`

	row := r.conn.QueryRow(ctx, query, id)
	lesson, err := r.scanLesson(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrLessonNotFound
		}
		return nil, fmt.Errorf("failed to get lesson: %w", err)
	}

	return lesson, nil
}

// ListActiveModules returns the active modules of a course, sorted by ordem.
func (r *CatalogRepository) ListActiveModules(ctx context.Context, courseID string) ([]*catalog.Module, error) {
	query := `
		SELECT id, course_id, ordem, title, is_active
		FROM modules
		WHERE course_id = $1 AND is_active
		ORDER BY ordem
	`

	rows, err := r.conn.Query(ctx, query, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list modules: %w", err)
	}
	defer rows.Close()

	modules := make([]*catalog.Module, 0)
	for rows.Next() {
		var m catalog.Module
		var ordem int
		if err := rows.Scan(&m.ID, &m.CourseID, &ordem, &m.Title, &m.Active); err != nil {
			return nil, fmt.Errorf("failed to scan module: %w", err)
		}
		m.Ordem = shared.Ordem(ordem)
		modules = append(modules, &m)
	}

	return modules, rows.Err()
}

// ListActiveLessons returns the active lessons of a module, sorted by ordem.
func (r *CatalogRepository) ListActiveLessons(ctx context.Context, moduleID string) ([]*catalog.Lesson, error) {
	query := `
		SELECT id, module_id, ordem, title, media_url, is_active
		FROM lessons
		WHERE module_id = $1 AND is_active
		ORDER BY ordem
	`

	rows, err := r.conn.Query(ctx, query, moduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lessons: %w", err)
	}
	defer rows.Close()

	lessons := make([]*catalog.Lesson, 0)
	for rows.Next() {
		lesson, err := r.scanLesson(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lesson: %w", err)
		}
		lessons = append(lessons, lesson)
	}

	return lessons, rows.Err()
}

// scanLesson scans a lesson row and decrypts its media URL.
func (r *CatalogRepository) scanLesson(row interface{ Scan(dest ...interface{}) error }) (*catalog.Lesson, error) {
	var l catalog.Lesson
	var ordem int
	if err := row.Scan(&l.ID, &l.ModuleID, &ordem, &l.Title, &l.MediaURL, &l.Active); err != nil {
		return nil, err
	}
	l.Ordem = shared.Ordem(ordem)

	if r.media != nil && l.MediaURL != "" {
		decrypted, err := r.media.Decrypt(l.MediaURL)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt media url for lesson %s: %w", l.ID, err)
		}
		l.MediaURL = decrypted
	}

	return &l, nil
}
