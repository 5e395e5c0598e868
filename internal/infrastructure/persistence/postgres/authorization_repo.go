// Package postgres implements the PostgreSQL persistence layer for the
// course access hub.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/curso-hub/curso-access-hub/internal/domain/authorization"
	"github.com/curso-hub/curso-access-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GRANT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// GrantRepository implements authorization.GrantRepository for PostgreSQL.
type GrantRepository struct {
	conn *Connection
}

// NewGrantRepository creates a new GrantRepository.
func NewGrantRepository(conn *Connection) *GrantRepository {
	return &GrantRepository{conn: conn}
}

// CreateGrant persists a new grant.
func (r *GrantRepository) CreateGrant(ctx context.Context, g *authorization.Grant) error {
	_, err := insertGrant(ctx, r.conn, g)
	return err
}

// GetGrant returns a grant by ID.
func (r *GrantRepository) GetGrant(ctx context.Context, id string) (*authorization.Grant, error) {
	query := `
		SELECT id, user_id, course_id, kind, module_id, lesson_id,
		       granted_by, reason, is_active, expires_at, created_at
		FROM authorization_grants
		WHERE id = $1
	`

	grant, err := scanGrant(r.conn.QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrGrantNotFound
		}
		return nil, fmt.Errorf("failed to get grant: %w", err)
	}

	return grant, nil
}

// ListUsableGrants returns the user's grants for a course that are active and
// not expired at the given instant. Expiry is filtered in the query; no write
// happens when a grant lapses.
func (r *GrantRepository) ListUsableGrants(ctx context.Context, userID, courseID string, now time.Time) ([]*authorization.Grant, error) {
	query := `
		SELECT id, user_id, course_id, kind, module_id, lesson_id,
		       granted_by, reason, is_active, expires_at, created_at
		FROM authorization_grants
		WHERE user_id = $1 AND course_id = $2 AND is_active
		  AND (expires_at IS NULL OR expires_at > $3)
		ORDER BY created_at
	`

	rows, err := r.conn.Query(ctx, query, userID, courseID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	defer rows.Close()

	grants := make([]*authorization.Grant, 0)
	for rows.Next() {
		grant, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		grants = append(grants, grant)
	}

	return grants, rows.Err()
}

// DeactivateGrant flips a grant inactive.
func (r *GrantRepository) DeactivateGrant(ctx context.Context, id string) error {
	query := `
		UPDATE authorization_grants
		SET is_active = FALSE
		WHERE id = $1
	`

	result, err := r.conn.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate grant: %w", err)
	}
	if result.RowsAffected() == 0 {
		return shared.ErrGrantNotFound
	}

	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// RequestRepository implements authorization.RequestRepository for PostgreSQL.
type RequestRepository struct {
	conn *Connection
}

// NewRequestRepository creates a new RequestRepository.
func NewRequestRepository(conn *Connection) *RequestRepository {
	return &RequestRepository{conn: conn}
}

const requestColumns = `
	id, user_id, course_id, module_id, lesson_id, status, origin,
	reason, resolution_reason, resolved_by, grant_id, created_at, resolved_at
`

// CreateRequest persists a new pending request. The partial unique index on
// pending (user, course, lesson) tuples turns a concurrent duplicate into
// shared.ErrDuplicateRequest.
func (r *RequestRepository) CreateRequest(ctx context.Context, req *authorization.Request) error {
	query := `
		INSERT INTO authorization_requests (
			id, user_id, course_id, module_id, lesson_id, status, origin, reason, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.conn.Exec(ctx, query,
		req.ID,
		req.UserID,
		req.CourseID,
		nullableID(req.ModuleID),
		req.LessonID,
		string(req.Status),
		string(req.Origin),
		req.Reason,
		req.CreatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrDuplicateRequest
		}
		return fmt.Errorf("failed to create request: %w", err)
	}

	return nil
}

// GetRequest returns a request by ID.
func (r *RequestRepository) GetRequest(ctx context.Context, id string) (*authorization.Request, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM authorization_requests
		WHERE id = $1
	`

	req, err := scanRequest(r.conn.QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to get request: %w", err)
	}

	return req, nil
}

// FindPendingRequest returns the pending request for a (user, course, lesson)
// tuple.
func (r *RequestRepository) FindPendingRequest(ctx context.Context, userID, courseID, lessonID string) (*authorization.Request, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM authorization_requests
		WHERE user_id = $1 AND course_id = $2 AND lesson_id = $3 AND status = 'pending'
	`

	req, err := scanRequest(r.conn.QueryRow(ctx, query, userID, courseID, lessonID))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to find pending request: %w", err)
	}

	return req, nil
}

// ListPendingRequests returns the admin queue sorted by creation time
// ascending. An empty courseID lists the queue across all courses.
func (r *RequestRepository) ListPendingRequests(ctx context.Context, courseID string, limit int) ([]*authorization.Request, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM authorization_requests
		WHERE status = 'pending' AND ($1 = '' OR course_id::text = $1)
		ORDER BY created_at
		LIMIT $2
	`

	rows, err := r.conn.Query(ctx, query, courseID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending requests: %w", err)
	}
	defer rows.Close()

	requests := make([]*authorization.Request, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		requests = append(requests, req)
	}

	return requests, rows.Err()
}

// ResolveApprove atomically creates the grant and flips the request to
// approved, guarded on status = 'pending'. Both writes happen in one
// transaction; a concurrent resolution loses the guard and gets
// shared.ErrRequestProcessed.
func (r *RequestRepository) ResolveApprove(ctx context.Context, req *authorization.Request, g *authorization.Grant) error {
	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if _, err := insertGrant(ctx, tx, g); err != nil {
			return err
		}

		query := `
			UPDATE authorization_requests
			SET status = 'approved', grant_id = $1, resolved_by = $2, resolved_at = $3
			WHERE id = $4 AND status = 'pending'
		`

		result, err := tx.Exec(ctx, query, g.ID, req.ResolvedBy, req.ResolvedAt, req.ID)
		if err != nil {
			return fmt.Errorf("failed to approve request: %w", err)
		}
		if result.RowsAffected() == 0 {
			return r.resolveConflict(ctx, tx, req.ID)
		}

		return nil
	})
}

// ResolveReject flips the request to rejected with its reason, guarded on
// status = 'pending'.
func (r *RequestRepository) ResolveReject(ctx context.Context, req *authorization.Request) error {
	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		query := `
			UPDATE authorization_requests
			SET status = 'rejected', resolution_reason = $1, resolved_by = $2, resolved_at = $3
			WHERE id = $4 AND status = 'pending'
		`

		result, err := tx.Exec(ctx, query, req.RejectReason, req.ResolvedBy, req.ResolvedAt, req.ID)
		if err != nil {
			return fmt.Errorf("failed to reject request: %w", err)
		}
		if result.RowsAffected() == 0 {
			return r.resolveConflict(ctx, tx, req.ID)
		}

		return nil
	})
}

// resolveConflict distinguishes a missing request from one already resolved
// when the guarded update touched no rows.
func (r *RequestRepository) resolveConflict(ctx context.Context, tx pgx.Tx, id string) error {
	var status string
	err := tx.QueryRow(ctx, `SELECT status FROM authorization_requests WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if IsNoRows(err) {
			return shared.ErrRequestNotFound
		}
		return fmt.Errorf("failed to check request status: %w", err)
	}
	return shared.ErrRequestProcessed
}

// ─────────────────────────────────────────────────────────────────────────────
// Scan helpers
// ─────────────────────────────────────────────────────────────────────────────

// insertGrant writes a grant through any Querier so it works inside and
// outside a transaction.
func insertGrant(ctx context.Context, q Querier, g *authorization.Grant) (string, error) {
	query := `
		INSERT INTO authorization_grants (
			id, user_id, course_id, kind, module_id, lesson_id,
			granted_by, reason, is_active, expires_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := q.Exec(ctx, query,
		g.ID,
		g.UserID,
		g.CourseID,
		string(g.Kind),
		nullableID(g.ModuleID),
		nullableID(g.LessonID),
		g.GrantedBy,
		g.Reason,
		g.Active,
		g.ExpiresAt,
		g.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create grant: %w", err)
	}

	return g.ID, nil
}

func scanGrant(row pgx.Row) (*authorization.Grant, error) {
	var g authorization.Grant
	var kind string
	var moduleID, lessonID *string

	err := row.Scan(
		&g.ID,
		&g.UserID,
		&g.CourseID,
		&kind,
		&moduleID,
		&lessonID,
		&g.GrantedBy,
		&g.Reason,
		&g.Active,
		&g.ExpiresAt,
		&g.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	g.Kind = authorization.GrantKind(kind)
	g.ModuleID = derefID(moduleID)
	g.LessonID = derefID(lessonID)

	return &g, nil
}

func scanRequest(row pgx.Row) (*authorization.Request, error) {
	var req authorization.Request
	var status, origin string
	var moduleID, resolvedBy, grantID *string

	err := row.Scan(
		&req.ID,
		&req.UserID,
		&req.CourseID,
		&moduleID,
		&req.LessonID,
		&status,
		&origin,
		&req.Reason,
		&req.RejectReason,
		&resolvedBy,
		&grantID,
		&req.CreatedAt,
		&req.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}

	req.Status = authorization.RequestStatus(status)
	req.Origin = authorization.RequestOrigin(origin)
	req.ModuleID = derefID(moduleID)
	req.ResolvedBy = derefID(resolvedBy)
	req.GrantID = derefID(grantID)

	return &req, nil
}

// nullableID maps an empty string to NULL for UUID columns.
func nullableID(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}

func derefID(id *string) string {
	if id == nil {
		return ""
	}
	return *id
}
