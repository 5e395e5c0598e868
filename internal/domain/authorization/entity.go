// Package authorization holds the access-control records of the engine:
// standing grants that unlock a lesson, a module, or a whole course, and the
// pending → approved/rejected request workflow that produces them. It also
// carries the pure track/subject category policy.
package authorization

import (
	"time"

	"github.com/google/uuid"

	"github.com/curso-hub/curso-access-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GRANTS
// ══════════════════════════════════════════════════════════════════════════════

// GrantKind is the scope of an authorization grant.
type GrantKind string

const (
	// GrantCourse unlocks every lesson of the course ("liberar_todas" in the
	// original system).
	GrantCourse GrantKind = "course"

	// GrantModule unlocks every lesson of one module.
	GrantModule GrantKind = "module"

	// GrantLesson unlocks a single lesson.
	GrantLesson GrantKind = "lesson"
)

// IsValid reports whether the kind is one of the known scopes.
func (k GrantKind) IsValid() bool {
	switch k {
	case GrantCourse, GrantModule, GrantLesson:
		return true
	}
	return false
}

// Grant is a standing, possibly time-limited permission unlocking part of a
// course for a user. A grant with a past expiry is treated as inactive without
// any write.
type Grant struct {
	ID        string
	UserID    string
	CourseID  string
	Kind      GrantKind
	ModuleID  string // set only for GrantModule
	LessonID  string // set only for GrantLesson
	ExpiresAt *time.Time
	Active    bool
	GrantedBy string
	Reason    string
	CreatedAt time.Time
}

// NewGrant mints a grant with a fresh UUID.
func NewGrant(userID, courseID string, kind GrantKind, moduleID, lessonID, grantedBy, reason string, expiresAt *time.Time, now time.Time) (*Grant, error) {
	g := &Grant{
		ID:        uuid.NewString(),
		UserID:    userID,
		CourseID:  courseID,
		Kind:      kind,
		ModuleID:  moduleID,
		LessonID:  lessonID,
		ExpiresAt: expiresAt,
		Active:    true,
		GrantedBy: grantedBy,
		Reason:    reason,
		CreatedAt: now,
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// Validate enforces the kind/scope invariant: lesson grants need a lesson
// reference, module grants a module reference, course grants neither.
func (g *Grant) Validate() error {
	if g.UserID == "" || g.CourseID == "" {
		return shared.WrapError("authorization", "Validate", shared.ErrInvalidID, "grant user and course ids are required", nil)
	}
	if !g.Kind.IsValid() {
		return shared.WrapError("authorization", "Validate", shared.ErrInvalidInput, "unknown grant kind", nil)
	}
	switch g.Kind {
	case GrantLesson:
		if g.LessonID == "" {
			return shared.ErrGrantScopeMismatch
		}
	case GrantModule:
		if g.ModuleID == "" {
			return shared.ErrGrantScopeMismatch
		}
	case GrantCourse:
		if g.LessonID != "" || g.ModuleID != "" {
			return shared.ErrGrantScopeMismatch
		}
	}
	return nil
}

// Usable reports whether the grant currently authorizes anything: it must be
// active and not past its expiry at the given instant.
func (g *Grant) Usable(now time.Time) bool {
	if !g.Active {
		return false
	}
	if g.ExpiresAt != nil && !g.ExpiresAt.After(now) {
		return false
	}
	return true
}

// Covers reports whether the usable grant unlocks the given lesson within its
// module. Callers must pre-filter with Usable.
func (g *Grant) Covers(moduleID, lessonID string) bool {
	switch g.Kind {
	case GrantCourse:
		return true
	case GrantModule:
		return g.ModuleID == moduleID
	case GrantLesson:
		return g.LessonID == lessonID
	}
	return false
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUESTS
// ══════════════════════════════════════════════════════════════════════════════

// RequestStatus is the lifecycle state of an access request.
type RequestStatus string

const (
	// StatusPending - waiting in the admin queue.
	StatusPending RequestStatus = "pending"

	// StatusApproved - resolved with a grant. Terminal.
	StatusApproved RequestStatus = "approved"

	// StatusRejected - resolved without a grant. Terminal.
	StatusRejected RequestStatus = "rejected"
)

// IsTerminal reports whether no further transition is legal from the status.
func (s RequestStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// RequestOrigin distinguishes learner-submitted requests from the ones the
// auto-chain trigger generates after a completion.
type RequestOrigin string

const (
	// OriginManual - submitted by the learner.
	OriginManual RequestOrigin = "manual"

	// OriginAutomatic - submitted by the system after a lesson completion.
	OriginAutomatic RequestOrigin = "automatic"
)

// IsValid reports whether the origin is one of the known values.
func (o RequestOrigin) IsValid() bool {
	return o == OriginManual || o == OriginAutomatic
}

// Request is a pending ask for a lesson grant, resolved exactly once by an
// admin action. ModuleID is denormalized from the lesson for queue filtering.
type Request struct {
	ID           string
	UserID       string
	CourseID     string
	ModuleID     string
	LessonID     string
	Status       RequestStatus
	Origin       RequestOrigin
	Reason       string
	RejectReason string // set only when rejected
	GrantID      string // set only when approved
	ResolvedBy   string // admin who approved or rejected
	CreatedAt    time.Time
	ResolvedAt   *time.Time
}

// NewRequest creates a pending request with a fresh UUID.
func NewRequest(userID, courseID, moduleID, lessonID string, origin RequestOrigin, reason string, now time.Time) (*Request, error) {
	r := &Request{
		ID:        uuid.NewString(),
		UserID:    userID,
		CourseID:  courseID,
		ModuleID:  moduleID,
		LessonID:  lessonID,
		Status:    StatusPending,
		Origin:    origin,
		Reason:    reason,
		CreatedAt: now,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks structural invariants of the request.
func (r *Request) Validate() error {
	if r.UserID == "" || r.CourseID == "" || r.LessonID == "" {
		return shared.WrapError("authorization", "Validate", shared.ErrInvalidID, "request user, course and lesson ids are required", nil)
	}
	if !r.Origin.IsValid() {
		return shared.WrapError("authorization", "Validate", shared.ErrInvalidInput, "unknown request origin", nil)
	}
	return nil
}

// Approve transitions pending → approved, recording the resulting grant and
// the resolving admin. Any other starting state fails with ErrRequestProcessed
// and leaves the request untouched.
func (r *Request) Approve(grantID, adminID string, now time.Time) error {
	if r.Status != StatusPending {
		return shared.ErrRequestProcessed
	}
	r.Status = StatusApproved
	r.GrantID = grantID
	r.ResolvedBy = adminID
	t := now
	r.ResolvedAt = &t
	return nil
}

// Reject transitions pending → rejected with a mandatory reason. Any other
// starting state fails with ErrRequestProcessed and leaves the request
// untouched.
func (r *Request) Reject(adminID, reason string, now time.Time) error {
	if r.Status != StatusPending {
		return shared.ErrRequestProcessed
	}
	if reason == "" {
		return shared.ErrRejectReasonMissing
	}
	r.Status = StatusRejected
	r.RejectReason = reason
	r.ResolvedBy = adminID
	t := now
	r.ResolvedAt = &t
	return nil
}
