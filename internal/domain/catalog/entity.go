// Package catalog holds the read models for the course structure: users,
// courses, modules, and lessons. The catalog is owned by another subsystem;
// this package only reads it, never mutates it.
package catalog

import (
	"sort"

	"github.com/curso-hub/curso-access-hub/internal/domain/shared"
)

// User is the identity read model. Track is a free-text program label
// ("programacao", "robotica", ...) used only for category filtering.
type User struct {
	ID     string
	Track  string
	Active bool
	Admin  bool
}

// Validate checks structural invariants of the user read model.
func (u *User) Validate() error {
	if u.ID == "" {
		return shared.WrapError("catalog", "Validate", shared.ErrInvalidID, "user id is required", nil)
	}
	return nil
}

// Course groups modules under a subject ("materia"). The subject is matched
// against the access policy's category table.
type Course struct {
	ID      string
	Subject string
	Title   string
	Active  bool
}

// Validate checks structural invariants of the course read model.
func (c *Course) Validate() error {
	if c.ID == "" {
		return shared.WrapError("catalog", "Validate", shared.ErrInvalidID, "course id is required", nil)
	}
	return nil
}

// Module belongs to exactly one course and is ordered by Ordem, unique within
// the course.
type Module struct {
	ID       string
	CourseID string
	Ordem    shared.Ordem
	Title    string
	Active   bool
}

// Validate checks structural invariants of the module read model.
func (m *Module) Validate() error {
	if m.ID == "" {
		return shared.WrapError("catalog", "Validate", shared.ErrInvalidID, "module id is required", nil)
	}
	if m.CourseID == "" {
		return shared.WrapError("catalog", "Validate", shared.ErrInvalidID, "module course id is required", nil)
	}
	if !m.Ordem.IsValid() {
		return shared.WrapError("catalog", "Validate", shared.ErrValueOutOfRange, "module ordem must be positive", nil)
	}
	return nil
}

// Lesson belongs to exactly one module and is ordered by Ordem, unique within
// the module. MediaURL is stored encrypted at rest; repositories return it
// decrypted.
type Lesson struct {
	ID       string
	ModuleID string
	Ordem    shared.Ordem
	Title    string
	MediaURL string
	Active   bool
}

// Validate checks structural invariants of the lesson read model.
func (l *Lesson) Validate() error {
	if l.ID == "" {
		return shared.WrapError("catalog", "Validate", shared.ErrInvalidID, "lesson id is required", nil)
	}
	if l.ModuleID == "" {
		return shared.WrapError("catalog", "Validate", shared.ErrInvalidID, "lesson module id is required", nil)
	}
	if !l.Ordem.IsValid() {
		return shared.WrapError("catalog", "Validate", shared.ErrValueOutOfRange, "lesson ordem must be positive", nil)
	}
	return nil
}

// NextLesson resolves the lesson that follows the given one in course order:
// the lowest-ordem active lesson after it in the same module, otherwise the
// first active lesson of the next active module. Both slices must contain only
// active entries and may be in any order. Returns nil when the course is
// finished.
//
// The walk is pure so it can be exercised without any storage; callers load
// the module's lessons and the course's modules first.
func NextLesson(current *Lesson, moduleLessons []*Lesson, courseModules []*Module, lessonsByModule func(moduleID string) []*Lesson) *Lesson {
	// Next lesson within the same module.
	var next *Lesson
	for _, l := range moduleLessons {
		if l.Ordem <= current.Ordem {
			continue
		}
		if next == nil || l.Ordem.Before(next.Ordem) {
			next = l
		}
	}
	if next != nil {
		return next
	}

	// First lesson of the lowest-ordem module after the current one.
	var currentModule *Module
	for _, m := range courseModules {
		if m.ID == current.ModuleID {
			currentModule = m
			break
		}
	}
	if currentModule == nil {
		return nil
	}

	following := make([]*Module, 0, len(courseModules))
	for _, m := range courseModules {
		if m.Ordem > currentModule.Ordem {
			following = append(following, m)
		}
	}
	sort.Slice(following, func(i, j int) bool { return following[i].Ordem.Before(following[j].Ordem) })

	// Modules without active lessons are skipped rather than ending the walk.
	for _, m := range following {
		var first *Lesson
		for _, l := range lessonsByModule(m.ID) {
			if first == nil || l.Ordem.Before(first.Ordem) {
				first = l
			}
		}
		if first != nil {
			return first
		}
	}
	return nil
}
