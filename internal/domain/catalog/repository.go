package catalog

import (
	"context"
)

// Reader is the read-only contract against the catalog subsystem. The access
// engine never writes through it; implementations live in
// infrastructure/persistence.
type Reader interface {
	// GetUser returns a user by ID.
	// Returns shared.ErrUserNotFound if the user does not exist.
	GetUser(ctx context.Context, id string) (*User, error)

	// GetCourse returns a course by ID.
	// Returns shared.ErrCourseNotFound if the course does not exist.
	GetCourse(ctx context.Context, id string) (*Course, error)

	// GetModule returns a module by ID.
	// Returns shared.ErrModuleNotFound if the module does not exist.
	GetModule(ctx context.Context, id string) (*Module, error)

	// GetLesson returns a lesson by ID.
	// Returns shared.ErrLessonNotFound if the lesson does not exist.
	GetLesson(ctx context.Context, id string) (*Lesson, error)

	// ListActiveModules returns the active modules of a course, sorted by ordem.
	ListActiveModules(ctx context.Context, courseID string) ([]*Module, error)

	// ListActiveLessons returns the active lessons of a module, sorted by ordem.
	ListActiveLessons(ctx context.Context, moduleID string) ([]*Lesson, error)
}

// Resolution ties a lesson to its module and course, validated to be a
// consistent chain. Handlers resolve once and pass it down.
type Resolution struct {
	Lesson *Lesson
	Module *Module
	Course *Course
}

// Resolve loads the lesson → module → course chain for a lesson ID.
func Resolve(ctx context.Context, r Reader, lessonID string) (*Resolution, error) {
	lesson, err := r.GetLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	module, err := r.GetModule(ctx, lesson.ModuleID)
	if err != nil {
		return nil, err
	}
	course, err := r.GetCourse(ctx, module.CourseID)
	if err != nil {
		return nil, err
	}
	return &Resolution{Lesson: lesson, Module: module, Course: course}, nil
}
