package query

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/curso-hub/curso-access-hub/internal/domain/authorization"
	"github.com/curso-hub/curso-access-hub/internal/domain/catalog"
	"github.com/curso-hub/curso-access-hub/internal/domain/progress"
	"github.com/curso-hub/curso-access-hub/internal/domain/shared"
)

// In-memory doubles mirroring the postgres repositories' error contracts.

type fakeCatalog struct {
	users   map[string]*catalog.User
	courses map[string]*catalog.Course
	modules map[string]*catalog.Module
	lessons map[string]*catalog.Lesson
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		users:   make(map[string]*catalog.User),
		courses: make(map[string]*catalog.Course),
		modules: make(map[string]*catalog.Module),
		lessons: make(map[string]*catalog.Lesson),
	}
}

func (f *fakeCatalog) addUser(u catalog.User) *catalog.User       { f.users[u.ID] = &u; return &u }
func (f *fakeCatalog) addCourse(c catalog.Course) *catalog.Course { f.courses[c.ID] = &c; return &c }
func (f *fakeCatalog) addModule(m catalog.Module) *catalog.Module { f.modules[m.ID] = &m; return &m }
func (f *fakeCatalog) addLesson(l catalog.Lesson) *catalog.Lesson { f.lessons[l.ID] = &l; return &l }

func (f *fakeCatalog) GetUser(_ context.Context, id string) (*catalog.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, shared.ErrUserNotFound
}

func (f *fakeCatalog) GetCourse(_ context.Context, id string) (*catalog.Course, error) {
	if c, ok := f.courses[id]; ok {
		return c, nil
	}
	return nil, shared.ErrCourseNotFound
}

func (f *fakeCatalog) GetModule(_ context.Context, id string) (*catalog.Module, error) {
	if m, ok := f.modules[id]; ok {
		return m, nil
	}
	return nil, shared.ErrModuleNotFound
}

func (f *fakeCatalog) GetLesson(_ context.Context, id string) (*catalog.Lesson, error) {
	if l, ok := f.lessons[id]; ok {
		return l, nil
	}
	return nil, shared.ErrLessonNotFound
}

func (f *fakeCatalog) ListActiveModules(_ context.Context, courseID string) ([]*catalog.Module, error) {
	var out []*catalog.Module
	for _, m := range f.modules {
		if m.CourseID == courseID && m.Active {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ordem < out[j].Ordem })
	return out, nil
}

func (f *fakeCatalog) ListActiveLessons(_ context.Context, moduleID string) ([]*catalog.Lesson, error) {
	var out []*catalog.Lesson
	for _, l := range f.lessons {
		if l.ModuleID == moduleID && l.Active {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ordem < out[j].Ordem })
	return out, nil
}

type fakeProgressRepo struct {
	lessons map[string]*progress.LessonProgress
	modules map[string]*progress.ModuleProgress
	courses map[string]*progress.CourseProgress
}

func newFakeProgressRepo() *fakeProgressRepo {
	return &fakeProgressRepo{
		lessons: make(map[string]*progress.LessonProgress),
		modules: make(map[string]*progress.ModuleProgress),
		courses: make(map[string]*progress.CourseProgress),
	}
}

func pairKey(a, b string) string { return fmt.Sprintf("%s|%s", a, b) }

func (f *fakeProgressRepo) GetLessonProgress(_ context.Context, userID, lessonID string) (*progress.LessonProgress, error) {
	if lp, ok := f.lessons[pairKey(userID, lessonID)]; ok {
		return lp, nil
	}
	return nil, shared.ErrProgressNotFound
}

func (f *fakeProgressRepo) UpsertLessonProgress(_ context.Context, lp *progress.LessonProgress) error {
	f.lessons[pairKey(lp.UserID, lp.LessonID)] = lp
	return nil
}

func (f *fakeProgressRepo) ListLessonProgressByLessons(_ context.Context, userID string, lessonIDs []string) ([]*progress.LessonProgress, error) {
	var out []*progress.LessonProgress
	for _, id := range lessonIDs {
		if lp, ok := f.lessons[pairKey(userID, id)]; ok {
			out = append(out, lp)
		}
	}
	return out, nil
}

func (f *fakeProgressRepo) GetModuleProgress(_ context.Context, userID, moduleID string) (*progress.ModuleProgress, error) {
	if mp, ok := f.modules[pairKey(userID, moduleID)]; ok {
		return mp, nil
	}
	return nil, shared.ErrProgressNotFound
}

func (f *fakeProgressRepo) UpsertModuleProgress(_ context.Context, mp *progress.ModuleProgress) error {
	f.modules[pairKey(mp.UserID, mp.ModuleID)] = mp
	return nil
}

func (f *fakeProgressRepo) ListModuleProgress(_ context.Context, userID string, moduleIDs []string) ([]*progress.ModuleProgress, error) {
	var out []*progress.ModuleProgress
	for _, id := range moduleIDs {
		if mp, ok := f.modules[pairKey(userID, id)]; ok {
			out = append(out, mp)
		}
	}
	return out, nil
}

func (f *fakeProgressRepo) GetCourseProgress(_ context.Context, userID, courseID string) (*progress.CourseProgress, error) {
	if cp, ok := f.courses[pairKey(userID, courseID)]; ok {
		return cp, nil
	}
	return nil, shared.ErrProgressNotFound
}

func (f *fakeProgressRepo) UpsertCourseProgress(_ context.Context, cp *progress.CourseProgress) error {
	f.courses[pairKey(cp.UserID, cp.CourseID)] = cp
	return nil
}

type fakeGrantRepo struct {
	grants []*authorization.Grant
}

func (f *fakeGrantRepo) CreateGrant(_ context.Context, g *authorization.Grant) error {
	f.grants = append(f.grants, g)
	return nil
}

func (f *fakeGrantRepo) GetGrant(_ context.Context, id string) (*authorization.Grant, error) {
	for _, g := range f.grants {
		if g.ID == id {
			return g, nil
		}
	}
	return nil, shared.ErrGrantNotFound
}

func (f *fakeGrantRepo) ListUsableGrants(_ context.Context, userID, courseID string, now time.Time) ([]*authorization.Grant, error) {
	var out []*authorization.Grant
	for _, g := range f.grants {
		if g.UserID == userID && g.CourseID == courseID && g.Usable(now) {
			out = append(out, g)
		}
	}
	return out, nil
}

func (f *fakeGrantRepo) DeactivateGrant(_ context.Context, id string) error {
	for _, g := range f.grants {
		if g.ID == id {
			g.Active = false
			return nil
		}
	}
	return shared.ErrGrantNotFound
}

type fakeRequestRepo struct {
	requests map[string]*authorization.Request
}

func newFakeRequestRepo() *fakeRequestRepo {
	return &fakeRequestRepo{requests: make(map[string]*authorization.Request)}
}

func (f *fakeRequestRepo) CreateRequest(_ context.Context, r *authorization.Request) error {
	f.requests[r.ID] = r
	return nil
}

func (f *fakeRequestRepo) GetRequest(_ context.Context, id string) (*authorization.Request, error) {
	if r, ok := f.requests[id]; ok {
		return r, nil
	}
	return nil, shared.ErrRequestNotFound
}

func (f *fakeRequestRepo) FindPendingRequest(_ context.Context, userID, courseID, lessonID string) (*authorization.Request, error) {
	for _, r := range f.requests {
		if r.Status == authorization.StatusPending &&
			r.UserID == userID && r.CourseID == courseID && r.LessonID == lessonID {
			return r, nil
		}
	}
	return nil, shared.ErrRequestNotFound
}

func (f *fakeRequestRepo) ListPendingRequests(_ context.Context, courseID string, limit int) ([]*authorization.Request, error) {
	var out []*authorization.Request
	for _, r := range f.requests {
		if r.Status != authorization.StatusPending {
			continue
		}
		if courseID != "" && r.CourseID != courseID {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRequestRepo) ResolveApprove(_ context.Context, r *authorization.Request, _ *authorization.Grant) error {
	f.requests[r.ID] = r
	return nil
}

func (f *fakeRequestRepo) ResolveReject(_ context.Context, r *authorization.Request) error {
	f.requests[r.ID] = r
	return nil
}

// newCourseFixture builds a course with two modules of two lessons each plus
// a learner and an admin.
func newCourseFixture() *fakeCatalog {
	fc := newFakeCatalog()

	fc.addCourse(catalog.Course{ID: "course-1", Subject: "python", Title: "Python Basico", Active: true})
	fc.addModule(catalog.Module{ID: "mod-1", CourseID: "course-1", Ordem: 1, Active: true})
	fc.addModule(catalog.Module{ID: "mod-2", CourseID: "course-1", Ordem: 2, Active: true})
	fc.addLesson(catalog.Lesson{ID: "lesson-1", ModuleID: "mod-1", Ordem: 1, Active: true})
	fc.addLesson(catalog.Lesson{ID: "lesson-2", ModuleID: "mod-1", Ordem: 2, Active: true})
	fc.addLesson(catalog.Lesson{ID: "lesson-3", ModuleID: "mod-2", Ordem: 1, Active: true})
	fc.addLesson(catalog.Lesson{ID: "lesson-4", ModuleID: "mod-2", Ordem: 2, Active: true})
	fc.addUser(catalog.User{ID: "user-1", Track: "programacao", Active: true})
	fc.addUser(catalog.User{ID: "admin-1", Track: "admin", Active: true, Admin: true})

	return fc
}
