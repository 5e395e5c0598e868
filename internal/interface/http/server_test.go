package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curso-hub/curso-access-hub/internal/application/command"
	"github.com/curso-hub/curso-access-hub/internal/application/query"
	"github.com/curso-hub/curso-access-hub/internal/domain/authorization"
	"github.com/curso-hub/curso-access-hub/internal/domain/catalog"
	"github.com/curso-hub/curso-access-hub/internal/domain/progress"
	"github.com/curso-hub/curso-access-hub/internal/domain/shared"
)

// End-to-end tests through the router: real command/query handlers over
// in-memory stores, exercised with httptest.

// ─────────────────────────────────────────────────────────────────────────────
// In-memory stores
// ─────────────────────────────────────────────────────────────────────────────

type memCatalog struct {
	users   map[string]*catalog.User
	courses map[string]*catalog.Course
	modules map[string]*catalog.Module
	lessons map[string]*catalog.Lesson
}

func (m *memCatalog) GetUser(_ context.Context, id string) (*catalog.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, shared.ErrUserNotFound
}

func (m *memCatalog) GetCourse(_ context.Context, id string) (*catalog.Course, error) {
	if c, ok := m.courses[id]; ok {
		return c, nil
	}
	return nil, shared.ErrCourseNotFound
}

func (m *memCatalog) GetModule(_ context.Context, id string) (*catalog.Module, error) {
	if mod, ok := m.modules[id]; ok {
		return mod, nil
	}
	return nil, shared.ErrModuleNotFound
}

func (m *memCatalog) GetLesson(_ context.Context, id string) (*catalog.Lesson, error) {
	if l, ok := m.lessons[id]; ok {
		return l, nil
	}
	return nil, shared.ErrLessonNotFound
}

func (m *memCatalog) ListActiveModules(_ context.Context, courseID string) ([]*catalog.Module, error) {
	var out []*catalog.Module
	for _, mod := range m.modules {
		if mod.CourseID == courseID && mod.Active {
			out = append(out, mod)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ordem < out[j].Ordem })
	return out, nil
}

func (m *memCatalog) ListActiveLessons(_ context.Context, moduleID string) ([]*catalog.Lesson, error) {
	var out []*catalog.Lesson
	for _, l := range m.lessons {
		if l.ModuleID == moduleID && l.Active {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ordem < out[j].Ordem })
	return out, nil
}

type memProgress struct {
	lessons map[string]*progress.LessonProgress
	modules map[string]*progress.ModuleProgress
	courses map[string]*progress.CourseProgress
}

func memKey(a, b string) string { return fmt.Sprintf("%s|%s", a, b) }

func (m *memProgress) GetLessonProgress(_ context.Context, userID, lessonID string) (*progress.LessonProgress, error) {
	if lp, ok := m.lessons[memKey(userID, lessonID)]; ok {
		return lp, nil
	}
	return nil, shared.ErrProgressNotFound
}

func (m *memProgress) UpsertLessonProgress(_ context.Context, lp *progress.LessonProgress) error {
	m.lessons[memKey(lp.UserID, lp.LessonID)] = lp
	return nil
}

func (m *memProgress) ListLessonProgressByLessons(_ context.Context, userID string, lessonIDs []string) ([]*progress.LessonProgress, error) {
	var out []*progress.LessonProgress
	for _, id := range lessonIDs {
		if lp, ok := m.lessons[memKey(userID, id)]; ok {
			out = append(out, lp)
		}
	}
	return out, nil
}

func (m *memProgress) GetModuleProgress(_ context.Context, userID, moduleID string) (*progress.ModuleProgress, error) {
	if mp, ok := m.modules[memKey(userID, moduleID)]; ok {
		return mp, nil
	}
	return nil, shared.ErrProgressNotFound
}

func (m *memProgress) UpsertModuleProgress(_ context.Context, mp *progress.ModuleProgress) error {
	m.modules[memKey(mp.UserID, mp.ModuleID)] = mp
	return nil
}

func (m *memProgress) ListModuleProgress(_ context.Context, userID string, moduleIDs []string) ([]*progress.ModuleProgress, error) {
	var out []*progress.ModuleProgress
	for _, id := range moduleIDs {
		if mp, ok := m.modules[memKey(userID, id)]; ok {
			out = append(out, mp)
		}
	}
	return out, nil
}

func (m *memProgress) GetCourseProgress(_ context.Context, userID, courseID string) (*progress.CourseProgress, error) {
	if cp, ok := m.courses[memKey(userID, courseID)]; ok {
		return cp, nil
	}
	return nil, shared.ErrProgressNotFound
}

func (m *memProgress) UpsertCourseProgress(_ context.Context, cp *progress.CourseProgress) error {
	m.courses[memKey(cp.UserID, cp.CourseID)] = cp
	return nil
}

type memGrants struct {
	grants []*authorization.Grant
}

func (m *memGrants) CreateGrant(_ context.Context, g *authorization.Grant) error {
	m.grants = append(m.grants, g)
	return nil
}

func (m *memGrants) GetGrant(_ context.Context, id string) (*authorization.Grant, error) {
	for _, g := range m.grants {
		if g.ID == id {
			return g, nil
		}
	}
	return nil, shared.ErrGrantNotFound
}

func (m *memGrants) ListUsableGrants(_ context.Context, userID, courseID string, now time.Time) ([]*authorization.Grant, error) {
	var out []*authorization.Grant
	for _, g := range m.grants {
		if g.UserID == userID && g.CourseID == courseID && g.Usable(now) {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *memGrants) DeactivateGrant(_ context.Context, id string) error {
	for _, g := range m.grants {
		if g.ID == id {
			g.Active = false
			return nil
		}
	}
	return shared.ErrGrantNotFound
}

type memRequests struct {
	grants   *memGrants
	requests map[string]*authorization.Request
}

func (m *memRequests) CreateRequest(_ context.Context, r *authorization.Request) error {
	for _, existing := range m.requests {
		if existing.Status == authorization.StatusPending &&
			existing.UserID == r.UserID && existing.CourseID == r.CourseID && existing.LessonID == r.LessonID {
			return shared.ErrDuplicateRequest
		}
	}
	m.requests[r.ID] = r
	return nil
}

func (m *memRequests) GetRequest(_ context.Context, id string) (*authorization.Request, error) {
	if r, ok := m.requests[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, shared.ErrRequestNotFound
}

func (m *memRequests) FindPendingRequest(_ context.Context, userID, courseID, lessonID string) (*authorization.Request, error) {
	for _, r := range m.requests {
		if r.Status == authorization.StatusPending &&
			r.UserID == userID && r.CourseID == courseID && r.LessonID == lessonID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, shared.ErrRequestNotFound
}

func (m *memRequests) ListPendingRequests(_ context.Context, courseID string, limit int) ([]*authorization.Request, error) {
	var out []*authorization.Request
	for _, r := range m.requests {
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

func (m *memRequests) ResolveApprove(_ context.Context, r *authorization.Request, g *authorization.Grant) error {
	stored, ok := m.requests[r.ID]
	if !ok {
		return shared.ErrRequestNotFound
	}
	if stored.Status.IsTerminal() {
		return shared.ErrRequestProcessed
	}
	_ = m.grants.CreateGrant(context.Background(), g)
	cp := *r
	m.requests[r.ID] = &cp
	return nil
}

func (m *memRequests) ResolveReject(_ context.Context, r *authorization.Request) error {
	stored, ok := m.requests[r.ID]
	if !ok {
		return shared.ErrRequestNotFound
	}
	if stored.Status.IsTerminal() {
		return shared.ErrRequestProcessed
	}
	cp := *r
	m.requests[r.ID] = &cp
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Test server
// ─────────────────────────────────────────────────────────────────────────────

type testEnv struct {
	ts     *httptest.Server
	grants *memGrants
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cat := &memCatalog{
		users: map[string]*catalog.User{
			"user-1":  {ID: "user-1", Track: "programacao", Active: true},
			"admin-1": {ID: "admin-1", Track: "admin", Active: true, Admin: true},
		},
		courses: map[string]*catalog.Course{
			"course-1": {ID: "course-1", Subject: "python", Active: true},
			"course-2": {ID: "course-2", Subject: "robotica", Active: true},
		},
		modules: map[string]*catalog.Module{
			"mod-1": {ID: "mod-1", CourseID: "course-1", Ordem: 1, Active: true},
			"mod-2": {ID: "mod-2", CourseID: "course-2", Ordem: 1, Active: true},
		},
		lessons: map[string]*catalog.Lesson{
			"lesson-1": {ID: "lesson-1", ModuleID: "mod-1", Ordem: 1, Active: true},
			"lesson-2": {ID: "lesson-2", ModuleID: "mod-1", Ordem: 2, Active: true},
			"lesson-3": {ID: "lesson-3", ModuleID: "mod-2", Ordem: 1, Active: true},
		},
	}
	prog := &memProgress{
		lessons: make(map[string]*progress.LessonProgress),
		modules: make(map[string]*progress.ModuleProgress),
		courses: make(map[string]*progress.CourseProgress),
	}
	grants := &memGrants{}
	requests := &memRequests{grants: grants, requests: make(map[string]*authorization.Request)}

	policy := authorization.NewPolicy()

	deps := Dependencies{
		RecordCompletionHandler:    command.NewRecordCompletionHandler(cat, prog, nil),
		SubmitRequestHandler:       command.NewSubmitRequestHandler(cat, requests, policy, nil),
		ApproveRequestHandler:      command.NewApproveRequestHandler(cat, requests, nil),
		RejectRequestHandler:       command.NewRejectRequestHandler(cat, requests, nil),
		CategoryGateHandler:        query.NewCategoryGateHandler(cat, policy),
		EvaluateAccessHandler:      query.NewEvaluateAccessHandler(cat, prog, grants),
		GetCourseProgressHandler:   query.NewGetCourseProgressHandler(cat, prog),
		ListPendingRequestsHandler: query.NewListPendingRequestsHandler(cat, requests),
	}

	srv := NewServer(DefaultConfig(), deps)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, grants: grants}
}

func newTestServer(t *testing.T) *httptest.Server {
	return newTestEnv(t).ts
}

func doJSON(t *testing.T, method, url string, body interface{}, headers map[string]string) (*http.Response, JSONResponse) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var decoded JSONResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func dataMap(t *testing.T, decoded JSONResponse) map[string]interface{} {
	t.Helper()
	m, ok := decoded.Data.(map[string]interface{})
	require.True(t, ok, "expected object data, got %T", decoded.Data)
	return m
}

// ─────────────────────────────────────────────────────────────────────────────
// Tests
// ─────────────────────────────────────────────────────────────────────────────

func TestServer_AccessCheckDenied(t *testing.T) {
	ts := newTestServer(t)

	resp, decoded := doJSON(t, http.MethodGet,
		ts.URL+"/api/v1/access/check?user_id=user-1&course_id=course-1&lesson_id=lesson-1", nil, nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	data := dataMap(t, decoded)
	assert.Equal(t, false, data["permitted"])
	assert.Equal(t, "no authorization", data["reason"])
}

func TestServer_AccessCheckOutsideTrackForbidden(t *testing.T) {
	env := newTestEnv(t)

	// A standing course-wide grant does not bypass the category gate.
	g, err := authorization.NewGrant("user-1", "course-2", authorization.GrantCourse,
		"", "", "admin-1", "liberado", nil, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, env.grants.CreateGrant(context.Background(), g))

	resp, decoded := doJSON(t, http.MethodGet,
		env.ts.URL+"/api/v1/access/check?user_id=user-1&course_id=course-2&lesson_id=lesson-3", nil, nil)

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.NotNil(t, decoded.Error)
	assert.Equal(t, "forbidden", decoded.Error.Code)

	// The admin track passes the gate for any subject, and the grant then
	// decides the outcome.
	resp, decoded = doJSON(t, http.MethodGet,
		env.ts.URL+"/api/v1/access/check?user_id=admin-1&course_id=course-2&lesson_id=lesson-3", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, dataMap(t, decoded)["permitted"])
}

func TestServer_AccessCheckMissingParams(t *testing.T) {
	ts := newTestServer(t)

	resp, decoded := doJSON(t, http.MethodGet, ts.URL+"/api/v1/access/check?user_id=user-1", nil, nil)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NotNil(t, decoded.Error)
	assert.Equal(t, "invalid_request", decoded.Error.Code)
}

func TestServer_SubmitApproveFlow(t *testing.T) {
	ts := newTestServer(t)
	admin := map[string]string{adminIDHeader: "admin-1"}

	// Submit
	resp, decoded := doJSON(t, http.MethodPost, ts.URL+"/api/v1/access/requests", map[string]string{
		"user_id":   "user-1",
		"course_id": "course-1",
		"lesson_id": "lesson-2",
		"reason":    "quero adiantar",
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	requestID, _ := dataMap(t, decoded)["id"].(string)
	require.NotEmpty(t, requestID)

	// Duplicate manual submission conflicts.
	resp, decoded = doJSON(t, http.MethodPost, ts.URL+"/api/v1/access/requests", map[string]string{
		"user_id":   "user-1",
		"course_id": "course-1",
		"lesson_id": "lesson-2",
	}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	require.NotNil(t, decoded.Error)
	assert.Equal(t, "conflict", decoded.Error.Code)

	// The queue lists it.
	resp, decoded = doJSON(t, http.MethodGet, ts.URL+"/api/v1/access/requests", nil, admin)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), dataMap(t, decoded)["count"])

	// Approve
	resp, decoded = doJSON(t, http.MethodPost,
		ts.URL+"/api/v1/access/requests/"+requestID+"/approve", map[string]string{}, admin)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := dataMap(t, decoded)
	grantID, _ := data["grant_id"].(string)
	assert.NotEmpty(t, grantID)

	// And the access check now passes.
	resp, decoded = doJSON(t, http.MethodGet,
		ts.URL+"/api/v1/access/check?user_id=user-1&course_id=course-1&lesson_id=lesson-2", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, dataMap(t, decoded)["permitted"])

	// Approving an already resolved request is a state violation, not a
	// conflict.
	resp, decoded = doJSON(t, http.MethodPost,
		ts.URL+"/api/v1/access/requests/"+requestID+"/approve", map[string]string{}, admin)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NotNil(t, decoded.Error)
	assert.Equal(t, "invalid_state", decoded.Error.Code)

	// Rejecting it after the fact fails the same way.
	resp, decoded = doJSON(t, http.MethodPost,
		ts.URL+"/api/v1/access/requests/"+requestID+"/reject",
		map[string]string{"reason": "tarde demais"}, admin)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NotNil(t, decoded.Error)
	assert.Equal(t, "invalid_state", decoded.Error.Code)
}

func TestServer_RejectRequiresReason(t *testing.T) {
	ts := newTestServer(t)
	admin := map[string]string{adminIDHeader: "admin-1"}

	resp, decoded := doJSON(t, http.MethodPost, ts.URL+"/api/v1/access/requests", map[string]string{
		"user_id":   "user-1",
		"course_id": "course-1",
		"lesson_id": "lesson-1",
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	requestID, _ := dataMap(t, decoded)["id"].(string)

	resp, decoded = doJSON(t, http.MethodPost,
		ts.URL+"/api/v1/access/requests/"+requestID+"/reject", map[string]string{}, admin)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NotNil(t, decoded.Error)

	resp, decoded = doJSON(t, http.MethodPost,
		ts.URL+"/api/v1/access/requests/"+requestID+"/reject",
		map[string]string{"reason": "fora de ordem"}, admin)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "rejected", dataMap(t, decoded)["status"])
}

func TestServer_QueueRequiresAdmin(t *testing.T) {
	ts := newTestServer(t)

	// Missing header.
	resp, decoded := doJSON(t, http.MethodGet, ts.URL+"/api/v1/access/requests", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NotNil(t, decoded.Error)

	// Non-admin identity.
	resp, decoded = doJSON(t, http.MethodGet, ts.URL+"/api/v1/access/requests", nil,
		map[string]string{adminIDHeader: "user-1"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.NotNil(t, decoded.Error)
	assert.Equal(t, "forbidden", decoded.Error.Code)
}

func TestServer_RecordCompletionAndProgress(t *testing.T) {
	ts := newTestServer(t)

	resp, decoded := doJSON(t, http.MethodPost, ts.URL+"/api/v1/lessons/lesson-1/completion",
		map[string]string{"user_id": "user-1"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data := dataMap(t, decoded)
	assert.Equal(t, true, data["completed"])
	assert.Equal(t, float64(50), data["module_percent"])
	assert.Equal(t, float64(50), data["course_percent"])
	assert.Equal(t, false, data["course_finished"])

	resp, decoded = doJSON(t, http.MethodGet,
		ts.URL+"/api/v1/users/user-1/courses/course-1/progress", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data = dataMap(t, decoded)
	assert.Equal(t, float64(50), data["percent"])
	modules, ok := data["modules"].([]interface{})
	require.True(t, ok)
	assert.Len(t, modules, 1)
}

func TestServer_RecordCompletionUnknownLesson(t *testing.T) {
	ts := newTestServer(t)

	resp, decoded := doJSON(t, http.MethodPost, ts.URL+"/api/v1/lessons/missing/completion",
		map[string]string{"user_id": "user-1"}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.NotNil(t, decoded.Error)
	assert.Equal(t, "not_found", decoded.Error.Code)
}

// failingCatalog stands in for a store whose queries hit their deadline.
type failingCatalog struct {
	catalog.Reader
	err error
}

func (f *failingCatalog) GetLesson(context.Context, string) (*catalog.Lesson, error) {
	return nil, f.err
}

func TestServer_StorageTimeoutMapsTo503(t *testing.T) {
	cat := &failingCatalog{
		err: shared.WrapError("storage", "Query", shared.ErrTimeout, "query deadline exceeded", context.DeadlineExceeded),
	}
	prog := &memProgress{
		lessons: make(map[string]*progress.LessonProgress),
		modules: make(map[string]*progress.ModuleProgress),
		courses: make(map[string]*progress.CourseProgress),
	}
	deps := Dependencies{
		EvaluateAccessHandler: query.NewEvaluateAccessHandler(cat, prog, &memGrants{}),
	}
	srv := NewServer(DefaultConfig(), deps)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	resp, decoded := doJSON(t, http.MethodGet,
		ts.URL+"/api/v1/access/check?user_id=user-1&course_id=course-1&lesson_id=lesson-1", nil, nil)

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.NotNil(t, decoded.Error)
	assert.Equal(t, "storage_unavailable", decoded.Error.Code)
}

func TestServer_HealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/health", "/healthz", "/ready", "/live"} {
		resp, _ := doJSON(t, http.MethodGet, ts.URL+path, nil, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}
