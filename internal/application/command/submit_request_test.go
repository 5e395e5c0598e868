package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curso-hub/curso-access-hub/internal/domain/authorization"
	"github.com/curso-hub/curso-access-hub/internal/domain/catalog"
	"github.com/curso-hub/curso-access-hub/internal/domain/shared"
)

func newSubmitHandler(f *fixture, repo *fakeRequestRepo, pub shared.EventPublisher) *SubmitRequestHandler {
	return NewSubmitRequestHandler(f.catalog, repo, authorization.NewPolicy(), pub)
}

func TestSubmitRequest_ManualSubmission(t *testing.T) {
	f := newFixture()
	repo := newFakeRequestRepo()
	pub := &capturingPublisher{}
	h := newSubmitHandler(f, repo, pub)

	res, err := h.Handle(context.Background(), SubmitRequestCommand{
		UserID:   "user-1",
		CourseID: "course-1",
		LessonID: "lesson-2",
		Origin:   authorization.OriginManual,
		Reason:   "quero adiantar",
	})
	require.NoError(t, err)

	assert.False(t, res.Existing)
	assert.Equal(t, authorization.StatusPending, res.Request.Status)
	assert.Equal(t, "mod-1", res.Request.ModuleID)
	assert.Equal(t, authorization.OriginManual, res.Request.Origin)

	stored, err := repo.GetRequest(context.Background(), res.Request.ID)
	require.NoError(t, err)
	assert.Equal(t, "lesson-2", stored.LessonID)

	require.Len(t, pub.events, 1)
	assert.Equal(t, shared.EventRequestSubmitted, pub.events[0].EventType())
}

func TestSubmitRequest_CourseMismatch(t *testing.T) {
	f := newFixture()
	f.catalog.addCourse(catalog.Course{ID: "course-2", Subject: "robotica", Active: true})
	h := newSubmitHandler(f, newFakeRequestRepo(), nil)

	_, err := h.Handle(context.Background(), SubmitRequestCommand{
		UserID:   "user-1",
		CourseID: "course-2",
		LessonID: "lesson-1",
		Origin:   authorization.OriginManual,
	})
	assert.ErrorIs(t, err, shared.ErrCourseMismatch)
}

func TestSubmitRequest_TrackGateBlocksManualSubmissions(t *testing.T) {
	f := newFixture()
	f.catalog.addUser(catalog.User{ID: "user-rob", Track: "robotica", Active: true})
	h := newSubmitHandler(f, newFakeRequestRepo(), nil)

	// The fixture course subject is "python", outside the robotics track.
	_, err := h.Handle(context.Background(), SubmitRequestCommand{
		UserID:   "user-rob",
		CourseID: "course-1",
		LessonID: "lesson-1",
		Origin:   authorization.OriginManual,
	})
	assert.ErrorIs(t, err, shared.ErrTrackNotAllowed)
}

func TestSubmitRequest_AutomaticOriginSkipsTrackGate(t *testing.T) {
	f := newFixture()
	f.catalog.addUser(catalog.User{ID: "user-rob", Track: "robotica", Active: true})
	h := newSubmitHandler(f, newFakeRequestRepo(), nil)

	res, err := h.Handle(context.Background(), SubmitRequestCommand{
		UserID:   "user-rob",
		CourseID: "course-1",
		LessonID: "lesson-1",
		Origin:   authorization.OriginAutomatic,
	})
	require.NoError(t, err)
	assert.Equal(t, authorization.OriginAutomatic, res.Request.Origin)
}

func TestSubmitRequest_DuplicatePending(t *testing.T) {
	f := newFixture()
	repo := newFakeRequestRepo()
	h := newSubmitHandler(f, repo, nil)

	first, err := h.Handle(context.Background(), SubmitRequestCommand{
		UserID:   "user-1",
		CourseID: "course-1",
		LessonID: "lesson-1",
		Origin:   authorization.OriginManual,
	})
	require.NoError(t, err)

	t.Run("manual resubmission conflicts", func(t *testing.T) {
		_, err := h.Handle(context.Background(), SubmitRequestCommand{
			UserID:   "user-1",
			CourseID: "course-1",
			LessonID: "lesson-1",
			Origin:   authorization.OriginManual,
		})
		assert.ErrorIs(t, err, shared.ErrDuplicateRequest)
	})

	t.Run("automatic resubmission returns the existing request", func(t *testing.T) {
		res, err := h.Handle(context.Background(), SubmitRequestCommand{
			UserID:   "user-1",
			CourseID: "course-1",
			LessonID: "lesson-1",
			Origin:   authorization.OriginAutomatic,
		})
		require.NoError(t, err)
		assert.True(t, res.Existing)
		assert.Equal(t, first.Request.ID, res.Request.ID)
	})
}

func TestSubmitRequest_ResolvedRequestDoesNotBlockResubmission(t *testing.T) {
	f := newFixture()
	repo := newFakeRequestRepo()
	h := newSubmitHandler(f, repo, nil)

	first, err := h.Handle(context.Background(), SubmitRequestCommand{
		UserID:   "user-1",
		CourseID: "course-1",
		LessonID: "lesson-1",
		Origin:   authorization.OriginManual,
		Reason:   "primeira tentativa",
	})
	require.NoError(t, err)

	rejected, err := repo.GetRequest(context.Background(), first.Request.ID)
	require.NoError(t, err)
	require.NoError(t, rejected.Reject("admin-1", "fora de ordem", first.Request.CreatedAt))
	require.NoError(t, repo.ResolveReject(context.Background(), rejected))

	second, err := h.Handle(context.Background(), SubmitRequestCommand{
		UserID:   "user-1",
		CourseID: "course-1",
		LessonID: "lesson-1",
		Origin:   authorization.OriginManual,
		Reason:   "segunda tentativa",
	})
	require.NoError(t, err)
	assert.NotEqual(t, first.Request.ID, second.Request.ID)
}

func TestSubmitRequest_Validation(t *testing.T) {
	f := newFixture()
	h := newSubmitHandler(f, newFakeRequestRepo(), nil)

	_, err := h.Handle(context.Background(), SubmitRequestCommand{
		CourseID: "course-1", LessonID: "lesson-1", Origin: authorization.OriginManual,
	})
	assert.ErrorIs(t, err, shared.ErrInvalidID)

	_, err = h.Handle(context.Background(), SubmitRequestCommand{
		UserID: "user-1", CourseID: "course-1", LessonID: "lesson-1", Origin: "unknown",
	})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}
