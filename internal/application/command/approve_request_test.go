package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curso-hub/curso-access-hub/internal/domain/authorization"
	"github.com/curso-hub/curso-access-hub/internal/domain/shared"
)

func TestApproveRequest_ApprovesAndMintsGrant(t *testing.T) {
	f := newFixture()
	repo := newFakeRequestRepo()
	pub := &capturingPublisher{}
	h := NewApproveRequestHandler(f.catalog, repo, pub)

	req := pendingRequest(f, "user-1", "lesson-2", authorization.OriginManual, time.Now().UTC())
	require.NoError(t, repo.CreateRequest(context.Background(), req))

	res, err := h.Handle(context.Background(), ApproveRequestCommand{
		RequestID: req.ID,
		AdminID:   "admin-1",
		Reason:    "aluno adiantado",
	})
	require.NoError(t, err)

	assert.Equal(t, authorization.StatusApproved, res.Request.Status)
	assert.Equal(t, "admin-1", res.Request.ResolvedBy)
	assert.NotNil(t, res.Request.ResolvedAt)
	assert.Equal(t, res.Grant.ID, res.Request.GrantID)

	// The grant unlocks exactly the requested lesson.
	assert.Equal(t, authorization.GrantLesson, res.Grant.Kind)
	assert.Equal(t, "lesson-2", res.Grant.LessonID)
	assert.Equal(t, "user-1", res.Grant.UserID)
	assert.Equal(t, "course-1", res.Grant.CourseID)
	assert.True(t, res.Grant.Active)
	assert.Nil(t, res.Grant.ExpiresAt)

	require.Len(t, pub.events, 1)
	assert.Equal(t, shared.EventRequestApproved, pub.events[0].EventType())
}

func TestApproveRequest_ExpiryFlowsIntoGrant(t *testing.T) {
	f := newFixture()
	repo := newFakeRequestRepo()
	h := NewApproveRequestHandler(f.catalog, repo, nil)

	req := pendingRequest(f, "user-1", "lesson-1", authorization.OriginManual, time.Now().UTC())
	require.NoError(t, repo.CreateRequest(context.Background(), req))

	expiry := time.Now().UTC().Add(72 * time.Hour)
	res, err := h.Handle(context.Background(), ApproveRequestCommand{
		RequestID: req.ID,
		AdminID:   "admin-1",
		ExpiresAt: &expiry,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Grant.ExpiresAt)
	assert.Equal(t, expiry, *res.Grant.ExpiresAt)
}

func TestApproveRequest_RequiresAdmin(t *testing.T) {
	f := newFixture()
	repo := newFakeRequestRepo()
	h := NewApproveRequestHandler(f.catalog, repo, nil)

	req := pendingRequest(f, "user-1", "lesson-1", authorization.OriginManual, time.Now().UTC())
	require.NoError(t, repo.CreateRequest(context.Background(), req))

	_, err := h.Handle(context.Background(), ApproveRequestCommand{
		RequestID: req.ID,
		AdminID:   "user-1",
	})
	assert.ErrorIs(t, err, shared.ErrAdminRequired)

	// The request stays pending.
	stored, getErr := repo.GetRequest(context.Background(), req.ID)
	require.NoError(t, getErr)
	assert.Equal(t, authorization.StatusPending, stored.Status)
}

func TestApproveRequest_ResolvedExactlyOnce(t *testing.T) {
	f := newFixture()
	repo := newFakeRequestRepo()
	h := NewApproveRequestHandler(f.catalog, repo, nil)

	req := pendingRequest(f, "user-1", "lesson-1", authorization.OriginManual, time.Now().UTC())
	require.NoError(t, repo.CreateRequest(context.Background(), req))

	_, err := h.Handle(context.Background(), ApproveRequestCommand{RequestID: req.ID, AdminID: "admin-1"})
	require.NoError(t, err)

	_, err = h.Handle(context.Background(), ApproveRequestCommand{RequestID: req.ID, AdminID: "admin-1"})
	assert.ErrorIs(t, err, shared.ErrRequestProcessed)
}

func TestApproveRequest_UnknownRequest(t *testing.T) {
	f := newFixture()
	h := NewApproveRequestHandler(f.catalog, newFakeRequestRepo(), nil)

	_, err := h.Handle(context.Background(), ApproveRequestCommand{RequestID: "missing", AdminID: "admin-1"})
	assert.ErrorIs(t, err, shared.ErrRequestNotFound)
}

func TestApproveRequest_Validation(t *testing.T) {
	f := newFixture()
	h := NewApproveRequestHandler(f.catalog, newFakeRequestRepo(), nil)

	_, err := h.Handle(context.Background(), ApproveRequestCommand{AdminID: "admin-1"})
	assert.ErrorIs(t, err, shared.ErrInvalidID)

	_, err = h.Handle(context.Background(), ApproveRequestCommand{RequestID: "req-1"})
	assert.ErrorIs(t, err, shared.ErrInvalidID)
}
