// Package http implements the REST API of the course access hub.
package http

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/curso-hub/curso-access-hub/internal/application/command"
	"github.com/curso-hub/curso-access-hub/internal/application/query"
	"github.com/curso-hub/curso-access-hub/internal/domain/authorization"
	"github.com/curso-hub/curso-access-hub/internal/domain/shared"
	"github.com/curso-hub/curso-access-hub/pkg/logger"
)

// adminIDHeader carries the acting admin's identity on queue endpoints.
// Authentication itself happens upstream at the gateway.
const adminIDHeader = "X-Admin-ID"

// maxBodyBytes caps request body reads.
const maxBodyBytes = 1 << 20 // 1 MB

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"name":        "Curso Access Hub API",
		"version":     "v1",
		"description": "Access authorization and progress roll-up engine",
		"endpoints": map[string]string{
			"health":       "/health",
			"access_check": "/api/v1/access/check",
			"requests":     "/api/v1/access/requests",
		},
	}

	writeJSON(w, http.StatusOK, info)
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Healthy {
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		writeJSON(w, http.StatusOK, status)
		return
	}

	// Default health response
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"uptime":  s.Uptime().String(),
		"version": "v1",
	})
}

// handleReady handles the readiness probe endpoint (for Kubernetes).
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Ready {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": status.Message,
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness probe endpoint (for Kubernetes).
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// ACCESS EVALUATION
// ══════════════════════════════════════════════════════════════════════════════

// accessCheckResponse is the wire form of an access decision.
type accessCheckResponse struct {
	Permitted bool   `json:"permitted"`
	Reason    string `json:"reason"`
}

// handleAccessCheck handles GET /api/v1/access/check
func (s *Server) handleAccessCheck(w http.ResponseWriter, r *http.Request) {
	if s.deps.EvaluateAccessHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Access handler not configured")
		return
	}

	q := query.EvaluateAccessQuery{
		UserID:   getQueryParam(r, "user_id", ""),
		CourseID: getQueryParam(r, "course_id", ""),
		LessonID: getQueryParam(r, "lesson_id", ""),
	}

	// The category gate runs before grant evaluation. A course outside the
	// user's track is a flat 403 regardless of any standing grants.
	if s.deps.CategoryGateHandler != nil {
		gate := query.CategoryGateQuery{UserID: q.UserID, CourseID: q.CourseID}
		if err := s.deps.CategoryGateHandler.Handle(r.Context(), gate); err != nil {
			s.writeDomainError(w, r, err, "category gate denied access")
			return
		}
	}

	result, err := s.deps.EvaluateAccessHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to evaluate access")
		return
	}

	writeJSON(w, http.StatusOK, accessCheckResponse{
		Permitted: result.Permitted,
		Reason:    result.Reason,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST WORKFLOW
// ══════════════════════════════════════════════════════════════════════════════

// submitRequestBody is the wire form of a request submission.
type submitRequestBody struct {
	UserID   string `json:"user_id"`
	CourseID string `json:"course_id"`
	LessonID string `json:"lesson_id"`
	Reason   string `json:"reason,omitempty"`
}

// requestResponse is the wire form of an access request.
type requestResponse struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	CourseID     string     `json:"course_id"`
	ModuleID     string     `json:"module_id,omitempty"`
	LessonID     string     `json:"lesson_id"`
	Status       string     `json:"status"`
	Origin       string     `json:"origin"`
	Reason       string     `json:"reason,omitempty"`
	RejectReason string     `json:"reject_reason,omitempty"`
	GrantID      string     `json:"grant_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
}

func toRequestResponse(req *authorization.Request) requestResponse {
	return requestResponse{
		ID:           req.ID,
		UserID:       req.UserID,
		CourseID:     req.CourseID,
		ModuleID:     req.ModuleID,
		LessonID:     req.LessonID,
		Status:       string(req.Status),
		Origin:       string(req.Origin),
		Reason:       req.Reason,
		RejectReason: req.RejectReason,
		GrantID:      req.GrantID,
		CreatedAt:    req.CreatedAt,
		ResolvedAt:   req.ResolvedAt,
	}
}

// handleSubmitRequest handles POST /api/v1/access/requests
func (s *Server) handleSubmitRequest(w http.ResponseWriter, r *http.Request) {
	if s.deps.SubmitRequestHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Submit handler not configured")
		return
	}

	var body submitRequestBody
	if !s.decodeBody(w, r, &body) {
		return
	}

	cmd := command.SubmitRequestCommand{
		UserID:        body.UserID,
		CourseID:      body.CourseID,
		LessonID:      body.LessonID,
		Origin:        authorization.OriginManual,
		Reason:        body.Reason,
		CorrelationID: getRequestID(r.Context()),
	}

	result, err := s.deps.SubmitRequestHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to submit request")
		return
	}

	writeJSON(w, http.StatusCreated, toRequestResponse(result.Request))
}

// handleListPendingRequests handles GET /api/v1/access/requests
func (s *Server) handleListPendingRequests(w http.ResponseWriter, r *http.Request) {
	if s.deps.ListPendingRequestsHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Queue handler not configured")
		return
	}

	adminID := r.Header.Get(adminIDHeader)
	if adminID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "X-Admin-ID header is required")
		return
	}

	q := query.ListPendingRequestsQuery{
		AdminID:  adminID,
		CourseID: getQueryParam(r, "course_id", ""),
		Limit:    getQueryParamInt(r, "limit", query.DefaultQueueLimit),
	}

	result, err := s.deps.ListPendingRequestsHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to list pending requests")
		return
	}

	responses := make([]requestResponse, 0, len(result.Requests))
	for _, req := range result.Requests {
		responses = append(responses, toRequestResponse(req))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"requests": responses,
		"count":    len(responses),
	})
}

// resolveRequestBody is the wire form of an approve/reject action.
type resolveRequestBody struct {
	Reason    string     `json:"reason,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// handleApproveRequest handles POST /api/v1/access/requests/{id}/approve
func (s *Server) handleApproveRequest(w http.ResponseWriter, r *http.Request) {
	if s.deps.ApproveRequestHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Approve handler not configured")
		return
	}

	requestID := r.PathValue("id")
	adminID := r.Header.Get(adminIDHeader)
	if requestID == "" || adminID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Request ID and X-Admin-ID header are required")
		return
	}

	var body resolveRequestBody
	if !s.decodeBody(w, r, &body) {
		return
	}

	cmd := command.ApproveRequestCommand{
		RequestID:     requestID,
		AdminID:       adminID,
		Reason:        body.Reason,
		ExpiresAt:     body.ExpiresAt,
		CorrelationID: getRequestID(r.Context()),
	}

	result, err := s.deps.ApproveRequestHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to approve request")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"request":  toRequestResponse(result.Request),
		"grant_id": result.Grant.ID,
	})
}

// handleRejectRequest handles POST /api/v1/access/requests/{id}/reject
func (s *Server) handleRejectRequest(w http.ResponseWriter, r *http.Request) {
	if s.deps.RejectRequestHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Reject handler not configured")
		return
	}

	requestID := r.PathValue("id")
	adminID := r.Header.Get(adminIDHeader)
	if requestID == "" || adminID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Request ID and X-Admin-ID header are required")
		return
	}

	var body resolveRequestBody
	if !s.decodeBody(w, r, &body) {
		return
	}

	cmd := command.RejectRequestCommand{
		RequestID:     requestID,
		AdminID:       adminID,
		Reason:        body.Reason,
		CorrelationID: getRequestID(r.Context()),
	}

	result, err := s.deps.RejectRequestHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to reject request")
		return
	}

	writeJSON(w, http.StatusOK, toRequestResponse(result.Request))
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

// completionBody is the wire form of a completion event.
type completionBody struct {
	UserID    string    `json:"user_id"`
	Completed *bool     `json:"completed,omitempty"` // defaults to true
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// handleRecordCompletion handles POST /api/v1/lessons/{id}/completion
func (s *Server) handleRecordCompletion(w http.ResponseWriter, r *http.Request) {
	if s.deps.RecordCompletionHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Completion handler not configured")
		return
	}

	lessonID := r.PathValue("id")
	if lessonID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Lesson ID is required")
		return
	}

	var body completionBody
	if !s.decodeBody(w, r, &body) {
		return
	}

	completed := true
	if body.Completed != nil {
		completed = *body.Completed
	}

	cmd := command.RecordCompletionCommand{
		UserID:        body.UserID,
		LessonID:      lessonID,
		Completed:     completed,
		Timestamp:     body.Timestamp,
		CorrelationID: getRequestID(r.Context()),
	}

	result, err := s.deps.RecordCompletionHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to record completion")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"lesson_id":       lessonID,
		"completed":       result.LessonProgress.Completed,
		"module_percent":  result.ModuleProgress.Percent.Int(),
		"course_percent":  result.CourseProgress.Percent.Int(),
		"course_finished": result.CourseFinished,
	})
}

// progressResponse is the wire form of a course progress report.
type progressResponse struct {
	CourseID string                   `json:"course_id"`
	Percent  int                      `json:"percent"`
	Modules  []moduleProgressResponse `json:"modules"`
}

type moduleProgressResponse struct {
	ModuleID string `json:"module_id"`
	Percent  int    `json:"percent"`
}

// handleGetCourseProgress handles GET /api/v1/users/{id}/courses/{courseID}/progress
func (s *Server) handleGetCourseProgress(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetCourseProgressHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Progress handler not configured")
		return
	}

	q := query.GetCourseProgressQuery{
		UserID:   r.PathValue("id"),
		CourseID: r.PathValue("courseID"),
	}

	result, err := s.deps.GetCourseProgressHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to get course progress")
		return
	}

	resp := progressResponse{
		CourseID: result.CourseID,
		Percent:  result.Percent.Int(),
		Modules:  make([]moduleProgressResponse, 0, len(result.Modules)),
	}
	for _, m := range result.Modules {
		resp.Modules = append(resp.Modules, moduleProgressResponse{
			ModuleID: m.ModuleID,
			Percent:  m.Percent.Int(),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// writeDomainError maps domain error kinds to HTTP status codes.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error, logMsg string) {
	var (
		status = http.StatusInternalServerError
		code   = "internal_error"
	)

	switch {
	case shared.IsNotFound(err):
		status, code = http.StatusNotFound, "not_found"
	case shared.IsConflict(err):
		status, code = http.StatusConflict, "conflict"
	case shared.IsInvalidState(err):
		status, code = http.StatusBadRequest, "invalid_state"
	case shared.IsForbidden(err):
		status, code = http.StatusForbidden, "forbidden"
	case shared.IsValidation(err):
		status, code = http.StatusBadRequest, "invalid_request"
	case shared.IsStorageUnavailable(err):
		status, code = http.StatusServiceUnavailable, "storage_unavailable"
	}

	if status >= 500 {
		s.logger.Error(logMsg, logger.Err(err), logger.String("request_id", getRequestID(r.Context())))
	} else {
		s.logger.Debug(logMsg, logger.Err(err), logger.String("request_id", getRequestID(r.Context())))
	}

	writeJSONError(w, status, code, err.Error())
}

// decodeBody reads and decodes a JSON request body, writing the error response
// itself on failure.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	defer r.Body.Close()

	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Failed to read request body")
		return false
	}

	if len(data) == 0 {
		return true
	}

	if err := json.Unmarshal(data, dest); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload")
		return false
	}

	return true
}
