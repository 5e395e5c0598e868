// Package shared contains common domain types, errors, events, and value objects.
package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Each event represents something significant that
// happened in the domain; handlers subscribe to them on the event bus.
const (
	// Progress events
	EventLessonCompleted   EventType = "progress.lesson_completed"
	EventLessonUncompleted EventType = "progress.lesson_uncompleted"
	EventModuleRecomputed  EventType = "progress.module_recomputed"
	EventCourseRecomputed  EventType = "progress.course_recomputed"
	EventCourseFinished    EventType = "progress.course_finished"

	// Authorization events
	EventRequestSubmitted EventType = "authorization.request_submitted"
	EventRequestApproved  EventType = "authorization.request_approved"
	EventRequestRejected  EventType = "authorization.request_rejected"
	EventGrantIssued      EventType = "authorization.grant_issued"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// EventHandler processes a domain event.
type EventHandler func(event Event) error

// EventBus distributes domain events to subscribed handlers.
type EventBus interface {
	Subscribe(eventType EventType, handler EventHandler) error
	SubscribeAll(handler EventHandler) error
	Publish(event Event) error
	Close() error
}

// EventPublisher is the narrow publishing side of the bus used by commands.
type EventPublisher interface {
	Publish(event Event) error
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Progress Events
// ═══════════════════════════════════════════════════════════════════════════

// LessonCompletedEvent is emitted when a user marks a lesson complete.
// The auto-chain trigger subscribes to it to request the next lesson.
type LessonCompletedEvent struct {
	BaseEvent
	UserID        string `json:"user_id"`
	CourseID      string `json:"course_id"`
	ModuleID      string `json:"module_id"`
	LessonID      string `json:"lesson_id"`
	ModulePercent int    `json:"module_percent"`
	CoursePercent int    `json:"course_percent"`
}

// Payload implements Event interface.
func (e LessonCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":        e.UserID,
		"course_id":      e.CourseID,
		"module_id":      e.ModuleID,
		"lesson_id":      e.LessonID,
		"module_percent": e.ModulePercent,
		"course_percent": e.CoursePercent,
	}
}

// NewLessonCompletedEvent creates a new LessonCompletedEvent.
func NewLessonCompletedEvent(userID, courseID, moduleID, lessonID string, modulePercent, coursePercent int) LessonCompletedEvent {
	return LessonCompletedEvent{
		BaseEvent:     NewBaseEvent(EventLessonCompleted, lessonID),
		UserID:        userID,
		CourseID:      courseID,
		ModuleID:      moduleID,
		LessonID:      lessonID,
		ModulePercent: modulePercent,
		CoursePercent: coursePercent,
	}
}

// CourseFinishedEvent is emitted when a completion leaves no next lesson in
// the course. No further automatic request is generated after it.
type CourseFinishedEvent struct {
	BaseEvent
	UserID   string `json:"user_id"`
	CourseID string `json:"course_id"`
}

// Payload implements Event interface.
func (e CourseFinishedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":   e.UserID,
		"course_id": e.CourseID,
	}
}

// NewCourseFinishedEvent creates a new CourseFinishedEvent.
func NewCourseFinishedEvent(userID, courseID string) CourseFinishedEvent {
	return CourseFinishedEvent{
		BaseEvent: NewBaseEvent(EventCourseFinished, courseID),
		UserID:    userID,
		CourseID:  courseID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Authorization Events
// ═══════════════════════════════════════════════════════════════════════════

// RequestSubmittedEvent is emitted when an access request enters the pending queue.
type RequestSubmittedEvent struct {
	BaseEvent
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id"`
	CourseID  string `json:"course_id"`
	LessonID  string `json:"lesson_id"`
	Origin    string `json:"origin"`
}

// Payload implements Event interface.
func (e RequestSubmittedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"request_id": e.RequestID,
		"user_id":    e.UserID,
		"course_id":  e.CourseID,
		"lesson_id":  e.LessonID,
		"origin":     e.Origin,
	}
}

// NewRequestSubmittedEvent creates a new RequestSubmittedEvent.
func NewRequestSubmittedEvent(requestID, userID, courseID, lessonID, origin string) RequestSubmittedEvent {
	return RequestSubmittedEvent{
		BaseEvent: NewBaseEvent(EventRequestSubmitted, requestID),
		RequestID: requestID,
		UserID:    userID,
		CourseID:  courseID,
		LessonID:  lessonID,
		Origin:    origin,
	}
}

// RequestResolvedEvent is emitted when a pending request is approved or rejected.
type RequestResolvedEvent struct {
	BaseEvent
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id"`
	LessonID  string `json:"lesson_id"`
	Approved  bool   `json:"approved"`
	GrantID   string `json:"grant_id,omitempty"`
	AdminID   string `json:"admin_id"`
}

// Payload implements Event interface.
func (e RequestResolvedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"request_id": e.RequestID,
		"user_id":    e.UserID,
		"lesson_id":  e.LessonID,
		"approved":   e.Approved,
		"grant_id":   e.GrantID,
		"admin_id":   e.AdminID,
	}
}

// NewRequestApprovedEvent creates a resolution event for an approval.
func NewRequestApprovedEvent(requestID, userID, lessonID, grantID, adminID string) RequestResolvedEvent {
	return RequestResolvedEvent{
		BaseEvent: NewBaseEvent(EventRequestApproved, requestID),
		RequestID: requestID,
		UserID:    userID,
		LessonID:  lessonID,
		Approved:  true,
		GrantID:   grantID,
		AdminID:   adminID,
	}
}

// NewRequestRejectedEvent creates a resolution event for a rejection.
func NewRequestRejectedEvent(requestID, userID, lessonID, adminID string) RequestResolvedEvent {
	return RequestResolvedEvent{
		BaseEvent: NewBaseEvent(EventRequestRejected, requestID),
		RequestID: requestID,
		UserID:    userID,
		LessonID:  lessonID,
		Approved:  false,
		AdminID:   adminID,
	}
}
