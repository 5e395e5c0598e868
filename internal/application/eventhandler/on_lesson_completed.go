// Package eventhandler contains the domain event handlers that run on the
// async event bus, decoupled from the request/response cycle that raised the
// event.
package eventhandler

import (
	"context"
	"time"

	"github.com/curso-hub/curso-access-hub/internal/application/command"
	"github.com/curso-hub/curso-access-hub/internal/domain/authorization"
	"github.com/curso-hub/curso-access-hub/internal/domain/catalog"
	"github.com/curso-hub/curso-access-hub/internal/domain/shared"
	"github.com/curso-hub/curso-access-hub/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON LESSON COMPLETED HANDLER (auto-chain)
// After a completion, resolves the next lesson in course order and submits an
// automatic access request for it, so the learner lands in the admin queue
// without asking. Best-effort: a single attempt, every failure becomes a log
// entry and nothing propagates back to the completion call that triggered us.
// ═══════════════════════════════════════════════════════════════════════════

// SubmitHandler is the slice of the request workflow the trigger needs.
type SubmitHandler interface {
	Handle(ctx context.Context, cmd command.SubmitRequestCommand) (*command.SubmitRequestResult, error)
}

// OnLessonCompletedHandler chains an automatic request for the next lesson.
type OnLessonCompletedHandler struct {
	catalogReader catalog.Reader
	submit        SubmitHandler
	logger        *logger.Logger

	// Timeout bounds each chained submission. The originating request's
	// context is gone by the time we run; this is our own deadline.
	timeout time.Duration
}

// AutoChainConfig contains configuration for the trigger.
type AutoChainConfig struct {
	// SubmitTimeout bounds the background submission.
	SubmitTimeout time.Duration
}

// DefaultAutoChainConfig returns the default configuration.
func DefaultAutoChainConfig() AutoChainConfig {
	return AutoChainConfig{
		SubmitTimeout: 10 * time.Second,
	}
}

// NewOnLessonCompletedHandler creates a new auto-chain handler.
func NewOnLessonCompletedHandler(
	catalogReader catalog.Reader,
	submit SubmitHandler,
	log *logger.Logger,
	config AutoChainConfig,
) *OnLessonCompletedHandler {
	if log == nil {
		log = logger.Default()
	}
	if config.SubmitTimeout <= 0 {
		config = DefaultAutoChainConfig()
	}

	return &OnLessonCompletedHandler{
		catalogReader: catalogReader,
		submit:        submit,
		logger:        log.With(logger.String("handler", "on_lesson_completed")),
		timeout:       config.SubmitTimeout,
	}
}

// Handle processes a lesson completed event. Implements shared.EventHandler
// when passed as a method value.
func (h *OnLessonCompletedHandler) Handle(event shared.Event) error {
	completed, ok := event.(shared.LessonCompletedEvent)
	if !ok {
		h.logger.Warn("received non-LessonCompletedEvent",
			logger.String("event_type", string(event.EventType())),
		)
		return nil
	}

	// Detached from the originating request on purpose: cancelling the
	// completion call must not cancel the chained submission.
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	next, err := h.nextLesson(ctx, completed)
	if err != nil {
		h.logger.Error("auto-chain: failed to resolve next lesson",
			logger.UserID(completed.UserID),
			logger.LessonID(completed.LessonID),
			logger.Err(err),
		)
		return nil
	}
	if next == nil {
		h.logger.Info("auto-chain: course finished, no request generated",
			logger.UserID(completed.UserID),
			logger.CourseID(completed.CourseID),
		)
		return nil
	}

	result, err := h.submit.Handle(ctx, command.SubmitRequestCommand{
		UserID:        completed.UserID,
		CourseID:      completed.CourseID,
		LessonID:      next.ID,
		Origin:        authorization.OriginAutomatic,
		Reason:        "proxima aula apos conclusao",
		CorrelationID: completed.CorrelationID,
	})
	if err != nil {
		// Duplicates are already folded into success by the submit handler
		// for automatic origin; anything surfacing here is a real failure.
		h.logger.Error("auto-chain: failed to submit next lesson request",
			logger.UserID(completed.UserID),
			logger.LessonID(next.ID),
			logger.Err(err),
		)
		return nil
	}

	h.logger.Info("auto-chain: next lesson requested",
		logger.UserID(completed.UserID),
		logger.LessonID(next.ID),
		logger.String("request_id", result.Request.ID),
		logger.Bool("already_pending", result.Existing),
	)
	return nil
}

// nextLesson loads the course structure around the completed lesson and walks
// to the next one in course order.
func (h *OnLessonCompletedHandler) nextLesson(ctx context.Context, ev shared.LessonCompletedEvent) (*catalog.Lesson, error) {
	current, err := h.catalogReader.GetLesson(ctx, ev.LessonID)
	if err != nil {
		return nil, err
	}

	moduleLessons, err := h.catalogReader.ListActiveLessons(ctx, current.ModuleID)
	if err != nil {
		return nil, err
	}

	courseModules, err := h.catalogReader.ListActiveModules(ctx, ev.CourseID)
	if err != nil {
		return nil, err
	}

	// Lesson lists of the following modules are loaded lazily during the
	// walk; an unreadable module ends the walk early rather than failing it.
	var walkErr error
	next := catalog.NextLesson(current, moduleLessons, courseModules, func(moduleID string) []*catalog.Lesson {
		if walkErr != nil {
			return nil
		}
		lessons, err := h.catalogReader.ListActiveLessons(ctx, moduleID)
		if err != nil {
			walkErr = err
			return nil
		}
		return lessons
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return next, nil
}
