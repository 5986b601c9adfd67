package handlers

import (
	"errors"
	"net/http"

	"github.com/formadex/crm-backend/internal/models"
	"github.com/formadex/crm-backend/internal/repositories"
	"github.com/formadex/crm-backend/internal/workflow"
	"github.com/labstack/echo/v4"
)

// ActionDispatcher is the fire-and-forget seam to the workflow engine.
type ActionDispatcher interface {
	DispatchAsync(lock *models.ActionLock, req *workflow.DispatchRequest)
}

// TriggerActionRequest starts an asynchronous business action on a subject.
type TriggerActionRequest struct {
	CorrelationToken string         `json:"correlation_token" validate:"required"`
	ActionKind       string         `json:"action_kind" validate:"required"`
	SubjectType      string         `json:"subject_type" validate:"required"`
	SubjectID        string         `json:"subject_id" validate:"required"`
	EventID          *uint          `json:"event_id"`
	Decision         string         `json:"decision"`
	Comment          string         `json:"comment"`
	Metadata         models.JSONMap `json:"metadata"`
}

// ActionHandler serializes action triggers per subject via persisted locks
// and hands accepted triggers to the dispatcher.
type ActionHandler struct {
	lockRepository repositories.ActionLockRepository
	dispatcher     ActionDispatcher
}

// NewActionHandler creates a new ActionHandler
func NewActionHandler(lockRepo repositories.ActionLockRepository, dispatcher ActionDispatcher) *ActionHandler {
	return &ActionHandler{
		lockRepository: lockRepo,
		dispatcher:     dispatcher,
	}
}

// RegisterActionRoutes registers action-trigger routes
func (h *ActionHandler) RegisterActionRoutes(g *echo.Group) {
	g.POST("/actions/trigger", h.TriggerAction)
}

// TriggerAction acquires the (subject, action-kind) lock and answers 202
// immediately. The caller never waits for the workflow engine; duplicates
// are rejected with 409 while the first trigger's lock is in flight.
func (h *ActionHandler) TriggerAction(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	var req TriggerActionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	lock := &models.ActionLock{
		SubjectType:      req.SubjectType,
		SubjectID:        req.SubjectID,
		ActionKind:       req.ActionKind,
		CorrelationToken: &req.CorrelationToken,
		EventID:          req.EventID,
	}

	if err := h.lockRepository.Acquire(lock); err != nil {
		if errors.Is(err, repositories.ErrLockHeld) {
			msg := "An operation is already in progress for this subject"
			if existing, lookupErr := h.lockRepository.InFlight(req.SubjectType, req.SubjectID, req.ActionKind); lookupErr == nil && existing != nil {
				msg = existing.Description()
			}
			return echo.NewHTTPError(http.StatusConflict, msg)
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	h.dispatcher.DispatchAsync(lock, &workflow.DispatchRequest{
		CorrelationToken: req.CorrelationToken,
		EventID:          req.EventID,
		ActionKind:       req.ActionKind,
		SubjectType:      req.SubjectType,
		SubjectID:        req.SubjectID,
		Decision:         req.Decision,
		Comment:          req.Comment,
		Metadata:         req.Metadata,
		TriggeredBy:      currentUserID,
	})

	return c.JSON(http.StatusAccepted, echo.Map{
		"success": true,
		"data": echo.Map{
			"accepted":          true,
			"status":            "pending",
			"lock_id":           lock.ID,
			"correlation_token": req.CorrelationToken,
		},
	})
}
