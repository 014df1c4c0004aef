package booking

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"trainslot/internal/api"
	"trainslot/internal/auth"
	"trainslot/internal/ledger"
	"trainslot/internal/schedule"
	"trainslot/internal/session"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Book godoc
// @Summary      Book a training session
// @Description  Books a session with a trainer, optionally consuming a package credit.
// @Tags         sessions
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request  body      BookRequest  true  "Booking data"
// @Success      201      {object}  session.Session
// @Failure      400      {object}  api.ErrorResponse
// @Failure      402      {object}  api.ErrorResponse
// @Failure      409      {object}  api.ErrorResponse
// @Router       /sessions [post]
func (h *Handler) Book(c *gin.Context) {
	customerID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "User not authenticated"})
		return
	}

	var req BookRequest
	if !api.BindAndValidate(c, &req) {
		return
	}

	scheduledAt, err := time.Parse(time.RFC3339, req.ScheduledAt)
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "scheduled_at must be RFC3339"})
		return
	}

	sessionType := req.SessionType
	if sessionType == "" {
		sessionType = "personal_training"
	}

	created, err := h.service.Book(c.Request.Context(), BookInput{
		CustomerID:        customerID,
		TrainerID:         req.TrainerID,
		PackagePurchaseID: req.PackagePurchaseID,
		ScheduledAt:       scheduledAt,
		DurationMinutes:   req.DurationMinutes,
		SessionType:       sessionType,
		Location:          req.Location,
		Notes:             req.Notes,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, created)
}

// Cancel godoc
// @Summary      Cancel a session
// @Tags         sessions
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        sessionID  path      int            true  "Session ID"
// @Param        request    body      CancelRequest  true  "Cancellation reason"
// @Success      200        {object}  session.Session
// @Failure      409        {object}  api.ErrorResponse
// @Failure      422        {object}  api.ErrorResponse
// @Router       /sessions/{sessionID}/cancel [post]
func (h *Handler) Cancel(c *gin.Context) {
	actorID, role, sessionID, ok := h.actorAndSession(c)
	if !ok {
		return
	}

	var req CancelRequest
	if !api.BindAndValidate(c, &req) {
		return
	}

	cancelled, err := h.service.Cancel(c.Request.Context(), CancelInput{
		SessionID: sessionID,
		ActorID:   actorID,
		Actor:     role,
		Reason:    req.Reason,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, cancelled)
}

// Reschedule godoc
// @Summary      Reschedule a session
// @Description  Moves a session to a new time; the old row becomes terminal and the credit carries over.
// @Tags         sessions
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        sessionID  path      int                true  "Session ID"
// @Param        request    body      RescheduleRequest  true  "New start time"
// @Success      201        {object}  session.Session
// @Failure      409        {object}  api.ErrorResponse
// @Router       /sessions/{sessionID}/reschedule [post]
func (h *Handler) Reschedule(c *gin.Context) {
	actorID, role, sessionID, ok := h.actorAndSession(c)
	if !ok {
		return
	}

	var req RescheduleRequest
	if !api.BindAndValidate(c, &req) {
		return
	}

	newStart, err := time.Parse(time.RFC3339, req.NewStart)
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "new_start must be RFC3339"})
		return
	}

	created, err := h.service.Reschedule(c.Request.Context(), RescheduleInput{
		SessionID:   sessionID,
		ActorID:     actorID,
		RequestedBy: role,
		NewStart:    newStart,
		Reason:      req.Reason,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, created)
}

// Confirm godoc
// @Summary      Confirm a scheduled session
// @Tags         sessions
// @Security     BearerAuth
// @Produce      json
// @Param        sessionID  path      int  true  "Session ID"
// @Success      200        {object}  session.Session
// @Router       /sessions/{sessionID}/confirm [post]
func (h *Handler) Confirm(c *gin.Context) {
	trainerID, _, sessionID, ok := h.actorAndSession(c)
	if !ok {
		return
	}

	confirmed, err := h.service.Confirm(c.Request.Context(), sessionID, trainerID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, confirmed)
}

// Start godoc
// @Summary      Start a confirmed session
// @Tags         sessions
// @Security     BearerAuth
// @Produce      json
// @Param        sessionID  path      int  true  "Session ID"
// @Success      200        {object}  session.Session
// @Router       /sessions/{sessionID}/start [post]
func (h *Handler) Start(c *gin.Context) {
	trainerID, _, sessionID, ok := h.actorAndSession(c)
	if !ok {
		return
	}

	started, err := h.service.Start(c.Request.Context(), sessionID, trainerID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, started)
}

// Complete godoc
// @Summary      Complete a session
// @Description  Marks an in-progress session completed and attaches completion details.
// @Tags         sessions
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        sessionID  path      int              true  "Session ID"
// @Param        request    body      CompleteRequest  true  "Completion details"
// @Success      200        {object}  session.SessionDetail
// @Failure      409        {object}  api.ErrorResponse
// @Router       /sessions/{sessionID}/complete [post]
func (h *Handler) Complete(c *gin.Context) {
	trainerID, _, sessionID, ok := h.actorAndSession(c)
	if !ok {
		return
	}

	var req CompleteRequest
	if !api.BindAndValidate(c, &req) {
		return
	}

	detail, err := h.service.Complete(c.Request.Context(), CompleteInput{
		SessionID:    sessionID,
		TrainerID:    trainerID,
		Exercises:    req.Exercises,
		TrainerNotes: req.TrainerNotes,
		ClientRating: req.ClientRating,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

// GetSession godoc
// @Summary      Get one session
// @Tags         sessions
// @Security     BearerAuth
// @Produce      json
// @Param        sessionID  path      int  true  "Session ID"
// @Success      200        {object}  session.SessionDetail
// @Failure      404        {object}  api.ErrorResponse
// @Router       /sessions/{sessionID} [get]
func (h *Handler) GetSession(c *gin.Context) {
	actorID, role, sessionID, ok := h.actorAndSession(c)
	if !ok {
		return
	}

	detail, err := h.service.GetSession(c.Request.Context(), actorID, role, sessionID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

// ListMySessions godoc
// @Summary      List the caller's sessions
// @Tags         sessions
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}  session.Session
// @Router       /sessions [get]
func (h *Handler) ListMySessions(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "User not authenticated"})
		return
	}
	role, _ := auth.GetRole(c)

	var (
		sessions []session.Session
		err      error
	)
	if role == auth.RoleTrainer {
		sessions, err = h.service.ListByTrainer(c.Request.Context(), userID)
	} else {
		sessions, err = h.service.ListByCustomer(c.Request.Context(), userID)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Database error"})
		return
	}

	c.JSON(http.StatusOK, sessions)
}

// ListTrainerSessions godoc
// @Summary      List a trainer's sessions (admin)
// @Tags         admin
// @Security     BearerAuth
// @Produce      json
// @Param        trainerID  path     int  true  "Trainer ID"
// @Success      200        {array}  session.Session
// @Router       /admin/trainers/{trainerID}/sessions [get]
func (h *Handler) ListTrainerSessions(c *gin.Context) {
	trainerID, err := strconv.Atoi(c.Param("trainerID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Invalid trainer ID"})
		return
	}

	sessions, err := h.service.ListByTrainer(c.Request.Context(), trainerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Database error"})
		return
	}

	c.JSON(http.StatusOK, sessions)
}

func (h *Handler) actorAndSession(c *gin.Context) (actorID int, role string, sessionID int, ok bool) {
	actorID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "User not authenticated"})
		return 0, "", 0, false
	}

	role, _ = auth.GetRole(c)

	sessionID, err := strconv.Atoi(c.Param("sessionID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Invalid session ID"})
		return 0, "", 0, false
	}

	return actorID, role, sessionID, true
}

// respondError maps each business error kind to exactly one status code and
// stable message. Anything unmapped is a fault, not a business outcome.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "Invalid input"})
	case errors.Is(err, ErrForbidden):
		c.JSON(http.StatusForbidden, api.ErrorResponse{Error: "Forbidden"})
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, ledger.ErrPurchaseNotFound):
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "Not found"})
	case errors.Is(err, ledger.ErrInsufficientCredit):
		c.JSON(http.StatusPaymentRequired, api.ErrorResponse{Error: "Insufficient session credits"})
	case errors.Is(err, ledger.ErrExpired):
		c.JSON(http.StatusGone, api.ErrorResponse{Error: "Package purchase expired"})
	case errors.Is(err, schedule.ErrConflict):
		c.JSON(http.StatusConflict, api.ErrorResponse{Error: "Trainer is not available at that time"})
	case errors.Is(err, session.ErrCancellationWindow):
		c.JSON(http.StatusUnprocessableEntity, api.ErrorResponse{Error: "Cancellation window expired"})
	case errors.Is(err, session.ErrInvalidTransition):
		c.JSON(http.StatusConflict, api.ErrorResponse{Error: "Invalid state transition"})
	case errors.Is(err, ledger.ErrBusy):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, api.ErrorResponse{Error: "Busy, retry later"})
	default:
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Internal error"})
	}
}
