package booking

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"trainslot/internal/ledger"
	"trainslot/internal/schedule"
	"trainslot/internal/session"
)

type MockService struct{ mock.Mock }

func (m *MockService) Book(ctx context.Context, in BookInput) (*session.Session, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.Session), args.Error(1)
}

func (m *MockService) Cancel(ctx context.Context, in CancelInput) (*session.Session, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.Session), args.Error(1)
}

func (m *MockService) Reschedule(ctx context.Context, in RescheduleInput) (*session.Session, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.Session), args.Error(1)
}

func (m *MockService) Confirm(ctx context.Context, sessionID, trainerID int) (*session.Session, error) {
	args := m.Called(ctx, sessionID, trainerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.Session), args.Error(1)
}

func (m *MockService) Start(ctx context.Context, sessionID, trainerID int) (*session.Session, error) {
	args := m.Called(ctx, sessionID, trainerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.Session), args.Error(1)
}

func (m *MockService) Complete(ctx context.Context, in CompleteInput) (*session.SessionDetail, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.SessionDetail), args.Error(1)
}

func (m *MockService) MarkNoShows(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockService) GetSession(ctx context.Context, actorID int, role string, sessionID int) (*session.SessionDetail, error) {
	args := m.Called(ctx, actorID, role, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.SessionDetail), args.Error(1)
}

func (m *MockService) ListByCustomer(ctx context.Context, customerID int) ([]session.Session, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]session.Session), args.Error(1)
}

func (m *MockService) ListByTrainer(ctx context.Context, trainerID int) ([]session.Session, error) {
	args := m.Called(ctx, trainerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]session.Session), args.Error(1)
}

// withActor fakes what AuthMiddleware would have set from the token.
func withActor(userID int, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user_id", userID)
		c.Set("user_role", role)
		c.Next()
	}
}

func setupRouter(svc Service, userID int, role string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(svc)

	router := gin.New()
	router.Use(withActor(userID, role))
	router.POST("/sessions", h.Book)
	router.GET("/sessions/:sessionID", h.GetSession)
	router.POST("/sessions/:sessionID/cancel", h.Cancel)
	router.POST("/sessions/:sessionID/reschedule", h.Reschedule)
	router.POST("/sessions/:sessionID/confirm", h.Confirm)
	router.POST("/sessions/:sessionID/complete", h.Complete)
	return router
}

func postJSON(router *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandler_Book(t *testing.T) {
	scheduledAt := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Second)

	t.Run("created", func(t *testing.T) {
		svc := new(MockService)
		svc.On("Book", mock.Anything, mock.MatchedBy(func(in BookInput) bool {
			return in.CustomerID == 1 && in.TrainerID == 2 && in.ScheduledAt.Equal(scheduledAt) &&
				in.SessionType == "personal_training"
		})).Return(&session.Session{ID: 100, CustomerID: 1, TrainerID: 2, Status: session.StatusScheduled}, nil)

		router := setupRouter(svc, 1, "customer")
		w := postJSON(router, "/sessions", BookRequest{
			TrainerID:       2,
			ScheduledAt:     scheduledAt.Format(time.RFC3339),
			DurationMinutes: 60,
		})

		require.Equal(t, http.StatusCreated, w.Code)
		var got session.Session
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, 100, got.ID)
		svc.AssertExpectations(t)
	})

	t.Run("malformed timestamp", func(t *testing.T) {
		svc := new(MockService)
		router := setupRouter(svc, 1, "customer")

		w := postJSON(router, "/sessions", BookRequest{
			TrainerID:       2,
			ScheduledAt:     "tomorrow at nine",
			DurationMinutes: 60,
		})

		require.Equal(t, http.StatusBadRequest, w.Code)
		svc.AssertNotCalled(t, "Book", mock.Anything, mock.Anything)
	})

	t.Run("missing required fields", func(t *testing.T) {
		svc := new(MockService)
		router := setupRouter(svc, 1, "customer")

		w := postJSON(router, "/sessions", map[string]any{"trainer_id": 2})

		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("duration out of range", func(t *testing.T) {
		svc := new(MockService)
		router := setupRouter(svc, 1, "customer")

		w := postJSON(router, "/sessions", BookRequest{
			TrainerID:       2,
			ScheduledAt:     scheduledAt.Format(time.RFC3339),
			DurationMinutes: 10,
		})

		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "DurationMinutes")
		svc.AssertNotCalled(t, "Book", mock.Anything, mock.Anything)
	})
}

func TestHandler_ErrorMapping(t *testing.T) {
	scheduledAt := time.Now().Add(48 * time.Hour).UTC()

	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"validation", ErrValidation, http.StatusBadRequest},
		{"forbidden", ErrForbidden, http.StatusForbidden},
		{"session not found", session.ErrSessionNotFound, http.StatusNotFound},
		{"purchase not found", ledger.ErrPurchaseNotFound, http.StatusNotFound},
		{"insufficient credit", ledger.ErrInsufficientCredit, http.StatusPaymentRequired},
		{"expired purchase", ledger.ErrExpired, http.StatusGone},
		{"calendar conflict", schedule.ErrConflict, http.StatusConflict},
		{"cancellation window", session.ErrCancellationWindow, http.StatusUnprocessableEntity},
		{"invalid transition", session.ErrInvalidTransition, http.StatusConflict},
		{"ledger busy", ledger.ErrBusy, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			svc.On("Book", mock.Anything, mock.Anything).Return(nil, tt.err)

			router := setupRouter(svc, 1, "customer")
			w := postJSON(router, "/sessions", BookRequest{
				TrainerID:       2,
				ScheduledAt:     scheduledAt.Format(time.RFC3339),
				DurationMinutes: 60,
			})

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestHandler_BusySetsRetryAfter(t *testing.T) {
	svc := new(MockService)
	svc.On("Book", mock.Anything, mock.Anything).Return(nil, ledger.ErrBusy)

	router := setupRouter(svc, 1, "customer")
	w := postJSON(router, "/sessions", BookRequest{
		TrainerID:       2,
		ScheduledAt:     time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339),
		DurationMinutes: 60,
	})

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestHandler_Cancel(t *testing.T) {
	svc := new(MockService)
	svc.On("Cancel", mock.Anything, CancelInput{
		SessionID: 100, ActorID: 1, Actor: "customer", Reason: "sick",
	}).Return(&session.Session{ID: 100, Status: session.StatusCancelled}, nil)

	router := setupRouter(svc, 1, "customer")
	w := postJSON(router, "/sessions/100/cancel", CancelRequest{Reason: "sick"})

	require.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestHandler_Cancel_BadSessionID(t *testing.T) {
	svc := new(MockService)
	router := setupRouter(svc, 1, "customer")

	w := postJSON(router, "/sessions/abc/cancel", CancelRequest{Reason: "sick"})

	require.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "Cancel", mock.Anything, mock.Anything)
}

func TestHandler_Reschedule(t *testing.T) {
	newStart := time.Now().Add(72 * time.Hour).UTC().Truncate(time.Second)

	svc := new(MockService)
	svc.On("Reschedule", mock.Anything, mock.MatchedBy(func(in RescheduleInput) bool {
		return in.SessionID == 100 && in.ActorID == 1 && in.NewStart.Equal(newStart)
	})).Return(&session.Session{ID: 200, Status: session.StatusScheduled}, nil)

	router := setupRouter(svc, 1, "customer")
	w := postJSON(router, "/sessions/100/reschedule", RescheduleRequest{
		NewStart: newStart.Format(time.RFC3339),
	})

	require.Equal(t, http.StatusCreated, w.Code)
	var got session.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 200, got.ID)
}

func TestHandler_Complete(t *testing.T) {
	rating := 5
	svc := new(MockService)
	svc.On("Complete", mock.Anything, mock.MatchedBy(func(in CompleteInput) bool {
		return in.SessionID == 100 && in.TrainerID == 2 && *in.ClientRating == 5
	})).Return(&session.SessionDetail{
		Session: session.Session{ID: 100, Status: session.StatusCompleted},
	}, nil)

	router := setupRouter(svc, 2, "trainer")
	w := postJSON(router, "/sessions/100/complete", CompleteRequest{ClientRating: &rating})

	require.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestHandler_GetSession(t *testing.T) {
	svc := new(MockService)
	svc.On("GetSession", mock.Anything, 1, "customer", 100).Return(&session.SessionDetail{
		Session: session.Session{ID: 100, CustomerID: 1, Status: session.StatusScheduled},
	}, nil)

	router := setupRouter(svc, 1, "customer")
	req := httptest.NewRequest(http.MethodGet, "/sessions/100", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
}
