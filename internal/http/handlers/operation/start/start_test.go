package start

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/credit-engine/internal/http/middlewarectx"
	"github.com/magabrotheeeer/credit-engine/internal/models"
)

const (
	userUID     = "550e8400-e29b-41d4-a716-446655440000"
	operationID = "2f1c9a6e-7d4b-4a53-9a8e-1b2c3d4e5f60"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Start(ctx context.Context, userUID string) (models.StartResult, error) {
	args := m.Called(ctx, userUID)
	return args.Get(0).(models.StartResult), args.Error(1)
}

func TestStartHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name           string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
		retryAfter     string
	}{
		{
			name: "started",
			setupMock: func(m *MockService) {
				m.On("Start", mock.Anything, userUID).Return(models.StartResult{
					OperationID:        operationID,
					CreditType:         models.CreditTrial,
					RateLimitRemaining: 2,
				}, nil).Once()
			},
			expectedStatus: http.StatusCreated,
			expectedBody: `{"status":"OK","data":{"operation_id":"` + operationID + `",` +
				`"credit_type":"trial","rate_limit_remaining":2}}`,
		},
		{
			name: "insufficient credits",
			setupMock: func(m *MockService) {
				m.On("Start", mock.Anything, userUID).Return(models.StartResult{}, models.ErrInsufficientCredits).Once()
			},
			expectedStatus: http.StatusPaymentRequired,
			expectedBody:   `{"status":"Error","error":"insufficient credits"}`,
		},
		{
			name: "rate limited",
			setupMock: func(m *MockService) {
				m.On("Start", mock.Anything, userUID).
					Return(models.StartResult{}, &models.RateLimitError{RetryAfterSeconds: 17}).Once()
			},
			expectedStatus: http.StatusTooManyRequests,
			expectedBody:   `{"status":"Error","error":"rate limit exceeded","retry_after_seconds":17}`,
			retryAfter:     "17",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setupMock(svc)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/operations", nil)
			req = req.WithContext(middlewarectx.WithUser(req.Context(), userUID))
			w := httptest.NewRecorder()

			New(logger, svc).ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
			assert.Equal(t, tt.retryAfter, w.Header().Get("Retry-After"))
			svc.AssertExpectations(t)
		})
	}
}
