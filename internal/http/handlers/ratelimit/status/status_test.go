package status

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

const userUID = "550e8400-e29b-41d4-a716-446655440000"

type MockLimiter struct {
	mock.Mock
}

func (m *MockLimiter) Check(ctx context.Context, userUID string) (models.RateLimitStatus, error) {
	args := m.Called(ctx, userUID)
	return args.Get(0).(models.RateLimitStatus), args.Error(1)
}

func TestStatusHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name           string
		setupMock      func(*MockLimiter)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "allowed",
			setupMock: func(m *MockLimiter) {
				m.On("Check", mock.Anything, userUID).Return(models.RateLimitStatus{Allowed: true, Remaining: 2}, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"status":"OK","data":{"allowed":true,"remaining":2,"retry_after_seconds":0}}`,
		},
		{
			name: "exhausted window is still a 200",
			setupMock: func(m *MockLimiter) {
				m.On("Check", mock.Anything, userUID).Return(models.RateLimitStatus{RetryAfterSeconds: 30}, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"status":"OK","data":{"allowed":false,"remaining":0,"retry_after_seconds":30}}`,
		},
		{
			name: "storage error",
			setupMock: func(m *MockLimiter) {
				m.On("Check", mock.Anything, userUID).Return(models.RateLimitStatus{}, models.ErrDatabase).Once()
			},
			expectedStatus: http.StatusServiceUnavailable,
			expectedBody:   `{"status":"Error","error":"temporarily unavailable, retry later"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := new(MockLimiter)
			tt.setupMock(l)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/credits/rate-limit", nil)
			req = req.WithContext(middlewarectx.WithUser(req.Context(), userUID))
			w := httptest.NewRecorder()

			New(logger, l).ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
			l.AssertExpectations(t)
		})
	}
}
