package configure

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/credit-engine/internal/http/middlewarectx"
	"github.com/magabrotheeeer/credit-engine/internal/models"
)

const userUID = "550e8400-e29b-41d4-a716-446655440000"

type MockService struct {
	mock.Mock
}

func (m *MockService) ConfigureAutoReload(ctx context.Context, userUID string, settings models.AutoReloadSettings) error {
	return m.Called(ctx, userUID, settings).Error(0)
}

func TestConfigureHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name           string
		body           string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "enable",
			body: `{"enabled":true,"threshold":5,"amount":20,"payment_method_id":"pm_1"}`,
			setupMock: func(m *MockService) {
				m.On("ConfigureAutoReload", mock.Anything, userUID, models.AutoReloadSettings{
					Enabled: true, Threshold: 5, Amount: 20, PaymentMethodID: "pm_1",
				}).Return(nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"status":"OK","data":{"enabled":true,"threshold":5,"amount":20,"payment_method_id":"pm_1"}}`,
		},
		{
			name: "threshold out of range",
			body: `{"enabled":true,"threshold":101,"amount":20}`,
			setupMock: func(m *MockService) {
				m.On("ConfigureAutoReload", mock.Anything, userUID, mock.Anything).
					Return(&models.ValidationError{Field: "Threshold", Reason: "max=100"}).Once()
			},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `{"status":"Error","error":"Threshold: max=100","field":"Threshold"}`,
		},
		{
			name:           "broken json",
			body:           `{"enabled":`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"status":"Error","error":"invalid request body"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setupMock(svc)

			req := httptest.NewRequest(http.MethodPut, "/api/v1/auto-reload", strings.NewReader(tt.body))
			req = req.WithContext(middlewarectx.WithUser(req.Context(), userUID))
			w := httptest.NewRecorder()

			New(logger, svc).ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
			svc.AssertExpectations(t)
		})
	}
}
