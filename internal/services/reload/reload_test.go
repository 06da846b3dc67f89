package reload

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/credit-engine/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/credit-engine/internal/models"
	"github.com/magabrotheeeer/credit-engine/internal/paymentprovider"
)

const userUID = "550e8400-e29b-41d4-a716-446655440000"

const reloadKey = "2f1c3b7a-5d0e-5b8c-9a41-7e6d2c1b0a99"

type MockAutoReload struct{ mock.Mock }

func (m *MockAutoReload) RecordReloadAttempt(ctx context.Context, userUID string) (string, bool, error) {
	args := m.Called(ctx, userUID)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockAutoReload) RecordReloadSuccess(ctx context.Context, userUID, key string) (bool, error) {
	args := m.Called(ctx, userUID, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockAutoReload) RecordReloadFailure(ctx context.Context, userUID, key string) (models.ReloadFailure, error) {
	args := m.Called(ctx, userUID, key)
	return args.Get(0).(models.ReloadFailure), args.Error(1)
}

type MockCharger struct{ mock.Mock }

func (m *MockCharger) ChargeSavedMethod(ctx context.Context, charge paymentprovider.Charge) (*paymentprovider.CreatePaymentResponse, error) {
	args := m.Called(ctx, charge)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paymentprovider.CreatePaymentResponse), args.Error(1)
}

func newProcessor(r *MockAutoReload, c *MockCharger) *Processor {
	return NewProcessor(r, c, 100, slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})))
}

func triggerBody(t *testing.T) []byte {
	body, err := json.Marshal(models.TriggerInfo{
		UserUID:         userUID,
		Amount:          50,
		Balance:         2,
		Threshold:       5,
		PaymentMethodID: "pm_1",
	})
	require.NoError(t, err)
	return body
}

func expectedCharge() paymentprovider.Charge {
	return paymentprovider.Charge{
		UserUID:         userUID,
		PaymentMethodID: "pm_1",
		Tokens:          50,
		AmountCents:     5000,
		IdempotenceKey:  reloadKey,
	}
}

func TestProcessor_Handle(t *testing.T) {
	tests := []struct {
		name          string
		setup         func(r *MockAutoReload, c *MockCharger)
		wantErr       bool
		wantPermanent bool
	}{
		{
			name: "charge confirmed immediately",
			setup: func(r *MockAutoReload, c *MockCharger) {
				r.On("RecordReloadAttempt", mock.Anything, userUID).Return(reloadKey, true, nil).Once()
				c.On("ChargeSavedMethod", mock.Anything, expectedCharge()).
					Return(&paymentprovider.CreatePaymentResponse{ID: "pay_1", Status: paymentprovider.StatusSucceeded}, nil).Once()
				r.On("RecordReloadSuccess", mock.Anything, userUID, reloadKey).Return(true, nil).Once()
			},
		},
		{
			name: "pending charge waits for the webhook",
			setup: func(r *MockAutoReload, c *MockCharger) {
				r.On("RecordReloadAttempt", mock.Anything, userUID).Return(reloadKey, true, nil).Once()
				c.On("ChargeSavedMethod", mock.Anything, expectedCharge()).
					Return(&paymentprovider.CreatePaymentResponse{ID: "pay_1", Status: paymentprovider.StatusPending}, nil).Once()
			},
		},
		{
			name: "charge fails and is counted",
			setup: func(r *MockAutoReload, c *MockCharger) {
				r.On("RecordReloadAttempt", mock.Anything, userUID).Return(reloadKey, true, nil).Once()
				c.On("ChargeSavedMethod", mock.Anything, expectedCharge()).
					Return(nil, paymentprovider.ErrPaymentCanceled).Once()
				r.On("RecordReloadFailure", mock.Anything, userUID, reloadKey).
					Return(models.ReloadFailure{Settled: true, FailureCount: 1}, nil).Once()
			},
		},
		{
			name: "throttled",
			setup: func(r *MockAutoReload, _ *MockCharger) {
				r.On("RecordReloadAttempt", mock.Anything, userUID).Return("", false, nil).Once()
			},
		},
		{
			name: "disabled",
			setup: func(r *MockAutoReload, _ *MockCharger) {
				r.On("RecordReloadAttempt", mock.Anything, userUID).
					Return("", false, models.ErrAutoReloadDisabled).Once()
			},
		},
		{
			name: "database error is retried",
			setup: func(r *MockAutoReload, _ *MockCharger) {
				r.On("RecordReloadAttempt", mock.Anything, userUID).
					Return("", false, models.ErrDatabase).Once()
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := new(MockAutoReload)
			c := new(MockCharger)
			tt.setup(r, c)

			err := newProcessor(r, c).Handle(context.Background(), triggerBody(t))
			if tt.wantErr {
				require.Error(t, err)
				assert.False(t, errors.Is(err, rabbitmq.ErrPermanent))
			} else {
				require.NoError(t, err)
			}
			r.AssertExpectations(t)
			c.AssertExpectations(t)
		})
	}
}

func TestProcessor_Handle_MalformedMessages(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: "{"},
		{name: "bad user id", body: `{"user_uid":"x","amount":50}`},
		{name: "zero amount", body: `{"user_uid":"` + userUID + `","amount":0}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := new(MockAutoReload)
			c := new(MockCharger)

			err := newProcessor(r, c).Handle(context.Background(), []byte(tt.body))
			require.ErrorIs(t, err, rabbitmq.ErrPermanent)
			r.AssertNotCalled(t, "RecordReloadAttempt", mock.Anything, mock.Anything)
		})
	}
}

func TestProcessor_Handle_RecordsOutcomeAfterShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	live := mock.MatchedBy(func(ctx context.Context) bool { return ctx.Err() == nil })

	r := new(MockAutoReload)
	c := new(MockCharger)
	r.On("RecordReloadAttempt", mock.Anything, userUID).Return(reloadKey, true, nil).Once()
	c.On("ChargeSavedMethod", mock.Anything, expectedCharge()).
		Run(func(mock.Arguments) { cancel() }).
		Return(nil, context.Canceled).Once()
	r.On("RecordReloadFailure", live, userUID, reloadKey).
		Return(models.ReloadFailure{Settled: true, FailureCount: 1}, nil).Once()

	require.NoError(t, newProcessor(r, c).Handle(ctx, triggerBody(t)))
	r.AssertExpectations(t)
	c.AssertExpectations(t)
}
