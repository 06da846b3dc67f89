package paymentprovider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/credit-engine/internal/config"
)

func newTestClient(url string) *Client {
	return NewClient(config.PaymentProvider{
		APIURL:    url,
		ShopID:    "shop",
		SecretKey: "secret",
		Timeout:   2 * time.Second,
		Currency:  "RUB",
	})
}

func TestFormatCents(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{cents: 0, want: "0.00"},
		{cents: 5, want: "0.05"},
		{cents: 19900, want: "199.00"},
		{cents: 123456, want: "1234.56"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatCents(tt.cents))
		})
	}
}

func TestClient_ChargeSavedMethod(t *testing.T) {
	var got CreatePaymentRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments", r.URL.Path)
		assert.Equal(t, "reload-key", r.Header.Get("Idempotence-Key"))
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "shop", user)
		assert.Equal(t, "secret", pass)

		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(CreatePaymentResponse{ID: "pay_1", Status: StatusSucceeded, Paid: true})
	}))
	defer srv.Close()

	resp, err := newTestClient(srv.URL).ChargeSavedMethod(context.Background(), Charge{
		UserUID:         "user-1",
		PaymentMethodID: "pm_1",
		Tokens:          20,
		AmountCents:     2000,
		IdempotenceKey:  "reload-key",
	})
	require.NoError(t, err)
	assert.Equal(t, "pay_1", resp.ID)

	assert.Equal(t, "20.00", got.Amount.Value)
	assert.Equal(t, "RUB", got.Amount.Currency)
	assert.Equal(t, "pm_1", got.PaymentMethodID)
	assert.True(t, got.Capture)
	assert.Equal(t, "user-1", got.Metadata["user_uid"])
	assert.Equal(t, "20", got.Metadata["tokens"])
	assert.Equal(t, SourceAutoReload, got.Metadata["source"])
	assert.Equal(t, "reload-key", got.Metadata["reload_key"])
}

func TestClient_ChargeSavedMethod_Errors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       any
		charge     Charge
		wantErr    error
		wantStatus int
	}{
		{
			name:       "provider rejects request",
			status:     http.StatusBadRequest,
			body:       errorResponse{Type: "error", Code: "invalid_request", Description: "bad method"},
			charge:     Charge{PaymentMethodID: "pm_1", AmountCents: 100},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:    "payment canceled",
			status:  http.StatusOK,
			body:    CreatePaymentResponse{ID: "pay_2", Status: StatusCanceled},
			charge:  Charge{PaymentMethodID: "pm_1", AmountCents: 100},
			wantErr: ErrPaymentCanceled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_ = json.NewEncoder(w).Encode(tt.body)
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL).ChargeSavedMethod(context.Background(), tt.charge)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.wantStatus != 0 {
				var perr *ProviderError
				require.ErrorAs(t, err, &perr)
				assert.Equal(t, tt.wantStatus, perr.StatusCode)
				assert.Equal(t, "invalid_request", perr.Code)
			}
		})
	}
}

func TestClient_ChargeSavedMethod_NoMethod(t *testing.T) {
	_, err := newTestClient("http://127.0.0.1:1").ChargeSavedMethod(context.Background(), Charge{AmountCents: 100})
	require.Error(t, err)
}
