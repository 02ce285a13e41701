package payments

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/investment-billing/internal/application/port"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{BaseURL: srv.URL + "/", APIKey: "secret"}, zap.NewNop())
	require.NoError(t, err)
	return client
}

func samplePayIn() port.PayInRequest {
	return port.PayInRequest{
		DebitedFunds:        port.Money{Amount: decimal.RequireFromString("10000"), Currency: "EUR"},
		Fees:                port.Money{Amount: decimal.RequireFromString("500"), Currency: "EUR"},
		Tag:                 "Cash Call Pay In - Seed Round - Jane Capital",
		CreditedWallet:      "wallet-9",
		AuthorNatural:       "user-3",
		CreditedUserNatural: "user-3",
	}
}

func TestClient_SubmitPayIn(t *testing.T) {
	var got map[string]interface{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payin/", r.URL.Path)
		assert.Equal(t, "Api-Key secret", r.Header.Get("Authorization"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.NoError(t, json.Unmarshal(body, &got))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": 4242, "wire_reference": "WIRE-42", "status": "CREATED"}`))
	})

	result, err := client.SubmitPayIn(context.Background(), samplePayIn())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, "4242", result.ID)
	assert.Equal(t, "WIRE-42", result.WireReference)
	assert.Equal(t, "CREATED", result.Status)
	assert.JSONEq(t, `{"id": 4242, "wire_reference": "WIRE-42", "status": "CREATED"}`, string(result.Raw))

	assert.Equal(t, "wallet-9", got["credited_wallet"])
	assert.Equal(t, "user-3", got["author_natural"])
	assert.NotContains(t, got, "author_legal")
	funds := got["debited_funds"].(map[string]interface{})
	assert.Equal(t, "10000", funds["amount"])
	assert.Equal(t, "EUR", funds["currency"])
}

func TestClient_SubmitPayIn_Outcomes(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantNil    bool
		wantErr    string
		wantResult string
	}{
		{name: "string id", status: http.StatusOK, body: `{"id": "payin-7", "status": "CREATED"}`, wantResult: "payin-7"},
		{name: "declined", status: http.StatusBadRequest, body: `{"detail": "wallet closed"}`, wantNil: true},
		{name: "server error", status: http.StatusBadGateway, body: `upstream down`, wantErr: "status 502"},
		{name: "missing id", status: http.StatusOK, body: `{"status": "CREATED"}`, wantErr: "no id"},
		{name: "malformed body", status: http.StatusOK, body: `<html>`, wantErr: "failed to unmarshal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			result, err := client.SubmitPayIn(context.Background(), samplePayIn())
			switch {
			case tt.wantErr != "":
				assert.ErrorContains(t, err, tt.wantErr)
				assert.Nil(t, result)
			case tt.wantNil:
				assert.NoError(t, err)
				assert.Nil(t, result)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.wantResult, result.ID)
			}
		})
	}
}

func TestClient_SubmitPayIn_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	client, err := NewClient(Config{BaseURL: srv.URL}, zap.NewNop())
	require.NoError(t, err)
	srv.Close()

	result, err := client.SubmitPayIn(context.Background(), samplePayIn())
	assert.ErrorContains(t, err, "failed to call payment gateway")
	assert.Nil(t, result)
}

func TestClient_GetPayIn(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		switch r.URL.Path {
		case "/payin/77/":
			_, _ = w.Write([]byte(`{"id": 77, "status": "SUCCEEDED", "wire_reference": "W77"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	result, err := client.GetPayIn(context.Background(), "77")
	require.NoError(t, err)
	assert.Equal(t, "77", result.ID)
	assert.Equal(t, "SUCCEEDED", result.Status)

	_, err = client.GetPayIn(context.Background(), "78")
	assert.ErrorIs(t, err, ErrPayInNotFound)

	_, err = client.GetPayIn(context.Background(), "")
	assert.Error(t, err)
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	_, err := NewClient(Config{}, zap.NewNop())
	assert.Error(t, err)
}
