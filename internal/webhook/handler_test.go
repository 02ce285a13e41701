package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/investment-billing/internal/application/service"
	"github.com/garyjia/investment-billing/internal/domain/workflow"
)

type fakeReconciliation struct {
	applyFn func(ctx context.Context, payInID, status string) (*service.ReconciliationResult, error)
	calls   []string
}

func (f *fakeReconciliation) Apply(ctx context.Context, payInID, status string) (*service.ReconciliationResult, error) {
	f.calls = append(f.calls, payInID+":"+status)
	if f.applyFn != nil {
		return f.applyFn(ctx, payInID, status)
	}
	return &service.ReconciliationResult{PayInID: payInID, To: workflow.StatePaid, Changed: true}, nil
}

func (f *fakeReconciliation) Poll(ctx context.Context, limit int) (*service.PollReport, error) {
	return &service.PollReport{}, nil
}

func newTestRouter(v *Verifier, rec service.ReconciliationService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/webhooks/payins", NewHandler(v, rec, zap.NewNop()).Handle)
	return router
}

func post(router *gin.Engine, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payins", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandler_Handle(t *testing.T) {
	rec := &fakeReconciliation{}
	router := newTestRouter(NewVerifier("", 0, zap.NewNop()), rec)

	w := post(router, `{"payin_id": 1, "payin_status": "SUCCEEDED"}`, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"changed":true`)

	w = post(router, `{"payin_id": "payin-7", "payin_status": "FAILED"}`, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, []string{"1:SUCCEEDED", "payin-7:FAILED"}, rec.calls)
}

func TestHandler_Signed(t *testing.T) {
	now := time.Now()
	v := NewVerifier("s3cret", time.Minute, zap.NewNop())
	rec := &fakeReconciliation{}
	router := newTestRouter(v, rec)

	body := `{"payin_id": 42, "payin_status": "CREATED"}`
	ts := strconv.FormatInt(now.Unix(), 10)

	w := post(router, body, map[string]string{
		HeaderTimestamp: ts,
		HeaderSignature: v.Sign(ts, []byte(body)),
	})
	assert.Equal(t, http.StatusOK, w.Code)

	w = post(router, body, map[string]string{
		HeaderTimestamp: ts,
		HeaderSignature: "deadbeef",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = post(router, body, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	assert.Equal(t, []string{"42:CREATED"}, rec.calls)
}

func TestHandler_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		applyErr error
		wantCode int
		applied  bool
	}{
		{name: "malformed", body: `{`, wantCode: http.StatusBadRequest},
		{name: "missing id", body: `{"payin_status":"SUCCEEDED"}`, wantCode: http.StatusBadRequest},
		{name: "null id", body: `{"payin_id":null,"payin_status":"SUCCEEDED"}`, wantCode: http.StatusBadRequest},
		{name: "missing status", body: `{"payin_id":1}`, wantCode: http.StatusBadRequest},
		{
			name:     "unknown status",
			body:     `{"payin_id":1,"payin_status":"REFUNDED"}`,
			applyErr: fmt.Errorf("%w: %q", service.ErrUnknownPayInStatus, "REFUNDED"),
			wantCode: http.StatusBadRequest,
			applied:  true,
		},
		{
			name:     "unknown pay-in",
			body:     `{"payin_id":1,"payin_status":"SUCCEEDED"}`,
			applyErr: fmt.Errorf("%w: pay-in 1", service.ErrCashCallNotFound),
			wantCode: http.StatusOK,
			applied:  true,
		},
		{
			name:     "late failure",
			body:     `{"payin_id":1,"payin_status":"FAILED"}`,
			applyErr: fmt.Errorf("%w: cannot fire", workflow.ErrInvalidTransition),
			wantCode: http.StatusConflict,
			applied:  true,
		},
		{
			name:     "storage error",
			body:     `{"payin_id":1,"payin_status":"SUCCEEDED"}`,
			applyErr: errors.New("database is locked"),
			wantCode: http.StatusInternalServerError,
			applied:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &fakeReconciliation{
				applyFn: func(ctx context.Context, payInID, status string) (*service.ReconciliationResult, error) {
					return nil, tt.applyErr
				},
			}
			router := newTestRouter(NewVerifier("", 0, zap.NewNop()), rec)

			w := post(router, tt.body, nil)
			require.Equal(t, tt.wantCode, w.Code, w.Body.String())
			assert.Equal(t, tt.applied, len(rec.calls) == 1)
		})
	}
}
