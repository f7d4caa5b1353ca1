package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tabmangment/tabsync/internal/domain"
	"github.com/tabmangment/tabsync/internal/service"
)

type mockSubscriptionService struct {
	statusFn func(ctx context.Context, email string) (*service.SubscriptionStatus, error)
}

func (m *mockSubscriptionService) Status(ctx context.Context, email string) (*service.SubscriptionStatus, error) {
	return m.statusFn(ctx, email)
}

func (m *mockSubscriptionService) EnsureCustomer(context.Context, string, string) error {
	return nil
}

func (m *mockSubscriptionService) ApplySubscription(context.Context, service.ApplySubscriptionParams) error {
	return nil
}

func newStatusMux(subs *mockSubscriptionService) *http.ServeMux {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mux := http.NewServeMux()
	NewStatusHandler(subs, logger).RegisterRoutes(mux)
	return mux
}

func TestCheckPaymentStatus_EmailFromQuery(t *testing.T) {
	end := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	subs := &mockSubscriptionService{
		statusFn: func(_ context.Context, email string) (*service.SubscriptionStatus, error) {
			assert.Equal(t, "pro@x.com", email)
			return &service.SubscriptionStatus{
				UserExists:       true,
				IsPro:            true,
				Status:           "active",
				Plan:             domain.PlanPro,
				SubscriptionID:   "sub_1",
				CurrentPeriodEnd: &end,
			}, nil
		},
	}
	mux := newStatusMux(subs)

	req := httptest.NewRequest("GET", "/api/check-payment-status?email=pro@x.com", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["userExists"])
	assert.Equal(t, true, body["isPro"])
	assert.Equal(t, "active", body["status"])
	assert.Equal(t, "pro", body["plan"])
	assert.Equal(t, "sub_1", body["subscriptionId"])
	assert.Equal(t, "2025-07-01T00:00:00Z", body["currentPeriodEnd"])
}

func TestCheckPaymentStatus_EmailFromBody(t *testing.T) {
	subs := &mockSubscriptionService{
		statusFn: func(_ context.Context, email string) (*service.SubscriptionStatus, error) {
			assert.Equal(t, "a@x.com", email)
			return &service.SubscriptionStatus{
				Status: "free",
				Plan:   domain.PlanFree,
			}, nil
		},
	}
	mux := newStatusMux(subs)

	req := httptest.NewRequest("POST", "/api/check-payment-status", strings.NewReader(`{"email":"a@x.com"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, false, body["userExists"])
	assert.Equal(t, false, body["isPro"])
	assert.Nil(t, body["currentPeriodEnd"])
}

func TestCheckPaymentStatus_MissingEmail(t *testing.T) {
	mux := newStatusMux(&mockSubscriptionService{})

	req := httptest.NewRequest("GET", "/api/check-payment-status", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Email is required", body["error"])
}

func TestCheckPaymentStatus_Preflight(t *testing.T) {
	mux := newStatusMux(&mockSubscriptionService{})

	req := httptest.NewRequest("OPTIONS", "/api/check-payment-status", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
}
