package handlers

import (
	"bytes"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	svix "github.com/svix/svix-webhooks/go"
)

var testAuthSecret = "whsec_" + base64.StdEncoding.EncodeToString([]byte("auth-webhook-test-secret-32bytes"))

func postAuthWebhook(t *testing.T, h *AuthWebhookHandler, payload []byte, secret string) *httptest.ResponseRecorder {
	t.Helper()
	wh, err := svix.NewWebhook(secret)
	if err != nil {
		t.Fatalf("svix.NewWebhook: %v", err)
	}
	msgID := "msg_test"
	ts := time.Now()
	sig, err := wh.Sign(msgID, ts, payload)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/auth", bytes.NewReader(payload))
	req.Header.Set("svix-id", msgID)
	req.Header.Set("svix-timestamp", strconv.FormatInt(ts.Unix(), 10))
	req.Header.Set("svix-signature", sig)
	rr := httptest.NewRecorder()
	h.HandleWebhook(rr, req)
	return rr
}

// ========================================
// AuthWebhookHandler Tests
// ========================================

func TestNewAuthWebhookHandler_BadSecret(t *testing.T) {
	if _, err := NewAuthWebhookHandler("whsec_%%%not-base64", &mockBilling{}, slog.Default()); err == nil {
		t.Error("expected error for undecodable secret")
	}
}

func TestAuthWebhook_BadSignature(t *testing.T) {
	billing := &mockBilling{}
	h, err := NewAuthWebhookHandler(testAuthSecret, billing, slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	other := "whsec_" + base64.StdEncoding.EncodeToString([]byte("a-completely-different-secret!!!"))

	rr := postAuthWebhook(t, h, []byte(`{"type":"user.deleted","data":{"id":"user-1"}}`), other)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
	if len(billing.cancels) != 0 {
		t.Error("no side effects on bad signature")
	}
}

func TestAuthWebhook_Events(t *testing.T) {
	tests := []struct {
		name        string
		payload     string
		serviceErr  error
		wantStatus  int
		wantEmail   []string
		wantCancels []string
	}{
		{
			name:       "email changed",
			payload:    `{"type":"user.updated","data":{"id":"user-1","email":"new@example.com","old_email":"old@example.com"}}`,
			wantStatus: http.StatusOK,
			wantEmail:  []string{"user-1|new@example.com"},
		},
		{
			name:       "email unchanged",
			payload:    `{"type":"user.updated","data":{"id":"user-1","email":"same@example.com","old_email":"same@example.com"}}`,
			wantStatus: http.StatusOK,
		},
		{
			name:        "user deleted",
			payload:     `{"type":"user.deleted","data":{"id":"user-2"}}`,
			wantStatus:  http.StatusOK,
			wantCancels: []string{"user-2"},
		},
		{
			name:       "unrelated type",
			payload:    `{"type":"session.created","data":{"id":"sess_1"}}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "not json",
			payload:    `not json`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:        "processing failure",
			payload:     `{"type":"user.deleted","data":{"id":"user-3"}}`,
			serviceErr:  errors.New("processor unavailable"),
			wantStatus:  http.StatusInternalServerError,
			wantCancels: []string{"user-3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			billing := &mockBilling{err: tt.serviceErr}
			h, err := NewAuthWebhookHandler(testAuthSecret, billing, slog.Default())
			if err != nil {
				t.Fatal(err)
			}

			rr := postAuthWebhook(t, h, []byte(tt.payload), testAuthSecret)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if len(billing.emailUpdates) != len(tt.wantEmail) || (len(tt.wantEmail) > 0 && billing.emailUpdates[0] != tt.wantEmail[0]) {
				t.Errorf("email updates = %v, want %v", billing.emailUpdates, tt.wantEmail)
			}
			if len(billing.cancels) != len(tt.wantCancels) || (len(tt.wantCancels) > 0 && billing.cancels[0] != tt.wantCancels[0]) {
				t.Errorf("cancels = %v, want %v", billing.cancels, tt.wantCancels)
			}
		})
	}
}
