package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/matchgenius-api/internal/http/mw"
	"github.com/jmylchreest/matchgenius-api/internal/version"
)

// statusOf returns the HTTP status carried by a huma error, or 0.
func statusOf(err error) int {
	var se huma.StatusError
	if errors.As(err, &se) {
		return se.GetStatus()
	}
	return 0
}

func withUser(userID, email, role string) context.Context {
	return mw.WithUserClaims(context.Background(), &mw.UserClaims{UserID: userID, Email: email, Role: role})
}

// ========================================
// HealthCheck Tests
// ========================================

func TestHealthCheck(t *testing.T) {
	output, err := HealthCheck(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if output.Body.Status != "healthy" {
		t.Errorf("Status = %q, want %q", output.Body.Status, "healthy")
	}
	if output.Body.Version != version.Get().Short() {
		t.Errorf("Version = %q, want %q", output.Body.Version, version.Get().Short())
	}
}

func TestLivez(t *testing.T) {
	output, err := Livez(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if output.Body.Status != "ok" {
		t.Errorf("Status = %q, want %q", output.Body.Status, "ok")
	}
}

// ========================================
// Readyz Tests
// ========================================

type mockDBPinger struct {
	err error
}

func (m *mockDBPinger) PingContext(ctx context.Context) error {
	return m.err
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name       string
		db         DBPinger
		wantStatus int
	}{
		{"db reachable", &mockDBPinger{}, 0},
		{"db down", &mockDBPinger{err: errors.New("connection refused")}, 503},
		{"no db", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := NewReadyzHandler(tt.db).Readyz(context.Background(), nil)
			if tt.wantStatus != 0 {
				if statusOf(err) != tt.wantStatus {
					t.Fatalf("error = %v, want status %d", err, tt.wantStatus)
				}
				return
			}
			if err != nil || out.Body.Status != "ok" {
				t.Errorf("Readyz() = %+v, %v", out, err)
			}
		})
	}
}

// ========================================
// Context helper Tests
// ========================================

func TestGetUserID(t *testing.T) {
	if got := getUserID(withUser("user-123", "", "")); got != "user-123" {
		t.Errorf("getUserID() = %q, want %q", got, "user-123")
	}
	if got := getUserID(context.Background()); got != "" {
		t.Errorf("getUserID() = %q, want empty", got)
	}
	if getUserClaims(context.Background()) != nil {
		t.Error("expected nil claims")
	}
}
