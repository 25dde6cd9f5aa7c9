package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"forumguard/internal/conf"
	"forumguard/internal/service"

	"github.com/go-kratos/kratos/v2/log"
)

func TestAdminAuthFilter(t *testing.T) {
	filter := adminAuthFilter(&conf.Admin{UIDs: []string{"admin-1"}}, log.NewStdLogger(io.Discard))

	var reached bool
	h := filter(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name     string
		uid      string
		wantCode int
	}{
		{"missing header", "", http.StatusForbidden},
		{"unknown uid", "student-7", http.StatusForbidden},
		{"allowed uid", "admin-1", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reached = false
			req := httptest.NewRequest(http.MethodGet, "/admin/v1/quota/vision", nil)
			if tt.uid != "" {
				req.Header.Set(service.AdminUIDHeader, tt.uid)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d; want %d", rec.Code, tt.wantCode)
			}
			if reached != (tt.wantCode == http.StatusOK) {
				t.Errorf("handler reached = %v with status %d", reached, rec.Code)
			}
		})
	}
}

func TestAdminAuthFilter_EmptyAllowlistDeniesAll(t *testing.T) {
	filter := adminAuthFilter(&conf.Admin{}, log.NewStdLogger(io.Discard))
	h := filter(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not be reached")
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin/v1/terms", nil)
	req.Header.Set(service.AdminUIDHeader, "anyone")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d; want 403", rec.Code)
	}
}
