package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
}

func TestAuth(t *testing.T) {
	const validToken = "test-token"

	tests := []struct {
		name       string
		token      string
		path       string
		authHeader string
		wantStatus int
	}{
		{
			name:       "health bypasses auth",
			token:      validToken,
			path:       "/health",
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing auth header with key configured",
			token:      validToken,
			path:       "/v1/models",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "missing auth header without key",
			path:       "/v1/models",
			wantStatus: http.StatusOK,
		},
		{
			name:       "invalid auth format",
			token:      validToken,
			path:       "/v1/models",
			authHeader: "Basic token",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "invalid auth format without key",
			path:       "/v1/models",
			authHeader: "Bearer",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "invalid token",
			token:      validToken,
			path:       "/v1/models",
			authHeader: "Bearer wrong-token",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "any bearer without key",
			path:       "/v1/models",
			authHeader: "Bearer whatever",
			wantStatus: http.StatusOK,
		},
		{
			name:       "valid token",
			token:      validToken,
			path:       "/v1/models",
			authHeader: "Bearer " + validToken,
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := Auth(tt.token, nil)(okHandler())
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("got status %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestAuth_CustomErrorWriter(t *testing.T) {
	var gotStatus int
	var gotMsg string
	onError := func(w http.ResponseWriter, status int, message string) {
		gotStatus, gotMsg = status, message
		w.WriteHeader(status)
	}

	handler := Auth("secret", onError)(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if gotStatus != http.StatusUnauthorized || gotMsg != "Invalid API key" {
		t.Errorf("onError got (%d, %q)", gotStatus, gotMsg)
	}
}

func TestLogging_RecoversPanics(t *testing.T) {
	handler := Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("got status %d, want 500", rec.Code)
	}
}

func TestLogging_PassesThroughStatusAndFlush(t *testing.T) {
	handler := Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		} else {
			t.Error("wrapped writer should implement http.Flusher")
		}
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("got status %d", rec.Code)
	}
	if !rec.Flushed {
		t.Error("flush was not forwarded")
	}
}
