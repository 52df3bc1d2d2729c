package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func echoIdentity() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok {
			id = "anonymous"
		}
		w.Write([]byte(id))
	})
}

func TestRequireAuth(t *testing.T) {
	ts := newTestTokenService(t)
	token, _ := ts.Generate("alice@example.com")
	bobToken, _ := ts.Generate("bob@example.com")

	tests := []struct {
		name       string
		setup      func(r *http.Request)
		wantStatus int
		wantBody   string
	}{
		{
			name:       "no credentials",
			setup:      func(r *http.Request) {},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "cookie",
			setup:      func(r *http.Request) { r.AddCookie(&http.Cookie{Name: CookieName, Value: token}) },
			wantStatus: http.StatusOK,
			wantBody:   "alice@example.com",
		},
		{
			name:       "bearer header",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) },
			wantStatus: http.StatusOK,
			wantBody:   "alice@example.com",
		},
		{
			name: "header wins over cookie",
			setup: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: CookieName, Value: token})
				r.Header.Set("Authorization", "Bearer "+bobToken)
			},
			wantStatus: http.StatusOK,
			wantBody:   "bob@example.com",
		},
		{
			name:       "basic auth is not accepted",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Basic Zm9vOmJhcg==") },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "invalid token",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer garbage") },
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()

			RequireAuth(ts)(echoIdentity()).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestOptionalAuth_Anonymous(t *testing.T) {
	ts := newTestTokenService(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	OptionalAuth(ts)(echoIdentity()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anonymous", rec.Body.String())
}

func TestGitHubUserIdentity(t *testing.T) {
	assert.Equal(t, "a@b.c", (&GitHubUser{Login: "x", Email: "a@b.c"}).Identity())
	assert.Equal(t, "octo@users.noreply.github.com", (&GitHubUser{Login: "octo"}).Identity())
}
