package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/campus-link/internal/auth"
	"github.com/sakif/campus-link/internal/config"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		Port:               8080,
		LogLevel:           "error",
		PublicURL:          "http://localhost:8080",
		StoreDriver:        config.DriverSQLite,
		DBPath:             ":memory:",
		JWTSecret:          "server-test-secret-0123456789",
		ProfileReadTimeout: time.Second,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := New(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func TestServer_PublicRoutes(t *testing.T) {
	s := newTestServer(t)

	rr := serve(s, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Campus Link")
	assert.NotEmpty(t, rr.Header().Get("Content-Type"))

	rr = serve(s, httptest.NewRequest(http.MethodGet, "/static/style.css", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = serve(s, httptest.NewRequest(http.MethodGet, "/api/session", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	var snap map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&snap))
	assert.Equal(t, "anonymous", snap["state"])

	rr = serve(s, httptest.NewRequest(http.MethodGet, "/signup", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), "/auth/google/login", "Google is not configured")
}

// TestServer_SignUpToProjects walks the whole flow through the real router:
// sign up, complete the profile, post a project, see it, mark it done.
func TestServer_SignUpToProjects(t *testing.T) {
	s := newTestServer(t)

	form := url.Values{"email": {"asha@campus.edu"}, "password": {"hunter22"}}
	req := httptest.NewRequest(http.MethodPost, "/signup", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := serve(s, req)
	require.Equal(t, http.StatusSeeOther, rr.Code)

	var token string
	for _, c := range rr.Result().Cookies() {
		if c.Name == auth.CookieName {
			token = c.Value
		}
	}
	require.NotEmpty(t, token)

	withCookie := func(req *http.Request) *http.Request {
		req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: token})
		return req
	}

	// The profile read may still be in flight; the guard waits for it.
	rr = serve(s, withCookie(httptest.NewRequest(http.MethodGet, "/find-projects", nil)))
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/complete-profile", rr.Header().Get("Location"))

	profile := `{"year":"3","course":"B.Sc","techStack":"Go","contact":"555-0000"}`
	req = withCookie(httptest.NewRequest(http.MethodPut, "/api/profile", strings.NewReader(profile)))
	req.Header.Set("Content-Type", "application/json")
	rr = serve(s, req)
	require.Equal(t, http.StatusOK, rr.Code)

	project := `{"projectName":"Study buddy","description":"` + strings.Repeat("s", 100) +
		`","domain":"App Development","techStack":["Flutter"],"teamSize":2}`
	req = withCookie(httptest.NewRequest(http.MethodPost, "/api/projects", strings.NewReader(project)))
	req.Header.Set("Content-Type", "application/json")
	rr = serve(s, req)
	require.Equal(t, http.StatusCreated, rr.Code)

	var created map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&created))
	assert.Nil(t, created["ownerPhone"])
	assert.Nil(t, created["ownerLinkedin"])
	assert.Equal(t, "Not Available", created["uploaderName"], "no full name and no display name")

	rr = serve(s, withCookie(httptest.NewRequest(http.MethodGet, "/find-projects", nil)))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Study buddy")
	assert.Contains(t, rr.Body.String(), "Uploaded by asha@campus.edu")

	id, _ := created["id"].(string)
	rr = serve(s, withCookie(httptest.NewRequest(http.MethodDelete, "/api/projects/"+id, nil)))
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = serve(s, withCookie(httptest.NewRequest(http.MethodGet, "/api/projects", nil)))
	assert.JSONEq(t, "[]", rr.Body.String())
}

func TestOpenStore_CreatesDatabaseDirectory(t *testing.T) {
	cfg := &config.Config{StoreDriver: config.DriverSQLite, DBPath: t.TempDir() + "/nested/campus.db"}
	store, err := openStore(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	assert.NoError(t, store.Close())
}
