package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lifecart/orderflow-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("debug"), Output: io.Discard})
}

func TestSessionInjectsHeader(t *testing.T) {
	logg := testLogger()

	var seen string
	handler := Session(logg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SessionIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Session-Id", "sess-42")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "sess-42", seen)
}

func TestSessionMissingHeaderPassesThrough(t *testing.T) {
	logg := testLogger()

	var seen string
	handler := Session(logg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SessionIDFromContext(r.Context())
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Empty(t, seen)
}

func TestRequireSessionRejectsMissing(t *testing.T) {
	logg := testLogger()

	called := false
	handler := RequireSession(logg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.False(t, called)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequireSessionAllowsPresent(t *testing.T) {
	logg := testLogger()

	called := false
	handler := Session(logg)(RequireSession(logg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Session-Id", "sess-42")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.True(t, called)
}
