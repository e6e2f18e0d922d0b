package session

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, m *Manager, cookies ...*http.Cookie) (*httptest.ResponseRecorder, Context) {
	t.Helper()
	e := echo.New()
	var got Context
	e.GET("/", func(c echo.Context) error {
		sc, ok := FromContext(c.Request().Context())
		require.True(t, ok, "session on request context")
		got = sc
		return c.NoContent(http.StatusNoContent)
	}, m.Middleware())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec, got
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == CookieName {
			return ck
		}
	}
	return nil
}

func TestFirstContactIssuesAnonymousID(t *testing.T) {
	m := NewManager("test-secret-test-secret-32bytes!", false)

	rec, sc := serve(t, m)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, sc.New)
	assert.True(t, sc.Anonymous)
	assert.Len(t, sc.UserID, 36)
	assert.False(t, sc.Created.IsZero())

	ck := sessionCookie(rec)
	require.NotNil(t, ck)
	assert.True(t, ck.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, ck.SameSite)
}

func TestCookieKeepsIdentity(t *testing.T) {
	m := NewManager("test-secret-test-secret-32bytes!", false)

	rec, first := serve(t, m)
	ck := sessionCookie(rec)
	require.NotNil(t, ck)

	rec, second := serve(t, m, ck)
	assert.False(t, second.New)
	assert.Equal(t, first.UserID, second.UserID)
	assert.True(t, first.Created.Equal(second.Created))
	assert.Nil(t, sessionCookie(rec), "no rewrite for an existing session")
}

func TestTamperedCookieGetsFreshIdentity(t *testing.T) {
	m := NewManager("test-secret-test-secret-32bytes!", false)
	rec, first := serve(t, m)
	ck := sessionCookie(rec)
	require.NotNil(t, ck)
	ck.Value = "x" + ck.Value

	_, second := serve(t, m, ck)
	assert.True(t, second.New)
	assert.NotEqual(t, first.UserID, second.UserID)
}

func TestOtherKeyDoesNotDecode(t *testing.T) {
	rec, first := serve(t, NewManager("key-one-key-one-key-one-key-one!", false))
	ck := sessionCookie(rec)
	require.NotNil(t, ck)

	_, second := serve(t, NewManager("", false), ck)
	assert.True(t, second.New)
	assert.NotEqual(t, first.UserID, second.UserID)
}

func TestFromContextMissing(t *testing.T) {
	_, ok := FromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	assert.False(t, ok)
}
