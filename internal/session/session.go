// Package session establishes the anonymous per-browser session. The first
// request without a valid cookie is issued a fresh random user id; later
// requests carry it back in a signed cookie. Handlers read the session from
// the request context, never from globals.
package session

import (
	"context"
	"crypto/rand"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// CookieName is the session cookie.
const CookieName = "healthwise_session"

const (
	keyUserID  = "user_id"
	keyCreated = "created"
	maxAge     = 365 * 24 * 60 * 60
)

// Context is the session seen by a request.
type Context struct {
	UserID string
	// Anonymous is always true until sign-in providers exist.
	Anonymous bool
	Created   time.Time
	// New is true on the request that established the session.
	New bool
}

type ctxKey struct{}

// WithContext returns ctx carrying sc.
func WithContext(ctx context.Context, sc Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, sc)
}

// FromContext returns the session placed on ctx by the middleware.
func FromContext(ctx context.Context) (Context, bool) {
	sc, ok := ctx.Value(ctxKey{}).(Context)
	return sc, ok
}

// Manager issues and reads session cookies.
type Manager struct {
	store sessions.Store
}

// NewManager builds a cookie store signed with secret. An empty secret gets
// a random key, so sessions do not survive a restart.
func NewManager(secret string, secure bool) *Manager {
	key := []byte(secret)
	if secret == "" {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			panic(err)
		}
		log.Warn().Msg("SESSION_SECRET not set; using an ephemeral session key")
	}

	store := sessions.NewCookieStore(key)
	store.MaxAge(maxAge)
	store.Options.Path = "/"
	store.Options.HttpOnly = true
	store.Options.Secure = secure
	store.Options.SameSite = http.SameSiteLaxMode
	return &Manager{store: store}
}

// NewManagerWithStore wraps an existing store.
func NewManagerWithStore(store sessions.Store) *Manager {
	return &Manager{store: store}
}

// Establish reads the session of r, issuing a new anonymous identity when
// there is none. A new identity is written to w.
func (m *Manager) Establish(w http.ResponseWriter, r *http.Request) (Context, error) {
	sess, err := m.store.Get(r, CookieName)
	if err != nil {
		// Tampered or rotated-key cookies yield a fresh session.
		log.Debug().Err(err).Msg("Discarding unreadable session cookie")
	}
	if sess == nil {
		sess = sessions.NewSession(m.store, CookieName)
	}

	if id, ok := sess.Values[keyUserID].(string); ok && id != "" {
		created, _ := sess.Values[keyCreated].(int64)
		return Context{UserID: id, Anonymous: true, Created: time.Unix(created, 0).UTC()}, nil
	}

	now := time.Now().UTC()
	sc := Context{UserID: uuid.NewString(), Anonymous: true, Created: now.Truncate(time.Second), New: true}
	sess.Values[keyUserID] = sc.UserID
	sess.Values[keyCreated] = now.Unix()
	if err := sess.Save(r, w); err != nil {
		return Context{}, err
	}
	return sc, nil
}

// Middleware places the session on every request context and adds the
// user id to the request logger.
func (m *Manager) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			sc, err := m.Establish(c.Response(), req)
			if err != nil {
				zerolog.Ctx(req.Context()).Error().Err(err).Msg("Failed to establish session")
				return echo.NewHTTPError(http.StatusInternalServerError, "failed to establish session")
			}
			if sc.New {
				zerolog.Ctx(req.Context()).Info().Str("user_id", sc.UserID).Msg("Anonymous session created")
			}

			logger := zerolog.Ctx(req.Context()).With().Str("user_id", sc.UserID).Logger()
			ctx := WithContext(logger.WithContext(req.Context()), sc)
			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}
