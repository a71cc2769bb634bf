// Package auth establishes and checks login sessions. The session id is
// carried in a signed cookie; the session record itself lives in a
// session.Store.
package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/clubhouse/pkg/clubhouse/models"
	"github.com/mikepea/clubhouse/pkg/clubhouse/session"
	"github.com/sirupsen/logrus"
)

const (
	// CookieName is the session cookie
	CookieName = "clubhouse_session"

	// ContextKeyUserID is the key for user ID in gin context
	ContextKeyUserID = "user_id"
	// ContextKeySession is the key for the loaded session in gin context
	ContextKeySession = "session"

	MsgLoginRequired = "Please log in to view this page"
)

// Verifier checks a login attempt.
type Verifier interface {
	Verify(ctx context.Context, identifier, password string) (*models.User, error)
}

// LoginObserver is told about every login attempt.
type LoginObserver interface {
	ObserveLogin(ok bool)
}

// Options configures a Gateway.
type Options struct {
	Secret []byte
	TTL    time.Duration
	// Secure marks the cookie HTTPS-only.
	Secure   bool
	Observer LoginObserver
}

// Gateway resolves the identity of each request.
type Gateway struct {
	store    session.Store
	users    Verifier
	signer   signer
	secure   bool
	observer LoginObserver
	now      func() time.Time
}

// NewGateway creates a Gateway.
func NewGateway(store session.Store, users Verifier, opts Options) *Gateway {
	return &Gateway{
		store:    store,
		users:    users,
		signer:   signer{secret: opts.Secret, ttl: opts.TTL},
		secure:   opts.Secure,
		observer: opts.Observer,
		now:      time.Now,
	}
}

// LoadSession reads the session cookie and puts the session, and the user
// id when logged in, into the gin context. A missing or invalid cookie
// leaves the request anonymous.
func (g *Gateway) LoadSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		value, err := c.Cookie(CookieName)
		if err != nil || value == "" {
			c.Next()
			return
		}

		claims, err := g.signer.ValidateToken(value)
		if err != nil {
			g.clearCookie(c)
			c.Next()
			return
		}

		sess, err := g.store.Get(c.Request.Context(), claims.ID)
		if err != nil {
			if !errors.Is(err, session.ErrNotFound) {
				logrus.WithError(err).Error("Failed to load session")
			}
			g.clearCookie(c)
			c.Next()
			return
		}

		g.attach(c, sess)
		c.Next()
	}
}

// RequireUser redirects anonymous visitors to the login page.
func (g *Gateway) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !current(c).Authenticated() {
			g.Flash(c, session.FlashError, MsgLoginRequired)
			c.Redirect(http.StatusFound, "/login")
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireGuest sends logged-in users to their dashboard.
func (g *Gateway) RequireGuest() gin.HandlerFunc {
	return func(c *gin.Context) {
		if current(c).Authenticated() {
			c.Redirect(http.StatusFound, "/dashboard")
			c.Abort()
			return
		}
		c.Next()
	}
}

// Login verifies the credentials and starts a fresh session for the user.
// Any previous session of the request is discarded.
func (g *Gateway) Login(c *gin.Context, identifier, password string) (*models.User, error) {
	ctx := c.Request.Context()

	user, err := g.users.Verify(ctx, identifier, password)
	if g.observer != nil {
		g.observer.ObserveLogin(err == nil)
	}
	if err != nil {
		return nil, err
	}

	if old := current(c); old != nil {
		if err := g.store.Delete(ctx, old.ID); err != nil {
			logrus.WithError(err).Warn("Failed to delete previous session")
		}
	}

	sess, err := g.store.Create(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if err := g.setCookie(c, sess); err != nil {
		return nil, err
	}
	g.attach(c, sess)
	return user, nil
}

// Logout destroys the request's session.
func (g *Gateway) Logout(c *gin.Context) error {
	sess := current(c)
	c.Set(ContextKeySession, (*session.Session)(nil))
	c.Set(ContextKeyUserID, uint(0))
	g.clearCookie(c)
	if sess == nil {
		return nil
	}
	return g.store.Delete(c.Request.Context(), sess.ID)
}

// Flash queues a message for the next rendered page, starting an
// anonymous session if the request has none.
func (g *Gateway) Flash(c *gin.Context, kind, message string) {
	ctx := c.Request.Context()

	sess := current(c)
	if sess == nil {
		var err error
		sess, err = g.store.Create(ctx, 0)
		if err != nil {
			logrus.WithError(err).Error("Failed to create session for flash")
			return
		}
		if err := g.setCookie(c, sess); err != nil {
			logrus.WithError(err).Error("Failed to sign session cookie")
			return
		}
		g.attach(c, sess)
	}

	sess.AddFlash(kind, message)
	if err := g.store.Save(ctx, sess); err != nil {
		logrus.WithError(err).Error("Failed to save flash")
	}
}

// Flashes returns and consumes the queued messages.
func (g *Gateway) Flashes(c *gin.Context) []session.Flash {
	sess := current(c)
	if sess == nil || len(sess.Flashes) == 0 {
		return nil
	}

	flashes := sess.PopFlashes()
	if err := g.store.Save(c.Request.Context(), sess); err != nil {
		logrus.WithError(err).Error("Failed to clear flashes")
	}
	return flashes
}

// Page adds the values every page template expects to data.
func (g *Gateway) Page(c *gin.Context, title string, data gin.H) gin.H {
	if data == nil {
		data = gin.H{}
	}
	data["Title"] = title
	data["LoggedIn"] = current(c).Authenticated()
	data["Flashes"] = g.Flashes(c)
	return data
}

// GetUserID returns the logged-in user's ID from the gin context
func GetUserID(c *gin.Context) (uint, bool) {
	userID, exists := c.Get(ContextKeyUserID)
	if !exists {
		return 0, false
	}
	id, ok := userID.(uint)
	if !ok || id == 0 {
		return 0, false
	}
	return id, true
}

func current(c *gin.Context) *session.Session {
	v, exists := c.Get(ContextKeySession)
	if !exists {
		return nil
	}
	sess, _ := v.(*session.Session)
	return sess
}

func (g *Gateway) attach(c *gin.Context, sess *session.Session) {
	c.Set(ContextKeySession, sess)
	c.Set(ContextKeyUserID, sess.UserID)
}

func (g *Gateway) setCookie(c *gin.Context, sess *session.Session) error {
	now := g.now()
	token, err := g.signer.GenerateToken(sess.ID, now)
	if err != nil {
		return err
	}
	maxAge := int(sess.ExpiresAt.Sub(now).Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, token, maxAge, "/", "", g.secure, true)
	return nil
}

func (g *Gateway) clearCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, "", -1, "/", "", g.secure, true)
}
