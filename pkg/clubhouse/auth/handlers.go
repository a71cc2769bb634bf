package auth

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/clubhouse/pkg/clubhouse/credentials"
	"github.com/mikepea/clubhouse/pkg/clubhouse/models"
	"github.com/mikepea/clubhouse/pkg/clubhouse/render"
	"github.com/mikepea/clubhouse/pkg/clubhouse/session"
	"github.com/sirupsen/logrus"
)

const (
	MsgRegistered = "You have successfully registered! Please log in"
	MsgLoggedOut  = "You have successfully logged out"
)

// Registrar creates accounts.
type Registrar interface {
	Register(ctx context.Context, identifier, password string) (*models.User, error)
}

// Handler handles registration, login and logout
type Handler struct {
	gw    *Gateway
	users Registrar
}

// NewHandler creates a new auth handler
func NewHandler(gw *Gateway, users Registrar) *Handler {
	return &Handler{gw: gw, users: users}
}

func identifier(c *gin.Context) string {
	return render.FormValue(c, "identifier", "username", "email")
}

// RegisterForm shows the registration page
func (h *Handler) RegisterForm(c *gin.Context) {
	c.HTML(http.StatusOK, "register.html", h.gw.Page(c, "Register", nil))
}

// Register creates an account and sends the user to the login page
func (h *Handler) Register(c *gin.Context) {
	password := c.PostForm("password")
	if confirm, ok := c.GetPostForm("confirm_password"); ok && confirm != password {
		h.fail(c, "register", credentials.ErrPasswordMismatch, "/register")
		return
	}

	user, err := h.users.Register(c.Request.Context(), identifier(c), password)
	if err != nil {
		h.fail(c, "register", err, "/register")
		return
	}

	logrus.WithField("user_id", user.ID).Info("User registered")
	h.gw.Flash(c, session.FlashSuccess, MsgRegistered)
	c.Redirect(http.StatusFound, "/login")
}

// LoginForm shows the login page
func (h *Handler) LoginForm(c *gin.Context) {
	c.HTML(http.StatusOK, "login.html", h.gw.Page(c, "Log in", nil))
}

// Login establishes a session
func (h *Handler) Login(c *gin.Context) {
	user, err := h.gw.Login(c, identifier(c), c.PostForm("password"))
	if err != nil {
		h.fail(c, "login", err, "/login")
		return
	}

	logrus.WithField("user_id", user.ID).Info("User logged in")
	c.Redirect(http.StatusFound, "/dashboard")
}

// Logout destroys the session
func (h *Handler) Logout(c *gin.Context) {
	if err := h.gw.Logout(c); err != nil {
		logrus.WithError(err).Error("Failed to delete session")
	}
	h.gw.Flash(c, session.FlashSuccess, MsgLoggedOut)
	c.Redirect(http.StatusFound, "/login")
}

func (h *Handler) fail(c *gin.Context, op string, err error, target string) {
	flash := render.Failure(c, op, err)
	h.gw.Flash(c, flash.Kind, flash.Message)
	c.Redirect(http.StatusFound, target)
}

// RegisterRoutes registers auth routes on the given router
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	guest := r.Group("/", h.gw.RequireGuest())
	guest.GET("/register", h.RegisterForm)
	guest.POST("/register", h.Register)
	guest.GET("/login", h.LoginForm)
	guest.POST("/login", h.Login)

	r.POST("/logout", h.gw.RequireUser(), h.Logout)
}
