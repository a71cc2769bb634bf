// Package dashboard serves the pages of a logged-in user: their group
// list, profile, group detail and the group membership forms.
package dashboard

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/clubhouse/pkg/clubhouse/auth"
	"github.com/mikepea/clubhouse/pkg/clubhouse/membership"
	"github.com/mikepea/clubhouse/pkg/clubhouse/render"
)

// Handler handles dashboard and group requests
type Handler struct {
	svc *membership.Service
	gw  *auth.Gateway
}

// NewHandler creates a new dashboard handler
func NewHandler(svc *membership.Service, gw *auth.Gateway) *Handler {
	return &Handler{svc: svc, gw: gw}
}

// Index shows the landing page
func (h *Handler) Index(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", h.gw.Page(c, "Welcome", nil))
}

// Dashboard lists the caller's groups
func (h *Handler) Dashboard(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	overview, err := h.svc.Overview(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, "dashboard", err, "/")
		return
	}

	c.HTML(http.StatusOK, "dashboard.html", h.gw.Page(c, "Dashboard", gin.H{"Overview": overview}))
}

// Profile shows the caller's account and memberships
func (h *Handler) Profile(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	overview, err := h.svc.Overview(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, "profile", err, "/dashboard")
		return
	}

	c.HTML(http.StatusOK, "profile.html", h.gw.Page(c, "Profile", gin.H{"Overview": overview}))
}

// Group shows a group and its members
func (h *Handler) Group(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	groupID, err := groupIDParam(c)
	if err != nil {
		h.fail(c, "group_detail", err, "/dashboard")
		return
	}

	detail, err := h.svc.GroupDetail(c.Request.Context(), userID, groupID)
	if err != nil {
		h.fail(c, "group_detail", err, "/dashboard")
		return
	}

	c.HTML(http.StatusOK, "group.html", h.gw.Page(c, detail.Group.Name, gin.H{"Detail": detail}))
}

// groupIDParam parses the :id path parameter. Anything that is not a
// positive decimal id names no group.
func groupIDParam(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, membership.ErrNotFound
	}
	return uint(id), nil
}

func (h *Handler) fail(c *gin.Context, op string, err error, target string) {
	flash := render.Failure(c, op, err)
	h.gw.Flash(c, flash.Kind, flash.Message)
	c.Redirect(http.StatusFound, target)
}

// RegisterRoutes registers dashboard and group routes on the given router
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/", h.Index)

	rg := r.Group("/", h.gw.RequireUser())
	rg.GET("/dashboard", h.Dashboard)
	rg.GET("/welcome", h.Dashboard)
	rg.GET("/profile", h.Profile)
	rg.GET("/group/:id", h.Group)

	rg.GET("/create-group", h.CreateForm)
	rg.POST("/create-group", h.Create)
	rg.GET("/join-group", h.JoinForm)
	rg.POST("/join-group", h.Join)
	rg.POST("/leave-group/:id", h.Leave)
	rg.POST("/delete-group/:id", h.Delete)
	rg.POST("/update-current-group/:id", h.SetCurrent)
}
