package dashboard

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/clubhouse/pkg/clubhouse/auth"
	"github.com/mikepea/clubhouse/pkg/clubhouse/membership"
	"github.com/mikepea/clubhouse/pkg/clubhouse/render"
	"github.com/mikepea/clubhouse/pkg/clubhouse/session"
	"github.com/sirupsen/logrus"
)

// CreateForm shows the create-group form
func (h *Handler) CreateForm(c *gin.Context) {
	c.HTML(http.StatusOK, "create-group.html", h.gw.Page(c, "Create a group", nil))
}

// Create creates a group with the caller as admin and shows its invite code
func (h *Handler) Create(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	name := render.FormValue(c, "name", "groupName")
	description := render.FormValue(c, "description")

	group, err := h.svc.CreateGroup(c.Request.Context(), userID, name, description)
	if err != nil {
		h.fail(c, membership.OpCreateGroup, err, "/create-group")
		return
	}

	logrus.WithFields(logrus.Fields{"user_id": userID, "group_id": group.ID}).Info("Group created")
	h.gw.Flash(c, session.FlashSuccess,
		fmt.Sprintf("Group %s created successfully. Invite members with the code: %s", group.Name, group.Code))
	c.Redirect(http.StatusFound, "/dashboard")
}

// JoinForm shows the join-group form
func (h *Handler) JoinForm(c *gin.Context) {
	c.HTML(http.StatusOK, "join-group.html", h.gw.Page(c, "Join a group", nil))
}

// Join adds the caller to the group with the submitted invite code
func (h *Handler) Join(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	group, err := h.svc.JoinByCode(c.Request.Context(), userID, render.FormValue(c, "code", "groupCode"))
	if err != nil {
		h.fail(c, membership.OpJoinByCode, err, "/join-group")
		return
	}

	logrus.WithFields(logrus.Fields{"user_id": userID, "group_id": group.ID}).Info("Group joined")
	h.gw.Flash(c, session.FlashSuccess, fmt.Sprintf("You have successfully joined the group %s.", group.Name))
	c.Redirect(http.StatusFound, "/dashboard")
}

// Leave removes the caller from a group
func (h *Handler) Leave(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	groupID, err := groupIDParam(c)
	if err != nil {
		h.fail(c, membership.OpLeave, err, "/dashboard")
		return
	}

	group, err := h.svc.Leave(c.Request.Context(), userID, groupID)
	if err != nil {
		h.fail(c, membership.OpLeave, err, "/dashboard")
		return
	}

	h.gw.Flash(c, session.FlashSuccess, fmt.Sprintf("You have successfully left the group %s.", group.Name))
	c.Redirect(http.StatusFound, "/dashboard")
}

// Delete removes a group; only its admin may do so
func (h *Handler) Delete(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	groupID, err := groupIDParam(c)
	if err != nil {
		h.fail(c, membership.OpDelete, err, "/dashboard")
		return
	}

	group, err := h.svc.Delete(c.Request.Context(), userID, groupID)
	if errors.Is(err, membership.ErrNotAdmin) {
		h.fail(c, membership.OpDelete, err, fmt.Sprintf("/group/%d", groupID))
		return
	}
	if err != nil {
		h.fail(c, membership.OpDelete, err, "/dashboard")
		return
	}

	logrus.WithFields(logrus.Fields{"user_id": userID, "group_id": groupID}).Info("Group deleted")
	h.gw.Flash(c, session.FlashSuccess, fmt.Sprintf("Group %s has been deleted.", group.Name))
	c.Redirect(http.StatusFound, "/dashboard")
}

// SetCurrent makes a group the caller's current group
func (h *Handler) SetCurrent(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	groupID, err := groupIDParam(c)
	if err != nil {
		h.fail(c, membership.OpSetCurrentGroup, err, "/dashboard")
		return
	}

	group, err := h.svc.SetCurrentGroup(c.Request.Context(), userID, groupID)
	if err != nil {
		h.fail(c, membership.OpSetCurrentGroup, err, "/dashboard")
		return
	}

	h.gw.Flash(c, session.FlashSuccess, fmt.Sprintf("%s is now your current group.", group.Name))
	c.Redirect(http.StatusFound, "/dashboard")
}
