// Package render holds the HTML templates and turns service outcomes
// into flash messages.
package render

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/clubhouse/pkg/clubhouse/credentials"
	"github.com/mikepea/clubhouse/pkg/clubhouse/membership"
	"github.com/mikepea/clubhouse/pkg/clubhouse/session"
	"github.com/sirupsen/logrus"
)

//go:embed templates/*.html
var files embed.FS

// GenericFailure is shown for anything that is not an expected outcome.
const GenericFailure = "An error occurred. Please try again."

// Templates parses every embedded page. Each page is addressed by its
// file name, e.g. "dashboard.html".
func Templates() (*template.Template, error) {
	return template.ParseFS(files, "templates/*.html")
}

// Setup installs the templates on a gin engine.
func Setup(r *gin.Engine) error {
	tmpl, err := Templates()
	if err != nil {
		return err
	}
	r.SetHTMLTemplate(tmpl)
	return nil
}

var messages = []struct {
	err  error
	text string
}{
	{credentials.ErrDuplicateIdentifier, "Username already exists"},
	{credentials.ErrInvalidCredentials, "Incorrect username or password."},
	{credentials.ErrMissingCredentials, "Please enter a username and password."},
	{credentials.ErrPasswordMismatch, "Passwords do not match"},
	{credentials.ErrPasswordTooLong, fmt.Sprintf("Passwords can be at most %d bytes long.", credentials.MaxPasswordBytes)},
	{membership.ErrInvalidCode, "Invalid group code. Please check and try again."},
	{membership.ErrAlreadyMember, "You are already a member of this group."},
	{membership.ErrNotAMember, "You are not a member of this group."},
	{membership.ErrAdminCannotLeave, "You are the admin of this group. Please delete the group to leave."},
	{membership.ErrNotAdmin, "Only the group admin can delete this group."},
	{membership.ErrNotFound, "Invalid group ID. Please try again."},
	{membership.ErrAlreadyInGroup, "You already belong to a group. Leave it before creating or joining another."},
	{membership.ErrGroupNameRequired, "Please enter a group name."},
}

// Outcome maps an operation error to the flash shown to the user. The
// second result is false when err is not an expected outcome.
func Outcome(err error) (session.Flash, bool) {
	for _, m := range messages {
		if errors.Is(err, m.err) {
			return session.Flash{Kind: session.FlashError, Message: m.text}, true
		}
	}
	return session.Flash{Kind: session.FlashError, Message: GenericFailure}, false
}

// Failure is Outcome plus logging of unexpected errors with the request
// that caused them.
func Failure(c *gin.Context, op string, err error) session.Flash {
	flash, expected := Outcome(err)
	if !expected {
		logrus.WithError(err).WithFields(logrus.Fields{
			"operation": op,
			"path":      c.Request.URL.Path,
		}).Error("Request failed")
	}
	return flash
}

// FormValue returns the first non-empty form value among keys, trimmed.
func FormValue(c *gin.Context, keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(c.PostForm(key)); v != "" {
			return v
		}
	}
	return ""
}
