package auth

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/clubhouse/pkg/clubhouse/credentials"
	"github.com/mikepea/clubhouse/pkg/clubhouse/models"
	"github.com/mikepea/clubhouse/pkg/clubhouse/render"
	"github.com/mikepea/clubhouse/pkg/clubhouse/session"
	"github.com/stretchr/testify/mock"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var testSecret = []byte("test-secret")

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	models.AutoMigrate(db)
	return db
}

func setupTestRouter(t *testing.T, observer LoginObserver) (*gin.Engine, *session.DBStore) {
	gin.SetMode(gin.TestMode)
	db := setupTestDB(t)
	users := credentials.NewStore(db)
	store := session.NewDBStore(db, time.Hour)
	gw := NewGateway(store, users, Options{Secret: testSecret, TTL: time.Hour, Observer: observer})

	r := gin.New()
	if err := render.Setup(r); err != nil {
		t.Fatalf("Failed to load templates: %v", err)
	}
	r.Use(gw.LoadSession())
	NewHandler(gw, users).RegisterRoutes(r)
	r.GET("/whoami", gw.RequireUser(), func(c *gin.Context) {
		id, _ := GetUserID(c)
		c.JSON(http.StatusOK, gin.H{"user_id": id})
	})
	return r, store
}

// client replays the session cookie between requests like a browser.
type client struct {
	r      *gin.Engine
	cookie *http.Cookie
}

func (b *client) do(method, path string, form url.Values) *httptest.ResponseRecorder {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, path, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if b.cookie != nil {
		req.AddCookie(b.cookie)
	}

	w := httptest.NewRecorder()
	b.r.ServeHTTP(w, req)

	for _, ck := range w.Result().Cookies() {
		if ck.Name != CookieName {
			continue
		}
		if ck.Value == "" || ck.MaxAge < 0 {
			b.cookie = nil
		} else {
			b.cookie = ck
		}
	}
	return w
}

func expectRedirect(t *testing.T, w *httptest.ResponseRecorder, location string) {
	t.Helper()
	if w.Code != http.StatusFound {
		t.Fatalf("Expected status 302, got %d: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Location"); got != location {
		t.Errorf("Expected redirect to %s, got %s", location, got)
	}
}

func expectBody(t *testing.T, w *httptest.ResponseRecorder, want string) {
	t.Helper()
	if !strings.Contains(w.Body.String(), want) {
		t.Errorf("Expected body to contain %q, got: %s", want, w.Body.String())
	}
}

func credentialsForm(identifier, password string) url.Values {
	return url.Values{"identifier": {identifier}, "password": {password}}
}

func TestRegisterAndLogin(t *testing.T) {
	r, _ := setupTestRouter(t, nil)
	b := &client{r: r}

	w := b.do(http.MethodPost, "/register", credentialsForm("alice", "pw1"))
	expectRedirect(t, w, "/login")

	w = b.do(http.MethodGet, "/login", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	expectBody(t, w, MsgRegistered)

	// flashes are consumed once shown
	w = b.do(http.MethodGet, "/login", nil)
	if strings.Contains(w.Body.String(), MsgRegistered) {
		t.Error("Flash should only be shown once")
	}

	anonymous := b.cookie
	w = b.do(http.MethodPost, "/login", credentialsForm("alice", "pw1"))
	expectRedirect(t, w, "/dashboard")
	if b.cookie == nil || (anonymous != nil && b.cookie.Value == anonymous.Value) {
		t.Error("Login should issue a new session cookie")
	}

	w = b.do(http.MethodGet, "/whoami", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	expectBody(t, w, `"user_id":1`)
}

func TestRegisterWithAliasFields(t *testing.T) {
	r, _ := setupTestRouter(t, nil)
	b := &client{r: r}

	w := b.do(http.MethodPost, "/register", url.Values{"username": {"Carol"}, "password": {"pw"}})
	expectRedirect(t, w, "/login")

	w = b.do(http.MethodPost, "/login", url.Values{"email": {"carol"}, "password": {"pw"}})
	expectRedirect(t, w, "/dashboard")
}

func TestRegisterDuplicate(t *testing.T) {
	r, _ := setupTestRouter(t, nil)
	b := &client{r: r}

	b.do(http.MethodPost, "/register", credentialsForm("alice", "pw1"))
	w := b.do(http.MethodPost, "/register", credentialsForm("alice", "other"))
	expectRedirect(t, w, "/register")

	w = b.do(http.MethodGet, "/register", nil)
	expectBody(t, w, "Username already exists")
}

func TestRegisterPasswordMismatch(t *testing.T) {
	r, _ := setupTestRouter(t, nil)
	b := &client{r: r}

	form := credentialsForm("alice", "pw1")
	form.Set("confirm_password", "pw2")
	w := b.do(http.MethodPost, "/register", form)
	expectRedirect(t, w, "/register")

	w = b.do(http.MethodGet, "/register", nil)
	expectBody(t, w, "Passwords do not match")

	// nothing was created
	w = b.do(http.MethodPost, "/login", credentialsForm("alice", "pw1"))
	expectRedirect(t, w, "/login")
}

func TestRegisterOverlongPassword(t *testing.T) {
	r, _ := setupTestRouter(t, nil)
	b := &client{r: r}

	long := strings.Repeat("p", credentials.MaxPasswordBytes+8)
	w := b.do(http.MethodPost, "/register", credentialsForm("alice", long))
	expectRedirect(t, w, "/register")

	w = b.do(http.MethodGet, "/register", nil)
	expectBody(t, w, "Passwords can be at most 72 bytes long.")
	if strings.Contains(w.Body.String(), render.GenericFailure) {
		t.Error("Overlong password should not be reported as a server failure")
	}

	w = b.do(http.MethodPost, "/login", credentialsForm("alice", long))
	expectRedirect(t, w, "/login")
	w = b.do(http.MethodGet, "/login", nil)
	expectBody(t, w, "Incorrect username or password.")
}

func TestLoginFailuresLookTheSame(t *testing.T) {
	r, _ := setupTestRouter(t, nil)

	setup := &client{r: r}
	setup.do(http.MethodPost, "/register", credentialsForm("alice", "pw1"))

	for _, form := range []url.Values{
		credentialsForm("alice", "wrong"),
		credentialsForm("nobody", "pw1"),
	} {
		b := &client{r: r}
		w := b.do(http.MethodPost, "/login", form)
		expectRedirect(t, w, "/login")

		w = b.do(http.MethodGet, "/login", nil)
		expectBody(t, w, "Incorrect username or password.")

		w = b.do(http.MethodGet, "/whoami", nil)
		expectRedirect(t, w, "/login")
	}
}

func TestRequireUserRedirectsWithFlash(t *testing.T) {
	r, _ := setupTestRouter(t, nil)
	b := &client{r: r}

	w := b.do(http.MethodGet, "/whoami", nil)
	expectRedirect(t, w, "/login")

	w = b.do(http.MethodGet, "/login", nil)
	expectBody(t, w, MsgLoginRequired)
}

func TestRequireGuest(t *testing.T) {
	r, _ := setupTestRouter(t, nil)
	b := &client{r: r}

	b.do(http.MethodPost, "/register", credentialsForm("alice", "pw1"))
	b.do(http.MethodPost, "/login", credentialsForm("alice", "pw1"))

	w := b.do(http.MethodGet, "/login", nil)
	expectRedirect(t, w, "/dashboard")
	w = b.do(http.MethodGet, "/register", nil)
	expectRedirect(t, w, "/dashboard")
}

func TestLogout(t *testing.T) {
	r, _ := setupTestRouter(t, nil)
	b := &client{r: r}

	b.do(http.MethodPost, "/register", credentialsForm("alice", "pw1"))
	b.do(http.MethodPost, "/login", credentialsForm("alice", "pw1"))
	loggedIn := *b.cookie

	w := b.do(http.MethodPost, "/logout", nil)
	expectRedirect(t, w, "/login")

	w = b.do(http.MethodGet, "/login", nil)
	expectBody(t, w, MsgLoggedOut)

	w = b.do(http.MethodGet, "/whoami", nil)
	expectRedirect(t, w, "/login")

	// the old cookie no longer names a live session
	replay := &client{r: r, cookie: &loggedIn}
	w = replay.do(http.MethodGet, "/whoami", nil)
	expectRedirect(t, w, "/login")
}

func TestTamperedCookieIsAnonymous(t *testing.T) {
	r, _ := setupTestRouter(t, nil)
	b := &client{r: r}

	b.do(http.MethodPost, "/register", credentialsForm("alice", "pw1"))
	b.do(http.MethodPost, "/login", credentialsForm("alice", "pw1"))

	forged, err := signer{secret: []byte("other-secret"), ttl: time.Hour}.GenerateToken("whatever", time.Now())
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	b.cookie = &http.Cookie{Name: CookieName, Value: forged}

	w := b.do(http.MethodGet, "/whoami", nil)
	expectRedirect(t, w, "/login")
}

func TestSessionToken(t *testing.T) {
	s := signer{secret: testSecret, ttl: time.Hour}

	token, err := s.GenerateToken("session-1", time.Now())
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	claims, err := s.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.ID != "session-1" {
		t.Errorf("Expected session-1, got %s", claims.ID)
	}

	expired, err := s.GenerateToken("session-1", time.Now().Add(-2*time.Hour))
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	if _, err := s.ValidateToken(expired); err != ErrExpiredToken {
		t.Errorf("Expected ErrExpiredToken, got %v", err)
	}

	if _, err := s.ValidateToken("invalid-token"); err != ErrInvalidToken {
		t.Errorf("Expected ErrInvalidToken, got %v", err)
	}
}

type mockLoginObserver struct {
	mock.Mock
}

func (m *mockLoginObserver) ObserveLogin(ok bool) {
	m.Called(ok)
}

func TestLoginObserver(t *testing.T) {
	observer := new(mockLoginObserver)
	observer.On("ObserveLogin", false).Once()
	observer.On("ObserveLogin", true).Once()

	r, _ := setupTestRouter(t, observer)
	b := &client{r: r}

	b.do(http.MethodPost, "/register", credentialsForm("alice", "pw1"))
	b.do(http.MethodPost, "/login", credentialsForm("alice", "nope"))
	b.do(http.MethodPost, "/login", credentialsForm("alice", "pw1"))

	observer.AssertExpectations(t)
}
