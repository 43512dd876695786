package app

import (
	"arc/auth-api/config"
	"arc/auth-api/db/dbtest"
	"arc/auth-api/internal"
	"arc/auth-api/internal/model"
	"arc/auth-api/pkg/security"
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var tokenRe = regexp.MustCompile(`token=([0-9a-f]{64})`)

type sentMail struct {
	to, subject, body string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) Send(to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}

	m.sent = append(m.sent, sentMail{to, subject, body})
	return nil
}

// lastToken returns the token linked in the last mail sent to addr
func (m *fakeMailer) lastToken(t *testing.T, addr string) string {
	t.Helper()

	m.mu.Lock()
	defer m.mu.Unlock()

	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].to == addr {
			match := tokenRe.FindStringSubmatch(m.sent[i].body)
			require.Len(t, match, 2)
			return match[1]
		}
	}

	t.Fatalf("no mail sent to %s", addr)
	return ""
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type testServer struct {
	engine *gin.Engine
	deps   *internal.Deps
	mailer *fakeMailer
}

func testConfig() *config.Config {
	return &config.Config{
		App:      config.App{LogLevel: "debug", PublicURL: "http://localhost:3000"},
		Host:     config.Host{Port: 8080, CORS: []string{"http://localhost:3000"}},
		Security: config.Security{JWTSecret: "test-secret", EncryptionKey: strings.Repeat("0f", 32)},
		Session: config.Session{
			CookieName:     "arc_session",
			TTL:            7 * 24 * time.Hour,
			LoginPath:      "/login",
			ProtectedPages: []string{"/account", "/privacy", "/settings"},
			ProtectedAPI:   []string{"/api/auth/me", "/api/user", "/api/privacy", "/api/consent"},
		},
		Tokens:  config.Tokens{VerifyTTL: 24 * time.Hour, ResetTTL: time.Hour},
		DB:      config.DB{Driver: "sqlite"},
		Consent: config.Consent{LegalVersion: "2025-01"},
	}
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mailer := &fakeMailer{}

	d, err := internal.NewDeps(testConfig(), dbtest.New(t), mailer)
	require.NoError(t, err)
	d.Argon = &security.ArgonHash{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

	e, err := NewEngine(d)
	require.NoError(t, err)

	return &testServer{engine: e, deps: d, mailer: mailer}
}

func (s *testServer) do(method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()

	for _, c := range w.Result().Cookies() {
		if c.Name == "arc_session" {
			return c
		}
	}

	t.Fatal("no session cookie set")
	return nil
}

func registration(email, country string) gin.H {
	return gin.H{
		"firstName": "Ada",
		"lastName":  "Lovelace",
		"email":     email,
		"password":  "correct horse",
		"country":   country,
		"timezone":  "UTC",
		"mandatoryConsents": gin.H{
			"healthData":   true,
			"dataTransfer": true,
			"terms":        true,
			"ageConfirmed": true,
		},
		"optionalConsents": gin.H{
			"marketing": true,
		},
	}
}

// register creates a user and verifies the email, returning a session cookie
func (s *testServer) registerAndLogin(t *testing.T, email string) *http.Cookie {
	t.Helper()

	w := s.do(http.MethodPost, "/api/auth/register", registration(email, "US"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodGet, "/api/auth/verify?token="+s.mailer.lastToken(t, email), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodPost, "/api/auth/login", gin.H{"email": email, "password": "correct horse"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	return sessionCookie(t, w)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	return m
}

func TestHeartbeat(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodHead, "/api/heartbeat", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRegisterVerifyLoginMe(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/auth/register", registration("Ada@Example.com", "US"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, 1, s.mailer.count())

	// unverified users can't log in
	w = s.do(http.MethodPost, "/api/auth/login", gin.H{"email": "ada@example.com", "password": "correct horse"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	token := s.mailer.lastToken(t, "ada@example.com")

	w = s.do(http.MethodGet, "/api/auth/verify?token="+token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// the link works once
	w = s.do(http.MethodGet, "/api/auth/verify?token="+token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/api/auth/login", gin.H{"email": "ada@example.com", "password": "wrong password"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/api/auth/login", gin.H{"email": "ADA@example.com", "password": "correct horse"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	cookie := sessionCookie(t, w)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, 7*24*60*60, cookie.MaxAge)

	w = s.do(http.MethodGet, "/api/auth/me", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	me := decode(t, w)
	assert.NotEmpty(t, me["id"])
	assert.Equal(t, "Ada", me["firstName"])
	assert.Equal(t, "Lovelace", me["lastName"])
	assert.Equal(t, "ada@example.com", me["email"])
	assert.Equal(t, true, me["emailVerified"])
	assert.Equal(t, "US", me["country"])
	assert.Equal(t, "UTC", me["timezone"])
}

func TestRegister_Validation(t *testing.T) {
	s := newTestServer(t)

	missingConsent := registration("a@b.com", "US")
	missingConsent["mandatoryConsents"] = gin.H{"healthData": true, "dataTransfer": true, "terms": true}

	badEmail := registration("nope", "US")
	shortPassword := registration("a@b.com", "US")
	shortPassword["password"] = "short"
	badCountry := registration("a@b.com", "USA")

	for name, body := range map[string]gin.H{
		"consent":  missingConsent,
		"email":    badEmail,
		"password": shortPassword,
		"country":  badCountry,
	} {
		w := s.do(http.MethodPost, "/api/auth/register", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, name)
		assert.NotEmpty(t, decode(t, w)["requestID"], name)
	}

	assert.Zero(t, s.mailer.count())
}

func TestRegister_DuplicateEmail(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/auth/register", registration("a@b.com", "US"))
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodPost, "/api/auth/register", registration("A@B.com", "US"))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRegister_ConsentDefaults(t *testing.T) {
	cases := map[string]struct {
		country string
		want    map[string]bool
	}{
		"eu user": {"DE", map[string]bool{"marketing_emails": false, "product_updates": false, "data_research": false}},
		"us user": {"US", map[string]bool{"marketing_emails": true, "product_updates": true, "data_research": true}},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			s := newTestServer(t)

			w := s.do(http.MethodPost, "/api/auth/register", registration("a@b.com", tc.country))
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())

			var recs []model.Consent
			require.NoError(t, s.deps.DB.Order("id").Find(&recs).Error)
			require.Len(t, recs, 7)

			for _, r := range recs {
				assert.Equal(t, "2025-01", r.LegalVersion)
				assert.Equal(t, "192.0.2.1", r.IPAddress)

				if r.Mandatory {
					assert.True(t, r.Accepted, r.Type)
					continue
				}

				assert.Equal(t, tc.want[r.Type], r.Accepted, r.Type)
			}
		})
	}
}

func TestRegister_MailFailureKeepsAccount(t *testing.T) {
	s := newTestServer(t)
	s.mailer.err = errors.New("smtp down")

	w := s.do(http.MethodPost, "/api/auth/register", registration("a@b.com", "US"))
	require.Equal(t, http.StatusOK, w.Code)

	var n int64
	require.NoError(t, s.deps.DB.Model(&model.OneTimeToken{}).Count(&n).Error)
	assert.Zero(t, n)

	// a new link can be requested once mail works again
	s.mailer.err = nil

	w = s.do(http.MethodPost, "/api/auth/verify/resend", gin.H{"email": "a@b.com"})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/api/auth/verify?token="+s.mailer.lastToken(t, "a@b.com"), nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestResendVerification_DoesNotRevealAccounts(t *testing.T) {
	s := newTestServer(t)
	s.registerAndLogin(t, "verified@b.com")
	sent := s.mailer.count()

	known := s.do(http.MethodPost, "/api/auth/verify/resend", gin.H{"email": "verified@b.com"})
	unknown := s.do(http.MethodPost, "/api/auth/verify/resend", gin.H{"email": "nobody@b.com"})

	assert.Equal(t, http.StatusOK, known.Code)
	assert.Equal(t, known.Body.String(), unknown.Body.String())
	assert.Equal(t, sent, s.mailer.count())
}

func TestGuard_ProtectedEndpoints(t *testing.T) {
	s := newTestServer(t)

	for _, p := range []string{"/api/auth/me", "/api/privacy/consents"} {
		w := s.do(http.MethodGet, p, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, p)
	}

	w := s.do(http.MethodPost, "/api/consent/record", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	tampered := &http.Cookie{Name: "arc_session", Value: "eyJhbGciOiJIUzI1NiJ9.e30.c2lnbmF0dXJl"}
	w = s.do(http.MethodGet, "/api/auth/me", nil, tampered)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// pages redirect to the login page
	w = s.do(http.MethodGet, "/account/settings", nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
}

func TestMe_UserGone(t *testing.T) {
	s := newTestServer(t)

	token, err := s.deps.Sessions.Issue(security.SessionClaims{UserID: "u1", EmailVerified: true}, time.Hour)
	require.NoError(t, err)

	w := s.do(http.MethodGet, "/api/auth/me", nil, &http.Cookie{Name: "arc_session", Value: token})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConsents_ListAndRecord(t *testing.T) {
	s := newTestServer(t)
	cookie := s.registerAndLogin(t, "a@b.com")

	w := s.do(http.MethodPost, "/api/consent/record", nil, cookie)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(http.MethodGet, "/api/privacy/consents", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)

	var res struct {
		Consents []model.Consent `json:"consents"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Len(t, res.Consents, 8)

	for i := 1; i < len(res.Consents); i++ {
		assert.False(t, res.Consents[i].Timestamp.Before(res.Consents[i-1].Timestamp))
	}

	last := res.Consents[len(res.Consents)-1]
	assert.Equal(t, "health_data_processing", last.Type)
	assert.True(t, last.Accepted)

	// another user sees only their own records
	other := s.registerAndLogin(t, "c@d.com")
	w = s.do(http.MethodGet, "/api/privacy/consents", nil, other)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Len(t, res.Consents, 7)
}

func TestLogout(t *testing.T) {
	s := newTestServer(t)

	// without a session
	w := s.do(http.MethodPost, "/api/auth/logout", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true}`, w.Body.String())

	cookie := s.registerAndLogin(t, "a@b.com")

	w = s.do(http.MethodPost, "/api/auth/logout", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)

	cleared := sessionCookie(t, w)
	assert.Empty(t, cleared.Value)
	assert.Negative(t, cleared.MaxAge)
}

func TestPasswordReset(t *testing.T) {
	s := newTestServer(t)
	s.registerAndLogin(t, "a@b.com")

	known := s.do(http.MethodPost, "/api/auth/reset-request", gin.H{"email": "a@b.com"})
	unknown := s.do(http.MethodPost, "/api/auth/reset-request", gin.H{"email": "nobody@b.com"})
	assert.Equal(t, http.StatusOK, known.Code)
	assert.Equal(t, known.Body.String(), unknown.Body.String())

	token := s.mailer.lastToken(t, "a@b.com")

	// unknown tokens are rejected
	w := s.do(http.MethodPatch, "/api/auth/reset-confirm", gin.H{"token": strings.Repeat("0", 64), "newPassword": "brand new secret"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPatch, "/api/auth/reset-confirm", gin.H{"token": token, "newPassword": "short"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPatch, "/api/auth/reset-confirm", gin.H{"token": token, "newPassword": "brand new secret"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodPatch, "/api/auth/reset-confirm", gin.H{"token": token, "newPassword": "another secret"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/api/auth/login", gin.H{"email": "a@b.com", "password": "correct horse"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/api/auth/login", gin.H{"email": "a@b.com", "password": "brand new secret"})
	assert.Equal(t, http.StatusOK, w.Code)
}

var errInjected = errors.New("injected write failure")

// failWrites makes every create or update on table fail while the returned
// flag is set
func (s *testServer) failWrites(t *testing.T, op, table string) *atomic.Bool {
	t.Helper()

	var on atomic.Bool
	on.Store(true)

	fn := func(db *gorm.DB) {
		if on.Load() && db.Statement.Table == table {
			db.AddError(errInjected)
		}
	}

	cb := s.deps.DB.Callback()
	name := "test:fail_" + op + "_" + table

	switch op {
	case "create":
		require.NoError(t, cb.Create().Before("gorm:create").Register(name, fn))
	case "update":
		require.NoError(t, cb.Update().Before("gorm:update").Register(name, fn))
	default:
		t.Fatalf("unknown op %s", op)
	}

	return &on
}

func (s *testServer) count(t *testing.T, m any) int64 {
	t.Helper()

	var n int64
	require.NoError(t, s.deps.DB.Model(m).Count(&n).Error)
	return n
}

func TestRegister_ConsentFailureRollsBackAccount(t *testing.T) {
	s := newTestServer(t)
	failing := s.failWrites(t, "create", "consents")

	w := s.do(http.MethodPost, "/api/auth/register", registration("a@b.com", "US"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Zero(t, s.count(t, &model.User{}))
	assert.Zero(t, s.count(t, &model.Consent{}))
	assert.Zero(t, s.mailer.count())

	// the address is still free
	failing.Store(false)

	w = s.do(http.MethodPost, "/api/auth/register", registration("a@b.com", "US"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 1, s.count(t, &model.User{}))
	assert.EqualValues(t, 7, s.count(t, &model.Consent{}))
	assert.Equal(t, 1, s.mailer.count())
}

func TestVerify_UserUpdateFailureKeepsToken(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/api/auth/register", registration("a@b.com", "US"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	token := s.mailer.lastToken(t, "a@b.com")

	failing := s.failWrites(t, "update", "users")

	w = s.do(http.MethodGet, "/api/auth/verify?token="+token, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var tok model.OneTimeToken
	require.NoError(t, s.deps.DB.First(&tok).Error)
	assert.False(t, tok.Used)

	failing.Store(false)

	w = s.do(http.MethodGet, "/api/auth/verify?token="+token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodPost, "/api/auth/login", gin.H{"email": "a@b.com", "password": "correct horse"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestResetConfirm_PasswordFailureKeepsToken(t *testing.T) {
	s := newTestServer(t)
	s.registerAndLogin(t, "a@b.com")

	w := s.do(http.MethodPost, "/api/auth/reset-request", gin.H{"email": "a@b.com"})
	require.Equal(t, http.StatusOK, w.Code)
	token := s.mailer.lastToken(t, "a@b.com")

	failing := s.failWrites(t, "update", "users")

	body := gin.H{"token": token, "newPassword": "brand new secret"}
	w = s.do(http.MethodPatch, "/api/auth/reset-confirm", body)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	failing.Store(false)

	w = s.do(http.MethodPost, "/api/auth/login", gin.H{"email": "a@b.com", "password": "correct horse"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodPatch, "/api/auth/reset-confirm", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodPost, "/api/auth/login", gin.H{"email": "a@b.com", "password": "brand new secret"})
	assert.Equal(t, http.StatusOK, w.Code)
}
