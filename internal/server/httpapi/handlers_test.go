package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/auth"
	"github.com/dmitrijs2005/gatekeeper/internal/server/authz"
	"github.com/dmitrijs2005/gatekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/server/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeService keeps accounts in memory and issues real tokens.
type fakeService struct {
	tokens   *auth.TokenService
	accounts map[string]*models.Account
	passwds  map[string]string
	err      error

	deactivatedBy *authz.Principal
}

func (f *fakeService) Register(_ context.Context, in services.RegisterInput) (*services.AuthResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	if _, ok := f.accounts[in.Email]; ok {
		return nil, fmt.Errorf("%w: %s", common.ErrorDuplicateAccount, in.Email)
	}
	a := &models.Account{ID: "acc-" + in.Email, FirstName: in.FirstName, LastName: in.LastName, Email: in.Email, Role: models.RoleUser, Active: true, PasswordHash: "secret-hash"}
	f.accounts[in.Email] = a
	f.passwds[in.Email] = in.Password
	return f.issue(a)
}

func (f *fakeService) Authenticate(_ context.Context, email, password string) (*services.AuthResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	a, ok := f.accounts[email]
	if !ok {
		return nil, common.ErrorAccountNotFound
	}
	if f.passwds[email] != password {
		return nil, common.ErrorInvalidCredentials
	}
	return f.issue(a)
}

func (f *fakeService) Deactivate(_ context.Context, p *authz.Principal, email string) error {
	f.deactivatedBy = p
	if f.err != nil {
		return f.err
	}
	a, ok := f.accounts[email]
	if !ok || !a.Active {
		return common.ErrorAccountNotFound
	}
	if p == nil || (p.Subject != email && !p.HasAuthority(models.AuthorityDeactivateAny)) {
		return common.ErrorForbidden
	}
	a.Active = false
	return nil
}

func (f *fakeService) FindActiveByEmail(_ context.Context, email string) (*models.Account, error) {
	a, ok := f.accounts[email]
	if !ok || !a.Active {
		return nil, common.ErrorNotFound
	}
	return a, nil
}

func (f *fakeService) issue(a *models.Account) (*services.AuthResult, error) {
	tok, err := f.tokens.Issue(a.Email, a.Role, nil)
	if err != nil {
		return nil, err
	}
	return &services.AuthResult{Token: tok, ExpiresAt: time.Now().Add(f.tokens.Lifetime()), Account: a}, nil
}

type testEnv struct {
	handler http.Handler
	svc     *fakeService
	metrics *metrics.Metrics
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	tokens, err := auth.NewTokenService(auth.TokenConfig{Key: []byte("0123456789abcdef0123456789abcdef"), Lifetime: time.Hour})
	require.NoError(t, err)

	svc := &fakeService{tokens: tokens, accounts: map[string]*models.Account{}, passwds: map[string]string{}}
	m := metrics.NewMetrics(prometheus.NewRegistry())
	filter := authz.NewFilter("http", tokens, svc, logging.Nop{}, m)
	h := NewHandlers(svc, svc, logging.Nop{})

	return &testEnv{handler: NewRouter(h, filter, DefaultPolicy("gatekeeper"), m), svc: svc, metrics: m}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

var annRegister = RegisterRequest{FirstName: "Ann", LastName: "Lee", Email: "ann@x.com", Password: "pw1"}

func TestRegister_ReturnsTokenAndAccount(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/v1/auth/register", "", annRegister)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeBody[AuthResponse](t, rec)
	assert.NotEmpty(t, resp.Token)
	require.NotNil(t, resp.Account)
	assert.Equal(t, "ann@x.com", resp.Account.Email)
	assert.Equal(t, "USER", resp.Account.Role)
	assert.NotContains(t, rec.Body.String(), "secret-hash")
}

func TestRegister_DuplicateIs409WithEmail(t *testing.T) {
	e := newEnv(t)
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/api/v1/auth/register", "", annRegister).Code)

	rec := e.do(t, http.MethodPost, "/api/v1/auth/register", "", annRegister)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, decodeBody[ErrorResponse](t, rec).Error, "ann@x.com")
}

func TestRegister_ValidationErrors(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/v1/auth/register", "", RegisterRequest{Email: "not-an-email", Password: "pw"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "is required", body.Fields["firstName"])
	assert.Equal(t, "must be a valid email address", body.Fields["email"])

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader("{"))
	raw := httptest.NewRecorder()
	e.handler.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestAuthenticate_FailuresLookIdentical(t *testing.T) {
	e := newEnv(t)
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/api/v1/auth/register", "", annRegister).Code)

	unknown := e.do(t, http.MethodPost, "/api/v1/auth/authenticate", "", AuthenticateRequest{Email: "nobody@x.com", Password: "pw1"})
	wrong := e.do(t, http.MethodPost, "/api/v1/auth/authenticate", "", AuthenticateRequest{Email: "ann@x.com", Password: "nope"})

	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, unknown.Code, wrong.Code)
	assert.Equal(t, unknown.Body.String(), wrong.Body.String())
	assert.Equal(t, common.CredentialsIncorrect, decodeBody[ErrorResponse](t, wrong).Error)
}

func TestAuthenticate_InternalErrorHidesDetails(t *testing.T) {
	e := newEnv(t)
	e.svc.err = errors.New("db error: password=hunter2 host=db")

	rec := e.do(t, http.MethodPost, "/api/v1/auth/authenticate", "", AuthenticateRequest{Email: "ann@x.com", Password: "pw1"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal error", decodeBody[ErrorResponse](t, rec).Error)
	assert.NotContains(t, rec.Body.String(), "hunter2")
}

func TestMe_RequiresBearer(t *testing.T) {
	e := newEnv(t)
	reg := decodeBody[AuthResponse](t, e.do(t, http.MethodPost, "/api/v1/auth/register", "", annRegister))

	garbage := e.do(t, http.MethodGet, "/api/v1/users/me", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, garbage.Code)
	assert.True(t, strings.HasPrefix(garbage.Header().Get("WWW-Authenticate"), "Bearer"))

	none := e.do(t, http.MethodGet, "/api/v1/users/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, none.Code)

	ok := e.do(t, http.MethodGet, "/api/v1/users/me", reg.Token, nil)
	require.Equal(t, http.StatusOK, ok.Code)
	me := decodeBody[MeResponse](t, ok)
	assert.Equal(t, "ann@x.com", me.Subject)
	assert.Contains(t, me.Authorities, string(models.AuthorityReadProfile))
	require.NotNil(t, me.Account)
	assert.Equal(t, "Ann", me.Account.FirstName)
}

func TestUnknownProtectedPathIsChallenged(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodGet, "/api/v1/does-not-exist", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, `Bearer realm="gatekeeper"`, rec.Header().Get("WWW-Authenticate"))
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	e := newEnv(t)

	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/healthz", "", nil).Code)

	rec := e.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gatekeeper_authz_decisions_total")
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/healthz", "200")))
}

func TestDelete(t *testing.T) {
	e := newEnv(t)
	ann := decodeBody[AuthResponse](t, e.do(t, http.MethodPost, "/api/v1/auth/register", "", annRegister))
	bobReq := annRegister
	bobReq.Email = "bob@x.com"
	bob := decodeBody[AuthResponse](t, e.do(t, http.MethodPost, "/api/v1/auth/register", "", bobReq))

	t.Run("other user is forbidden", func(t *testing.T) {
		rec := e.do(t, http.MethodDelete, "/api/v1/users/delete", bob.Token, DeleteRequest{Email: "ann@x.com"})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("self succeeds", func(t *testing.T) {
		rec := e.do(t, http.MethodDelete, "/api/v1/users/delete", ann.Token, DeleteRequest{Email: "ann@x.com"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Contains(t, decodeBody[DeleteResponse](t, rec).Message, "ann@x.com")
		require.NotNil(t, e.svc.deactivatedBy)
		assert.Equal(t, "ann@x.com", e.svc.deactivatedBy.Subject)
	})

	t.Run("token of deactivated account no longer authenticates", func(t *testing.T) {
		rec := e.do(t, http.MethodGet, "/api/v1/users/me", ann.Token, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown account is 404", func(t *testing.T) {
		rec := e.do(t, http.MethodDelete, "/api/v1/users/delete", bob.Token, DeleteRequest{Email: "ghost@x.com"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
