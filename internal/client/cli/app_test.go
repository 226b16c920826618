package cli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/gatekeeper/internal/client/api"
	"github.com/dmitrijs2005/gatekeeper/internal/client/config"
	"github.com/dmitrijs2005/gatekeeper/internal/server/httpapi"
)

type fakeAPI struct {
	registered httpapi.RegisterRequest
	authEmail  string
	authPass   string
	deleted    string
	meCalls    int

	authResp *httpapi.AuthResponse
	meResp   *httpapi.MeResponse
	err      error
}

func (f *fakeAPI) Register(_ context.Context, req httpapi.RegisterRequest) (*httpapi.AuthResponse, error) {
	f.registered = req
	return f.authResp, f.err
}

func (f *fakeAPI) Authenticate(_ context.Context, email, password string) (*httpapi.AuthResponse, error) {
	f.authEmail, f.authPass = email, password
	return f.authResp, f.err
}

func (f *fakeAPI) Me(context.Context) (*httpapi.MeResponse, error) {
	f.meCalls++
	return f.meResp, f.err
}

func (f *fakeAPI) Delete(_ context.Context, email string) (*httpapi.DeleteResponse, error) {
	f.deleted = email
	if f.err != nil {
		return nil, f.err
	}
	return &httpapi.DeleteResponse{Message: "account deactivated: " + email}, nil
}

func stubPassword(t *testing.T, pw string) {
	t.Helper()
	old := readPassword
	t.Cleanup(func() { readPassword = old })
	readPassword = func(int) ([]byte, error) { return []byte(pw), nil }
}

func newTestApp(f *fakeAPI, token string, input string) (*App, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return &App{
		config: &config.Config{ServerURL: "http://test", Token: token},
		api:    f,
		reader: bufio.NewReader(strings.NewReader(input)),
		out:    out,
	}, out
}

func TestRun_Usage(t *testing.T) {
	a, _ := newTestApp(&fakeAPI{}, "", "")

	require.ErrorIs(t, a.Run(context.Background(), nil), ErrUsage)
	require.ErrorIs(t, a.Run(context.Background(), []string{"-a", "http://x"}), ErrUsage)
	require.ErrorIs(t, a.Run(context.Background(), []string{"frobnicate"}), ErrUsage)
	require.ErrorIs(t, a.Run(context.Background(), []string{"delete"}), ErrUsage)
}

func TestRegister(t *testing.T) {
	stubPassword(t, "pw")
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	f := &fakeAPI{authResp: &httpapi.AuthResponse{Token: "tok", ExpiresAt: &exp}}
	a, out := newTestApp(f, "", "a@b.io\nAda\nLovelace\n\n+371\n")

	require.NoError(t, a.Run(context.Background(), []string{"register"}))

	assert.Equal(t, httpapi.RegisterRequest{
		Email: "a@b.io", FirstName: "Ada", LastName: "Lovelace", PhoneNumber: "+371", Password: "pw",
	}, f.registered)
	assert.Contains(t, out.String(), "Account registered")
	assert.Contains(t, out.String(), "token: tok")
	assert.Contains(t, out.String(), "expires: 2030-01-01T00:00:00Z")
}

func TestLogin(t *testing.T) {
	stubPassword(t, "pw")
	f := &fakeAPI{authResp: &httpapi.AuthResponse{Token: "tok"}}
	a, out := newTestApp(f, "", "a@b.io\n")

	require.NoError(t, a.Run(context.Background(), []string{"-a", "http://x", "login"}))
	assert.Equal(t, "a@b.io", f.authEmail)
	assert.Equal(t, "pw", f.authPass)
	assert.Contains(t, out.String(), "token: tok")
}

func TestLogin_APIError(t *testing.T) {
	stubPassword(t, "bad")
	f := &fakeAPI{err: &api.APIError{Status: 401, Message: "credentials incorrect"}}
	a, out := newTestApp(f, "", "a@b.io\n")

	err := a.Run(context.Background(), []string{"login"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credentials incorrect")
	assert.NotContains(t, out.String(), "token:")
}

func TestWhoAmI(t *testing.T) {
	f := &fakeAPI{meResp: &httpapi.MeResponse{
		Subject:     "a@b.io",
		Role:        "USER",
		Authorities: []string{"profile:read", "account:delete:self"},
		Account:     &httpapi.AccountView{ID: "id-1", FirstName: "Ada", LastName: "Lovelace"},
	}}
	a, out := newTestApp(f, "tok", "")

	require.NoError(t, a.Run(context.Background(), []string{"whoami"}))
	assert.Contains(t, out.String(), "subject:     a@b.io")
	assert.Contains(t, out.String(), "profile:read, account:delete:self")
	assert.Contains(t, out.String(), "Ada Lovelace")
}

func TestProtectedCommandsNeedToken(t *testing.T) {
	f := &fakeAPI{}
	a, _ := newTestApp(f, "", "")

	require.Error(t, a.Run(context.Background(), []string{"whoami"}))
	require.Error(t, a.Run(context.Background(), []string{"delete", "a@b.io"}))
	assert.Zero(t, f.meCalls)
	assert.Empty(t, f.deleted)
}

func TestDelete(t *testing.T) {
	f := &fakeAPI{}
	a, out := newTestApp(f, "tok", "")

	require.NoError(t, a.Run(context.Background(), []string{"-t", "tok", "delete", "x@y.io"}))
	assert.Equal(t, "x@y.io", f.deleted)
	assert.Contains(t, out.String(), "account deactivated: x@y.io")

	f.err = errors.New("forbidden")
	require.Error(t, a.Run(context.Background(), []string{"delete", "z@y.io"}))
}
