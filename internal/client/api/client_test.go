package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/gatekeeper/internal/server/httpapi"
)

func TestAuthenticate_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/auth/authenticate", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))

		var req httpapi.AuthenticateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "a@b.io", req.Email)
		assert.Equal(t, "pw", req.Password)

		_ = json.NewEncoder(w).Encode(httpapi.AuthResponse{Token: "tok"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "", time.Second)
	resp, err := c.Authenticate(context.Background(), "a@b.io", "pw")
	require.NoError(t, err)
	assert.Equal(t, "tok", resp.Token)
}

func TestMe_SendsBearer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(httpapi.MeResponse{Subject: "a@b.io", Role: "USER"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", time.Second)
	me, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a@b.io", me.Subject)
}

func TestDelete_SendsEmailBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/v1/users/delete", r.URL.Path)
		var req httpapi.DeleteRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "x@y.io", req.Email)
		_ = json.NewEncoder(w).Encode(httpapi.DeleteResponse{Message: "deleted"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", time.Second)
	resp, err := c.Delete(context.Background(), "x@y.io")
	require.NoError(t, err)
	assert.Equal(t, "deleted", resp.Message)
}

func TestErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
		unauth  bool
	}{
		{"unauthenticated", http.StatusUnauthorized, `{"error":"unauthenticated"}`, "unauthenticated", true},
		{"validation", http.StatusBadRequest, `{"error":"validation failed","fields":{"email":"email"}}`, "validation failed (email: email)", false},
		{"plain text", http.StatusBadGateway, "upstream down\n", "upstream down", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, "", time.Second).Me(context.Background())
			var ae *APIError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, tt.status, ae.Status)
			assert.Equal(t, tt.wantMsg, ae.Message)
			assert.Equal(t, tt.unauth, IsUnauthenticated(err))
		})
	}
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, "", time.Second).Me(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request GET /api/v1/users/me")
}
