// Package httpapi exposes the account operations over HTTP/JSON.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/authz"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/server/services"
	"github.com/gorilla/mux"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 16

// AccountService is the coordinator the handlers delegate to.
type AccountService interface {
	Register(ctx context.Context, in services.RegisterInput) (*services.AuthResult, error)
	Authenticate(ctx context.Context, email, password string) (*services.AuthResult, error)
	Deactivate(ctx context.Context, principal *authz.Principal, email string) error
}

// AccountReader loads the account behind the current principal for /me.
type AccountReader interface {
	FindActiveByEmail(ctx context.Context, email string) (*models.Account, error)
}

type Handlers struct {
	accounts AccountService
	reader   AccountReader
	logger   logging.Logger
}

func NewHandlers(accounts AccountService, reader AccountReader, logger logging.Logger) *Handlers {
	return &Handlers{accounts: accounts, reader: reader, logger: logger.With("module", "httpapi")}
}

func (h *Handlers) RegisterRoutes(router *mux.Router) {
	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/auth/register", h.register).Methods(http.MethodPost)
	api.HandleFunc("/auth/authenticate", h.authenticate).Methods(http.MethodPost)
	api.HandleFunc("/users/me", h.me).Methods(http.MethodGet)
	api.HandleFunc("/users/delete", h.deleteUser).Methods(http.MethodDelete)

	router.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
}

// register handles POST /api/v1/auth/register
func (h *Handlers) register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.accounts.Register(r.Context(), services.RegisterInput{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Email:       req.Email,
		Password:    req.Password,
		Username:    req.Username,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse(res))
}

// authenticate handles POST /api/v1/auth/authenticate
func (h *Handlers) authenticate(w http.ResponseWriter, r *http.Request) {
	var req AuthenticateRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.accounts.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse(res))
}

// me handles GET /api/v1/users/me
func (h *Handlers) me(w http.ResponseWriter, r *http.Request) {
	p, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated"})
		return
	}

	resp := MeResponse{Subject: p.Subject, Role: string(p.Role), Authorities: make([]string, 0, len(p.Authorities))}
	for _, a := range p.Authorities {
		resp.Authorities = append(resp.Authorities, string(a))
	}

	account, err := h.reader.FindActiveByEmail(r.Context(), p.Subject)
	switch {
	case err == nil:
		resp.Account = viewOf(account)
	case errors.Is(err, common.ErrorNotFound):
	default:
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// deleteUser handles DELETE /api/v1/users/delete
func (h *Handlers) deleteUser(w http.ResponseWriter, r *http.Request) {
	var req DeleteRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	p, _ := authz.PrincipalFromContext(r.Context())
	if err := h.accounts.Deactivate(r.Context(), p, req.Email); err != nil {
		if errors.Is(err, common.ErrorAccountNotFound) {
			writeJSON(w, http.StatusNotFound, DeleteResponse{Error: "account not found: " + req.Email})
			return
		}
		status, msg := statusFor(err)
		h.logFailure(r, status, err)
		writeJSON(w, status, DeleteResponse{Error: msg})
		return
	}

	writeJSON(w, http.StatusOK, DeleteResponse{Message: "account deactivated: " + req.Email})
}

func (h *Handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	h.logFailure(r, status, err)

	body := ErrorResponse{Error: msg}
	var verr *validationError
	if errors.As(err, &verr) {
		body.Fields = verr.fields
	}
	writeJSON(w, status, body)
}

func (h *Handlers) logFailure(r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		h.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		return
	}
	h.logger.Debug(r.Context(), "request rejected", "path", r.URL.Path, "status", status, "error", err)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &validationError{fields: map[string]string{"body": "is not valid JSON"}}
	}
	return validateStruct(dst)
}

func authResponse(res *services.AuthResult) AuthResponse {
	exp := res.ExpiresAt
	return AuthResponse{Token: res.Token, ExpiresAt: &exp, Account: viewOf(res.Account)}
}
