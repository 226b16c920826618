package httpapi

import (
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
)

type RegisterRequest struct {
	Username    string `json:"username" validate:"omitempty,max=64"`
	FirstName   string `json:"firstName" validate:"required,max=128"`
	LastName    string `json:"lastName" validate:"required,max=128"`
	PhoneNumber string `json:"phoneNumber" validate:"omitempty,max=32"`
	Email       string `json:"email" validate:"required,email,max=254"`
	Password    string `json:"password" validate:"required,max=72"`
}

type AuthenticateRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type DeleteRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// AccountView is the public projection of an account. It never carries the
// password hash.
type AccountView struct {
	ID          string `json:"id"`
	Username    string `json:"username,omitempty"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Email       string `json:"email"`
	Role        string `json:"role"`
}

type AuthResponse struct {
	Token     string       `json:"token,omitempty"`
	ExpiresAt *time.Time   `json:"expiresAt,omitempty"`
	Error     string       `json:"error,omitempty"`
	Account   *AccountView `json:"account,omitempty"`
}

type MeResponse struct {
	Subject     string       `json:"subject"`
	Role        string       `json:"role"`
	Authorities []string     `json:"authorities"`
	Account     *AccountView `json:"account,omitempty"`
}

type DeleteResponse struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func viewOf(a *models.Account) *AccountView {
	if a == nil {
		return nil
	}
	return &AccountView{
		ID:          a.ID,
		Username:    a.Username,
		FirstName:   a.FirstName,
		LastName:    a.LastName,
		PhoneNumber: a.PhoneNumber,
		Email:       a.Email,
		Role:        string(a.Role),
	}
}
