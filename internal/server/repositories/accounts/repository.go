// Package accounts declares the credential store contract and its
// PostgreSQL implementation.
package accounts

import (
	"context"

	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
)

// Repository is the credential store consumed by the authentication
// coordinator and the request filter.
type Repository interface {
	// FindActiveByEmail returns the active account for email or
	// common.ErrorNotFound.
	FindActiveByEmail(ctx context.Context, email string) (*models.Account, error)

	// Create inserts a new account. A second active account with the same
	// email fails with common.ErrorDuplicateAccount.
	Create(ctx context.Context, account *models.Account) (*models.Account, error)

	// Deactivate soft-deletes the active account for email. The row is kept.
	// Returns common.ErrorNotFound when there is no active account.
	Deactivate(ctx context.Context, email string) error
}
