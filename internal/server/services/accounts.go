// Package services contains server-side business logic. This file implements
// AccountService, which registers and authenticates accounts, issues bearer
// tokens and handles deactivation.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/auth"
	"github.com/dmitrijs2005/gatekeeper/internal/server/authz"
	"github.com/dmitrijs2005/gatekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/repomanager"
)

// RegisterInput carries the fields accepted on registration.
type RegisterInput struct {
	FirstName   string
	LastName    string
	Email       string
	Password    string
	Username    string
	PhoneNumber string
}

// AuthResult is returned by Register and Authenticate.
type AuthResult struct {
	Token     string
	ExpiresAt time.Time
	Account   *models.Account
}

// TokenIssuer is the part of auth.TokenService the coordinator needs.
type TokenIssuer interface {
	Issue(subject string, role models.Role, extra map[string]any) (string, error)
	Claims(token string) (*auth.Claims, error)
}

// fallbackDummyHash is a bcrypt hash (cost 10) of a throwaway password, used
// when the configured hasher cannot produce one at startup.
const fallbackDummyHash = "$2b$10$F63sTYZJR4Em6MFaxbI3..NSD73jGA.ZSrkxyfWG.DnD.iZ3EK0ni"

type AccountService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	hasher      auth.PasswordHasher
	tokens      TokenIssuer
	logger      logging.Logger
	metrics     *metrics.Metrics

	// dummyHash is compared against when the account does not exist so both
	// failure paths spend one hash comparison.
	dummyHash string
}

func NewAccountService(db *sql.DB, m repomanager.RepositoryManager, hasher auth.PasswordHasher,
	tokens TokenIssuer, logger logging.Logger, mx *metrics.Metrics) *AccountService {
	logger = logger.With("module", "accounts")

	dummy, err := hasher.Hash("not-a-real-password")
	if err != nil || dummy == "" {
		logger.Warn(context.Background(), "dummy hash unavailable, using fallback", "error", err)
		dummy = fallbackDummyHash
	}

	return &AccountService{
		db:          db,
		repomanager: m,
		hasher:      hasher,
		tokens:      tokens,
		logger:      logger,
		metrics:     mx,
		dummyHash:   dummy,
	}
}

// NormalizeEmail is the canonical form under which emails are stored and
// compared.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an active USER account and returns a token for it.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Email = NormalizeEmail(in.Email)
	if isBlank(in.FirstName) || isBlank(in.LastName) || in.Email == "" || in.Password == "" {
		s.metrics.RecordAccountOp("register", metrics.ResultInvalidInput)
		return nil, fmt.Errorf("%w: first name, last name, email and password are required", common.ErrorInvalidInput)
	}

	repo := s.repomanager.Accounts(s.db)

	_, err := repo.FindActiveByEmail(ctx, in.Email)
	switch {
	case err == nil:
		s.metrics.RecordAccountOp("register", metrics.ResultDuplicate)
		return nil, fmt.Errorf("%w: %s", common.ErrorDuplicateAccount, in.Email)
	case !errors.Is(err, common.ErrorNotFound):
		s.metrics.RecordAccountOp("register", metrics.ResultError)
		return nil, fmt.Errorf("error searching account: %w", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		s.metrics.RecordAccountOp("register", resultFor(err))
		return nil, err
	}

	account, err := repo.Create(ctx, &models.Account{
		Username:     strings.TrimSpace(in.Username),
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		PhoneNumber:  strings.TrimSpace(in.PhoneNumber),
		Email:        in.Email,
		PasswordHash: hash,
		Role:         models.RoleUser,
		Active:       true,
	})
	if err != nil {
		s.metrics.RecordAccountOp("register", resultFor(err))
		if errors.Is(err, common.ErrorDuplicateAccount) {
			return nil, err
		}
		return nil, fmt.Errorf("error creating account: %w", err)
	}

	res, err := s.issue(account)
	if err != nil {
		s.metrics.RecordAccountOp("register", metrics.ResultError)
		return nil, err
	}

	s.logger.Info(ctx, "account registered", "account_id", account.ID, "email", account.Email)
	s.metrics.RecordAccountOp("register", metrics.ResultSuccess)
	return res, nil
}

// Authenticate checks email and password and issues a token. Unknown email
// and wrong password fail with distinct errors that callers must present
// identically.
func (s *AccountService) Authenticate(ctx context.Context, email, password string) (*AuthResult, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		s.metrics.RecordAccountOp("authenticate", metrics.ResultInvalidInput)
		return nil, fmt.Errorf("%w: email and password are required", common.ErrorInvalidInput)
	}

	repo := s.repomanager.Accounts(s.db)
	account, err := repo.FindActiveByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.hasher.Matches(password, s.dummyHash)
			s.logger.Info(ctx, "authentication failed: no active account", "email", email)
			s.metrics.RecordAccountOp("authenticate", metrics.ResultBadCredentials)
			return nil, common.ErrorAccountNotFound
		}
		s.metrics.RecordAccountOp("authenticate", metrics.ResultError)
		return nil, fmt.Errorf("error searching account: %w", err)
	}

	if !s.hasher.Matches(password, account.PasswordHash) {
		s.logger.Info(ctx, "authentication failed: password mismatch", "email", email)
		s.metrics.RecordAccountOp("authenticate", metrics.ResultBadCredentials)
		return nil, common.ErrorInvalidCredentials
	}

	res, err := s.issue(account)
	if err != nil {
		s.metrics.RecordAccountOp("authenticate", metrics.ResultError)
		return nil, err
	}

	s.metrics.RecordAccountOp("authenticate", metrics.ResultSuccess)
	return res, nil
}

// Deactivate soft-deletes the active account for email and queues a cleanup
// notification for downstream services, both in one transaction. Only the
// owner or a holder of AuthorityDeactivateAny may do this.
func (s *AccountService) Deactivate(ctx context.Context, principal *authz.Principal, email string) error {
	email = NormalizeEmail(email)
	if email == "" {
		s.metrics.RecordAccountOp("deactivate", metrics.ResultInvalidInput)
		return fmt.Errorf("%w: email is required", common.ErrorInvalidInput)
	}

	self := principal != nil && principal.Subject == email && principal.HasAuthority(models.AuthorityDeactivateSelf)
	if !self && !principal.HasAuthority(models.AuthorityDeactivateAny) {
		s.metrics.RecordAccountOp("deactivate", metrics.ResultForbidden)
		return common.ErrorForbidden
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Accounts(tx).Deactivate(ctx, email); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrorAccountNotFound
			}
			return fmt.Errorf("error deactivating account: %w", err)
		}
		if _, err := s.repomanager.Outbox(tx).Enqueue(ctx, models.EventAccountDeactivated, email); err != nil {
			return fmt.Errorf("error queueing cleanup event: %w", err)
		}
		return nil
	})
	if err != nil {
		s.metrics.RecordAccountOp("deactivate", resultFor(err))
		return err
	}

	s.logger.Info(ctx, "account deactivated", "email", email, "by", principal.Subject)
	s.metrics.RecordAccountOp("deactivate", metrics.ResultSuccess)
	return nil
}

func (s *AccountService) issue(a *models.Account) (*AuthResult, error) {
	token, err := s.tokens.Issue(a.Email, a.Role, nil)
	if err != nil {
		return nil, fmt.Errorf("error issuing token: %w", err)
	}
	claims, err := s.tokens.Claims(token)
	if err != nil {
		return nil, fmt.Errorf("error reading issued token: %w", err)
	}
	s.metrics.RecordTokenIssued()
	return &AuthResult{Token: token, ExpiresAt: claims.ExpiresAt, Account: a}, nil
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func resultFor(err error) string {
	switch {
	case errors.Is(err, common.ErrorInvalidInput):
		return metrics.ResultInvalidInput
	case errors.Is(err, common.ErrorDuplicateAccount):
		return metrics.ResultDuplicate
	case errors.Is(err, common.ErrorAccountNotFound):
		return metrics.ResultNotFound
	case errors.Is(err, common.ErrorForbidden):
		return metrics.ResultForbidden
	default:
		return metrics.ResultError
	}
}
