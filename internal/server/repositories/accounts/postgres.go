package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) FindActiveByEmail(ctx context.Context, email string) (*models.Account, error) {
	query :=
		`SELECT id, username, first_name, last_name, phone_number, email, password_hash, role, active, created_at, updated_at
		 FROM accounts
		 WHERE email = $1 AND active
		 `

	a := &models.Account{}
	var role string
	err := r.db.QueryRowContext(ctx, query, email).Scan(
		&a.ID, &a.Username, &a.FirstName, &a.LastName, &a.PhoneNumber,
		&a.Email, &a.PasswordHash, &role, &a.Active, &a.CreatedAt, &a.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	parsed, ok := models.ParseRole(role)
	if !ok {
		return nil, fmt.Errorf("db error: account %s has unknown role %q", a.ID, role)
	}
	a.Role = parsed

	return a, nil
}

func (r *PostgresRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}

	query :=
		`INSERT INTO accounts (id, username, first_name, last_name, phone_number, email, password_hash, role, active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at, updated_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		account.ID, account.Username, account.FirstName, account.LastName, account.PhoneNumber,
		account.Email, account.PasswordHash, string(account.Role), account.Active,
	).Scan(&account.CreatedAt, &account.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, fmt.Errorf("%w: %s", common.ErrorDuplicateAccount, account.Email)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return account, nil
}

func (r *PostgresRepository) Deactivate(ctx context.Context, email string) error {
	query :=
		`UPDATE accounts SET active = FALSE, updated_at = now()
		 WHERE email = $1 AND active
		 `

	res, err := r.db.ExecContext(ctx, query, email)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}

	return nil
}
