package account

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateAccount(ctx context.Context, a *Account) (*Account, error) {
	a.ID = uuid.NewString()
	query := `INSERT INTO accounts (id, username, email, password) VALUES ($1, $2, $3, $4)
	          RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query, a.ID, a.Username, a.Email, a.Password).Scan(&a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ByUsername returns the account, or nil when no such user exists.
func (r *Repository) ByUsername(ctx context.Context, username string) (*Account, error) {
	a := &Account{}
	query := `SELECT id, username, email, password, created_at FROM accounts WHERE username = $1`

	err := r.db.QueryRowContext(ctx, query, username).
		Scan(&a.ID, &a.Username, &a.Email, &a.Password, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

func (r *Repository) ByID(ctx context.Context, id string) (*Account, error) {
	a := &Account{}
	query := `SELECT id, username, email, created_at FROM accounts WHERE id = $1`

	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&a.ID, &a.Username, &a.Email, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

func (r *Repository) SearchAccounts(ctx context.Context, query string) ([]Account, error) {
	// Limited to 10 to keep it fast
	q := `SELECT id, username FROM accounts WHERE username ILIKE $1 LIMIT 10`
	rows, err := r.db.QueryContext(ctx, q, "%"+query+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Username); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// BlockExists reports whether userID has blocked blockedID.
func (r *Repository) BlockExists(ctx context.Context, userID, blockedID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM blocked_users WHERE user_id = $1 AND blocked_user_id = $2)`
	err := r.db.QueryRowContext(ctx, query, userID, blockedID).Scan(&exists)
	return exists, err
}
