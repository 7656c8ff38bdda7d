package postgresql

import (
	"context"
	"database/sql"
	"errors"

	"github.com/beaconops/flock/pkg/models"
	"github.com/beaconops/flock/pkg/persistence"
)

// AccountRepository handles account database operations.
type AccountRepository struct {
	db *sql.DB
}

const accountColumns = `id, username, group_id, status, proxy_url, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (*models.Account, error) {
	var (
		account  models.Account
		groupID  sql.NullString
		proxyURL sql.NullString
	)

	err := row.Scan(
		&account.ID,
		&account.Username,
		&groupID,
		&account.Status,
		&proxyURL,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	account.GroupID = groupID.String
	account.ProxyURL = proxyURL.String

	return &account, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)

	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewStoreError("GetByID", "account", id, persistence.ErrAccountNotFound)
	}

	if err != nil {
		return nil, persistence.NewStoreError("GetByID", "account", id, err)
	}

	return account, nil
}

func (r *AccountRepository) Save(ctx context.Context, account *models.Account) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			group_id = EXCLUDED.group_id,
			status = EXCLUDED.status,
			proxy_url = EXCLUDED.proxy_url,
			updated_at = EXCLUDED.updated_at`,
		account.ID,
		account.Username,
		nullString(account.GroupID),
		account.Status,
		nullString(account.ProxyURL),
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		return persistence.NewStoreError("Save", "account", account.ID, err)
	}

	return nil
}

func (r *AccountRepository) ByGroup(ctx context.Context, groupID string) ([]*models.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE group_id = $1 ORDER BY username`, groupID)
	if err != nil {
		return nil, persistence.NewStoreError("ByGroup", "account", groupID, err)
	}
	defer rows.Close()

	accounts := make([]*models.Account, 0)

	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, persistence.NewStoreError("ByGroup", "account", groupID, err)
		}

		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError("ByGroup", "account", groupID, err)
	}

	return accounts, nil
}
