package file

import (
	"context"

	"github.com/beaconops/flock/pkg/models"
	"github.com/beaconops/flock/pkg/persistence"
)

// AccountRepository handles account file operations. Accounts are consumed
// read-mostly by the engine; Save exists for seeding and sync.
type AccountRepository struct {
	col *collection
}

func (r *AccountRepository) GetByID(_ context.Context, id string) (*models.Account, error) {
	account, err := readDoc[models.Account](r.col, id)
	if err != nil {
		return nil, persistence.NewStoreError("GetByID", "account", id, err)
	}

	if account == nil {
		return nil, persistence.NewStoreError("GetByID", "account", id, persistence.ErrAccountNotFound)
	}

	return account, nil
}

func (r *AccountRepository) Save(_ context.Context, account *models.Account) error {
	if err := writeDoc(r.col, account.ID, account); err != nil {
		return persistence.NewStoreError("Save", "account", account.ID, err)
	}

	return nil
}

func (r *AccountRepository) ByGroup(_ context.Context, groupID string) ([]*models.Account, error) {
	accounts, err := readAll[models.Account](r.col)
	if err != nil {
		return nil, persistence.NewStoreError("ByGroup", "account", groupID, err)
	}

	matched := make([]*models.Account, 0)

	for _, account := range accounts {
		if account.GroupID == groupID {
			matched = append(matched, account)
		}
	}

	return matched, nil
}
