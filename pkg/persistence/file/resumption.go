package file

import (
	"context"
	"sort"
	"time"

	"github.com/beaconops/flock/pkg/models"
	"github.com/beaconops/flock/pkg/persistence"
)

// ResumptionRepository stores suspended workflow runs awaiting their
// resume deadline.
type ResumptionRepository struct {
	col *collection
}

func (r *ResumptionRepository) Save(_ context.Context, resumption *models.Resumption) error {
	if err := writeDoc(r.col, resumption.ID, resumption); err != nil {
		return persistence.NewStoreError("Save", "resumption", resumption.ID, err)
	}

	return nil
}

func (r *ResumptionRepository) Due(_ context.Context, now time.Time) ([]*models.Resumption, error) {
	resumptions, err := readAll[models.Resumption](r.col)
	if err != nil {
		return nil, persistence.NewStoreError("Due", "resumption", "", err)
	}

	due := make([]*models.Resumption, 0)

	for _, resumption := range resumptions {
		if !resumption.ResumeAt.After(now) {
			due = append(due, resumption)
		}
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].ResumeAt.Before(due[j].ResumeAt)
	})

	return due, nil
}

func (r *ResumptionRepository) Delete(_ context.Context, id string) error {
	if err := deleteDoc(r.col, id); err != nil {
		return persistence.NewStoreError("Delete", "resumption", id, err)
	}

	return nil
}
