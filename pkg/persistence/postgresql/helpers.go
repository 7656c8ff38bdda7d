package postgresql

import (
	"database/sql"
	"time"

	"github.com/beaconops/flock/pkg/persistence"
)

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}

	return sql.NullTime{Time: *t, Valid: true}
}

// settleExec turns an UPDATE result into a repository error: zero affected
// rows means the entity does not exist.
func settleExec(result sql.Result, err error, op, entity, id string, notFound error) error {
	if err != nil {
		return persistence.NewStoreError(op, entity, id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewStoreError(op, entity, id, err)
	}

	if affected == 0 {
		return persistence.NewStoreError(op, entity, id, notFound)
	}

	return nil
}
