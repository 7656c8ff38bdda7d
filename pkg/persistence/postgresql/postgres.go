// Package postgresql provides the PostgreSQL persistence backend.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/beaconops/flock/pkg/persistence"
	"github.com/beaconops/flock/pkg/persistence/sqlbase"

	_ "github.com/lib/pq" // postgres driver
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger

	scheduledPosts  *ScheduledPostRepository
	automationTasks *AutomationTaskRepository
	workflows       *WorkflowRepository
	logs            *LogRepository
	accounts        *AccountRepository
	resumptions     *ResumptionRepository
}

// NewPersistence connects, migrates and wires the repositories.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:              database,
		logger:          logger,
		scheduledPosts:  &ScheduledPostRepository{db: database},
		automationTasks: &AutomationTaskRepository{db: database},
		workflows:       &WorkflowRepository{db: database},
		logs:            &LogRepository{db: database},
		accounts:        &AccountRepository{db: database},
		resumptions:     &ResumptionRepository{db: database},
	}, nil
}

func (p *Persistence) ScheduledPosts() persistence.ScheduledPostRepository {
	return p.scheduledPosts
}

func (p *Persistence) AutomationTasks() persistence.AutomationTaskRepository {
	return p.automationTasks
}

func (p *Persistence) Workflows() persistence.WorkflowRepository {
	return p.workflows
}

func (p *Persistence) Logs() persistence.LogRepository {
	return p.logs
}

func (p *Persistence) Accounts() persistence.AccountRepository {
	return p.accounts
}

func (p *Persistence) Resumptions() persistence.ResumptionRepository {
	return p.resumptions
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}
