package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/caspianpress/stylebridge-backend/internal/logger"
	"github.com/caspianpress/stylebridge-backend/internal/types"
	"github.com/caspianpress/stylebridge-backend/internal/utils"
)

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
	serviceLog := log.With("service", "PostgresService")

	postgresHost := utils.GetEnv("POSTGRES_HOST", "localhost", log)
	postgresPort := utils.GetEnv("POSTGRES_PORT", "5432", log)
	postgresUser := utils.GetEnv("POSTGRES_USER", "postgres", log)
	postgresPassword := utils.GetEnv("POSTGRES_PASSWORD", "", log)
	postgresName := utils.GetEnv("POSTGRES_NAME", "stylebridge", log)

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", postgresUser, postgresPassword, postgresHost, postgresPort, postgresName)

	serviceLog.Info("Connecting to Postgres...")
	gormDB, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		serviceLog.Error("Failed to connect to Postgres", "error", err)
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := gormDB.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		serviceLog.Error("Failed to enable uuid-ossp extension", "error", err)
		return nil, fmt.Errorf("failed to enable uuid-ossp extension: %w", err)
	}

	return &PostgresService{db: gormDB, log: serviceLog}, nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	err := s.db.AutoMigrate(
		&types.User{},
		&types.Book{},
		&types.Segment{},
		&types.StyleMemoryEntry{},
		&types.Override{},
		&types.TrainingRun{},
		&types.MetricsSnapshot{},
	)
	if err != nil {
		s.log.Error("Auto migration failed for postgres tables", "error", err)
		return err
	}

	s.log.Info("Configuring foreign key relationships for postgres tables...")
	constraints := []struct {
		name string
		sql  string
	}{
		{
			name: "fk_segment_book_id",
			sql: `ALTER TABLE "segment"
				ADD CONSTRAINT "fk_segment_book_id"
				FOREIGN KEY ("book_id") REFERENCES "book"("id")
				ON DELETE CASCADE`,
		},
		{
			name: "fk_override_segment_id",
			sql: `ALTER TABLE "override"
				ADD CONSTRAINT "fk_override_segment_id"
				FOREIGN KEY ("segment_id") REFERENCES "segment"("id")
				ON DELETE CASCADE`,
		},
		{
			// Weak reference: deleting a segment never cascades into memory
			// loss, the entry just loses its originating link.
			name: "fk_style_memory_entry_segment_id",
			sql: `ALTER TABLE "style_memory_entry"
				ADD CONSTRAINT "fk_style_memory_entry_segment_id"
				FOREIGN KEY ("segment_id") REFERENCES "segment"("id")
				ON DELETE SET NULL`,
		},
	}
	for _, c := range constraints {
		var exists bool
		if err := s.db.Raw(
			`SELECT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = ?)`, c.name,
		).Scan(&exists).Error; err != nil {
			return fmt.Errorf("failed to check constraint %s: %w", c.name, err)
		}
		if exists {
			continue
		}
		if err := s.db.Exec(c.sql).Error; err != nil {
			return fmt.Errorf("failed to add %s: %w", c.name, err)
		}
	}

	// At most one run may sit in training status; concurrent trigger attempts
	// race on this index instead of double-starting a cycle.
	if err := s.db.Exec(ActiveTrainingRunIndexSQL).Error; err != nil {
		return fmt.Errorf("failed to create idx_training_run_active: %w", err)
	}
	return nil
}

// ActiveTrainingRunIndexSQL is exported so test setups against other drivers
// can install the same uniqueness guard the migration installs.
const ActiveTrainingRunIndexSQL = `CREATE UNIQUE INDEX IF NOT EXISTS idx_training_run_active
	ON training_run ((status)) WHERE status = 'training' AND deleted_at IS NULL`

func (s *PostgresService) DB() *gorm.DB {
	return s.db
}
