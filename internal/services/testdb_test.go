package services

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/caspianpress/stylebridge-backend/internal/db"
	"github.com/caspianpress/stylebridge-backend/internal/logger"
)

// The sqlite schema mirrors the postgres migration closely enough for the
// query paths under test. IDs are set app-side, so no uuid default is
// needed here.
var testSchema = []string{
	`CREATE TABLE segment (
		id TEXT PRIMARY KEY,
		book_id TEXT NOT NULL,
		segment_index INTEGER NOT NULL,
		source_text TEXT NOT NULL,
		translated_text TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		translation_source TEXT NOT NULL DEFAULT 'model',
		from_style_memory BOOLEAN NOT NULL DEFAULT 0,
		style_similarity_score REAL,
		has_override BOOLEAN NOT NULL DEFAULT 0,
		override_similarity_score REAL,
		override_percentage REAL,
		override_pct REAL,
		style_pct REAL,
		model_pct REAL,
		created_at DATETIME,
		updated_at DATETIME,
		deleted_at DATETIME
	)`,
	`CREATE TABLE override (
		id TEXT PRIMARY KEY,
		segment_id TEXT NOT NULL,
		old_translation TEXT,
		new_translation TEXT NOT NULL,
		user_id TEXT,
		engine TEXT NOT NULL,
		reason TEXT,
		consumed_by_run_id TEXT,
		created_at DATETIME
	)`,
	`CREATE TABLE style_memory_entry (
		id TEXT PRIMARY KEY,
		segment_id TEXT,
		source_text TEXT NOT NULL,
		preferred_translation TEXT NOT NULL,
		embedding TEXT,
		embedding_dim INTEGER NOT NULL DEFAULT 0,
		approved_by TEXT,
		approved_at DATETIME,
		engine TEXT,
		similarity_score REAL,
		created_at DATETIME
	)`,
	`CREATE TABLE training_run (
		id TEXT PRIMARY KEY,
		version TEXT NOT NULL,
		model_path TEXT,
		train_samples INTEGER NOT NULL DEFAULT 0,
		validation_samples INTEGER NOT NULL DEFAULT 0,
		bleu_score REAL,
		chrf_score REAL,
		style_similarity_score REAL,
		status TEXT NOT NULL DEFAULT 'training',
		snapshot_at DATETIME,
		promotion_eligible BOOLEAN NOT NULL DEFAULT 0,
		promoted BOOLEAN NOT NULL DEFAULT 0,
		started_at DATETIME,
		completed_at DATETIME,
		notes TEXT,
		metadata TEXT,
		created_at DATETIME,
		updated_at DATETIME,
		deleted_at DATETIME
	)`,
	`CREATE TABLE metrics_snapshot (
		id TEXT PRIMARY KEY,
		date DATE NOT NULL UNIQUE,
		bleu_score REAL NOT NULL DEFAULT 0,
		chrf_score REAL NOT NULL DEFAULT 0,
		style_similarity_score REAL NOT NULL DEFAULT 0,
		override_rate REAL NOT NULL DEFAULT 0,
		attribution_ratio REAL NOT NULL DEFAULT 0,
		total_segments INTEGER NOT NULL DEFAULT 0,
		overridden_segments INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME
	)`,
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// One in-memory database per test: every pool connection must see the
	// same schema.
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("raw db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	for _, stmt := range testSchema {
		if err := gdb.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	if err := gdb.Exec(db.ActiveTrainingRunIndexSQL).Error; err != nil {
		t.Fatalf("create active run index: %v", err)
	}
	return gdb
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return log
}
