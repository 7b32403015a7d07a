package gorm

import (
	"fmt"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations runs all database migrations using gormigrate.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		// Migration 001: Core tables (projects, source notes)
		{
			ID: "001_core_tables",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&Project{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&SourceNote{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("projects", "source_notes")
			},
		},

		// Migration 002: Tasks table
		{
			ID: "002_tasks",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&Task{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("tasks")
			},
		},

		// Migration 003: FTS5 virtual table for task search
		{
			ID: "003_tasks_fts",
			Migrate: func(tx *gorm.DB) error {
				sqls := []string{
					`CREATE VIRTUAL TABLE IF NOT EXISTS tasks_fts USING fts5(
						text, source,
						content='tasks'
					)`,
					`CREATE TRIGGER IF NOT EXISTS tasks_ai AFTER INSERT ON tasks BEGIN
						INSERT INTO tasks_fts(rowid, text, source)
						VALUES (new.rowid, new.text, new.source);
					END`,
					`CREATE TRIGGER IF NOT EXISTS tasks_ad AFTER DELETE ON tasks BEGIN
						INSERT INTO tasks_fts(tasks_fts, rowid, text, source)
						VALUES('delete', old.rowid, old.text, old.source);
					END`,
					`CREATE TRIGGER IF NOT EXISTS tasks_au AFTER UPDATE ON tasks BEGIN
						INSERT INTO tasks_fts(tasks_fts, rowid, text, source)
						VALUES('delete', old.rowid, old.text, old.source);
						INSERT INTO tasks_fts(rowid, text, source)
						VALUES (new.rowid, new.text, new.source);
					END`,
				}
				for _, s := range sqls {
					if err := tx.Exec(s).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				sqls := []string{
					"DROP TRIGGER IF EXISTS tasks_au",
					"DROP TRIGGER IF EXISTS tasks_ad",
					"DROP TRIGGER IF EXISTS tasks_ai",
					"DROP TABLE IF EXISTS tasks_fts",
				}
				for _, s := range sqls {
					if err := tx.Exec(s).Error; err != nil {
						return err
					}
				}
				return nil
			},
		},

		// Migration 004: Audit ledger
		{
			ID: "004_audit_entries",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&AuditEntry{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("audit_entries")
			},
		},
	})

	if err := m.Migrate(); err != nil {
		return fmt.Errorf("run gormigrate migrations: %w", err)
	}

	return nil
}
