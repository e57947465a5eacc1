package migration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"
)

type migrationStep struct {
	Name string
	SQL  string
}

var steps = []migrationStep{
	{
		Name: "create_extension_uuid_ossp",
		SQL:  `CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
	},
	{
		Name: "create_table_items",
		SQL: `CREATE TABLE IF NOT EXISTS items (
  id                 UUID        PRIMARY KEY DEFAULT uuid_generate_v4(),
  name               TEXT        NOT NULL,
  type               TEXT        NOT NULL CHECK (type IN ('folder', 'file')),
  company_id         TEXT        NOT NULL,
  parent_id          UUID        NULL REFERENCES items (id),
  path               TEXT        NOT NULL,
  mime_type          TEXT,
  byte_size          BIGINT      CHECK (byte_size IS NULL OR byte_size >= 0),
  original_name      TEXT,
  relative_path      TEXT,
  expiry_date        TIMESTAMPTZ NULL,
  is_restricted      BOOLEAN     NOT NULL DEFAULT FALSE,
  allowed_users      JSONB       NOT NULL DEFAULT '[]'::jsonb,
  department         TEXT        NOT NULL DEFAULT 'none'
    CHECK (department IN ('sales', 'hr', 'management', 'development', 'all', 'none')),
  shared_departments JSONB       NOT NULL DEFAULT '[]'::jsonb,
  created_by         TEXT        NOT NULL,
  created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_index_items_parent_company",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_items_parent_company ON items (company_id, parent_id);`,
	},
	{
		Name: "create_index_items_parent",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_items_parent ON items (parent_id);`,
	},
	{
		Name: "create_index_items_path",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_items_path ON items (path);`,
	},
	{
		Name: "create_unique_index_items_sibling_folder_name",
		SQL: `CREATE UNIQUE INDEX IF NOT EXISTS uq_items_sibling_folder_name
  ON items (company_id, parent_id, name) WHERE type = 'folder';`,
	},
	{
		Name: "create_table_access_requests",
		SQL: `CREATE TABLE IF NOT EXISTS access_requests (
  id         UUID        PRIMARY KEY DEFAULT uuid_generate_v4(),
  user_id    TEXT        NOT NULL,
  item_id    UUID        NOT NULL REFERENCES items (id) ON DELETE CASCADE,
  item_type  TEXT        NOT NULL CHECK (item_type IN ('folder', 'file')),
  status     TEXT        NOT NULL DEFAULT 'pending'
    CHECK (status IN ('pending', 'approved', 'denied')),
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  CONSTRAINT uq_access_requests_user_item UNIQUE (user_id, item_id)
);`,
	},
	{
		Name: "create_index_access_requests_item",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_access_requests_item ON access_requests (item_id);`,
	},
}

// EnsureMigrated checks if the 'items' table exists and runs migrations if it doesn't.
func EnsureMigrated(ctx context.Context, db *sql.DB, loc *time.Location, dbHost string) error {
	start := time.Now()

	logJSON(loc, map[string]any{
		"component": "database",
		"event":     "db_migration_check",
		"status":    "starting",
		"db_host":   dbHost,
	})

	var exists bool
	query := "SELECT to_regclass('public.items') IS NOT NULL"
	err := db.QueryRowContext(ctx, query).Scan(&exists)
	if err != nil {
		logJSON(loc, map[string]any{
			"component":     "database",
			"event":         "db_migration_failed",
			"status":        "error",
			"error_message": fmt.Sprintf("failed to check sentinel table: %v", err),
			"db_host":       dbHost,
			"duration_ms":   time.Since(start).Milliseconds(),
		})
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	if exists {
		logJSON(loc, map[string]any{
			"component":   "database",
			"event":       "db_migration_skip",
			"status":      "success",
			"msg":         "schema already exists, skipping migration",
			"db_host":     dbHost,
			"duration_ms": time.Since(start).Milliseconds(),
		})
		return nil
	}

	logJSON(loc, map[string]any{
		"component": "database",
		"event":     "db_migration_start",
		"status":    "in_progress",
		"db_host":   dbHost,
	})

	for _, step := range steps {
		stepStart := time.Now()
		_, err := db.ExecContext(ctx, step.SQL)
		if err != nil {
			logJSON(loc, map[string]any{
				"component":        "database",
				"event":            "db_migration_failed",
				"status":           "error",
				"migration_step":   step.Name,
				"error_message":    err.Error(),
				"db_host":          dbHost,
				"duration_ms":      time.Since(start).Milliseconds(),
				"step_duration_ms": time.Since(stepStart).Milliseconds(),
			})
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}

		logJSON(loc, map[string]any{
			"component":        "database",
			"event":            "db_migration_step",
			"status":           "success",
			"migration_step":   step.Name,
			"db_host":          dbHost,
			"step_duration_ms": time.Since(stepStart).Milliseconds(),
		})
	}

	logJSON(loc, map[string]any{
		"component":   "database",
		"event":       "db_migration_success",
		"status":      "success",
		"db_host":     dbHost,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	return nil
}

func logJSON(loc *time.Location, data map[string]any) {
	data["ts"] = time.Now().In(loc).Format(time.RFC3339Nano)
	if _, ok := data["level"]; !ok {
		if data["status"] == "error" {
			data["level"] = "error"
		} else {
			data["level"] = "info"
		}
	}

	b, err := json.Marshal(data)
	if err != nil {
		log.Printf("failed to marshal migration log: %v", err)
		return
	}
	log.SetFlags(0)
	log.Println(string(b))
}
