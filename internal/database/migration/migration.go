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
		Name: "create_table_offers",
		SQL: `CREATE TABLE IF NOT EXISTS offers (
  id                TEXT        PRIMARY KEY,
  owner_id          TEXT        NOT NULL,
  title             TEXT        NOT NULL,
  content           JSONB       NOT NULL DEFAULT '{}'::jsonb,
  status            TEXT        NOT NULL DEFAULT 'draft',
  current_version   INTEGER     NOT NULL DEFAULT 1 CHECK (current_version >= 1),
  total_versions    INTEGER     NOT NULL DEFAULT 1 CHECK (total_versions >= 1),
  etag              TEXT        NOT NULL,
  created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
  last_modified_by  TEXT        NOT NULL,
  is_published      BOOLEAN     NOT NULL DEFAULT false,
  published_version INTEGER,
  published_at      TIMESTAMPTZ,
  public_url        TEXT
);`,
	},
	{
		Name: "create_table_offer_versions",
		SQL: `CREATE TABLE IF NOT EXISTS offer_versions (
  id           TEXT        PRIMARY KEY,
  offer_id     TEXT        NOT NULL,
  version      INTEGER     NOT NULL CHECK (version >= 1),
  title        TEXT        NOT NULL,
  content      JSONB       NOT NULL DEFAULT '{}'::jsonb,
  status       TEXT        NOT NULL DEFAULT 'draft',
  change_type  TEXT        NOT NULL DEFAULT 'manual',
  description  TEXT        NOT NULL DEFAULT '',
  created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
  created_by   TEXT        NOT NULL,
  is_published BOOLEAN     NOT NULL DEFAULT false,
  UNIQUE (offer_id, version)
);`,
	},
	{
		Name: "create_index_offers_owner_id",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_offers_owner_id ON offers (owner_id);`,
	},
	{
		Name: "create_index_offers_owner_status",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_offers_owner_status ON offers (owner_id, status);`,
	},
	{
		Name: "create_index_offers_updated_at",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_offers_updated_at ON offers (updated_at);`,
	},
	{
		Name: "create_index_offer_versions_offer_id",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_offer_versions_offer_id ON offer_versions (offer_id);`,
	},
}

// EnsureMigrated checks if the 'offers' table exists and runs migrations if it doesn't.
func EnsureMigrated(ctx context.Context, db *sql.DB, loc *time.Location, dbHost string) error {
	start := time.Now()

	logJSON(loc, map[string]any{
		"component": "database",
		"event":     "db_migration_check",
		"status":    "starting",
		"db_host":   dbHost,
	})

	var exists bool
	query := "SELECT to_regclass('public.offers') IS NOT NULL"
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
