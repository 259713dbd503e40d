package history

import (
	"database/sql"

	"github.com/gabrielpetry/MangoHud/internal/errors"
	"github.com/gabrielpetry/MangoHud/internal/logger"
)

const (
	SchemaVersion = 1

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS snapshots (
	       ts_ms              INTEGER PRIMARY KEY,
	       process_name       TEXT NOT NULL,
	       graphics_api       TEXT NOT NULL,
	       pid                INTEGER NOT NULL,
	       fps                REAL NOT NULL,
	       frametime_ms       REAL NOT NULL,
	       cpu_load_pct       REAL NOT NULL,
	       cpu_power_w        REAL NOT NULL,
	       cpu_freq_mhz       INTEGER NOT NULL,
	       cpu_temp_c         INTEGER NOT NULL,
	       gpu_load_pct       REAL NOT NULL,
	       gpu_temp_c         INTEGER NOT NULL,
	       gpu_core_clock_mhz INTEGER NOT NULL,
	       gpu_mem_clock_mhz  INTEGER NOT NULL,
	       gpu_power_w        REAL NOT NULL,
	       gpu_vram_used_gb   REAL NOT NULL,
	       ram_used_gb        REAL NOT NULL,
	       swap_used_gb       REAL NOT NULL,
	       process_rss_gb     REAL NOT NULL
	   );`

	// insertSnapshotSQL replaces on the millisecond key: recording the same
	// instant twice keeps the latest values.
	insertSnapshotSQL = `
    INSERT OR REPLACE INTO snapshots (
        ts_ms, process_name, graphics_api, pid,
        fps, frametime_ms,
        cpu_load_pct, cpu_power_w, cpu_freq_mhz, cpu_temp_c,
        gpu_load_pct, gpu_temp_c, gpu_core_clock_mhz, gpu_mem_clock_mhz,
        gpu_power_w, gpu_vram_used_gb,
        ram_used_gb, swap_used_gb, process_rss_gb
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
)

// ensureSchema initializes an empty database and accepts a current one. A
// database from a different schema version is refused; there is no
// migration path yet.
func ensureSchema(db *sql.DB) error {
	errFactory := errors.New()

	version, err := getSchemaVersion(db)
	if err != nil {
		return err
	}

	switch version {
	case 0:
		return initSchema(db)
	case SchemaVersion:
		return nil
	default:
		return errFactory.New(ErrSchemaVersionMismatch).WithData(struct {
			Found    int
			Expected int
		}{
			Found:    version,
			Expected: SchemaVersion,
		})
	}
}

// initSchema creates a new database schema with the current version.
func initSchema(db *sql.DB) error {
	errFactory := errors.New()

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	// Track transaction state
	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				logger.Debug().Err(err).Msg("Failed to roll back schema transaction")
			}
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Phase string
			Error string
		}{
			Phase: "create_tables",
			Error: err.Error(),
		})
	}

	if _, err := tx.Exec(`
        INSERT INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, SchemaVersion); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Phase string
			Error string
		}{
			Phase: "record_version",
			Error: err.Error(),
		})
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	logger.Info().Int("version", SchemaVersion).Msg("History schema initialized")

	return nil
}

// getSchemaVersion returns the stored schema version, zero for an empty
// database.
func getSchemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	exists, err := tableExists(db, "schema_versions")
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Error string
		}{
			Phase: "get_version",
			Error: err.Error(),
		})
	}

	return version, nil
}

func tableExists(db *sql.DB, tableName string) (bool, error) {
	errFactory := errors.New()

	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, tableName).Scan(&exists)
	if err != nil {
		return false, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Table string
			Error string
		}{
			Phase: "check_table_exists",
			Table: tableName,
			Error: err.Error(),
		})
	}

	return exists, nil
}
