package sync

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS file_versions (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    file_name       TEXT NOT NULL,
    source_url      TEXT NOT NULL,
    size_bytes      INTEGER NOT NULL,
    modified_at     TEXT NOT NULL,
    version_start   TEXT NOT NULL,
    version_end     TEXT,
    is_current      INTEGER NOT NULL DEFAULT 0,
    download_status TEXT NOT NULL
);

-- At most one open row per file. The ledger's core invariant is enforced
-- here in addition to the commit logic.
CREATE UNIQUE INDEX IF NOT EXISTS idx_versions_current
    ON file_versions(file_name) WHERE is_current = 1;

CREATE INDEX IF NOT EXISTS idx_versions_name ON file_versions(file_name);

CREATE TABLE IF NOT EXISTS meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// OpenDB opens (or creates) the ledger database at the given path.
func OpenDB(dbPath string) (*sql.DB, error) {
	l := sub("db")
	l.Info("opening ledger database", "path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

func migrate(db *sql.DB) error {
	l := sub("db")
	var version int
	err := db.QueryRow("SELECT value FROM meta WHERE key = 'schema_version'").Scan(&version)
	if err != nil {
		// meta table doesn't exist or has no row, so this is a fresh database
		if _, execErr := db.Exec(schema); execErr != nil {
			return fmt.Errorf("create schema: %w", execErr)
		}
		_, execErr := db.Exec("INSERT INTO meta (key, value) VALUES ('schema_version', ?)", schemaVersion)
		if execErr != nil {
			return fmt.Errorf("set schema version: %w", execErr)
		}
		l.Info("schema created", "version", schemaVersion)
		return nil
	}

	if version < schemaVersion {
		return fmt.Errorf("ledger schema version %d is older than supported %d", version, schemaVersion)
	}
	l.Debug("schema up to date", "version", version)
	return nil
}
