package sync

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// timeLayout is the persisted timestamp format (UTC RFC3339).
const timeLayout = time.RFC3339

// Store provides ledger operations on the sync database. All mutation goes
// through ApplyCycle, which is a single all-or-nothing transaction.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CurrentVersions returns the open ledger row for every tracked file,
// keyed by file name.
func (s *Store) CurrentVersions() (map[string]FileVersion, error) {
	rows, err := s.db.Query(`
		SELECT id, file_name, source_url, size_bytes, modified_at,
		       version_start, version_end, is_current, download_status
		FROM file_versions WHERE is_current = 1
	`)
	if err != nil {
		return nil, fmt.Errorf("query current versions: %w", err)
	}
	defer rows.Close()

	current := make(map[string]FileVersion)
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		current[v.Name] = v
	}
	if logEnabled(slog.LevelDebug) {
		sub("store").Debug("CurrentVersions", "count", len(current))
	}
	return current, rows.Err()
}

// History returns all ledger rows for a file, newest version first.
func (s *Store) History(name string) ([]FileVersion, error) {
	rows, err := s.db.Query(`
		SELECT id, file_name, source_url, size_bytes, modified_at,
		       version_start, version_end, is_current, download_status
		FROM file_versions WHERE file_name = ?
		ORDER BY version_start DESC, id DESC
	`, name)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var versions []FileVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// CycleWrite is the staged outcome of one cycle: rows closed because a newer
// version replaces them, rows closed because the file left the origin, and the
// open rows to append. Applied atomically.
type CycleWrite struct {
	CloseIDs  []int64 // superseded by a row in Open
	RemoveIDs []int64 // retired with no replacement
	Open      []FileVersion
	Now       time.Time
}

// Empty reports whether the write would touch no rows.
func (w CycleWrite) Empty() bool {
	return len(w.CloseIDs) == 0 && len(w.RemoveIDs) == 0 && len(w.Open) == 0
}

// ApplyCycle commits one cycle's staged row changes in a single transaction.
// On any error the transaction is rolled back and the ledger is unchanged.
func (s *Store) ApplyCycle(w CycleWrite) error {
	l := sub("store")
	if w.Empty() {
		l.Debug("ApplyCycle no-op")
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return &CommitError{Err: fmt.Errorf("begin tx: %w", err)}
	}
	defer tx.Rollback() //nolint:errcheck

	end := w.Now.UTC().Format(timeLayout)
	for _, id := range w.CloseIDs {
		if _, err := tx.Exec(`
			UPDATE file_versions SET is_current = 0, version_end = ?
			WHERE id = ? AND is_current = 1
		`, end, id); err != nil {
			return &CommitError{Err: fmt.Errorf("close row %d: %w", id, err)}
		}
	}
	for _, id := range w.RemoveIDs {
		if _, err := tx.Exec(`
			UPDATE file_versions SET is_current = 0, version_end = ?, download_status = ?
			WHERE id = ? AND is_current = 1
		`, end, StatusRemoved, id); err != nil {
			return &CommitError{Err: fmt.Errorf("retire row %d: %w", id, err)}
		}
	}

	for _, v := range w.Open {
		if _, err := tx.Exec(`
			INSERT INTO file_versions
				(file_name, source_url, size_bytes, modified_at,
				 version_start, version_end, is_current, download_status)
			VALUES (?, ?, ?, ?, ?, NULL, 1, ?)
		`,
			v.Name, v.SourceURL, v.SizeBytes,
			v.ModifiedAt.UTC().Format(timeLayout),
			w.Now.UTC().Format(timeLayout),
			v.DownloadStatus,
		); err != nil {
			return &CommitError{Err: fmt.Errorf("insert row for %s: %w", v.Name, err)}
		}
	}

	if err := tx.Commit(); err != nil {
		return &CommitError{Err: err}
	}
	l.Debug("ApplyCycle committed",
		"closed", len(w.CloseIDs), "retired", len(w.RemoveIDs), "opened", len(w.Open))
	return nil
}

// Stats summarizes the ledger for operator reporting.
type Stats struct {
	TrackedFiles int64 // files with an open row
	RetiredFiles int64 // files whose latest row is closed
	TotalRows    int64
	CurrentBytes int64
}

// GetStats returns ledger statistics.
func (s *Store) GetStats() (*Stats, error) {
	var st Stats
	err := s.db.QueryRow(`
		SELECT
			COUNT(CASE WHEN is_current = 1 THEN 1 END),
			COALESCE(SUM(CASE WHEN is_current = 1 THEN size_bytes ELSE 0 END), 0),
			COUNT(*)
		FROM file_versions
	`).Scan(&st.TrackedFiles, &st.CurrentBytes, &st.TotalRows)
	if err != nil {
		return nil, fmt.Errorf("ledger stats: %w", err)
	}

	err = s.db.QueryRow(`
		SELECT COUNT(DISTINCT file_name) FROM file_versions
		WHERE file_name NOT IN (SELECT file_name FROM file_versions WHERE is_current = 1)
	`).Scan(&st.RetiredFiles)
	if err != nil {
		return nil, fmt.Errorf("ledger retired count: %w", err)
	}
	return &st, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVersion(r rowScanner) (FileVersion, error) {
	var (
		v        FileVersion
		modified string
		start    string
		end      sql.NullString
	)
	if err := r.Scan(&v.ID, &v.Name, &v.SourceURL, &v.SizeBytes, &modified,
		&start, &end, &v.Current, &v.DownloadStatus); err != nil {
		return v, fmt.Errorf("scan version: %w", err)
	}

	var err error
	if v.ModifiedAt, err = time.Parse(timeLayout, modified); err != nil {
		return v, fmt.Errorf("parse modified_at %q: %w", modified, err)
	}
	if v.VersionStart, err = time.Parse(timeLayout, start); err != nil {
		return v, fmt.Errorf("parse version_start %q: %w", start, err)
	}
	if end.Valid {
		t, err := time.Parse(timeLayout, end.String)
		if err != nil {
			return v, fmt.Errorf("parse version_end %q: %w", end.String, err)
		}
		v.VersionEnd = &t
	}
	return v, nil
}
