package sync

import "time"

// nowFunc is the time source, replaceable in tests.
var nowFunc = time.Now

// RemoteFile is one entry of the origin directory listing. Recomputed every
// cycle, never persisted.
type RemoteFile struct {
	Name       string
	ModifiedAt time.Time
	SizeBytes  int64
	URL        string
}

// FileVersion is one row of the ledger. Versions follow SCD Type 2: a
// superseded row is closed (VersionEnd set, Current cleared) and a new open
// row is appended. For a given Name at most one row is open at a time.
type FileVersion struct {
	ID             int64
	Name           string
	SourceURL      string
	SizeBytes      int64
	ModifiedAt     time.Time
	VersionStart   time.Time
	VersionEnd     *time.Time // nil = open
	Current        bool
	DownloadStatus string // "downloaded" | "removed"
}

// ChangeType classifies a file within one cycle's diff.
type ChangeType string

const (
	ChangeNew       ChangeType = "new"
	ChangeUpdated   ChangeType = "updated"
	ChangeUnchanged ChangeType = "unchanged"
	ChangeRemoved   ChangeType = "removed"
)

// Diff is the keyed classification of a remote listing against the ledger's
// current rows.
type Diff struct {
	New       []RemoteFile
	Updated   []RemoteFile
	Unchanged []RemoteFile
	Removed   []FileVersion
}

// Empty reports whether the diff carries no NEW, UPDATED, or REMOVED entries.
func (d Diff) Empty() bool {
	return len(d.New) == 0 && len(d.Updated) == 0 && len(d.Removed) == 0
}

// ToDownload returns the files that need retrieval this cycle.
func (d Diff) ToDownload() []RemoteFile {
	out := make([]RemoteFile, 0, len(d.New)+len(d.Updated))
	out = append(out, d.New...)
	return append(out, d.Updated...)
}

// Outcome is the per-file result of one download attempt batch.
type Outcome struct {
	Name string
	Err  error // nil = success
}

// CycleResult aggregates one sync cycle. Discarded after commit; only its
// effects persist in the ledger.
type CycleResult struct {
	Diff      Diff
	Outcomes  map[string]Outcome
	Committed []string // names whose ledger state changed this cycle
	Failed    []string // names pending retry next cycle
	StartedAt time.Time
}

// Summary is handed to the Emitter when a cycle committed at least one change.
type Summary struct {
	ChangedFiles map[string]ChangeType `json:"changedFiles"`
	CycleTime    time.Time             `json:"cycleTime"`
}
