package sync

import "time"

// Download status values persisted in the ledger.
const (
	StatusDownloaded = "downloaded"
	StatusRemoved    = "removed"
)

// Tracker owns ledger mutation. It classifies the remote listing against the
// current ledger snapshot and commits cycle outcomes. The downloader never
// writes the ledger; it only reports outcomes back here.
type Tracker struct {
	store *Store
}

// NewTracker creates a Tracker over the given store.
func NewTracker(store *Store) *Tracker {
	return &Tracker{store: store}
}

// Load returns the current ledger snapshot: one open row per tracked file.
func (t *Tracker) Load() (map[string]FileVersion, error) {
	return t.store.CurrentVersions()
}

// Diff classifies each remote file against the current snapshot.
// A file counts as UPDATED when its size or modification timestamp differ
// from the open row. Files in the snapshot but absent from the listing are
// REMOVED. The classification is keyed by name; listing order is irrelevant,
// and duplicate listing entries for one name are ignored after the first so
// a name appears in at most one bucket exactly once.
//
// Note: an origin that reissues identical content with a bumped timestamp
// will classify as UPDATED and be re-downloaded.
func (t *Tracker) Diff(remote []RemoteFile, current map[string]FileVersion) Diff {
	var d Diff
	seen := make(map[string]struct{}, len(remote))

	for _, rf := range remote {
		if _, dup := seen[rf.Name]; dup {
			continue
		}
		seen[rf.Name] = struct{}{}
		cur, ok := current[rf.Name]
		switch {
		case !ok:
			d.New = append(d.New, rf)
		case cur.SizeBytes != rf.SizeBytes || !cur.ModifiedAt.Equal(rf.ModifiedAt):
			d.Updated = append(d.Updated, rf)
		default:
			d.Unchanged = append(d.Unchanged, rf)
		}
	}

	for name, cur := range current {
		if _, ok := seen[name]; !ok {
			d.Removed = append(d.Removed, cur)
		}
	}

	sub("tracker").Info("diff computed",
		"new", len(d.New), "updated", len(d.Updated),
		"unchanged", len(d.Unchanged), "removed", len(d.Removed))
	return d
}

// Commit applies one cycle's outcome to the ledger atomically:
//   - each NEW or UPDATED file that downloaded successfully gets a new open
//     row; for UPDATED the prior row is closed first
//   - each REMOVED file has its open row closed with no replacement
//   - failed downloads are excluded entirely, so the file keeps its pre-cycle
//     ledger state and is reconsidered next cycle
//
// Returns the names whose ledger state changed. A commit with nothing to
// write performs zero ledger writes.
func (t *Tracker) Commit(d Diff, current map[string]FileVersion, outcomes map[string]Outcome, now time.Time) ([]string, error) {
	var w CycleWrite
	w.Now = now
	var committed []string

	downloaded := func(name string) bool {
		o, ok := outcomes[name]
		return ok && o.Err == nil
	}

	for _, rf := range d.New {
		if !downloaded(rf.Name) {
			continue
		}
		w.Open = append(w.Open, newVersion(rf))
		committed = append(committed, rf.Name)
	}

	for _, rf := range d.Updated {
		if !downloaded(rf.Name) {
			continue
		}
		prior := current[rf.Name]
		w.CloseIDs = append(w.CloseIDs, prior.ID)
		w.Open = append(w.Open, newVersion(rf))
		committed = append(committed, rf.Name)
	}

	for _, v := range d.Removed {
		w.RemoveIDs = append(w.RemoveIDs, v.ID)
		committed = append(committed, v.Name)
	}

	if w.Empty() {
		sub("tracker").Info("nothing to commit")
		return nil, nil
	}

	if err := t.store.ApplyCycle(w); err != nil {
		return nil, err
	}
	sub("tracker").Info("cycle committed", "files", len(committed))
	return committed, nil
}

func newVersion(rf RemoteFile) FileVersion {
	return FileVersion{
		Name:           rf.Name,
		SourceURL:      rf.URL,
		SizeBytes:      rf.SizeBytes,
		ModifiedAt:     rf.ModifiedAt,
		Current:        true,
		DownloadStatus: StatusDownloaded,
	}
}
