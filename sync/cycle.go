package sync

import (
	"context"

	"github.com/samber/lo"
)

// Runner orchestrates one sync cycle: list, diff, download, commit, emit.
// Listing, diff, and commit run sequentially; only downloads fan out, so
// ledger mutation stays race-free. The caller guarantees at most one cycle
// runs at a time against a given ledger.
type Runner struct {
	lister     *Lister
	tracker    *Tracker
	downloader *Downloader
	sink       Sink
	emitter    Emitter // nil = no downstream notification
}

// NewRunner wires the cycle components together.
func NewRunner(lister *Lister, tracker *Tracker, downloader *Downloader, sink Sink, emitter Emitter) *Runner {
	return &Runner{
		lister:     lister,
		tracker:    tracker,
		downloader: downloader,
		sink:       sink,
		emitter:    emitter,
	}
}

// RunCycle executes one full cycle. A non-nil error means the cycle failed
// with no ledger mutation. A nil error with a non-empty result.Failed means
// the cycle partially succeeded: the ledger was updated for the files that
// downloaded, and the rest retry next cycle.
func (r *Runner) RunCycle(ctx context.Context) (*CycleResult, error) {
	l := sub("cycle")
	result := &CycleResult{StartedAt: nowFunc()}

	remote, err := r.lister.List(ctx)
	if err != nil {
		l.Error("cycle failed before ledger mutation", "stage", "list", "err", err)
		return nil, err
	}

	current, err := r.tracker.Load()
	if err != nil {
		l.Error("cycle failed before ledger mutation", "stage", "load", "err", err)
		return nil, err
	}

	result.Diff = r.tracker.Diff(remote, current)
	result.Outcomes = r.downloader.Fetch(ctx, result.Diff.ToDownload())

	committed, err := r.tracker.Commit(result.Diff, current, result.Outcomes, nowFunc())
	if err != nil {
		l.Error("cycle failed, ledger left in pre-cycle state", "stage", "commit", "err", err)
		return nil, err
	}
	result.Committed = committed
	result.Failed = failedNames(result.Outcomes)

	// Retired files leave the sink after their rows are closed. Best effort:
	// the ledger already records the removal.
	for _, v := range result.Diff.Removed {
		if err := r.sink.Remove(ctx, v.Name); err != nil {
			l.Warn("could not remove retired file from sink", "file", v.Name, "err", err)
		}
	}

	if len(committed) > 0 && r.emitter != nil {
		r.emitter.Notify(r.summarize(result))
	}

	if len(result.Failed) > 0 {
		l.Warn("cycle partially succeeded",
			"committed", len(committed), "pendingRetry", len(result.Failed))
	} else {
		l.Info("cycle complete", "committed", len(committed))
	}
	return result, nil
}

func (r *Runner) summarize(result *CycleResult) Summary {
	ok := lo.SliceToMap(result.Committed, func(name string) (string, struct{}) {
		return name, struct{}{}
	})

	changed := make(map[string]ChangeType)
	for _, rf := range result.Diff.New {
		if _, committed := ok[rf.Name]; committed {
			changed[rf.Name] = ChangeNew
		}
	}
	for _, rf := range result.Diff.Updated {
		if _, committed := ok[rf.Name]; committed {
			changed[rf.Name] = ChangeUpdated
		}
	}
	for _, v := range result.Diff.Removed {
		changed[v.Name] = ChangeRemoved
	}

	return Summary{ChangedFiles: changed, CycleTime: result.StartedAt}
}

func failedNames(outcomes map[string]Outcome) []string {
	var failed []string
	for name, o := range outcomes {
		if o.Err != nil {
			failed = append(failed, name)
		}
	}
	return failed
}
