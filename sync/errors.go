package sync

import (
	"errors"
	"fmt"
)

// ErrEmptyListing is returned when the origin listing yields zero parseable
// entries. It aborts the cycle without retry: an empty listing usually means
// the upstream page format changed, not a transient fault.
var ErrEmptyListing = errors.New("directory listing yielded no entries")

// TransportError wraps a transient network failure. It is retried by the
// bounded retry policy and only surfaces once attempts are exhausted.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DownloadError marks a single file as failed for the cycle after its retry
// budget is exhausted. It never aborts the cycle; the file is reconsidered on
// the next run.
type DownloadError struct {
	Name string
	Err  error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s: %v", e.Name, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// CommitError means the atomic ledger write failed. The ledger is left in its
// pre-cycle state.
type CommitError struct {
	Err error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("ledger commit: %v", e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }

// retryable reports whether err should consume another retry attempt.
// Transport faults are retryable; structural faults are not.
func retryable(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
