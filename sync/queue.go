package sync

import (
	gosync "sync"
)

// jobQueue is a set-backed FIFO of download jobs, deduplicated by file name.
// The batch is loaded before workers start; workers drain it concurrently.
type jobQueue struct {
	mu    gosync.Mutex
	set   map[string]struct{}
	order []RemoteFile
}

func newJobQueue(files []RemoteFile) *jobQueue {
	q := &jobQueue{set: make(map[string]struct{}, len(files))}
	for _, f := range files {
		if _, exists := q.set[f.Name]; exists {
			continue
		}
		q.set[f.Name] = struct{}{}
		q.order = append(q.order, f)
	}
	return q
}

// pop removes and returns the next job. ok is false when the queue is empty.
func (q *jobQueue) pop() (RemoteFile, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.order) == 0 {
		return RemoteFile{}, false
	}
	f := q.order[0]
	q.order = q.order[1:]
	delete(q.set, f.Name)
	return f, true
}

func (q *jobQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}
