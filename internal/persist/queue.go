package persist

import "sync"

// Queue is the handoff buffer between the dialog engine (producers) and the
// flush worker (sole consumer). Producers append to the back; the worker
// swaps out the whole contents as one batch and, on failure, pushes the
// batch back onto the front so it is retried before newer rows.
type Queue struct {
	mu   sync.Mutex
	rows []Row
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push appends a row to the back of the queue.
func (q *Queue) Push(r Row) {
	q.mu.Lock()
	q.rows = append(q.rows, r)
	q.mu.Unlock()
}

// Swap atomically takes the entire queue contents, leaving the queue empty
// for concurrent producers. The returned batch preserves insertion order.
func (q *Queue) Swap() []Row {
	q.mu.Lock()
	batch := q.rows
	q.rows = nil
	q.mu.Unlock()
	return batch
}

// PushFront puts a failed batch back at the front of the queue, ahead of any
// rows produced since the swap. Order within the batch is preserved.
func (q *Queue) PushFront(batch []Row) {
	if len(batch) == 0 {
		return
	}
	q.mu.Lock()
	q.rows = append(batch[:len(batch):len(batch)], q.rows...)
	q.mu.Unlock()
}

// Len reports the number of queued rows.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.rows)
}
