package engine

import "github.com/Iron-Ham/driftguard/internal/model"

// LogCapacity is the number of activity entries retained.
const LogCapacity = 100

// LogQueue is a fixed-capacity ring of activity entries. Pushing onto a full
// queue drops the oldest entry. It is not safe for concurrent use; the
// engine guards it.
type LogQueue struct {
	buf   []model.LogEntry
	start int
	size  int
}

// NewLogQueue creates a queue holding at most capacity entries.
func NewLogQueue(capacity int) *LogQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &LogQueue{buf: make([]model.LogEntry, capacity)}
}

// Push appends an entry.
func (q *LogQueue) Push(entry model.LogEntry) {
	if q.size < len(q.buf) {
		q.buf[(q.start+q.size)%len(q.buf)] = entry
		q.size++
		return
	}
	q.buf[q.start] = entry
	q.start = (q.start + 1) % len(q.buf)
}

// Len returns the number of retained entries.
func (q *LogQueue) Len() int { return q.size }

// Entries returns the retained entries, oldest first.
func (q *LogQueue) Entries() []model.LogEntry {
	out := make([]model.LogEntry, q.size)
	for i := range q.size {
		out[i] = q.buf[(q.start+i)%len(q.buf)]
	}
	return out
}

// Recent returns up to n of the newest entries, oldest first.
func (q *LogQueue) Recent(n int) []model.LogEntry {
	all := q.Entries()
	if n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}

// Replace discards the contents and loads entries, keeping the newest that fit.
func (q *LogQueue) Replace(entries []model.LogEntry) {
	q.start, q.size = 0, 0
	for _, e := range entries {
		q.Push(e)
	}
}
