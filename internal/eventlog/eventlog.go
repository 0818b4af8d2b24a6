// Package eventlog keeps a bounded, append-only record of connection and
// command events for display. The most recent entries are kept; once the
// capacity is exceeded the oldest entry is evicted.
package eventlog

import (
	"sync"
	"time"
)

// DefaultCapacity is the number of records retained when New is given a
// non-positive capacity.
const DefaultCapacity = 100

// Category tags a record for display.
type Category int

const (
	Info Category = iota
	Success
	Error
	Command
)

func (c Category) String() string {
	switch c {
	case Info:
		return "info"
	case Success:
		return "success"
	case Error:
		return "error"
	case Command:
		return "command"
	default:
		return "unknown"
	}
}

// Record is a single log entry.
type Record struct {
	Time     time.Time
	Message  string
	Category Category
	Err      error // cause of an Error record, nil otherwise
}

// Format renders the record as " HH:MM:SS [category] message".
func (r Record) Format() string {
	return r.Time.Format(" 15:04:05") + " [" + r.Category.String() + "] " + r.Message
}

// Option configures a Log.
type Option func(*Log)

// WithClock overrides the time source used to stamp records.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		l.now = now
	}
}

// WithObserver registers fn to be called with every appended record.
// fn runs on the appending goroutine after the log lock is released.
func WithObserver(fn func(Record)) Option {
	return func(l *Log) {
		l.observer = fn
	}
}

// Log is a fixed-capacity ring of records. Safe for concurrent use.
type Log struct {
	mu    sync.RWMutex
	buf   []Record
	start int // index of the oldest record
	n     int

	now      func() time.Time
	observer func(Record)
}

// New creates a Log holding at most capacity records.
func New(capacity int, opts ...Option) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	l := &Log{
		buf: make([]Record, capacity),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append records msg. It always succeeds.
func (l *Log) Append(msg string, cat Category) {
	l.add(Record{Message: msg, Category: cat})
}

// AppendError records msg as an Error entry carrying err.
func (l *Log) AppendError(msg string, err error) {
	l.add(Record{Message: msg, Category: Error, Err: err})
}

func (l *Log) add(r Record) {
	l.mu.Lock()
	r.Time = l.now()
	if l.n < len(l.buf) {
		l.buf[(l.start+l.n)%len(l.buf)] = r
		l.n++
	} else {
		// Full: overwrite the oldest slot and advance.
		l.buf[l.start] = r
		l.start = (l.start + 1) % len(l.buf)
	}
	observer := l.observer
	l.mu.Unlock()

	if observer != nil {
		observer(r)
	}
}

// Entries returns a copy of the retained records, newest first.
func (l *Log) Entries() []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Record, l.n)
	for i := 0; i < l.n; i++ {
		out[i] = l.buf[(l.start+l.n-1-i)%len(l.buf)]
	}
	return out
}

// Len returns the number of retained records.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.n
}

// Cap returns the maximum number of retained records.
func (l *Log) Cap() int {
	return len(l.buf)
}

// Clear drops every record.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	clear(l.buf)
	l.start = 0
	l.n = 0
}
