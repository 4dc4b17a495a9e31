// Package activity records what the bot did and why, both as an in-memory
// ring surfaced to the operator and as a durable append-only log file.
package activity

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/replyhawk/replyhawk/internal/fsstore"
)

// Kind labels what an event reports.
type Kind string

const (
	KindSuccess Kind = "success"
	KindSkipped Kind = "skipped"
	KindError   Kind = "error"
	KindInfo    Kind = "info"
)

// Event is one recorded action or observation.
type Event struct {
	ID      string    `json:"id"`
	At      time.Time `json:"at"`
	Kind    Kind      `json:"kind"`
	Message string    `json:"message"`
}

const (
	// ringCapacity bounds the in-memory history.
	ringCapacity = 200
	// DefaultRecent is how many events the operator surfaces see.
	DefaultRecent = 20

	timestampLayout = "2006-01-02 15:04:05"
)

// Recorder keeps the recent-event ring and, when constructed with a log path,
// mirrors every event to a rotating plain-text log. Log write failures never
// block recording; the event still lands in the ring and the failure is
// warned once until a write succeeds again.
type Recorder struct {
	mu         sync.Mutex
	events     []Event
	writer     *fsstore.LineWriter
	logFailing bool

	log   *slog.Logger
	now   func() time.Time
	newID func() string
}

// NewRecorder builds an in-memory-only recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		log:   slog.Default(),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// NewDurableRecorder mirrors events to a log file at path, one line per event
// formatted "[2006-01-02 15:04:05] message".
func NewDurableRecorder(path string) (*Recorder, error) {
	writer, err := fsstore.NewLineWriter(path, fsstore.LineOptions{})
	if err != nil {
		return nil, fmt.Errorf("activity: open log %s: %w", path, err)
	}
	r := NewRecorder()
	r.writer = writer
	return r, nil
}

func (r *Recorder) Close() error {
	if r == nil || r.writer == nil {
		return nil
	}
	return r.writer.Close()
}

// Record appends an event and returns it. The message is flattened to a
// single line so the durable log stays line-oriented.
func (r *Recorder) Record(kind Kind, message string) Event {
	message = strings.TrimSpace(strings.ReplaceAll(message, "\n", " "))

	r.mu.Lock()
	defer r.mu.Unlock()

	ev := Event{
		ID:      r.newID(),
		At:      r.now(),
		Kind:    kind,
		Message: message,
	}
	r.events = append(r.events, ev)
	if len(r.events) > ringCapacity {
		r.events = r.events[len(r.events)-ringCapacity:]
	}
	if r.writer != nil {
		if err := r.writer.AppendLine(FormatLine(ev)); err != nil {
			if !r.logFailing {
				r.logFailing = true
				r.log.Warn("activity_log_write_failed", "error", err)
			}
		} else {
			r.logFailing = false
		}
	}
	return ev
}

func (r *Recorder) Recordf(kind Kind, format string, args ...any) Event {
	return r.Record(kind, fmt.Sprintf(format, args...))
}

// Recent returns up to n events, newest first.
func (r *Recorder) Recent(n int) []Event {
	if n <= 0 {
		n = DefaultRecent
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if n > len(r.events) {
		n = len(r.events)
	}
	out := make([]Event, n)
	for i := 0; i < n; i++ {
		out[i] = r.events[len(r.events)-1-i]
	}
	return out
}

// FormatLine renders an event the way it appears in the durable log.
func FormatLine(ev Event) string {
	return fmt.Sprintf("[%s] %s", ev.At.Format(timestampLayout), ev.Message)
}

// TailFile returns the last n lines of the durable log at path, oldest first.
func TailFile(path string, n int) ([]string, error) {
	lines, err := fsstore.TailLines(path, n)
	if err != nil {
		return nil, fmt.Errorf("activity: tail %s: %w", path, err)
	}
	return lines, nil
}
