package activity

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type countingHandler struct {
	mu    sync.Mutex
	warns int
}

func (h *countingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *countingHandler) Handle(_ context.Context, rec slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if rec.Level >= slog.LevelWarn {
		h.warns++
	}
	return nil
}

func (h *countingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *countingHandler) WithGroup(string) slog.Handler      { return h }

func (h *countingHandler) warnCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.warns
}

func TestRecordAndRecentNewestFirst(t *testing.T) {
	t.Parallel()

	r := NewRecorder()
	r.Record(KindInfo, "first")
	r.Record(KindSuccess, "second")
	r.Record(KindError, "third")

	recent := r.Recent(2)
	if len(recent) != 2 {
		t.Fatalf("Recent(2) len = %d, want 2", len(recent))
	}
	if recent[0].Message != "third" || recent[1].Message != "second" {
		t.Fatalf("Recent(2) = [%s %s], want [third second]", recent[0].Message, recent[1].Message)
	}
	if recent[0].Kind != KindError {
		t.Fatalf("Recent(2)[0].Kind = %s, want error", recent[0].Kind)
	}
	if recent[0].ID == "" || recent[0].ID == recent[1].ID {
		t.Fatalf("event ids not unique: %q %q", recent[0].ID, recent[1].ID)
	}
}

func TestRecentDefaultsToTwenty(t *testing.T) {
	t.Parallel()

	r := NewRecorder()
	for i := 0; i < 30; i++ {
		r.Recordf(KindInfo, "event %d", i)
	}
	recent := r.Recent(0)
	if len(recent) != DefaultRecent {
		t.Fatalf("Recent(0) len = %d, want %d", len(recent), DefaultRecent)
	}
	if recent[0].Message != "event 29" {
		t.Fatalf("Recent(0)[0] = %q, want event 29", recent[0].Message)
	}
}

func TestRingCapacityBounded(t *testing.T) {
	t.Parallel()

	r := NewRecorder()
	for i := 0; i < ringCapacity+50; i++ {
		r.Recordf(KindInfo, "event %d", i)
	}
	recent := r.Recent(ringCapacity + 50)
	if len(recent) != ringCapacity {
		t.Fatalf("Recent() len = %d, want %d", len(recent), ringCapacity)
	}
	oldest := recent[len(recent)-1].Message
	if oldest != fmt.Sprintf("event %d", 50) {
		t.Fatalf("oldest retained = %q, want event 50", oldest)
	}
}

func TestRecordFlattensNewlines(t *testing.T) {
	t.Parallel()

	r := NewRecorder()
	ev := r.Record(KindError, "line one\nline two")
	if strings.Contains(ev.Message, "\n") {
		t.Fatalf("Record() kept newline: %q", ev.Message)
	}
}

func TestDurableRecorderWritesLogLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "activity.log")
	r, err := NewDurableRecorder(path)
	if err != nil {
		t.Fatalf("NewDurableRecorder() error = %v", err)
	}
	defer r.Close()

	r.now = func() time.Time {
		return time.Date(2026, 8, 28, 10, 30, 0, 0, time.UTC)
	}
	r.Record(KindSuccess, "replied to @alice")
	r.Record(KindSkipped, "no rule for @bob")

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 2 {
		t.Fatalf("log lines = %d, want 2", len(lines))
	}
	if lines[0] != "[2026-08-28 10:30:00] replied to @alice" {
		t.Fatalf("log line = %q", lines[0])
	}
}

func TestBrokenDurableLogWarnsOnceAndKeepsRing(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "activity.log")
	r, err := NewDurableRecorder(path)
	if err != nil {
		t.Fatalf("NewDurableRecorder() error = %v", err)
	}
	handler := &countingHandler{}
	r.log = slog.New(handler)

	// Close the writer underneath the recorder so every append fails.
	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	r.Record(KindSuccess, "first after breakage")
	r.Record(KindSuccess, "second after breakage")

	if got := handler.warnCount(); got != 1 {
		t.Fatalf("warns = %d, want exactly 1", got)
	}
	recent := r.Recent(2)
	if len(recent) != 2 {
		t.Fatalf("Recent(2) len = %d, want 2 despite broken log", len(recent))
	}
}

func TestTailFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "activity.log")
	r, err := NewDurableRecorder(path)
	if err != nil {
		t.Fatalf("NewDurableRecorder() error = %v", err)
	}
	defer r.Close()

	for i := 0; i < 5; i++ {
		r.Recordf(KindInfo, "event %d", i)
	}

	lines, err := TailFile(path, 3)
	if err != nil {
		t.Fatalf("TailFile() error = %v", err)
	}
	if len(lines) != 3 {
		t.Fatalf("TailFile() len = %d, want 3", len(lines))
	}
	if !strings.HasSuffix(lines[2], "event 4") {
		t.Fatalf("TailFile() last = %q, want suffix event 4", lines[2])
	}

	missing, err := TailFile(filepath.Join(t.TempDir(), "nope.log"), 3)
	if err != nil {
		t.Fatalf("TailFile(missing) error = %v", err)
	}
	if len(missing) != 0 {
		t.Fatalf("TailFile(missing) len = %d, want 0", len(missing))
	}
}
