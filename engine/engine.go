// Package engine runs the mention poll loop: fetch new mentions, match them
// against the reply rules, post at most one reply per mention, and record
// everything to the activity log.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/replyhawk/replyhawk/activity"
	"github.com/replyhawk/replyhawk/platform"
	"github.com/replyhawk/replyhawk/rules"
)

const (
	// DefaultInterval is the poll cadence when the config does not set one.
	DefaultInterval = 30 * time.Second

	// seenLimit bounds the per-run dedup set backing up the cursor.
	seenLimit = 4096

	// repliedWindow is how long a reply keeps a username in "replied" status.
	repliedWindow = 24 * time.Hour
)

// State is the engine run state as surfaced to the operator.
type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
)

// ReplyStatus annotates a rule on the operator surfaces.
type ReplyStatus string

const (
	StatusReplied ReplyStatus = "replied" // replied within the last 24h
	StatusStale   ReplyStatus = "stale"   // replied, but longer ago
	StatusNew     ReplyStatus = "new"     // never replied this run
)

// Snapshot is a point-in-time view of the engine for the control surface.
type Snapshot struct {
	State      State               `json:"state"`
	Cursor     int64               `json:"cursor"`
	Capability platform.Capability `json:"capability"`
}

type Options struct {
	// Interval between poll cycles; DefaultInterval when zero.
	Interval time.Duration
	Logger   *slog.Logger
}

// Engine owns the poll goroutine. Start is idempotent; Stop cancels the
// in-progress wait so shutdown latency is bounded by one network round trip.
type Engine struct {
	client   platform.Client
	store    *rules.Store
	recorder *activity.Recorder
	log      *slog.Logger
	interval time.Duration

	mu         sync.Mutex
	state      State
	capability platform.Capability
	cursor     int64
	cancel     context.CancelFunc
	done       chan struct{}
	seen       map[int64]struct{}
	seenOrder  []int64
	repliedAt  map[string]time.Time

	now func() time.Time
}

func New(client platform.Client, store *rules.Store, recorder *activity.Recorder, opts Options) *Engine {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		client:     client,
		store:      store,
		recorder:   recorder,
		log:        logger,
		interval:   interval,
		state:      StateStopped,
		capability: platform.CapabilityUnknown,
		seen:       map[int64]struct{}{},
		repliedAt:  map[string]time.Time{},
		now:        time.Now,
	}
}

// Start probes the account's capability and launches the poll loop. A second
// Start while running is a no-op. Read-only credentials record one info event
// and leave the engine stopped; no mention fetches or posts are attempted.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.state == StateRunning {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	capability, err := platform.Probe(ctx, e.client)
	if err != nil {
		e.recorder.Recordf(activity.KindError, "startup probe failed: %v", err)
		return fmt.Errorf("engine: probe account: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateRunning {
		return nil
	}
	e.capability = capability

	if capability != platform.CapabilityReadWrite {
		e.recorder.Record(activity.KindInfo,
			"credentials are read-only; auto-reply engine not started")
		e.log.Warn("engine_read_only", "capability", string(capability))
		return nil
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	e.cancel = cancel
	e.done = done
	e.state = StateRunning
	e.recorder.Record(activity.KindInfo, "auto-reply engine started")
	e.log.Info("engine_started", "interval", e.interval.String())

	go e.run(loopCtx, done)
	return nil
}

// Stop cancels the poll loop and waits for the current cycle to unwind.
// Stopping a stopped engine is a no-op.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.state != StateRunning {
		e.mu.Unlock()
		return
	}
	cancel := e.cancel
	done := e.done
	e.state = StateStopped
	e.cancel = nil
	e.done = nil
	e.mu.Unlock()

	cancel()
	<-done
	e.recorder.Record(activity.KindInfo, "auto-reply engine stopped")
	e.log.Info("engine_stopped")
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{State: e.state, Cursor: e.cursor, Capability: e.capability}
}

// Status reports the reply-freshness annotation for a username, relative to
// this run only.
func (e *Engine) Status(username string) ReplyStatus {
	key := platform.NormalizeHandle(username)
	e.mu.Lock()
	at, ok := e.repliedAt[key]
	now := e.now()
	e.mu.Unlock()
	if !ok {
		return StatusNew
	}
	if now.Sub(at) < repliedWindow {
		return StatusReplied
	}
	return StatusStale
}

// Post publishes a standalone status outside the poll loop. An account
// probed as read-only is refused up front; no write is attempted.
func (e *Engine) Post(ctx context.Context, text string) (string, error) {
	e.mu.Lock()
	capability := e.capability
	e.mu.Unlock()
	if capability == platform.CapabilityReadOnly {
		e.recorder.Record(activity.KindError, "manual post refused: credentials are read-only")
		return "", fmt.Errorf("engine: manual post refused: %w", platform.ErrPermissionDenied)
	}

	id, err := e.client.PostStatus(ctx, text)
	if err != nil {
		e.recorder.Recordf(activity.KindError, "manual post failed: %v", err)
		return "", fmt.Errorf("engine: manual post: %w", err)
	}
	e.recorder.Recordf(activity.KindSuccess, "posted status %s", id)
	return id, nil
}

func (e *Engine) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		e.cycle(ctx)
		if !e.wait(ctx) {
			return
		}
	}
}

// wait sleeps one interval, returning false if the loop context was canceled.
func (e *Engine) wait(ctx context.Context) bool {
	timer := time.NewTimer(e.interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (e *Engine) cycle(ctx context.Context) {
	e.mu.Lock()
	cursor := e.cursor
	e.mu.Unlock()

	mentions, err := e.client.FetchMentions(ctx, cursor)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		e.recorder.Recordf(activity.KindError, "fetch mentions failed: %v", err)
		e.log.Error("fetch_mentions_failed", "error", err)
		return
	}

	for _, mention := range mentions {
		if ctx.Err() != nil {
			return
		}
		e.consider(ctx, mention)
	}
}

// consider handles one mention. The cursor advances no matter the outcome, so
// a mention gets at most one reply attempt per run.
func (e *Engine) consider(ctx context.Context, mention platform.Mention) {
	if !e.markSeen(mention.ID) {
		return
	}

	handle, err := e.client.ResolveHandle(ctx, mention.AuthorID)
	if err != nil {
		e.recorder.Recordf(activity.KindError,
			"mention %d: resolve author %s failed: %v", mention.ID, mention.AuthorID, err)
		return
	}

	replyText, ok, err := e.store.Get(ctx, handle)
	if err != nil {
		e.recorder.Recordf(activity.KindError,
			"mention %d: rule lookup for @%s failed: %v", mention.ID, handle, err)
		return
	}
	if !ok {
		e.recorder.Recordf(activity.KindSkipped, "no rule for @%s (mention %d)", handle, mention.ID)
		return
	}

	text := "@" + handle + " " + replyText
	postID, err := e.client.PostReply(ctx, mention.ID, text)
	if err != nil {
		e.recorder.Recordf(activity.KindError,
			"reply to @%s (mention %d) failed: %v", handle, mention.ID, err)
		e.log.Error("post_reply_failed", "mention_id", mention.ID, "handle", handle, "error", err)
		return
	}

	e.mu.Lock()
	e.repliedAt[handle] = e.now()
	e.mu.Unlock()

	e.recorder.Recordf(activity.KindSuccess, "replied to @%s (mention %d, post %s)", handle, mention.ID, postID)
	e.log.Info("replied", "mention_id", mention.ID, "handle", handle, "post_id", postID)
}

// markSeen records the mention id and advances the cursor. It returns false
// when the id was already considered this run.
func (e *Engine) markSeen(id int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if id > e.cursor {
		e.cursor = id
	}
	if _, dup := e.seen[id]; dup {
		return false
	}
	e.seen[id] = struct{}{}
	e.seenOrder = append(e.seenOrder, id)
	if len(e.seenOrder) > seenLimit {
		oldest := e.seenOrder[0]
		e.seenOrder = e.seenOrder[1:]
		delete(e.seen, oldest)
	}
	return true
}
