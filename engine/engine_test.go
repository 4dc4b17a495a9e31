package engine

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/replyhawk/replyhawk/activity"
	"github.com/replyhawk/replyhawk/platform"
	"github.com/replyhawk/replyhawk/rules"
)

type postCall struct {
	inReplyTo int64
	text      string
}

// fakeClient serves a fixed mention timeline and records every write.
type fakeClient struct {
	mu sync.Mutex

	meErr    error
	timeline []platform.Mention
	handles  map[string]string
	postErr  map[int64]error

	fetchCalls int
	posts      []postCall
	statuses   []string
	statusErr  error
}

func (f *fakeClient) Me(ctx context.Context) (platform.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.meErr != nil {
		return platform.Account{}, f.meErr
	}
	return platform.Account{ID: "42", Username: "hawkbot"}, nil
}

func (f *fakeClient) FetchMentions(ctx context.Context, sinceID int64) ([]platform.Mention, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	var out []platform.Mention
	for _, m := range f.timeline {
		if m.ID > sinceID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeClient) ResolveHandle(ctx context.Context, authorID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	handle, ok := f.handles[authorID]
	if !ok {
		return "", &platform.APIError{Kind: platform.ErrNotFound, Status: 404}
	}
	return handle, nil
}

func (f *fakeClient) PostReply(ctx context.Context, inReplyToID int64, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, postCall{inReplyTo: inReplyToID, text: text})
	if err := f.postErr[inReplyToID]; err != nil {
		return "", err
	}
	return "900", nil
}

func (f *fakeClient) PostStatus(ctx context.Context, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return "", f.statusErr
	}
	f.statuses = append(f.statuses, text)
	return "901", nil
}

func (f *fakeClient) addMention(m platform.Mention) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeline = append(f.timeline, m)
}

func (f *fakeClient) snapshot() (int, []postCall) {
	f.mu.Lock()
	defer f.mu.Unlock()
	posts := make([]postCall, len(f.posts))
	copy(posts, f.posts)
	return f.fetchCalls, posts
}

func newTestEngine(t *testing.T, client *fakeClient) (*Engine, *rules.Store, *activity.Recorder) {
	t.Helper()
	store := rules.NewStore(filepath.Join(t.TempDir(), "replies.json"))
	recorder := activity.NewRecorder()
	e := New(client, store, recorder, Options{Interval: 2 * time.Millisecond})
	t.Cleanup(e.Stop)
	return e, store, recorder
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func hasEvent(recorder *activity.Recorder, kind activity.Kind, substr string) bool {
	for _, ev := range recorder.Recent(200) {
		if ev.Kind == kind && strings.Contains(ev.Message, substr) {
			return true
		}
	}
	return false
}

func countEvents(recorder *activity.Recorder, kind activity.Kind, substr string) int {
	n := 0
	for _, ev := range recorder.Recent(200) {
		if ev.Kind == kind && strings.Contains(ev.Message, substr) {
			n++
		}
	}
	return n
}

func TestMatchedMentionGetsExactlyOneReply(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		timeline: []platform.Mention{{ID: 100, AuthorID: "7", Text: "@hawkbot hi"}},
		handles:  map[string]string{"7": "alice"},
	}
	e, store, recorder := newTestEngine(t, client)
	if err := store.Upsert(context.Background(), "alice", "thanks for reaching out!"); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, "reply to alice", func() bool {
		_, posts := client.snapshot()
		return len(posts) >= 1
	})
	// Let several more cycles run to prove the mention is not re-replied.
	waitFor(t, "extra poll cycles", func() bool {
		fetches, _ := client.snapshot()
		return fetches >= 4
	})

	_, posts := client.snapshot()
	if len(posts) != 1 {
		t.Fatalf("posts = %d, want exactly 1", len(posts))
	}
	if posts[0].inReplyTo != 100 || posts[0].text != "@alice thanks for reaching out!" {
		t.Fatalf("post = %+v", posts[0])
	}
	if !hasEvent(recorder, activity.KindSuccess, "replied to @alice") {
		t.Fatalf("no success event for alice: %v", recorder.Recent(20))
	}
	if snap := e.Snapshot(); snap.Cursor != 100 || snap.State != StateRunning {
		t.Fatalf("Snapshot() = %+v", snap)
	}
	if got := e.Status("alice"); got != StatusReplied {
		t.Fatalf("Status(alice) = %s, want replied", got)
	}
}

func TestUnmatchedMentionIsSkipped(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		timeline: []platform.Mention{{ID: 101, AuthorID: "8", Text: "@hawkbot yo"}},
		handles:  map[string]string{"8": "bob"},
	}
	e, _, recorder := newTestEngine(t, client)

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, "skip event for bob", func() bool {
		return hasEvent(recorder, activity.KindSkipped, "no rule for @bob")
	})

	_, posts := client.snapshot()
	if len(posts) != 0 {
		t.Fatalf("posts = %d, want 0", len(posts))
	}
	if snap := e.Snapshot(); snap.Cursor != 101 {
		t.Fatalf("Snapshot().Cursor = %d, want 101", snap.Cursor)
	}
	if got := e.Status("bob"); got != StatusNew {
		t.Fatalf("Status(bob) = %s, want new", got)
	}
}

func TestReadOnlyCredentialsDisableLoop(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		meErr:    &platform.APIError{Kind: platform.ErrPermissionDenied, Status: 403},
		timeline: []platform.Mention{{ID: 100, AuthorID: "7"}},
		handles:  map[string]string{"7": "alice"},
	}
	e, _, recorder := newTestEngine(t, client)

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	fetches, posts := client.snapshot()
	if fetches != 0 || len(posts) != 0 {
		t.Fatalf("read-only engine made calls: fetches=%d posts=%d", fetches, len(posts))
	}
	if !hasEvent(recorder, activity.KindInfo, "read-only") {
		t.Fatalf("no read-only info event: %v", recorder.Recent(20))
	}
	snap := e.Snapshot()
	if snap.State != StateStopped || snap.Capability != platform.CapabilityReadOnly {
		t.Fatalf("Snapshot() = %+v", snap)
	}
}

func TestInvalidCredentialsFailStartup(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		meErr:    &platform.APIError{Kind: platform.ErrUnauthorized, Status: 401},
		timeline: []platform.Mention{{ID: 100, AuthorID: "7"}},
		handles:  map[string]string{"7": "alice"},
	}
	e, _, recorder := newTestEngine(t, client)

	if err := e.Start(context.Background()); !platform.IsUnauthorized(err) {
		t.Fatalf("Start() error = %v, want ErrUnauthorized", err)
	}
	if !hasEvent(recorder, activity.KindError, "probe failed") {
		t.Fatalf("no probe error event: %v", recorder.Recent(20))
	}

	time.Sleep(20 * time.Millisecond)
	fetches, posts := client.snapshot()
	if fetches != 0 || len(posts) != 0 {
		t.Fatalf("engine made calls after failed probe: fetches=%d posts=%d", fetches, len(posts))
	}
	snap := e.Snapshot()
	if snap.State != StateStopped || snap.Capability != platform.CapabilityUnknown {
		t.Fatalf("Snapshot() = %+v", snap)
	}
}

func TestProbeFailurePropagates(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		meErr: &platform.APIError{Kind: platform.ErrRateLimited, Status: 429},
	}
	e, _, recorder := newTestEngine(t, client)

	if err := e.Start(context.Background()); !platform.IsRateLimited(err) {
		t.Fatalf("Start() error = %v, want ErrRateLimited", err)
	}
	if !hasEvent(recorder, activity.KindError, "probe failed") {
		t.Fatalf("no probe error event: %v", recorder.Recent(20))
	}
}

func TestRateLimitedReplyIsNotRetried(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		timeline: []platform.Mention{{ID: 102, AuthorID: "9", Text: "@hawkbot hey"}},
		handles:  map[string]string{"9": "carol"},
		postErr: map[int64]error{
			102: &platform.APIError{Kind: platform.ErrRateLimited, Status: 429},
		},
	}
	e, store, recorder := newTestEngine(t, client)
	if err := store.Upsert(context.Background(), "carol", "hello"); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, "error event for carol", func() bool {
		return hasEvent(recorder, activity.KindError, "reply to @carol")
	})
	waitFor(t, "extra poll cycles", func() bool {
		fetches, _ := client.snapshot()
		return fetches >= 4
	})

	_, posts := client.snapshot()
	if len(posts) != 1 {
		t.Fatalf("posts = %d, want exactly 1 attempt", len(posts))
	}
	if snap := e.Snapshot(); snap.Cursor != 102 {
		t.Fatalf("Snapshot().Cursor = %d, want 102", snap.Cursor)
	}
}

func TestRuleEditsAreNotRetroactive(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		timeline: []platform.Mention{{ID: 103, AuthorID: "5", Text: "@hawkbot first"}},
		handles:  map[string]string{"5": "dave"},
	}
	e, store, recorder := newTestEngine(t, client)

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, "skip event for dave", func() bool {
		return hasEvent(recorder, activity.KindSkipped, "no rule for @dave")
	})

	// Add the rule after mention 103 was already considered, then a fresh
	// mention from the same author.
	if err := store.Upsert(context.Background(), "dave", "welcome back"); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	client.addMention(platform.Mention{ID: 104, AuthorID: "5", Text: "@hawkbot again"})

	waitFor(t, "reply to mention 104", func() bool {
		_, posts := client.snapshot()
		return len(posts) >= 1
	})

	_, posts := client.snapshot()
	if len(posts) != 1 {
		t.Fatalf("posts = %d, want 1", len(posts))
	}
	if posts[0].inReplyTo != 104 {
		t.Fatalf("replied to mention %d, want 104", posts[0].inReplyTo)
	}
	if posts[0].text != "@dave welcome back" {
		t.Fatalf("post text = %q", posts[0].text)
	}
}

func TestResolveFailureRecordsErrorAndAdvances(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		timeline: []platform.Mention{{ID: 105, AuthorID: "unknown", Text: "@hawkbot ?"}},
		handles:  map[string]string{},
	}
	e, _, recorder := newTestEngine(t, client)

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, "resolve error event", func() bool {
		return hasEvent(recorder, activity.KindError, "resolve author unknown")
	})
	if snap := e.Snapshot(); snap.Cursor != 105 {
		t.Fatalf("Snapshot().Cursor = %d, want 105", snap.Cursor)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	t.Parallel()

	client := &fakeClient{handles: map[string]string{}}
	e, _, recorder := newTestEngine(t, client)

	for i := 0; i < 3; i++ {
		if err := e.Start(context.Background()); err != nil {
			t.Fatalf("Start() #%d error = %v", i, err)
		}
	}
	if got := countEvents(recorder, activity.KindInfo, "engine started"); got != 1 {
		t.Fatalf("started events = %d, want 1", got)
	}
}

func TestStopInterruptsWait(t *testing.T) {
	t.Parallel()

	client := &fakeClient{handles: map[string]string{}}
	store := rules.NewStore(filepath.Join(t.TempDir(), "replies.json"))
	recorder := activity.NewRecorder()
	e := New(client, store, recorder, Options{Interval: time.Hour})

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, "first poll cycle", func() bool {
		fetches, _ := client.snapshot()
		return fetches >= 1
	})

	begin := time.Now()
	e.Stop()
	if elapsed := time.Since(begin); elapsed > time.Second {
		t.Fatalf("Stop() took %s, want prompt cancel", elapsed)
	}
	if snap := e.Snapshot(); snap.State != StateStopped {
		t.Fatalf("Snapshot().State = %s, want stopped", snap.State)
	}
	// Stopping again is a no-op.
	e.Stop()
}

func TestManualPost(t *testing.T) {
	t.Parallel()

	client := &fakeClient{handles: map[string]string{}}
	e, _, recorder := newTestEngine(t, client)

	id, err := e.Post(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if id != "901" {
		t.Fatalf("Post() id = %q, want 901", id)
	}
	if !hasEvent(recorder, activity.KindSuccess, "posted status") {
		t.Fatalf("no success event: %v", recorder.Recent(20))
	}

	client.mu.Lock()
	client.statusErr = &platform.APIError{Kind: platform.ErrPermissionDenied, Status: 403}
	client.mu.Unlock()

	if _, err := e.Post(context.Background(), "nope"); !platform.IsPermissionDenied(err) {
		t.Fatalf("Post() error = %v, want ErrPermissionDenied", err)
	}
	if !hasEvent(recorder, activity.KindError, "manual post failed") {
		t.Fatalf("no error event: %v", recorder.Recent(20))
	}
}

func TestManualPostRefusedWhenReadOnly(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		meErr: &platform.APIError{Kind: platform.ErrPermissionDenied, Status: 403},
	}
	e, _, recorder := newTestEngine(t, client)

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	_, err := e.Post(context.Background(), "hello world")
	if !platform.IsPermissionDenied(err) {
		t.Fatalf("Post() error = %v, want ErrPermissionDenied", err)
	}
	client.mu.Lock()
	attempted := len(client.statuses)
	client.mu.Unlock()
	if attempted != 0 {
		t.Fatalf("PostStatus called %d times on read-only account, want 0", attempted)
	}
	if !hasEvent(recorder, activity.KindError, "manual post refused") {
		t.Fatalf("no refusal event: %v", recorder.Recent(20))
	}
}
