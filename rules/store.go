package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/replyhawk/replyhawk/internal/fsstore"
)

// Store persists the reply mapping to a single JSON file. Mutations take a
// cross-process flock (the CLI and the watch daemon share the file) and
// rewrite the file atomically before returning, so the engine's per-cycle
// reads never observe a torn mapping.
type Store struct {
	path string
	mu   sync.Mutex
}

func NewStore(path string) *Store {
	return &Store{path: strings.TrimSpace(path)}
}

// Path returns the backing file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Get(ctx context.Context, username string) (string, bool, error) {
	if err := ensureNotCanceled(ctx); err != nil {
		return "", false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	mapping, err := s.loadLocked()
	if err != nil {
		return "", false, err
	}
	text, ok := mapping[NormalizeUsername(username)]
	return text, ok, nil
}

func (s *Store) Upsert(ctx context.Context, username, replyText string) error {
	username, replyText, err := validateRule(username, replyText)
	if err != nil {
		return err
	}
	return s.mutate(ctx, func(mapping map[string]string) error {
		mapping[username] = replyText
		return nil
	})
}

func (s *Store) Remove(ctx context.Context, username string) error {
	key := NormalizeUsername(username)
	if key == "" {
		return ErrEmptyUsername
	}
	return s.mutate(ctx, func(mapping map[string]string) error {
		if _, ok := mapping[key]; !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		delete(mapping, key)
		return nil
	})
}

// All returns the full mapping as a copy, safe for the caller to hold across
// store mutations.
func (s *Store) All(ctx context.Context) (map[string]string, error) {
	if err := ensureNotCanceled(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// List returns the mapping as sorted rules for display.
func (s *Store) List(ctx context.Context) ([]Rule, error) {
	mapping, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Rule, 0, len(mapping))
	for username, text := range mapping {
		out = append(out, Rule{Username: username, ReplyText: text})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

// Replace swaps the whole mapping for a validated import. The raw payload is
// checked first; on any validation failure the existing mapping is untouched.
func (s *Store) Replace(ctx context.Context, raw []byte) error {
	incoming, err := decodeMapping(raw)
	if err != nil {
		return err
	}
	if err := ensureNotCanceled(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	lockPath, err := s.lockPath()
	if err != nil {
		return err
	}
	return fsstore.WithLock(ctx, lockPath, func() error {
		return s.saveLocked(incoming)
	})
}

// ExportJSON renders the current mapping pretty-printed, suitable for a
// download that Replace can re-import unchanged.
func (s *Store) ExportJSON(ctx context.Context) ([]byte, error) {
	mapping, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(mapping, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("rules: encode export: %w", err)
	}
	return append(data, '\n'), nil
}

func (s *Store) mutate(ctx context.Context, fn func(mapping map[string]string) error) error {
	if err := ensureNotCanceled(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	lockPath, err := s.lockPath()
	if err != nil {
		return err
	}
	return fsstore.WithLock(ctx, lockPath, func() error {
		mapping, err := s.loadLocked()
		if err != nil {
			return err
		}
		if err := fn(mapping); err != nil {
			return err
		}
		return s.saveLocked(mapping)
	})
}

func (s *Store) loadLocked() (map[string]string, error) {
	mapping := map[string]string{}
	ok, err := fsstore.ReadJSON(s.path, &mapping)
	if err != nil {
		return nil, fmt.Errorf("rules: load %s: %w", s.path, err)
	}
	if !ok {
		return map[string]string{}, nil
	}
	normalized := make(map[string]string, len(mapping))
	for username, text := range mapping {
		key := NormalizeUsername(username)
		if key == "" || strings.TrimSpace(text) == "" {
			continue
		}
		normalized[key] = text
	}
	return normalized, nil
}

func (s *Store) saveLocked(mapping map[string]string) error {
	if err := fsstore.WriteJSONAtomic(s.path, mapping, fsstore.FileOptions{
		DirPerm:  0o700,
		FilePerm: 0o600,
	}); err != nil {
		return fmt.Errorf("rules: save %s: %w", s.path, err)
	}
	return nil
}

func (s *Store) lockPath() (string, error) {
	return fsstore.BuildLockPath(filepath.Join(filepath.Dir(s.path), ".fslocks"), "rules.main")
}

func ensureNotCanceled(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
