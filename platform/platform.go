// Package platform defines the boundary between the reply engine and the
// social platform it posts to. Implementations live in subpackages; tests use
// in-memory fakes.
package platform

import (
	"context"
	"strings"
)

// Capability is the write tier granted to the authenticated account,
// determined once at startup by probing Me.
type Capability string

const (
	CapabilityUnknown   Capability = "unknown"
	CapabilityReadOnly  Capability = "read_only"
	CapabilityReadWrite Capability = "read_write"
)

// Account is the authenticated identity behind the client.
type Account struct {
	ID       string
	Username string
}

// Mention is one inbound post that references the account. IDs are the
// platform's numeric post ids and order the mention timeline.
type Mention struct {
	ID       int64
	AuthorID string
	Text     string
}

// Client is the platform API surface the engine consumes.
//
// FetchMentions returns mentions with ID strictly greater than sinceID,
// sorted ascending, so callers can advance a forward-only cursor.
// ResolveHandle returns the author's handle normalized to lowercase without
// a leading "@".
type Client interface {
	Me(ctx context.Context) (Account, error)
	FetchMentions(ctx context.Context, sinceID int64) ([]Mention, error)
	ResolveHandle(ctx context.Context, authorID string) (string, error)
	PostReply(ctx context.Context, inReplyToID int64, text string) (string, error)
	PostStatus(ctx context.Context, text string) (string, error)
}

// Probe classifies the account's capability tier from a single Me call. A
// permission-denied response (403) means valid credentials on a read-only
// tier. Anything else, including invalid credentials (401), is returned
// as-is so startup fails with the real cause instead of idling read-only.
func Probe(ctx context.Context, c Client) (Capability, error) {
	_, err := c.Me(ctx)
	if err == nil {
		return CapabilityReadWrite, nil
	}
	if IsPermissionDenied(err) {
		return CapabilityReadOnly, nil
	}
	return CapabilityUnknown, err
}

// NormalizeHandle lowercases and trims a handle and strips a leading "@".
func NormalizeHandle(handle string) string {
	handle = strings.ToLower(strings.TrimSpace(handle))
	return strings.TrimPrefix(handle, "@")
}
