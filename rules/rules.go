// Package rules stores the operator-curated mapping from username to canned
// reply text. The backing file is a flat JSON object (lowercase username →
// reply body), human-editable, rewritten atomically on every mutation.
package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyUsername = errors.New("rules: empty username")
	ErrEmptyReply    = errors.New("rules: empty reply text")
	ErrNotFound      = errors.New("rules: rule not found")
	ErrInvalidImport = errors.New("rules: invalid mapping import")
)

// Rule is one username → reply mapping entry.
type Rule struct {
	Username  string `json:"username"`
	ReplyText string `json:"reply_text"`
}

// NormalizeUsername lowercases, trims, and strips a leading "@" so lookups
// and stored keys always agree.
func NormalizeUsername(username string) string {
	username = strings.ToLower(strings.TrimSpace(username))
	return strings.TrimPrefix(username, "@")
}

func validateRule(username, replyText string) (string, string, error) {
	username = NormalizeUsername(username)
	if username == "" {
		return "", "", ErrEmptyUsername
	}
	replyText = strings.TrimSpace(replyText)
	if replyText == "" {
		return "", "", ErrEmptyReply
	}
	return username, replyText, nil
}

// decodeMapping validates that raw is a JSON object whose values are all
// strings, and returns it with normalized keys. Anything else is rejected
// wholesale so a bad import never partially merges.
func decodeMapping(raw []byte) (map[string]string, error) {
	var probe any
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}
	obj, ok := probe.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: top level must be a JSON object", ErrInvalidImport)
	}
	out := make(map[string]string, len(obj))
	for key, value := range obj {
		text, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: value for %q is not a string", ErrInvalidImport, key)
		}
		username, replyText, err := validateRule(key, text)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %q: %v", ErrInvalidImport, key, err)
		}
		out[username] = replyText
	}
	return out, nil
}
