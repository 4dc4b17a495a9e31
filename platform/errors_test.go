package platform

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status int
		want   error
	}{
		{401, ErrUnauthorized},
		{403, ErrPermissionDenied},
		{429, ErrRateLimited},
		{404, ErrNotFound},
		{500, ErrTransient},
		{502, ErrTransient},
	}
	for _, tc := range cases {
		if got := ClassifyStatus(tc.status); !errors.Is(got, tc.want) {
			t.Fatalf("ClassifyStatus(%d) = %v, want %v", tc.status, got, tc.want)
		}
	}
	// 401 and 403 must stay distinct: one is bad credentials, the other a
	// restricted tier.
	if errors.Is(ClassifyStatus(401), ErrPermissionDenied) {
		t.Fatalf("ClassifyStatus(401) unwraps to ErrPermissionDenied")
	}
}

func TestAPIErrorUnwrap(t *testing.T) {
	t.Parallel()

	err := &APIError{Kind: ErrRateLimited, Status: 429, Detail: "too many requests"}
	if !IsRateLimited(err) {
		t.Fatalf("IsRateLimited() = false, want true")
	}
	wrapped := fmt.Errorf("post reply: %w", err)
	if !errors.Is(wrapped, ErrRateLimited) {
		t.Fatalf("errors.Is(wrapped, ErrRateLimited) = false, want true")
	}
}

func TestNormalizeHandle(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"@Alice ":  "alice",
		"BOB":      "bob",
		" @carol":  "carol",
		"dave":     "dave",
		"  @Eve  ": "eve",
	}
	for in, want := range cases {
		if got := NormalizeHandle(in); got != want {
			t.Fatalf("NormalizeHandle(%q) = %q, want %q", in, got, want)
		}
	}
}
