// Package twitter implements platform.Client against the v2-shaped REST API.
package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/replyhawk/replyhawk/platform"
)

const defaultBaseURL = "https://api.twitter.com"

type Client struct {
	http    *http.Client
	baseURL string
	token   string

	mu   sync.Mutex
	self platform.Account // cached after the first Me call
}

type Options struct {
	// BaseURL overrides the API host, used by tests.
	BaseURL string
	// HTTPClient overrides the transport; a 30s-timeout client is the default.
	HTTPClient *http.Client
}

func New(bearerToken string, opts Options) (*Client, error) {
	token := strings.TrimSpace(bearerToken)
	if token == "" {
		return nil, fmt.Errorf("twitter: empty bearer token")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL := strings.TrimSpace(opts.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}, nil
}

type userData struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type userResponse struct {
	Data *userData `json:"data"`
}

type tweetData struct {
	ID       string `json:"id"`
	Text     string `json:"text,omitempty"`
	AuthorID string `json:"author_id,omitempty"`
}

type mentionsResponse struct {
	Data []tweetData `json:"data"`
}

type createTweetRequest struct {
	Text  string             `json:"text"`
	Reply *createTweetTarget `json:"reply,omitempty"`
}

type createTweetTarget struct {
	InReplyToTweetID string `json:"in_reply_to_tweet_id"`
}

type createTweetResponse struct {
	Data *tweetData `json:"data"`
}

func (c *Client) Me(ctx context.Context) (platform.Account, error) {
	c.mu.Lock()
	if c.self.ID != "" {
		acct := c.self
		c.mu.Unlock()
		return acct, nil
	}
	c.mu.Unlock()

	var out userResponse
	if err := c.get(ctx, "/2/users/me", nil, &out); err != nil {
		return platform.Account{}, err
	}
	if out.Data == nil || strings.TrimSpace(out.Data.ID) == "" {
		return platform.Account{}, fmt.Errorf("twitter: users/me returned no account: %w", platform.ErrTransient)
	}
	acct := platform.Account{
		ID:       out.Data.ID,
		Username: platform.NormalizeHandle(out.Data.Username),
	}
	c.mu.Lock()
	c.self = acct
	c.mu.Unlock()
	return acct, nil
}

func (c *Client) FetchMentions(ctx context.Context, sinceID int64) ([]platform.Mention, error) {
	self, err := c.Me(ctx)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("tweet.fields", "author_id")
	if sinceID > 0 {
		query.Set("since_id", strconv.FormatInt(sinceID, 10))
	}

	var out mentionsResponse
	if err := c.get(ctx, "/2/users/"+url.PathEscape(self.ID)+"/mentions", query, &out); err != nil {
		return nil, err
	}

	mentions := make([]platform.Mention, 0, len(out.Data))
	for _, item := range out.Data {
		id, parseErr := strconv.ParseInt(strings.TrimSpace(item.ID), 10, 64)
		if parseErr != nil {
			return nil, fmt.Errorf("twitter: invalid mention id %q: %w", item.ID, platform.ErrTransient)
		}
		if id <= sinceID {
			continue
		}
		mentions = append(mentions, platform.Mention{
			ID:       id,
			AuthorID: strings.TrimSpace(item.AuthorID),
			Text:     item.Text,
		})
	}
	// The API returns newest first; the engine consumes oldest first so the
	// cursor only moves forward.
	sort.Slice(mentions, func(i, j int) bool { return mentions[i].ID < mentions[j].ID })
	return mentions, nil
}

func (c *Client) ResolveHandle(ctx context.Context, authorID string) (string, error) {
	authorID = strings.TrimSpace(authorID)
	if authorID == "" {
		return "", fmt.Errorf("twitter: empty author id: %w", platform.ErrNotFound)
	}
	var out userResponse
	if err := c.get(ctx, "/2/users/"+url.PathEscape(authorID), nil, &out); err != nil {
		return "", err
	}
	if out.Data == nil || strings.TrimSpace(out.Data.Username) == "" {
		return "", fmt.Errorf("twitter: user %s has no username: %w", authorID, platform.ErrNotFound)
	}
	return platform.NormalizeHandle(out.Data.Username), nil
}

func (c *Client) PostReply(ctx context.Context, inReplyToID int64, text string) (string, error) {
	if inReplyToID <= 0 {
		return "", fmt.Errorf("twitter: invalid reply target id %d", inReplyToID)
	}
	return c.createTweet(ctx, createTweetRequest{
		Text:  text,
		Reply: &createTweetTarget{InReplyToTweetID: strconv.FormatInt(inReplyToID, 10)},
	})
}

func (c *Client) PostStatus(ctx context.Context, text string) (string, error) {
	return c.createTweet(ctx, createTweetRequest{Text: text})
}

func (c *Client) createTweet(ctx context.Context, body createTweetRequest) (string, error) {
	if strings.TrimSpace(body.Text) == "" {
		return "", fmt.Errorf("twitter: empty tweet text")
	}
	var out createTweetResponse
	if err := c.post(ctx, "/2/tweets", body, &out); err != nil {
		return "", err
	}
	if out.Data == nil || strings.TrimSpace(out.Data.ID) == "" {
		return "", fmt.Errorf("twitter: create tweet returned no id: %w", platform.ErrTransient)
	}
	return out.Data.ID, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("twitter: build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("twitter: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("twitter: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("twitter: %s %s: %v: %w", req.Method, req.URL.Path, err, platform.ErrTransient)
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &platform.APIError{
			Kind:   platform.ClassifyStatus(resp.StatusCode),
			Status: resp.StatusCode,
			Detail: strings.TrimSpace(string(raw)),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("twitter: decode %s: %v: %w", req.URL.Path, err, platform.ErrTransient)
	}
	return nil
}
