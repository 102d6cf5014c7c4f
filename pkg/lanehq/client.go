package lanehq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// Client calls the lanehq API for one organization.
type Client struct {
	baseURL string
	org     string
	token   string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the HTTP client. Streams need a client without an
// overall timeout; the default has none and bounds requests by context instead.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient creates a client for org at baseURL (for example https://lanehq.example.com).
func NewClient(baseURL, org string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		org:     org,
		http:    &http.Client{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Organization returns the organization slug the client is bound to.
func (c *Client) Organization() string { return c.org }

func (c *Client) orgPath(parts ...string) string {
	segs := append([]string{"api", "v1", "orgs", url.PathEscape(c.org)}, parts...)
	return "/" + strings.Join(segs, "/")
}

func (c *Client) boardPath(board string, parts ...string) string {
	return c.orgPath(append([]string{"boards", url.PathEscape(board)}, parts...)...)
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body interface{}) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		rd = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// do sends the request and decodes a 2xx JSON body into out, which may be nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTimeout)
		defer cancel()
	}

	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("lanehq: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("lanehq: failed to decode %s response: %w", path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var body struct {
		Error string `json:"error"`
		State string `json:"state"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err == nil {
		apiErr.Message = body.Error
		apiErr.State = body.State
	}
	return apiErr
}

// Lanes returns the board's lane layout in column order.
func (c *Client) Lanes(ctx context.Context, board string) ([]Lane, error) {
	var out struct {
		Lanes []Lane `json:"lanes"`
	}
	if err := c.do(ctx, http.MethodGet, c.boardPath(board, "lanes"), nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Lanes, nil
}

// Roadmap returns the current roadmap. lanes, when given, limits the columns.
func (c *Client) Roadmap(ctx context.Context, board string, lanes ...string) (*Board, error) {
	var q url.Values
	if len(lanes) > 0 {
		q = url.Values{"lanes": {strings.Join(lanes, ",")}}
	}
	var out Board
	if err := c.do(ctx, http.MethodGet, c.boardPath(board, "roadmap"), q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Move submits a drop. Needs the roadmap:write scope.
func (c *Client) Move(ctx context.Context, board string, drop Drop) (*MoveAck, error) {
	var out MoveAck
	if err := c.do(ctx, http.MethodPost, c.boardPath(board, "roadmap", "moves"), nil, drop, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListFeedback lists items on the board, optionally limited to one status.
func (c *Client) ListFeedback(ctx context.Context, board, status string, page, perPage int) ([]*Item, int, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if page > 0 {
		q.Set("page", fmt.Sprint(page))
	}
	if perPage > 0 {
		q.Set("per_page", fmt.Sprint(perPage))
	}
	var out struct {
		Feedback   []*Item `json:"feedback"`
		Pagination struct {
			Total int `json:"total"`
		} `json:"pagination"`
	}
	if err := c.do(ctx, http.MethodGet, c.boardPath(board, "feedback"), q, nil, &out); err != nil {
		return nil, 0, err
	}
	return out.Feedback, out.Pagination.Total, nil
}

// CreateFeedback files a new item. It lands at the end of the first lane.
func (c *Client) CreateFeedback(ctx context.Context, board, title, description string) (*Item, int64, error) {
	in := map[string]string{"title": title, "description": description}
	var out struct {
		Feedback *Item `json:"feedback"`
		Revision int64 `json:"revision"`
	}
	if err := c.do(ctx, http.MethodPost, c.boardPath(board, "feedback"), nil, in, &out); err != nil {
		return nil, 0, err
	}
	return out.Feedback, out.Revision, nil
}

// Upvote adds one vote and returns the new count.
func (c *Client) Upvote(ctx context.Context, board, itemID string) (int, error) {
	var out struct {
		VoteCount int `json:"vote_count"`
	}
	if err := c.do(ctx, http.MethodPost, c.boardPath(board, "feedback", url.PathEscape(itemID), "vote"), nil, nil, &out); err != nil {
		return 0, err
	}
	return out.VoteCount, nil
}

// Changelog returns the organization's changelog. Drafts are included only when
// asked for and the token holds releases:write.
func (c *Client) Changelog(ctx context.Context, drafts bool) (*Changelog, error) {
	var q url.Values
	if drafts {
		q = url.Values{"drafts": {"true"}}
	}
	var out Changelog
	if err := c.do(ctx, http.MethodGet, c.orgPath("changelog"), q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateRelease adds a draft release.
func (c *Client) CreateRelease(ctx context.Context, title, notes string) (*Release, error) {
	var out Release
	in := map[string]string{"title": title, "notes": notes}
	if err := c.do(ctx, http.MethodPost, c.orgPath("releases"), nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PublishRelease publishes a draft.
func (c *Client) PublishRelease(ctx context.Context, releaseID string) (*Release, error) {
	var out Release
	if err := c.do(ctx, http.MethodPost, c.orgPath("releases", url.PathEscape(releaseID), "publish"), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ShipFeedback attaches a feedback item to a release.
func (c *Client) ShipFeedback(ctx context.Context, releaseID, feedbackID string) error {
	in := map[string]string{"feedback_id": feedbackID}
	return c.do(ctx, http.MethodPost, c.orgPath("releases", url.PathEscape(releaseID), "items"), nil, in, nil)
}
