package lanehq

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// ErrStreamFailed is returned when the server ends a stream with an error event.
var ErrStreamFailed = errors.New("lanehq: stream failed")

// frame is one Server-Sent Events message.
type frame struct {
	event string
	id    int64
	data  []byte
}

// readFrames parses an event stream and calls fn for each complete frame.
// Heartbeat comments are skipped.
func readFrames(r io.Reader, fn func(frame) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), 16<<20)

	var (
		cur  frame
		data []string
		seen bool
	)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			if seen {
				cur.data = []byte(strings.Join(data, "\n"))
				if cur.event == "" {
					cur.event = "message"
				}
				if err := fn(cur); err != nil {
					return err
				}
			}
			cur, data, seen = frame{}, nil, false
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			cur.event = value
		case "id":
			cur.id, _ = strconv.ParseInt(value, 10, 64)
		case "data":
			data = append(data, value)
		default:
			continue
		}
		seen = true
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return io.ErrUnexpectedEOF
}

// stream opens path as an event stream and feeds snapshot frames to fn. It
// returns nil when ctx is cancelled.
func (c *Client) stream(ctx context.Context, path string, query url.Values, fn func(frame) error) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("lanehq: open stream %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	err = readFrames(resp.Body, func(f frame) error {
		switch f.event {
		case "snapshot":
			return fn(f)
		case "error":
			return fmt.Errorf("%w: %s", ErrStreamFailed, f.data)
		}
		return nil
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// WatchRoadmap calls fn with the board's current roadmap and again after every
// change, until ctx is cancelled, fn returns an error, or the connection drops.
func (c *Client) WatchRoadmap(ctx context.Context, board string, fn func(*Board) error) error {
	return c.stream(ctx, c.boardPath(board, "roadmap", "stream"), nil, func(f frame) error {
		var b Board
		if err := json.Unmarshal(f.data, &b); err != nil {
			return fmt.Errorf("lanehq: bad roadmap snapshot: %w", err)
		}
		return fn(&b)
	})
}

// WatchChangelog is WatchRoadmap for the organization's changelog.
func (c *Client) WatchChangelog(ctx context.Context, drafts bool, fn func(*Changelog) error) error {
	var q url.Values
	if drafts {
		q = url.Values{"drafts": {"true"}}
	}
	return c.stream(ctx, c.orgPath("changelog", "stream"), q, func(f frame) error {
		var cl Changelog
		if err := json.Unmarshal(f.data, &cl); err != nil {
			return fmt.Errorf("lanehq: bad changelog snapshot: %w", err)
		}
		return fn(&cl)
	})
}
