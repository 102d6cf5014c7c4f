// Package stream serves live snapshot streams as Server-Sent Events.
//
// A stream sends the current snapshot as soon as the client connects, then a
// fresh snapshot after every change event on its topic. Events carry only a
// revision; the snapshot is always re-read so a client that missed events
// still converges on the latest state.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lanehq/lanehq/internal/live"
)

// Subscriber opens topic subscriptions. Implemented by *live.Hub.
type Subscriber interface {
	Subscribe(topic string) *live.Subscription
}

// Reader loads the current snapshot and its revision.
type Reader func(ctx context.Context) (snapshot interface{}, revision int64, err error)

// Options configures a stream.
type Options struct {
	Topic     string
	Heartbeat time.Duration
}

// Serve streams snapshots until the client disconnects or a read fails.
// The subscription is opened before the first read so no change between the
// initial snapshot and the first event is lost.
func Serve(c *gin.Context, sub Subscriber, opts Options, read Reader, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 30 * time.Second
	}

	s := sub.Subscribe(opts.Topic)
	defer s.Close()

	ctx := c.Request.Context()
	w := c.Writer

	snapshot, last, err := read(ctx)
	if err != nil {
		logger.Error("stream: initial snapshot failed", "topic", opts.Topic, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load snapshot"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := writeSnapshot(w, last, snapshot); err != nil {
		logger.Debug("stream: client went away", "topic", opts.Topic, "error", err)
		return
	}
	w.Flush()

	heartbeat := time.NewTicker(opts.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("stream: client disconnected", "topic", opts.Topic)
			return

		case ev, ok := <-s.Events():
			if !ok {
				return
			}
			if ev.Revision != 0 && ev.Revision <= last {
				continue
			}
			snapshot, rev, err := read(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Warn("stream: snapshot reload failed", "topic", opts.Topic, "error", err)
				_ = writeError(w, "Failed to load snapshot")
				w.Flush()
				return
			}
			if rev < last {
				continue
			}
			last = rev
			if err := writeSnapshot(w, last, snapshot); err != nil {
				logger.Debug("stream: client went away", "topic", opts.Topic, "error", err)
				return
			}
			w.Flush()

		case <-heartbeat.C:
			if _, err := io.WriteString(w, ":\n\n"); err != nil {
				return
			}
			w.Flush()
		}
	}
}

func writeSnapshot(w io.Writer, revision int64, snapshot interface{}) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: snapshot\nid: %d\ndata: %s\n\n", revision, data)
	return err
}

func writeError(w io.Writer, msg string) error {
	data, _ := json.Marshal(gin.H{"error": msg})
	_, err := fmt.Fprintf(w, "event: error\ndata: %s\n\n", data)
	return err
}
