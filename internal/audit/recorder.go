// Package audit records mutating API calls. Entries always go to the audit_logs
// table and optionally to a JSON-lines file that an external collector can tail.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/lanehq/lanehq/internal/config"
	"github.com/lanehq/lanehq/internal/db/models"
)

// Entry is one recorded request.
type Entry struct {
	Timestamp      time.Time              `json:"timestamp"`
	Action         string                 `json:"action"`
	UserID         string                 `json:"user_id,omitempty"`
	OrganizationID string                 `json:"organization_id,omitempty"`
	ResourceType   string                 `json:"resource_type,omitempty"`
	ResourceID     string                 `json:"resource_id,omitempty"`
	IPAddress      string                 `json:"ip_address,omitempty"`
	AuthMethod     string                 `json:"auth_method,omitempty"`
	StatusCode     int                    `json:"status_code,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// Sink is an audit destination.
type Sink interface {
	Write(ctx context.Context, entry *Entry) error
	Close() error
}

// Store is the subset of the audit repository the database sink needs.
type Store interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Recorder fans entries out to every configured sink.
type Recorder struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewRecorder builds a recorder writing to store and, when cfg.File.Path is set, to a file.
func NewRecorder(store Store, cfg config.AuditConfig, logger *slog.Logger) (*Recorder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{logger: logger}
	if store != nil {
		r.sinks = append(r.sinks, NewDBSink(store))
	}
	if cfg.File.Path != "" {
		fs, err := NewFileSink(cfg.File)
		if err != nil {
			return nil, err
		}
		r.sinks = append(r.sinks, fs)
	}
	return r, nil
}

// NewRecorderWithSinks is used by tests and callers that assemble sinks themselves.
func NewRecorderWithSinks(logger *slog.Logger, sinks ...Sink) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{sinks: sinks, logger: logger}
}

// Record writes entry to every sink. A failing sink does not stop the others;
// the joined error is returned.
func (r *Recorder) Record(ctx context.Context, entry *Entry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	var errs []error
	for _, s := range r.sinks {
		if err := s.Write(ctx, entry); err != nil {
			r.logger.Error("audit sink write failed", "action", entry.Action, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink.
func (r *Recorder) Close() error {
	var errs []error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DBSink stores entries in audit_logs.
type DBSink struct {
	store Store
}

// NewDBSink wraps an audit repository.
func NewDBSink(store Store) *DBSink { return &DBSink{store: store} }

// Write implements Sink.
func (d *DBSink) Write(ctx context.Context, e *Entry) error {
	log := &models.AuditLog{
		Action:     e.Action,
		StatusCode: e.StatusCode,
		Metadata:   e.Metadata,
		CreatedAt:  e.Timestamp,
	}
	log.UserID = optional(e.UserID)
	log.OrganizationID = optional(e.OrganizationID)
	log.ResourceType = optional(e.ResourceType)
	log.ResourceID = optional(e.ResourceID)
	log.IPAddress = optional(e.IPAddress)
	log.AuthMethod = optional(e.AuthMethod)
	if err := d.store.CreateAuditLog(ctx, log); err != nil {
		return fmt.Errorf("failed to store audit log: %w", err)
	}
	return nil
}

// Close implements Sink.
func (d *DBSink) Close() error { return nil }

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// FileSink appends entries as JSON lines, rotating by size.
type FileSink struct {
	cfg  config.AuditFileConfig
	file *os.File
	mu   sync.Mutex
}

// NewFileSink opens (or creates) cfg.Path for appending.
func NewFileSink(cfg config.AuditFileConfig) (*FileSink, error) {
	file, err := os.OpenFile(cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}
	return &FileSink{cfg: cfg, file: file}, nil
}

// Write implements Sink.
func (fs *FileSink) Write(_ context.Context, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.cfg.MaxSizeMB > 0 {
		info, err := fs.file.Stat()
		if err == nil && info.Size()+int64(len(data)) > int64(fs.cfg.MaxSizeMB)*1024*1024 {
			if err := fs.rotate(); err != nil {
				return fmt.Errorf("failed to rotate audit log: %w", err)
			}
		}
	}

	if _, err := fs.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// rotate shifts path.N to path.N+1, dropping anything beyond MaxBackups.
func (fs *FileSink) rotate() error {
	if err := fs.file.Close(); err != nil {
		return err
	}
	if fs.cfg.MaxBackups > 0 {
		_ = os.Remove(fmt.Sprintf("%s.%d", fs.cfg.Path, fs.cfg.MaxBackups))
		for i := fs.cfg.MaxBackups - 1; i >= 1; i-- {
			_ = os.Rename(fmt.Sprintf("%s.%d", fs.cfg.Path, i), fmt.Sprintf("%s.%d", fs.cfg.Path, i+1))
		}
		_ = os.Rename(fs.cfg.Path, fs.cfg.Path+".1")
	} else {
		_ = os.Remove(fs.cfg.Path)
	}

	file, err := os.OpenFile(fs.cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	fs.file = file
	return nil
}

// Close implements Sink.
func (fs *FileSink) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.file.Close()
}
