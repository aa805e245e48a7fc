// Package snapshot uploads encrypted copies of the database to S3-compatible
// storage.
package snapshot

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/dukerupert/foodbridge/internal/model"
	"github.com/dukerupert/foodbridge/internal/store"
)

// ErrDisabled is returned when storage credentials or the passphrase are
// missing.
var ErrDisabled = errors.New("snapshots not configured")

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type Config struct {
	Endpoint      string
	Bucket        string
	Region        string
	AccessKey     string
	SecretKey     string
	Passphrase    string
	Interval      time.Duration
	RetentionDays int
}

func (c Config) enabled() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != "" && c.Passphrase != ""
}

type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateDisabled State = "disabled"
	StateError    State = "error"
)

type Status struct {
	State        State      `json:"state"`
	LastSnapshot *time.Time `json:"last_snapshot,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// Manager runs snapshots on demand and, when an interval is configured, on a
// schedule.
type Manager struct {
	mu     sync.RWMutex
	runMu  sync.Mutex
	cfg    Config
	status Status

	db      *sql.DB
	records *store.SnapshotStore
	client  s3Client
	logger  *slog.Logger
	now     func() time.Time
	tempDir string
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewManager(cfg Config, db *sql.DB, records *store.SnapshotStore, logger *slog.Logger) *Manager {
	m := &Manager{
		cfg:     cfg,
		db:      db,
		records: records,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		tempDir: os.TempDir(),
		status:  Status{State: StateDisabled},
	}
	if cfg.enabled() {
		m.client = newS3Client(cfg)
		m.status.State = StateIdle
	}
	return m
}

func newS3Client(cfg Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Enabled reports whether snapshots can run.
func (m *Manager) Enabled() bool {
	return m.client != nil
}

// Start begins the scheduled snapshot loop. It is a no-op when disabled or
// when no interval is configured.
func (m *Manager) Start(ctx context.Context) {
	if !m.Enabled() || m.cfg.Interval <= 0 {
		return
	}
	m.mu.Lock()
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	m.mu.Unlock()

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.scheduled(ctx)
			}
		}
	}()
	m.logger.Info("snapshot scheduler started", "interval", m.cfg.Interval)
}

// Stop cancels the loop and waits for an in-flight snapshot to finish.
func (m *Manager) Stop() {
	m.mu.RLock()
	cancel := m.cancel
	done := m.done
	m.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}

func (m *Manager) scheduled(ctx context.Context) {
	if _, err := m.Run(ctx); err != nil {
		m.logger.Error("scheduled snapshot failed", "error", err)
	}
	if err := m.Cleanup(ctx); err != nil {
		m.logger.Error("snapshot cleanup failed", "error", err)
	}
}

// Run copies the database with VACUUM INTO, seals it and uploads it. Runs are
// serialized.
func (m *Manager) Run(ctx context.Context) (*model.Snapshot, error) {
	if !m.Enabled() {
		return nil, ErrDisabled
	}
	m.runMu.Lock()
	defer m.runMu.Unlock()

	started := m.now()
	key := fmt.Sprintf("snapshots/%s-%s.db.enc", started.Format("20060102T150405Z"), uuid.NewString())

	record, err := m.records.Create(ctx, key)
	if err != nil {
		m.setStatus(Status{State: StateError, Error: err.Error()})
		return nil, fmt.Errorf("create snapshot record: %w", err)
	}
	m.setStatus(Status{State: StateRunning, LastSnapshot: m.Status().LastSnapshot})

	size, err := m.upload(ctx, record.ID, key)
	if err != nil {
		if uerr := m.records.UpdateStatus(ctx, record.ID, model.SnapshotFailed, err.Error()); uerr != nil {
			m.logger.Error("mark snapshot failed", "id", record.ID, "error", uerr)
		}
		m.setStatus(Status{State: StateError, Error: err.Error()})
		return nil, err
	}

	if err := m.records.UpdateCompleted(ctx, record.ID, size); err != nil {
		return nil, fmt.Errorf("mark snapshot completed: %w", err)
	}
	finished := m.now()
	m.setStatus(Status{State: StateIdle, LastSnapshot: &finished})
	m.logger.Info("snapshot uploaded", "id", record.ID, "key", key, "bytes", size)

	return m.records.GetByID(ctx, record.ID)
}

func (m *Manager) upload(ctx context.Context, id int64, key string) (int64, error) {
	if err := m.records.UpdateStatus(ctx, id, model.SnapshotUploading, ""); err != nil {
		return 0, fmt.Errorf("mark snapshot uploading: %w", err)
	}

	copyPath := filepath.Join(m.tempDir, fmt.Sprintf("foodbridge-snapshot-%d.db", id))
	defer os.Remove(copyPath)

	if _, err := m.db.ExecContext(ctx, "VACUUM INTO ?", copyPath); err != nil {
		return 0, fmt.Errorf("vacuum into: %w", err)
	}
	plain, err := os.ReadFile(copyPath)
	if err != nil {
		return 0, fmt.Errorf("read database copy: %w", err)
	}

	sealed, err := Seal(plain, m.cfg.Passphrase)
	if err != nil {
		return 0, fmt.Errorf("encrypt: %w", err)
	}

	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(sealed),
		ContentLength: aws.Int64(int64(len(sealed))),
	})
	if err != nil {
		return 0, fmt.Errorf("upload to s3: %w", err)
	}
	return int64(len(sealed)), nil
}

// Fetch downloads a snapshot and returns the decrypted database bytes.
func (m *Manager) Fetch(ctx context.Context, id int64) ([]byte, error) {
	if !m.Enabled() {
		return nil, ErrDisabled
	}
	record, err := m.records.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	if record == nil || record.Status != model.SnapshotCompleted {
		return nil, fmt.Errorf("snapshot %d not available", id)
	}

	out, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.cfg.Bucket),
		Key:    aws.String(record.ObjectKey),
	})
	if err != nil {
		return nil, fmt.Errorf("download from s3: %w", err)
	}
	defer out.Body.Close()

	sealed, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read snapshot body: %w", err)
	}
	return Open(sealed, m.cfg.Passphrase)
}

// Cleanup removes records and objects older than the retention period. A
// failed object delete is logged and does not stop the sweep.
func (m *Manager) Cleanup(ctx context.Context) error {
	if !m.Enabled() || m.cfg.RetentionDays <= 0 {
		return nil
	}
	cutoff := m.now().AddDate(0, 0, -m.cfg.RetentionDays)

	keys, err := m.records.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("delete old snapshot records: %w", err)
	}
	for _, key := range keys {
		if _, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(m.cfg.Bucket),
			Key:    aws.String(key),
		}); err != nil {
			m.logger.Warn("delete snapshot object", "key", key, "error", err)
		}
	}
	if len(keys) > 0 {
		m.logger.Info("old snapshots removed", "count", len(keys))
	}
	return nil
}
