package snapshot

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dukerupert/foodbridge/internal/database"
	"github.com/dukerupert/foodbridge/internal/model"
	"github.com/dukerupert/foodbridge/internal/store"
)

// mockS3Client implements s3Client for testing.
type mockS3Client struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
	delErr  error
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, _ := io.ReadAll(input.Body)
	m.objects[*input.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*input.Key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *mockS3Client) DeleteObject(_ context.Context, input *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if m.delErr != nil {
		return nil, m.delErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, *input.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockS3Client) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

var testConfig = Config{
	Bucket:        "snaps",
	AccessKey:     "key",
	SecretKey:     "secret",
	Passphrase:    "hunter2",
	RetentionDays: 30,
}

func setupManager(t *testing.T) (*Manager, *mockS3Client) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := NewManager(testConfig, db, store.NewSnapshotStore(db), logger)
	mock := newMockS3()
	m.client = mock
	m.tempDir = t.TempDir()
	return m, mock
}

func TestManagerDisabledWithoutConfig(t *testing.T) {
	m := NewManager(Config{Bucket: "snaps"}, nil, nil, slog.Default())
	if m.Enabled() {
		t.Error("manager should be disabled without credentials")
	}
	if m.Status().State != StateDisabled {
		t.Errorf("state = %q, want %q", m.Status().State, StateDisabled)
	}
	if _, err := m.Run(context.Background()); !errors.Is(err, ErrDisabled) {
		t.Errorf("Run err = %v, want ErrDisabled", err)
	}

	m2 := NewManager(testConfig, nil, nil, slog.Default())
	if m2.Status().State != StateIdle {
		t.Errorf("state = %q, want %q", m2.Status().State, StateIdle)
	}
}

func TestRunUploadsSealedDatabase(t *testing.T) {
	m, mock := setupManager(t)
	ctx := context.Background()

	snap, err := m.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if snap.Status != model.SnapshotCompleted {
		t.Errorf("status = %q, want completed", snap.Status)
	}
	if !strings.HasPrefix(snap.ObjectKey, "snapshots/") || !strings.HasSuffix(snap.ObjectKey, ".db.enc") {
		t.Errorf("object key = %q", snap.ObjectKey)
	}

	sealed, ok := mock.objects[snap.ObjectKey]
	if !ok {
		t.Fatalf("object %q not uploaded", snap.ObjectKey)
	}
	if int64(len(sealed)) != snap.SizeBytes {
		t.Errorf("size = %d, uploaded %d bytes", snap.SizeBytes, len(sealed))
	}

	plain, err := m.Fetch(ctx, snap.ID)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !bytes.HasPrefix(plain, []byte("SQLite format 3")) {
		t.Error("fetched snapshot is not a SQLite database")
	}
	if st := m.Status(); st.State != StateIdle || st.LastSnapshot == nil {
		t.Errorf("status after run = %+v", st)
	}
}

func TestRunRecordsUploadFailure(t *testing.T) {
	m, mock := setupManager(t)
	mock.putErr = errors.New("bucket gone")
	ctx := context.Background()

	if _, err := m.Run(ctx); err == nil {
		t.Fatal("expected upload failure")
	}
	if st := m.Status(); st.State != StateError {
		t.Errorf("state = %q, want error", st.State)
	}

	list, err := m.records.List(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("got %d records, want 1", len(list))
	}
	if list[0].Status != model.SnapshotFailed || !strings.Contains(list[0].Error, "bucket gone") {
		t.Errorf("record = %+v", list[0])
	}
	if _, err := m.Fetch(ctx, list[0].ID); err == nil {
		t.Error("fetch of failed snapshot should error")
	}
}

func TestCleanupRemovesExpiredSnapshots(t *testing.T) {
	m, mock := setupManager(t)
	ctx := context.Background()

	if _, err := m.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := m.Cleanup(ctx); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if mock.count() != 1 {
		t.Fatalf("fresh snapshot removed, %d objects left", mock.count())
	}

	m.now = func() time.Time { return time.Now().UTC().AddDate(0, 0, 31) }
	if err := m.Cleanup(ctx); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if mock.count() != 0 {
		t.Errorf("%d objects left after cleanup", mock.count())
	}
	list, _ := m.records.List(ctx, 10)
	if len(list) != 0 {
		t.Errorf("%d records left after cleanup", len(list))
	}
}

func TestCleanupContinuesPastDeleteErrors(t *testing.T) {
	m, mock := setupManager(t)
	ctx := context.Background()

	if _, err := m.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	mock.delErr = errors.New("denied")
	m.now = func() time.Time { return time.Now().UTC().AddDate(0, 0, 31) }

	if err := m.Cleanup(ctx); err != nil {
		t.Errorf("cleanup should log object errors, got %v", err)
	}
}
