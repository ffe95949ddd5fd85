// Package backup uploads point-in-time snapshots of the SQLite database to
// S3-compatible storage and prunes old ones.
package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dukerupert/habitual/internal/database"
)

const (
	snapshotExt  = ".db"
	encryptedExt = ".db.enc"
	keyTimestamp = "2006-01-02T150405Z"
)

var ErrDisabled = errors.New("backup not configured")

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Config holds S3-compatible storage and schedule settings.
type Config struct {
	Endpoint   string
	Bucket     string
	Region     string
	AccessKey  string
	SecretKey  string
	Prefix     string
	Passphrase string
	Interval   time.Duration
	Retain     int
}

// State represents the backup manager state.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateDisabled State = "disabled"
	StateError    State = "error"
)

// Status holds the current backup manager status.
type Status struct {
	State      State      `json:"state"`
	LastBackup *time.Time `json:"last_backup,omitempty"`
	LastKey    string     `json:"last_key,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Snapshot describes one uploaded object.
type Snapshot struct {
	Key       string    `json:"key"`
	Size      int64     `json:"size"`
	Encrypted bool      `json:"encrypted"`
	TakenAt   time.Time `json:"taken_at"`
}

// Manager takes snapshots on a schedule. It is disabled unless a bucket is
// configured and the database is SQLite.
type Manager struct {
	mu     sync.RWMutex
	cfg    Config
	status Status
	db     *database.DB
	client s3Client
	logger *slog.Logger
	now    func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

func NewManager(cfg Config, db *database.DB, logger *slog.Logger) *Manager {
	var client s3Client
	if cfg.Bucket != "" && cfg.AccessKey != "" && cfg.SecretKey != "" {
		client = newS3Client(cfg)
	}
	return newManager(cfg, db, client, logger)
}

func newManager(cfg Config, db *database.DB, client s3Client, logger *slog.Logger) *Manager {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	if cfg.Retain <= 0 {
		cfg.Retain = 7
	}
	m := &Manager{
		cfg:    cfg,
		db:     db,
		logger: logger,
		now:    time.Now,
		status: Status{State: StateDisabled},
	}
	if client != nil && db != nil && db.Dialect() == database.SQLite {
		m.client = client
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

// Enabled reports whether snapshots will be taken.
func (m *Manager) Enabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client != nil
}

// Start begins the scheduled backup loop.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.client == nil {
		m.mu.Unlock()
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	interval := m.cfg.Interval
	m.mu.Unlock()

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := m.RunNow(ctx); err != nil {
					m.logger.Error("scheduled backup failed", "error", err)
				}
			}
		}
	}()
}

// Stop gracefully stops the backup manager.
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

// Status returns the current backup status.
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

func (m *Manager) fail(err error) error {
	m.setStatus(Status{State: StateError, Error: err.Error()})
	return err
}

// RunNow writes a consistent copy of the database, uploads it and prunes old
// snapshots past the retention count.
func (m *Manager) RunNow(ctx context.Context) (*Snapshot, error) {
	m.mu.RLock()
	client := m.client
	cfg := m.cfg
	m.mu.RUnlock()
	if client == nil {
		return nil, ErrDisabled
	}

	m.setStatus(Status{State: StateRunning})

	data, err := m.snapshot(ctx)
	if err != nil {
		return nil, m.fail(err)
	}

	takenAt := m.now().UTC()
	key := cfg.Prefix + "snapshot-" + takenAt.Format(keyTimestamp)
	encrypted := cfg.Passphrase != ""
	if encrypted {
		if data, err = Encrypt(data, cfg.Passphrase); err != nil {
			return nil, m.fail(fmt.Errorf("encrypt: %w", err))
		}
		key += encryptedExt
	} else {
		key += snapshotExt
	}

	if _, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}); err != nil {
		return nil, m.fail(fmt.Errorf("upload to s3: %w", err))
	}

	m.logger.Info("backup uploaded", "key", key, "bytes", len(data))
	m.setStatus(Status{State: StateIdle, LastBackup: &takenAt, LastKey: key})

	if err := m.Prune(ctx); err != nil {
		m.logger.Warn("backup prune failed", "error", err)
	}

	return &Snapshot{Key: key, Size: int64(len(data)), Encrypted: encrypted, TakenAt: takenAt}, nil
}

// snapshot uses VACUUM INTO so the copy is consistent while the app keeps writing.
func (m *Manager) snapshot(ctx context.Context) ([]byte, error) {
	dir, err := os.MkdirTemp("", "habitual-backup-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "snapshot.db")
	if _, err := m.db.SQL().ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		return nil, fmt.Errorf("vacuum into: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return data, nil
}

// List returns the snapshots under the configured prefix, newest first.
func (m *Manager) List(ctx context.Context) ([]Snapshot, error) {
	m.mu.RLock()
	client := m.client
	cfg := m.cfg
	m.mu.RUnlock()
	if client == nil {
		return nil, ErrDisabled
	}

	var snaps []Snapshot
	p := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket: aws.String(cfg.Bucket),
		Prefix: aws.String(cfg.Prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		for _, obj := range page.Contents {
			snap, ok := parseKey(aws.ToString(obj.Key), cfg.Prefix)
			if !ok {
				continue
			}
			snap.Size = aws.ToInt64(obj.Size)
			snaps = append(snaps, snap)
		}
	}

	sort.Slice(snaps, func(i, j int) bool { return snaps[i].TakenAt.After(snaps[j].TakenAt) })
	return snaps, nil
}

func parseKey(key, prefix string) (Snapshot, bool) {
	name := strings.TrimPrefix(key, prefix+"snapshot-")
	if name == key {
		return Snapshot{}, false
	}
	snap := Snapshot{Key: key}
	switch {
	case strings.HasSuffix(name, encryptedExt):
		name = strings.TrimSuffix(name, encryptedExt)
		snap.Encrypted = true
	case strings.HasSuffix(name, snapshotExt):
		name = strings.TrimSuffix(name, snapshotExt)
	default:
		return Snapshot{}, false
	}
	t, err := time.Parse(keyTimestamp, name)
	if err != nil {
		return Snapshot{}, false
	}
	snap.TakenAt = t
	return snap, true
}

// Prune deletes snapshots beyond the retention count.
func (m *Manager) Prune(ctx context.Context) error {
	snaps, err := m.List(ctx)
	if err != nil {
		return err
	}

	m.mu.RLock()
	client := m.client
	cfg := m.cfg
	m.mu.RUnlock()

	if len(snaps) <= cfg.Retain {
		return nil
	}
	for _, snap := range snaps[cfg.Retain:] {
		if _, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(cfg.Bucket),
			Key:    aws.String(snap.Key),
		}); err != nil {
			m.logger.Warn("failed to delete snapshot", "key", snap.Key, "error", err)
			continue
		}
		m.logger.Info("pruned snapshot", "key", snap.Key)
	}
	return nil
}

// Fetch downloads a snapshot into w, decrypting it when needed.
func (m *Manager) Fetch(ctx context.Context, key string, w io.Writer) error {
	m.mu.RLock()
	client := m.client
	cfg := m.cfg
	m.mu.RUnlock()
	if client == nil {
		return ErrDisabled
	}

	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("download from s3: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	if strings.HasSuffix(key, encryptedExt) {
		if cfg.Passphrase == "" {
			return fmt.Errorf("snapshot %s is encrypted: passphrase required", key)
		}
		if data, err = Decrypt(data, cfg.Passphrase); err != nil {
			return err
		}
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}
