// Package backup takes periodic snapshots of the job database and its
// sidecar files, rotating old copies locally and optionally uploading
// each artifact to an S3 bucket.
package backup

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	defaultInterval = 6 * time.Hour
	defaultKeepLast = 24

	// snapshotStamp is nanosecond-resolved so back-to-back runs never
	// collide, and fixed-width so lexical order is chronological order.
	snapshotStamp = "20060102-150405.000000000"
)

// Manager runs periodic local snapshots and optional remote uploads.
type Manager struct {
	store    Snapshotter
	cfg      Config
	uploader Uploader

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewManager starts the backup loop. It returns nil when backups are
// disabled. The first snapshot is taken immediately so a restart never
// widens the recovery window.
func NewManager(store Snapshotter, cfg Config) (*Manager, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if store == nil {
		return nil, fmt.Errorf("backup: nil snapshotter")
	}
	if strings.TrimSpace(store.DBPath()) == "" {
		return nil, fmt.Errorf("backup: db-path is empty (in-memory store)")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if strings.TrimSpace(cfg.LocalDir) == "" {
		return nil, fmt.Errorf("backup: local-dir is required when backup is enabled")
	}
	if cfg.KeepLast <= 0 {
		cfg.KeepLast = defaultKeepLast
	}
	if err := os.MkdirAll(cfg.LocalDir, 0755); err != nil {
		return nil, fmt.Errorf("backup: create local-dir: %w", err)
	}

	var uploader Uploader
	if strings.TrimSpace(cfg.BucketURL) != "" {
		s3u, err := NewS3Uploader(S3Config{
			BucketURL:    cfg.BucketURL,
			Endpoint:     cfg.S3Endpoint,
			Region:       cfg.S3Region,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			SessionToken: cfg.S3SessionToken,
			UseSSL:       cfg.S3UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("backup: init s3 uploader: %w", err)
		}
		uploader = s3u
	}

	m := &Manager{
		store:    store,
		cfg:      cfg,
		uploader: uploader,
		done:     make(chan struct{}),
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())

	if err := m.RunOnce(m.ctx); err != nil {
		log.Printf("backup: startup snapshot failed: %v", err)
	}

	m.wg.Add(1)
	go m.loop()
	return m, nil
}

func (m *Manager) loop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := m.RunOnce(m.ctx); err != nil {
				log.Printf("backup: periodic snapshot failed: %v", err)
			}
		case <-m.done:
			return
		}
	}
}

// RunOnce captures one snapshot set: the checkpointed database plus any
// configured sidecar files, uploads the artifacts when an uploader is
// configured, then prunes snapshot sets beyond KeepLast.
func (m *Manager) RunOnce(ctx context.Context) error {
	stamp := time.Now().UTC().Format(snapshotStamp)
	dbPath := filepath.Join(m.cfg.LocalDir, fmt.Sprintf("remedyiq-%s.duckdb", stamp))

	if err := m.store.SnapshotTo(dbPath); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	artifacts := []string{dbPath}

	for _, src := range m.cfg.ExtraFiles {
		if strings.TrimSpace(src) == "" {
			continue
		}
		dst := filepath.Join(m.cfg.LocalDir, fmt.Sprintf("remedyiq-%s-%s", stamp, filepath.Base(src)))
		if err := copySidecar(src, dst); err != nil {
			// A sidecar that does not exist yet is not a failed backup.
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("copy sidecar %s: %w", filepath.Base(src), err)
		}
		artifacts = append(artifacts, dst)
	}
	log.Printf("backup: created snapshot set %s (%d artifacts)", stamp, len(artifacts))

	if m.uploader != nil {
		for _, a := range artifacts {
			if err := m.uploader.UploadFile(ctx, a); err != nil {
				return fmt.Errorf("upload %s: %w", filepath.Base(a), err)
			}
		}
		log.Printf("backup: uploaded %d artifacts", len(artifacts))
	}

	if err := pruneSnapshots(m.cfg.LocalDir, m.cfg.KeepLast); err != nil {
		return fmt.Errorf("prune snapshots: %w", err)
	}
	return nil
}

// Stop cancels any in-flight upload and waits for the loop to exit.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.cancel()
		close(m.done)
	})
	m.wg.Wait()
}

func copySidecar(srcPath, dstPath string) error {
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return err
	}
	tmp := dstPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, dstPath)
}

// pruneSnapshots keeps the newest keepLast database snapshots and drops
// older ones together with their sidecar files.
func pruneSnapshots(localDir string, keepLast int) error {
	if keepLast <= 0 {
		return nil
	}

	matches, err := filepath.Glob(filepath.Join(localDir, "remedyiq-*.duckdb"))
	if err != nil {
		return err
	}
	if len(matches) <= keepLast {
		return nil
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i] > matches[j]
	})

	for _, oldPath := range matches[keepLast:] {
		stem := strings.TrimSuffix(oldPath, ".duckdb")
		sidecars, err := filepath.Glob(stem + "-*")
		if err != nil {
			return err
		}
		for _, sc := range sidecars {
			if err := os.Remove(sc); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
		if err := os.Remove(oldPath); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
