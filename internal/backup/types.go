package backup

import (
	"context"
	"time"
)

// Config controls periodic snapshots of the analysis data.
type Config struct {
	Enabled  bool
	Interval time.Duration
	LocalDir string
	KeepLast int

	// ExtraFiles are sidecar files captured next to each database
	// snapshot, e.g. the baseline history. Missing files are skipped.
	ExtraFiles []string

	// BucketURL enables remote upload when set (s3://bucket/prefix).
	BucketURL string

	S3Endpoint     string
	S3Region       string
	S3AccessKey    string
	S3SecretKey    string
	S3SessionToken string
	S3UseSSL       bool
}

// Snapshotter is the minimal database snapshot contract the manager needs.
type Snapshotter interface {
	DBPath() string
	SnapshotTo(dstPath string) error
}

// Uploader uploads one backup artifact.
type Uploader interface {
	UploadFile(ctx context.Context, localPath string) error
}
