// Package storage persists uploaded product images.
//
// Two drivers are available:
//   - "local"  local filesystem under UPLOAD_DIR (default)
//   - "s3"     S3-compatible object storage (AWS S3, MinIO, R2)
//
// Drivers never overwrite: Create fails with ErrExists when the path is taken.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"serenity-catalog/internal/config"
)

// ErrExists is returned by Create when a file is already stored at path.
var ErrExists = errors.New("storage: file already exists")

// Disk is the filesystem driver interface.
type Disk interface {
	// Create writes r to a new file at path and returns the bytes written.
	Create(ctx context.Context, path string, r io.Reader) (int64, error)

	// Delete removes a file. Returns nil if the file did not exist.
	Delete(ctx context.Context, path string) error

	// URL returns the public URL for path.
	URL(path string) string
}

// NewDisk boots the driver selected by cfg.Disk.
func NewDisk(ctx context.Context, cfg config.StorageConfig) (Disk, error) {
	switch cfg.Disk {
	case "", "local":
		return NewLocalDisk(cfg.UploadDir, cfg.URLPrefix)
	case "s3":
		return NewS3Disk(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("storage: unknown disk %q", cfg.Disk)
	}
}
