// Package blob selects and constructs the blob backend that holds metadata
// documents.
package blob

import (
	"context"
	"fmt"

	"handoff/internal/blob/core"
	"handoff/internal/infra/blob/fs"
	memorystore "handoff/internal/infra/blob/memory"
	infraS3 "handoff/internal/infra/blob/s3"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the interface for blob storage backends.
	Store = core.Store
	// S3Config configures the S3 driver.
	S3Config = infraS3.Config
)

const (
	// DriverFilesystem is the local filesystem driver.
	DriverFilesystem = core.DriverFilesystem
	// DriverS3 is the S3-compatible driver.
	DriverS3 = core.DriverS3
	// DriverMemory is the in-memory test driver.
	DriverMemory = core.DriverMemory
)

var (
	// ErrExists is returned when writing to an occupied key.
	ErrExists = core.ErrExists
	// ErrNotFound is returned when a key holds no blob.
	ErrNotFound = core.ErrNotFound
)

// Config selects a driver and carries its settings.
type Config struct {
	Driver Driver   `toml:"driver" env:"DRIVER"`
	FSRoot string   `toml:"fs_root" env:"FS_ROOT"`
	S3     S3Config `toml:"s3" envPrefix:"S3_"`
}

// Open constructs the configured blob store. The filesystem driver is the default.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverFilesystem:
		return fs.New(cfg.FSRoot)
	case DriverS3:
		return infraS3.New(ctx, cfg.S3)
	case DriverMemory:
		return memorystore.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", cfg.Driver)
	}
}

// NewMemory returns an in-memory blob.Store suitable for tests.
func NewMemory() Store { return memorystore.New() }
