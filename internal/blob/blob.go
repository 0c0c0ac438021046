// Package blob selects a blob store driver. Callers outside the blob tree
// depend on Store and never import the driver packages directly.
package blob

import (
	"context"
	"fmt"

	"pharmanet/internal/blob/core"
	"pharmanet/internal/infra/blob/fs"
	memorystore "pharmanet/internal/infra/blob/memory"
	infraS3 "pharmanet/internal/infra/blob/s3"
)

type (
	Driver     = core.Driver
	PutOptions = core.PutOptions
	Info       = core.Info
	Store      = core.Store
	// S3Config configures the S3 driver.
	S3Config = infraS3.Config
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrExists   = core.ErrExists
	ErrNotFound = core.ErrNotFound
)

// Config selects and configures a driver.
type Config struct {
	Driver Driver
	FSRoot string
	S3     S3Config
}

// Open builds the store named by cfg.Driver; the filesystem driver is the
// default.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverFilesystem:
		return fs.New(cfg.FSRoot)
	case DriverMemory:
		return memorystore.New(), nil
	case DriverS3:
		return infraS3.New(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}

// NewMemory returns an in-memory store.
func NewMemory() Store { return memorystore.New() }
