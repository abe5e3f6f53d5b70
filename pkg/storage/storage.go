// Package storage abstracts key-value style file storage so repositories can
// run against the local filesystem during development and S3 in deployments.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested path does not exist.
var ErrNotFound = errors.New("not found")

type Storage interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte) error
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Exists(ctx context.Context, path string) (bool, error)
}
