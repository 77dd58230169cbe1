package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver moves a closed day's records to cold storage.
type Archiver interface {
	ArchiveDay(ctx context.Context, day time.Time) (int, error)
}
