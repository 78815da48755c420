package fetch

import (
	"context"
	"fmt"
	"os"
)

// LocalFetcher reads payloads from the local filesystem. This is primarily
// used for testing and for datasets mirrored to disk.
type LocalFetcher struct{}

// NewLocalFetcher creates a local filesystem fetcher.
func NewLocalFetcher() *LocalFetcher {
	return &LocalFetcher{}
}

// Fetch reads one file. A missing file maps to ErrNotFound.
func (l *LocalFetcher) Fetch(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	return data, nil
}
