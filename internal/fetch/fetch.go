// Package fetch provides payload retrieval for dataset roots, indexes and
// chunk files. Implementations cover HTTP(S), S3 and the local filesystem;
// the engine treats all of them as the same capability: bytes or a failure.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang/snappy"
)

// Common errors for fetch operations.
var (
	ErrNotFound    = errors.New("object not found")
	ErrFetchFailed = errors.New("fetch failed")
)

// Fetcher retrieves one payload by path. Paths are interpreted by the
// implementation: URL paths for HTTP, object keys for S3, file paths for
// the local fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// Get fetches a payload and transparently decompresses it when the path
// carries the snappy suffix used by the publishing pipeline.
func Get(ctx context.Context, f Fetcher, path string) ([]byte, error) {
	data, err := f.Fetch(ctx, path)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(path, ".sz") {
		decoded, err := snappy.Decode(nil, data)
		if err != nil {
			return nil, fmt.Errorf("%w: snappy decode %s: %v", ErrFetchFailed, path, err)
		}
		return decoded, nil
	}
	return data, nil
}

// ForRoot returns a fetcher appropriate for a dataset root URL together
// with the root path rewritten into the fetcher's own path space.
// Supported schemes: http, https, s3, and bare filesystem paths.
func ForRoot(ctx context.Context, root string, s3cfg S3Config) (Fetcher, string, error) {
	u, err := url.Parse(root)
	if err != nil {
		return nil, "", fmt.Errorf("invalid dataset root %q: %w", root, err)
	}
	switch u.Scheme {
	case "http", "https":
		return NewHTTPFetcher(nil), root, nil
	case "s3":
		f, err := NewS3Fetcher(ctx, u.Host, s3cfg)
		if err != nil {
			return nil, "", err
		}
		return f, strings.TrimPrefix(u.Path, "/"), nil
	case "", "file":
		return NewLocalFetcher(), strings.TrimPrefix(root, "file://"), nil
	default:
		return nil, "", fmt.Errorf("unsupported dataset root scheme %q", u.Scheme)
	}
}

// WithTimeout wraps a fetcher so every request carries its own deadline.
func WithTimeout(f Fetcher, d time.Duration) Fetcher {
	if d <= 0 {
		return f
	}
	return &timeoutFetcher{inner: f, d: d}
}

type timeoutFetcher struct {
	inner Fetcher
	d     time.Duration
}

func (t *timeoutFetcher) Fetch(ctx context.Context, path string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.inner.Fetch(ctx, path)
}

// Sibling resolves a file reference from a manifest against the dataset
// root path: references are relative to the root payload's directory.
func Sibling(root, ref string) string {
	idx := strings.LastIndexByte(root, '/')
	if idx < 0 {
		return ref
	}
	return root[:idx+1] + ref
}
