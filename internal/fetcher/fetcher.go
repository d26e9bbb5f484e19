package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"

	"github.com/bnema/dnr-filters/internal/models"
)

// UserAgent is sent with every list download
const UserAgent = "dnr-filters/1.0"

// Fetcher retrieves filter lists over HTTP or from the local filesystem
type Fetcher struct {
	client  *http.Client
	fs      afero.Fs
	retries int
	backoff time.Duration
	logger  *log.Logger
}

// Option customizes a Fetcher
type Option func(*Fetcher)

// WithFs sets the filesystem local lists are read from
func WithFs(fs afero.Fs) Option {
	return func(f *Fetcher) { f.fs = fs }
}

// WithClient replaces the HTTP client
func WithClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithBackoff sets the base delay between retries
func WithBackoff(d time.Duration) Option {
	return func(f *Fetcher) { f.backoff = d }
}

// WithLogger logs retries
func WithLogger(l *log.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// New creates a new fetcher from config
func New(cfg models.HTTPConfig, opts ...Option) *Fetcher {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	retries := cfg.Retries
	if retries == 0 {
		retries = 3
	}

	f := &Fetcher{
		client: &http.Client{
			Timeout: timeout,
		},
		fs:      afero.NewOsFs(),
		retries: retries,
		backoff: time.Second,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// IsRemote reports whether source is fetched over HTTP
func IsRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// Fetch returns the content of a list given as URL, file:// URL or path
func (f *Fetcher) Fetch(ctx context.Context, source string) ([]byte, error) {
	if !IsRemote(source) {
		path := strings.TrimPrefix(source, "file://")
		data, err := afero.ReadFile(f.fs, path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		return data, nil
	}

	var lastErr error

	for i := 0; i < f.retries; i++ {
		if i > 0 {
			// Linear backoff
			delay := time.Duration(i) * f.backoff
			if f.logger != nil {
				f.logger.Warn("Fetch failed, retrying", "url", source, "retry", i, "backoff", delay, "err", lastErr)
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		data, err := f.doFetch(ctx, source)
		if err == nil {
			return data, nil
		}
		lastErr = err
	}

	return nil, fmt.Errorf("failed after %d retries: %w", f.retries, lastErr)
}

func (f *Fetcher) doFetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	return io.ReadAll(resp.Body)
}
