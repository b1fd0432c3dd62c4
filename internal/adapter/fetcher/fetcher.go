// Package fetcher downloads source documents into the raw directory and
// parses them into page documents.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"taxrag/internal/domain"
	"taxrag/internal/port"
)

// Options configures a Fetcher.
type Options struct {
	RawDir      string
	Timeout     time.Duration
	Concurrency int
	Client      *http.Client // optional; built from Timeout when nil
}

// Fetcher downloads each URL at most once. A file already present under the
// raw directory is reused without validation.
type Fetcher struct {
	client      *http.Client
	rawDir      string
	concurrency int
	parser      port.DocumentParser
	logger      *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(opts Options, parser port.DocumentParser, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Fetcher{
		client:      client,
		rawDir:      opts.RawDir,
		concurrency: concurrency,
		parser:      parser,
		logger:      logger,
		locks:       make(map[string]*sync.Mutex),
	}
}

// SourceError records why a single source could not be loaded.
type SourceError struct {
	URL string
	Err error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s: %v", e.URL, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Fetch downloads (if needed) and parses one URL.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]domain.Document, error) {
	local, err := f.Download(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	docs, err := f.parser.Parse(local, rawURL)
	if err != nil {
		f.logger.Error("Failed to parse document",
			slog.String("url", rawURL),
			slog.String("path", local),
			slog.String("error", err.Error()))
		if domain.KindOf(err) == domain.KindUnknown {
			err = domain.E(domain.KindParse, "fetcher.parse", err)
		}
		return nil, err
	}

	now := time.Now()
	for i := range docs {
		docs[i].FetchedAt = now
	}
	return docs, nil
}

// Download stores the URL's content under the raw directory and returns the
// local path. An existing file short-circuits the request.
func (f *Fetcher) Download(ctx context.Context, rawURL string) (string, error) {
	const op = "fetcher.download"

	name, err := LocalName(rawURL)
	if err != nil {
		f.logger.Error("Invalid source URL",
			slog.String("url", rawURL),
			slog.String("error", err.Error()))
		return "", domain.E(domain.KindInvalidInput, op, err)
	}
	local := filepath.Join(f.rawDir, name)

	lock := f.lockFor(local)
	lock.Lock()
	defer lock.Unlock()

	if _, err := os.Stat(local); err == nil {
		f.logger.Warn("File already exists, skipping download",
			slog.String("url", rawURL),
			slog.String("path", local))
		return local, nil
	}

	if err := os.MkdirAll(f.rawDir, 0755); err != nil {
		return "", domain.E(domain.KindStorage, op, fmt.Errorf("failed to create raw dir: %w", err))
	}

	f.logger.Info("Downloading document", slog.String("url", rawURL))
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", domain.E(domain.KindInvalidInput, op, fmt.Errorf("failed to build request: %w", err))
	}
	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Error("Download failed",
			slog.String("url", rawURL),
			slog.String("error", err.Error()))
		return "", domain.E(domain.KindNetwork, op, fmt.Errorf("failed to download %s: %w", rawURL, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f.logger.Error("Download returned non-success status",
			slog.String("url", rawURL),
			slog.Int("status", resp.StatusCode))
		return "", domain.Errorf(domain.KindNetwork, op, "failed to download %s: status %d", rawURL, resp.StatusCode)
	}

	n, err := writeAtomic(local, resp.Body)
	if err != nil {
		f.logger.Error("Failed to save download",
			slog.String("url", rawURL),
			slog.String("path", local),
			slog.String("error", err.Error()))
		kind := domain.KindNetwork
		var pathErr *os.PathError
		var linkErr *os.LinkError
		if errors.As(err, &pathErr) || errors.As(err, &linkErr) {
			kind = domain.KindStorage
		}
		return "", domain.E(kind, op, err)
	}

	f.logger.Info("Downloaded document",
		slog.String("url", rawURL),
		slog.String("path", local),
		slog.Int64("bytes", n),
		slog.Duration("elapsed", time.Since(start)))
	return local, nil
}

// FetchAll fetches urls concurrently. Documents keep URL order; a failing URL
// does not stop the others.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) ([]domain.Document, []*SourceError) {
	results := make([][]domain.Document, len(urls))
	errs := make([]error, len(urls))

	var g errgroup.Group
	g.SetLimit(f.concurrency)
	for i, u := range urls {
		g.Go(func() error {
			results[i], errs[i] = f.Fetch(ctx, u)
			return nil
		})
	}
	_ = g.Wait()

	var docs []domain.Document
	var failed []*SourceError
	for i, u := range urls {
		if errs[i] != nil {
			failed = append(failed, &SourceError{URL: u, Err: errs[i]})
			continue
		}
		docs = append(docs, results[i]...)
	}
	return docs, failed
}

func (f *Fetcher) lockFor(key string) *sync.Mutex {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.locks[key]
	if !ok {
		l = &sync.Mutex{}
		f.locks[key] = l
	}
	return l
}

// LocalName validates rawURL and returns the file name it is cached under,
// the last segment of its path.
func LocalName(rawURL string) (string, error) {
	if !strings.HasPrefix(rawURL, "http") {
		return "", fmt.Errorf("url must start with http: %q", rawURL)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url has no host: %q", rawURL)
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "", fmt.Errorf("url has no file name: %q", rawURL)
	}
	return name, nil
}

// writeAtomic streams r into a temporary file beside dst and renames it into
// place once complete.
func writeAtomic(dst string, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return n, fmt.Errorf("failed to write %s: %w", dst, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return n, err
	}
	return n, nil
}
