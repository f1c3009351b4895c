// Package fetch downloads one remote file to local disk with retries,
// rate limiting and one circuit breaker per remote host.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/couchcryptid/noaa-ingest/internal/config"
	"github.com/couchcryptid/noaa-ingest/internal/domain"
	"github.com/couchcryptid/noaa-ingest/internal/observability"
	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const chunkSize = 32 * 1024

var (
	// ErrBadStatus wraps every non-2xx response.
	ErrBadStatus = errors.New("unexpected status code")
	// ErrCircuitOpen is returned while the breaker rejects requests.
	ErrCircuitOpen = errors.New("circuit breaker open")
)

// StatusError carries the HTTP status of a failed request.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string { return fmt.Sprintf("%s: %d", ErrBadStatus, e.Code) }
func (e *StatusError) Unwrap() error { return ErrBadStatus }

// Retryable reports whether another attempt could succeed. Client errors
// other than 408 and 429 are permanent.
func (e *StatusError) Retryable() bool {
	if e.Code == http.StatusRequestTimeout || e.Code == http.StatusTooManyRequests {
		return true
	}
	return e.Code >= 500
}

// ProgressFunc observes bytes streamed for a task. total is -1 when the
// server did not send a Content-Length.
type ProgressFunc func(task domain.DownloadTask, received, total int64)

// Options controls timeouts and resilience.
type Options struct {
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	RateLimit      float64 // requests per second, 0 disables the limiter
}

// OptionsFromConfig maps the fetch settings out of the process config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Timeout:        cfg.FetchTimeout,
		MaxRetries:     cfg.FetchMaxRetries,
		InitialBackoff: cfg.FetchInitialBackoff,
		MaxBackoff:     cfg.FetchMaxBackoff,
		RateLimit:      cfg.FetchRateLimit,
	}
}

// Fetcher streams remote files to disk. It is safe for concurrent use.
type Fetcher struct {
	client   *http.Client
	opts     Options
	limiter  *rate.Limiter
	progress ProgressFunc
	metrics  *observability.Metrics
	logger   *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// New creates a Fetcher. A nil progress func uses the default observer,
// which logs at debug level.
func New(opts Options, progress ProgressFunc, metrics *observability.Metrics, logger *slog.Logger) *Fetcher {
	logger = logger.With("component", "fetcher")
	f := &Fetcher{
		client:   &http.Client{},
		opts:     opts,
		metrics:  metrics,
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
	if opts.RateLimit > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	if progress == nil {
		progress = f.logProgress
	}
	f.progress = progress
	return f
}

// Fetch downloads task.SourceURL to task.DestinationPath. The body is
// streamed to a ".part" file that is renamed into place only once complete.
// Fetch never returns an error; failures are reported in the result.
func (f *Fetcher) Fetch(ctx context.Context, task domain.DownloadTask) domain.FetchResult {
	start := time.Now()
	dataset := string(task.Kind)
	res := domain.FetchResult{Task: task}

	backoff := f.opts.InitialBackoff
	for {
		res.Attempts++
		f.metrics.FetchAttempts.WithLabelValues(dataset).Inc()

		n, err := f.attempt(ctx, task)
		if err == nil {
			res.Success = true
			res.BytesWritten = n
			res.Err = nil
			break
		}
		res.Err = err

		if !retryable(ctx, err) || res.Attempts > f.opts.MaxRetries {
			break
		}
		f.logger.Warn("fetch attempt failed, retrying",
			"url", task.SourceURL, "attempt", res.Attempts, "backoff", backoff, "error", err)
		if !retry.SleepWithContext(ctx, backoff) {
			res.Err = fmt.Errorf("%w (cancelled during backoff)", err)
			break
		}
		backoff = retry.NextBackoff(backoff, f.opts.MaxBackoff)
	}

	f.metrics.FetchDuration.WithLabelValues(dataset).Observe(time.Since(start).Seconds())
	if res.Success {
		f.metrics.FetchResults.WithLabelValues(dataset, "success").Inc()
		f.metrics.FetchBytes.WithLabelValues(dataset).Add(float64(res.BytesWritten))
		f.logger.Info("fetched file", "url", task.SourceURL, "path", task.DestinationPath,
			"bytes", res.BytesWritten, "attempts", res.Attempts)
	} else {
		f.metrics.FetchResults.WithLabelValues(dataset, "failure").Inc()
		f.logger.Error("fetch failed", "url", task.SourceURL, "attempts", res.Attempts, "error", res.Err)
	}
	return res
}

// breaker returns the circuit breaker for host, creating it on first use.
func (f *Fetcher) breaker(host string) *gobreaker.CircuitBreaker {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cb, ok := f.breakers[host]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        host,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		IsSuccessful: func(err error) bool {
			var se *StatusError
			return err == nil || (errors.As(err, &se) && !se.Retryable())
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			f.logger.Warn("circuit breaker state change", "host", name, "from", from.String(), "to", to.String())
		},
	})
	f.breakers[host] = cb
	return cb
}

// attempt performs one request and streams the body to disk.
func (f *Fetcher) attempt(ctx context.Context, task domain.DownloadTask) (int64, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return 0, fmt.Errorf("rate limiter: %w", err)
		}
	}

	if f.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, task.SourceURL, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}

	result, err := f.breaker(req.URL.Host).Execute(func() (interface{}, error) {
		resp, err := f.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			resp.Body.Close()
			return nil, &StatusError{Code: resp.StatusCode}
		}
		return resp, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return 0, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		return 0, err
	}
	resp, ok := result.(*http.Response)
	if !ok {
		return 0, errors.New("unexpected result type from circuit breaker")
	}
	defer resp.Body.Close()

	return f.writeAtomic(task, resp.Body, resp.ContentLength)
}

// writeAtomic copies body into <dest>.part and renames it over dest.
func (f *Fetcher) writeAtomic(task domain.DownloadTask, body io.Reader, total int64) (int64, error) {
	dest := task.DestinationPath
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("create destination dir: %w", err)
	}

	tmp := dest + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}

	n, copyErr := f.copyWithProgress(task, out, body, total)
	closeErr := out.Close()
	if copyErr == nil && closeErr != nil {
		copyErr = fmt.Errorf("close temp file: %w", closeErr)
	}
	if copyErr == nil && total >= 0 && n != total {
		copyErr = fmt.Errorf("short body: got %d of %d bytes", n, total)
	}
	if copyErr != nil {
		_ = os.Remove(tmp)
		return 0, copyErr
	}

	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("publish file: %w", err)
	}
	return n, nil
}

func (f *Fetcher) copyWithProgress(task domain.DownloadTask, dst io.Writer, src io.Reader, total int64) (int64, error) {
	buf := make([]byte, chunkSize)
	var received int64
	for {
		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			received += int64(nw)
			if werr != nil {
				return received, fmt.Errorf("write: %w", werr)
			}
			if nw != nr {
				return received, io.ErrShortWrite
			}
			f.progress(task, received, total)
		}
		if rerr == io.EOF {
			return received, nil
		}
		if rerr != nil {
			return received, fmt.Errorf("read body: %w", rerr)
		}
	}
}

func (f *Fetcher) logProgress(task domain.DownloadTask, received, total int64) {
	if !f.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	f.logger.Debug("download progress", "url", task.SourceURL, "received", received, "total", total)
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return true
}
