package streaming

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"media-variants/internal/logging"
)

var (
	// ErrWriteTimeout means a single write did not complete in time.
	ErrWriteTimeout = errors.New("write timeout exceeded")
	// ErrClientGone means the request context ended mid-stream.
	ErrClientGone = errors.New("client disconnected")
	// ErrStreamCanceled means the writer was closed or hit its limits.
	ErrStreamCanceled = errors.New("stream canceled")
)

// Config bounds a guarded response.
type Config struct {
	// WriteTimeout caps one write to the client.
	WriteTimeout time.Duration
	// IdleTimeout cancels the stream when no write succeeds for this long.
	IdleTimeout time.Duration
	// MaxDuration caps the whole response; 0 is unlimited.
	MaxDuration time.Duration
	// ChunkSize splits large writes and flushes between them; 0 disables.
	ChunkSize int
}

// DefaultConfig is used for media delivery.
func DefaultConfig() Config {
	return Config{
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		ChunkSize:    64 * 1024,
	}
}

// ResponseWriter is an http.ResponseWriter whose writes are time-bounded.
type ResponseWriter struct {
	http.ResponseWriter

	ctx     context.Context
	cancel  context.CancelFunc
	cfg     Config
	flusher http.Flusher
	start   time.Time

	mu      sync.Mutex
	last    time.Time
	written int64
	closed  bool
	err     error
}

// Wrap guards w for the lifetime of ctx. Callers must Close the result.
func Wrap(ctx context.Context, w http.ResponseWriter, cfg Config) *ResponseWriter {
	ctx, cancel := context.WithCancel(ctx)
	now := time.Now()
	sw := &ResponseWriter{
		ResponseWriter: w,
		ctx:            ctx,
		cancel:         cancel,
		cfg:            cfg,
		start:          now,
		last:           now,
	}
	sw.flusher, _ = w.(http.Flusher)

	if cfg.IdleTimeout > 0 {
		go sw.watchIdle()
	}
	return sw
}

func (sw *ResponseWriter) Write(p []byte) (int, error) {
	sw.mu.Lock()
	closed, prior := sw.closed, sw.err
	sw.mu.Unlock()
	if prior != nil {
		return 0, prior
	}
	if closed {
		return 0, ErrStreamCanceled
	}
	if err := sw.ctxErr(); err != nil {
		return 0, sw.fail(err)
	}
	if sw.cfg.MaxDuration > 0 && time.Since(sw.start) > sw.cfg.MaxDuration {
		return 0, sw.fail(ErrWriteTimeout)
	}

	if sw.cfg.ChunkSize <= 0 || len(p) <= sw.cfg.ChunkSize {
		return sw.writeOnce(p)
	}

	total := 0
	for len(p) > 0 {
		if err := sw.ctxErr(); err != nil {
			return total, sw.fail(err)
		}
		n := min(sw.cfg.ChunkSize, len(p))
		written, err := sw.writeOnce(p[:n])
		total += written
		if err != nil {
			return total, err
		}
		p = p[n:]
		if sw.flusher != nil {
			sw.flusher.Flush()
		}
	}
	return total, nil
}

func (sw *ResponseWriter) writeOnce(p []byte) (int, error) {
	if sw.cfg.WriteTimeout <= 0 {
		n, err := sw.ResponseWriter.Write(p)
		sw.record(n, err)
		return n, err
	}

	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := sw.ResponseWriter.Write(p)
		done <- result{n, err}
	}()

	timer := time.NewTimer(sw.cfg.WriteTimeout)
	defer timer.Stop()

	select {
	case r := <-done:
		sw.record(r.n, r.err)
		return r.n, r.err
	case <-timer.C:
		sw.cancel()
		return 0, sw.fail(ErrWriteTimeout)
	case <-sw.ctx.Done():
		return 0, sw.fail(sw.ctxErr())
	}
}

func (sw *ResponseWriter) record(n int, err error) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.written += int64(n)
	if err == nil {
		sw.last = time.Now()
	} else if sw.err == nil {
		sw.err = err
	}
}

func (sw *ResponseWriter) fail(err error) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.err == nil {
		sw.err = err
	}
	return sw.err
}

func (sw *ResponseWriter) watchIdle() {
	ticker := time.NewTicker(sw.cfg.IdleTimeout / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sw.mu.Lock()
			idle, closed := time.Since(sw.last), sw.closed
			sw.mu.Unlock()
			if closed {
				return
			}
			if idle > sw.cfg.IdleTimeout {
				logging.Warn("Stream idle for %v, canceling", idle.Round(time.Second))
				sw.fail(ErrStreamCanceled)
				sw.cancel()
				return
			}
		case <-sw.ctx.Done():
			return
		}
	}
}

// ctxErr maps the wrapped context state onto the package errors.
func (sw *ResponseWriter) ctxErr() error {
	switch {
	case sw.ctx.Err() == nil:
		return nil
	case errors.Is(sw.ctx.Err(), context.Canceled):
		return ErrClientGone
	default:
		return ErrStreamCanceled
	}
}

// Flush forwards to the underlying writer when it supports flushing.
func (sw *ResponseWriter) Flush() {
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
}

// Close stops the idle watcher. It is safe to call more than once.
func (sw *ResponseWriter) Close() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if !sw.closed {
		sw.closed = true
		sw.cancel()
	}
	return nil
}

// Err returns the first error that ended the stream, if any.
func (sw *ResponseWriter) Err() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.err
}

// Stats reports bytes written and time since Wrap.
func (sw *ResponseWriter) Stats() (int64, time.Duration) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.written, time.Since(sw.start)
}
