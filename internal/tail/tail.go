// internal/tail/tail.go

// Package tail follows an append-only log file, surviving rotation and
// truncation by reopening the source when the underlying file identity
// changes.
package tail

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/FairForge/poolwatch/internal/metrics"
)

// ErrSourceGone is returned when the log directory itself disappears; the
// source is considered permanently unavailable.
var ErrSourceGone = errors.New("tail: log directory no longer exists")

// Config configures a tailer.
type Config struct {
	// Path is the log file to follow.
	Path string

	// PollInterval bounds how long the tailer sleeps between read attempts
	// when no filesystem events arrive.
	PollInterval time.Duration

	// ReopenBackoff caps the wait between reopen attempts after a read
	// error.
	ReopenBackoff time.Duration

	// FromStart reads the existing file contents instead of seeking to the
	// end on first open. Reopens after rotation always read from the start.
	FromStart bool
}

// Validate checks configuration.
func (c *Config) Validate() error {
	if c.Path == "" {
		return errors.New("tail: path is required")
	}
	return nil
}

// Tailer produces newly appended lines from a log file. Construct with
// NewTailer, consume Lines, and drive it with Run.
type Tailer struct {
	config *Config
	logger *zap.Logger
	lines  chan string

	file    *os.File
	reader  *bufio.Reader
	partial strings.Builder
	offset  int64
}

// NewTailer creates a tailer.
func NewTailer(config *Config, logger *zap.Logger) (*Tailer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 100 * time.Millisecond
	}
	if config.ReopenBackoff <= 0 {
		config.ReopenBackoff = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tailer{
		config: config,
		logger: logger,
		lines:  make(chan string, 256),
	}, nil
}

// Lines returns the channel of complete lines, without trailing newlines.
// It is closed when Run returns.
func (t *Tailer) Lines() <-chan string { return t.lines }

// Run follows the file until ctx is canceled. It returns nil on
// cancellation and a non-nil error only when the source is permanently
// unavailable.
func (t *Tailer) Run(ctx context.Context) error {
	defer close(t.lines)
	defer t.closeFile()

	watcher := t.newWatcher()
	if watcher != nil {
		defer func() { _ = watcher.Close() }()
	}

	if err := t.open(ctx, !t.config.FromStart); err != nil {
		return err
	}

	for {
		// open leaves the handle unset only when ctx fired mid-wait.
		if ctx.Err() != nil || t.file == nil {
			return nil
		}

		if err := t.drain(ctx); err != nil {
			return err
		}

		if err := t.wait(ctx, watcher); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		if err := t.checkRotation(ctx); err != nil {
			return err
		}
	}
}

// drain reads everything currently appended to the file and emits complete
// lines. Incomplete trailing data is buffered until its newline arrives.
func (t *Tailer) drain(ctx context.Context) error {
	for {
		chunk, err := t.reader.ReadString('\n')
		if chunk != "" {
			t.offset += int64(len(chunk))
			t.partial.WriteString(chunk)
			if strings.HasSuffix(chunk, "\n") {
				line := strings.TrimRight(t.partial.String(), "\r\n")
				t.partial.Reset()
				select {
				case t.lines <- line:
				case <-ctx.Done():
					return nil
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			t.logger.Warn("read error on log source, reopening",
				zap.String("path", t.config.Path), zap.Error(err))
			return t.reopen(ctx)
		}
	}
}

// wait blocks until new data is likely available: a filesystem event for
// the watched directory, or the poll interval elapsing.
func (t *Tailer) wait(ctx context.Context, watcher *fsnotify.Watcher) error {
	timer := time.NewTimer(t.config.PollInterval)
	defer timer.Stop()

	if watcher == nil {
		select {
		case <-ctx.Done():
			return context.Canceled
		case <-timer.C:
			return nil
		}
	}

	select {
	case <-ctx.Done():
		return context.Canceled
	case <-timer.C:
		return nil
	case <-watcher.Events:
		return nil
	case err, ok := <-watcher.Errors:
		if ok && err != nil {
			t.logger.Warn("fsnotify error", zap.Error(err))
		}
		return nil
	}
}

// checkRotation reopens the file when it was rotated (identity changed or
// removed) or truncated in place.
func (t *Tailer) checkRotation(ctx context.Context) error {
	info, err := os.Stat(t.config.Path)
	if err != nil {
		if os.IsNotExist(err) {
			if t.dirGone() {
				return fmt.Errorf("%w: %s", ErrSourceGone, filepath.Dir(t.config.Path))
			}
			t.logger.Info("log file rotated away, waiting for replacement",
				zap.String("path", t.config.Path))
			return t.reopen(ctx)
		}
		t.logger.Warn("stat failed on log source", zap.Error(err))
		return nil
	}

	current, err := t.file.Stat()
	if err != nil || !os.SameFile(current, info) {
		t.logger.Info("log file identity changed, reopening",
			zap.String("path", t.config.Path))
		return t.reopen(ctx)
	}

	if info.Size() < t.offset {
		t.logger.Info("log file truncated, restarting from beginning",
			zap.String("path", t.config.Path),
			zap.Int64("size", info.Size()),
			zap.Int64("offset", t.offset))
		return t.reopen(ctx)
	}

	return nil
}

// reopen closes the current handle and opens the file again from the start,
// waiting with backoff for it to exist.
func (t *Tailer) reopen(ctx context.Context) error {
	t.closeFile()
	metrics.RecordTailReopen()
	return t.open(ctx, false)
}

// open opens the log file, waiting for it to appear if necessary. With
// seekEnd set, reading starts at the current end of file.
func (t *Tailer) open(ctx context.Context, seekEnd bool) error {
	backoff := t.config.PollInterval

	for {
		f, err := os.Open(t.config.Path)
		if err == nil {
			t.file = f
			t.reader = bufio.NewReader(f)
			t.offset = 0
			t.partial.Reset()
			if seekEnd {
				if pos, serr := f.Seek(0, io.SeekEnd); serr == nil {
					t.offset = pos
				}
			}
			return nil
		}

		if os.IsNotExist(err) && t.dirGone() {
			return fmt.Errorf("%w: %s", ErrSourceGone, filepath.Dir(t.config.Path))
		}

		t.logger.Info("waiting for log file",
			zap.String("path", t.config.Path), zap.Error(err))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > t.config.ReopenBackoff {
			backoff = t.config.ReopenBackoff
		}
	}
}

func (t *Tailer) dirGone() bool {
	_, err := os.Stat(filepath.Dir(t.config.Path))
	return os.IsNotExist(err)
}

func (t *Tailer) closeFile() {
	if t.file != nil {
		_ = t.file.Close()
		t.file = nil
	}
}

// newWatcher sets up fsnotify on the log directory. Watching the directory
// rather than the file keeps events flowing across rotation. A nil return
// means pure polling.
func (t *Tailer) newWatcher() *fsnotify.Watcher {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		t.logger.Warn("fsnotify unavailable, falling back to polling", zap.Error(err))
		return nil
	}
	if err := watcher.Add(filepath.Dir(t.config.Path)); err != nil {
		t.logger.Warn("cannot watch log directory, falling back to polling",
			zap.String("dir", filepath.Dir(t.config.Path)), zap.Error(err))
		_ = watcher.Close()
		return nil
	}
	return watcher
}
