package tail

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"decoynet/internal/logger"
)

// Config configures a file tailer.
type Config struct {
	Path         string
	PollInterval time.Duration
}

// Tailer follows one append-only line-delimited file. It tolerates the file
// not existing yet (waits for creation) and reopens from the start when the
// file shrinks (rotation or truncation).
type Tailer struct {
	path string
	poll time.Duration
}

// NewTailer creates a tailer for the given path.
func NewTailer(cfg Config) *Tailer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 1 * time.Second
	}
	return &Tailer{path: cfg.Path, poll: cfg.PollInterval}
}

// Run follows the file and invokes handle for each complete line until ctx
// is cancelled. The first attach starts at the current end of file; after a
// reopen it reads from the beginning.
func (t *Tailer) Run(ctx context.Context, handle func(line []byte)) error {
	fromEnd := true
	for {
		f, err := t.waitOpen(ctx)
		if err != nil {
			return err
		}
		if fromEnd {
			if _, err := f.Seek(0, io.SeekEnd); err != nil {
				logger.Warnf("Tail %s: seek to end failed: %v", t.path, err)
			}
			fromEnd = false
		}

		err = t.follow(ctx, f, handle)
		f.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			logger.Warnf("Tail %s: reattaching after error: %v", t.path, err)
		} else {
			logger.Infof("Tail %s: file replaced, reattaching from start", t.path)
		}
	}
}

// waitOpen blocks until the file can be opened or the context is cancelled.
func (t *Tailer) waitOpen(ctx context.Context) (*os.File, error) {
	f, err := os.Open(t.path)
	if err == nil {
		return f, nil
	}
	if !os.IsNotExist(err) {
		logger.Warnf("Tail %s: open failed: %v", t.path, err)
	} else {
		logger.Infof("Tail %s: waiting for file to be created", t.path)
	}

	var events chan fsnotify.Event
	watcher, werr := fsnotify.NewWatcher()
	if werr == nil {
		defer watcher.Close()
		if err := watcher.Add(filepath.Dir(t.path)); err == nil {
			events = watcher.Events
		}
	}

	ticker := time.NewTicker(t.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case ev := <-events:
			if ev.Name != t.path || !ev.Has(fsnotify.Create) {
				continue
			}
		case <-ticker.C:
		}
		if f, err := os.Open(t.path); err == nil {
			logger.Infof("Tail %s: file appeared", t.path)
			return f, nil
		}
	}
}

// follow reads appended lines until the file shrinks or disappears.
// Returning nil asks the caller to reopen from the start.
func (t *Tailer) follow(ctx context.Context, f *os.File, handle func(line []byte)) error {
	reader := bufio.NewReader(f)
	var partial []byte

	for {
		chunk, err := reader.ReadBytes('\n')
		if err == nil {
			line := chunk
			if len(partial) > 0 {
				line = append(partial, chunk...)
				partial = nil
			}
			line = bytes.TrimRight(line, "\r\n")
			if len(line) > 0 {
				handle(line)
			}
			continue
		}
		if err != io.EOF {
			return err
		}
		partial = append(partial, chunk...)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.poll):
		}

		offset, serr := f.Seek(0, io.SeekCurrent)
		if serr != nil {
			return serr
		}
		fi, serr := os.Stat(t.path)
		if serr != nil {
			if os.IsNotExist(serr) {
				return nil
			}
			return serr
		}
		consumed := offset - int64(reader.Buffered())
		if fi.Size() < consumed {
			// Truncated underneath us; the caller reopens from the start.
			return nil
		}
	}
}
