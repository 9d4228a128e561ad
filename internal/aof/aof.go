// Package aof implements the append-only durability log: every mutating
// command is encoded as a RESP multi-bulk frame and appended to a file that
// is opened, written, and closed again on every call — no long-lived file
// handle, no buffered writer straddling calls — so a crash between two
// commands never leaves a half-flushed OS buffer unaccounted for. Adapted
// from the teacher's aof.Writer (RESP encoding, temp-file-rename rewrite),
// trading its buffered/fsync-policy writer for this spec's simpler
// open-append-close-per-write contract.
package aof

import (
	"fmt"
	"os"
	"sync"

	"redis/internal/dict"
	"redis/internal/resp"
)

// Config holds AOF configuration.
type Config struct {
	Enabled bool
	Path    string

	// RewriteThresholdBytes triggers a guarded rewrite once the AOF file
	// grows past this size; zero disables automatic rewriting.
	RewriteThresholdBytes int64
}

// DefaultConfig returns the default AOF configuration: enabled, a 1 MiB
// rewrite threshold, matching spec.md §3's named default (confirmed in
// original_source/src/kvs_persist.c:31, rewrite_size = 1 MB).
func DefaultConfig() Config {
	return Config{
		Enabled:               true,
		Path:                  "appendonly.aof",
		RewriteThresholdBytes: 1 << 20,
	}
}

// AOF is the append-only log. Safe for concurrent use, though in practice
// only the engine goroutine ever calls Append.
type AOF struct {
	cfg Config

	mu        sync.Mutex
	size      int64
	isLoading bool // suppressed during Replay so replay doesn't re-append
	rewriting bool // guards against concurrent Rewrite calls
}

// New opens (creating if absent) the AOF file to establish its current
// size, then immediately closes it — per-write opens happen in Append.
func New(cfg Config) (*AOF, error) {
	a := &AOF{cfg: cfg}
	if !cfg.Enabled {
		return a, nil
	}

	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("aof: open: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("aof: stat: %w", err)
	}
	a.size = info.Size()
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("aof: close: %w", err)
	}
	return a, nil
}

// Append encodes args as a RESP multi-bulk frame and appends it to the AOF
// file, opening and closing the file for this call alone. A no-op while
// AOF is disabled or while a replay is in progress (IsLoading).
func (a *AOF) Append(args [][]byte) error {
	if !a.cfg.Enabled {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.isLoading {
		return nil
	}

	encoded := resp.MultiBulk(args)
	f, err := os.OpenFile(a.cfg.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("aof: open for append: %w", err)
	}
	defer f.Close()

	n, err := f.Write(encoded)
	if err != nil {
		return fmt.Errorf("aof: write: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("aof: sync: %w", err)
	}
	a.size += int64(n)
	return nil
}

// Size returns the AOF file's current size in bytes, as tracked by this
// process (not re-stat'd on every call).
func (a *AOF) Size() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.size
}

// NeedsRewrite reports whether the AOF has grown past its configured
// rewrite threshold.
func (a *AOF) NeedsRewrite() bool {
	if a.cfg.RewriteThresholdBytes <= 0 {
		return false
	}
	return a.Size() >= a.cfg.RewriteThresholdBytes
}

// Rewrite replaces the AOF with a minimal log reconstructing d's current
// contents as HSET commands, via a temp-file-and-rename so a crash mid-
// rewrite never loses the existing log. Guarded by rewriting so a second
// call while one is in flight is rejected rather than racing it.
func (a *AOF) Rewrite(d *dict.Dict) error {
	if !a.cfg.Enabled {
		return nil
	}

	a.mu.Lock()
	if a.rewriting {
		a.mu.Unlock()
		return fmt.Errorf("aof: rewrite already in progress")
	}
	a.rewriting = true
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.rewriting = false
		a.mu.Unlock()
	}()

	tmp := a.cfg.Path + ".rewrite.tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("aof: create rewrite temp file: %w", err)
	}

	var written int64
	var writeErr error
	d.Foreach(func(key, value []byte) {
		if writeErr != nil {
			return
		}
		frame := resp.MultiBulk([][]byte{[]byte("HSET"), key, value})
		var n int
		n, writeErr = f.Write(frame)
		written += int64(n)
	})
	if writeErr != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("aof: write rewrite record: %w", writeErr)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("aof: sync rewrite temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("aof: close rewrite temp file: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := os.Rename(tmp, a.cfg.Path); err != nil {
		return fmt.Errorf("aof: rename rewrite temp file into place: %w", err)
	}
	a.size = written
	return nil
}
