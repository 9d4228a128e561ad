// Package rdb implements the point-in-time binary snapshot format: a flat
// sequence of (key_len, key_bytes, value_len, value_bytes) records with no
// magic and no version, by deliberate simplicity (see DESIGN.md for the
// cross-architecture portability tradeoff this implies).
package rdb

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"redis/internal/dict"
)

const (
	// MaxKeyLen and MaxValueLen bound a single record; anything larger is
	// treated as corruption and aborts the load.
	MaxKeyLen   = 1 << 20  // 1 MiB
	MaxValueLen = 10 << 20 // 10 MiB
	lenFieldSz  = 8        // host-native size_t width, fixed at 64 bits
)

// Save writes the dictionary's contents to filepath as a sequence of
// length-prefixed records, via a temp-file-and-rename so a crash mid-write
// never corrupts the live snapshot.
func Save(d *dict.Dict, filepath string) error {
	tmp := filepath + ".tmp"
	file, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("rdb: create temp file: %w", err)
	}

	writer := bufio.NewWriter(file)
	var writeErr error
	d.Foreach(func(key, value []byte) {
		if writeErr != nil {
			return
		}
		writeErr = writeRecord(writer, key, value)
	})
	if writeErr != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("rdb: write record: %w", writeErr)
	}

	if err := writer.Flush(); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("rdb: flush: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("rdb: sync: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rdb: close: %w", err)
	}

	if err := os.Rename(tmp, filepath); err != nil {
		return fmt.Errorf("rdb: rename into place: %w", err)
	}
	return nil
}

func writeRecord(w *bufio.Writer, key, value []byte) error {
	if err := writeLen(w, len(key)); err != nil {
		return err
	}
	if _, err := w.Write(key); err != nil {
		return err
	}
	if err := writeLen(w, len(value)); err != nil {
		return err
	}
	if _, err := w.Write(value); err != nil {
		return err
	}
	return nil
}

func writeLen(w *bufio.Writer, n int) error {
	var buf [lenFieldSz]byte
	binary.NativeEndian.PutUint64(buf[:], uint64(n))
	_, err := w.Write(buf[:])
	return err
}

// Load reads filepath's records into d (entries are inserted via Set, so
// pre-existing keys are merely overwritten). Returns the count of entries
// successfully loaded. A missing file is not an error — it loads zero
// entries, matching a fresh server with no prior snapshot. A key_len >
// MaxKeyLen or value_len > MaxValueLen is treated as corruption: load
// aborts and returns the count loaded so far alongside the error.
func Load(d *dict.Dict, filepath string) (int, error) {
	file, err := os.Open(filepath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("rdb: open: %w", err)
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	loaded := 0
	for {
		key, value, err := readRecord(reader)
		if err == io.EOF {
			return loaded, nil
		}
		if err != nil {
			return loaded, fmt.Errorf("rdb: corrupt record after %d entries: %w", loaded, err)
		}
		d.Set(key, value)
		loaded++
	}
}

func readRecord(r *bufio.Reader) (key, value []byte, err error) {
	klen, err := readLen(r)
	if err != nil {
		return nil, nil, err
	}
	if klen > MaxKeyLen {
		return nil, nil, fmt.Errorf("key_len %d exceeds %d byte cap", klen, MaxKeyLen)
	}
	key = make([]byte, klen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, nil, fmt.Errorf("short read on key bytes: %w", err)
	}

	vlen, err := readLen(r)
	if err != nil {
		return nil, nil, fmt.Errorf("short read on value length: %w", err)
	}
	if vlen > MaxValueLen {
		return nil, nil, fmt.Errorf("value_len %d exceeds %d byte cap", vlen, MaxValueLen)
	}
	value = make([]byte, vlen)
	if _, err := io.ReadFull(r, value); err != nil {
		return nil, nil, fmt.Errorf("short read on value bytes: %w", err)
	}

	return key, value, nil
}

func readLen(r *bufio.Reader) (uint64, error) {
	var buf [lenFieldSz]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.NativeEndian.Uint64(buf[:]), nil
}
