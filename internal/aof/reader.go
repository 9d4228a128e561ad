package aof

import (
	"fmt"
	"os"

	"redis/internal/dict"
	"redis/internal/resp"
)

// SetLoading marks the AOF as mid-replay, suppressing Append so that a
// replay loop which happens to route through the normal append path (for
// example, a persist.Manager driving commands through the engine during
// startup) never re-appends what it is replaying.
func (a *AOF) SetLoading(loading bool) {
	a.mu.Lock()
	a.isLoading = loading
	a.mu.Unlock()
}

// Replay reads the AOF file at cfg.Path in full and applies every HSET,
// HDEL, and HMOD frame it contains directly to d, bypassing the engine and
// the AOF/replica logging path entirely (this is reconstruction, not new
// writes). Returns the count of frames successfully applied.
//
// The AOF's open-append-close-per-write contract means a crash can leave a
// truncated final frame; that trailing partial frame is tolerated and
// simply stops replay (not an error). A corrupt frame *before* the tail —
// a bad bulk count, a missing CRLF, anything resp.Parse flags as a
// FrameError — aborts replay immediately and is reported as an error
// alongside the count of frames applied before it.
func (a *AOF) Replay(d *dict.Dict) (int, error) {
	if !a.cfg.Enabled {
		return 0, nil
	}

	data, err := os.ReadFile(a.cfg.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("aof: read for replay: %w", err)
	}

	applied := 0
	for len(data) > 0 {
		cmd, consumed, err := resp.Parse(data)
		if err != nil {
			return applied, fmt.Errorf("aof: corrupt frame after %d entries: %w", applied, err)
		}
		if consumed == 0 {
			// Trailing incomplete frame from a crash mid-append; tolerated.
			break
		}

		applyReplayed(d, cmd)
		applied++
		data = data[consumed:]
	}

	return applied, nil
}

func applyReplayed(d *dict.Dict, cmd *resp.Command) {
	if len(cmd.Args) == 0 {
		return
	}
	switch string(cmd.Args[0]) {
	case "HSET":
		if len(cmd.Args) == 3 {
			d.Set(cmd.Args[1], cmd.Args[2])
		}
	case "HDEL":
		if len(cmd.Args) == 2 {
			d.Del(cmd.Args[1])
		}
	case "HMOD":
		if len(cmd.Args) == 3 {
			d.Mod(cmd.Args[1], cmd.Args[2])
		}
	}
}
