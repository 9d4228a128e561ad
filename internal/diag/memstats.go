// Package diag reports process-level resource usage for the reactor's
// periodic diagnostic log line. Grounded on the teacher pack's
// akashmaji946-go-redis RedisInfo.Build, which pulls system memory via
// gopsutil rather than hand-rolling /proc parsing.
package diag

import (
	"os"

	"github.com/shirou/gopsutil/v4/process"
)

// ReadRSSBytes returns this process's current resident set size in bytes.
func ReadRSSBytes() (uint64, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, err
	}
	memInfo, err := proc.MemoryInfo()
	if err != nil {
		return 0, err
	}
	return memInfo.RSS, nil
}
