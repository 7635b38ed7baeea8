package shm

import (
	"github.com/shirou/gopsutil/v3/mem"
)

// canAllocate reports whether size bytes fit in the memory currently available
// to the system. If the statistics cannot be read the check passes and the
// kernel gets the final word.
func canAllocate(size uint64) bool {
	stat, err := mem.VirtualMemory()
	if err != nil {
		return true
	}
	return size <= stat.Available
}
