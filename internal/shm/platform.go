// Package shm contains the platform layer for named shared memory segments and
// named counting semaphores.
//
// On Linux both are System V IPC objects addressed by a 31-bit key derived from
// the object's name, so two unrelated processes that agree on a name agree on the
// kernel object. Other platforms build but every constructor returns
// ErrUnsupportedPlatform.
package shm

import (
	"errors"

	"github.com/spaolacci/murmur3"
)

var (
	// ErrUnsupportedPlatform is returned on platforms without System V IPC support.
	ErrUnsupportedPlatform = errors.New("shm: named segments and semaphores are not supported on this platform")
	// ErrNotAttached is returned by operations that need a mapped segment.
	ErrNotAttached = errors.New("shm: segment is not attached")
	// ErrAlreadyAttached is returned when attaching or creating twice.
	ErrAlreadyAttached = errors.New("shm: segment is already attached")
	// ErrInsufficientMemory is returned when a segment cannot fit in available memory.
	ErrInsufficientMemory = errors.New("shm: not enough memory available for segment")
)

// Access selects how a segment is mapped.
type Access int

const (
	ReadWrite Access = iota
	ReadOnly
)

// SegmentInfo is a snapshot of a segment's kernel state.
type SegmentInfo struct {
	Exists   bool
	Size     int
	Attached int
}

// Key maps an object name to the System V key used for it. The result is
// positive and never IPC_PRIVATE.
func Key(name string) int {
	k := int(murmur3.Sum32([]byte(name)) & 0x7fffffff)
	if k == 0 {
		k = 1
	}
	return k
}
