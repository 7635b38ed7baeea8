//go:build linux && (amd64 || arm64)

package shm

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Segment is a named System V shared memory segment. The zero value is not
// usable; construct with NewSegment. A Segment is not safe for concurrent use.
type Segment struct {
	name   string
	key    int
	access Access
	id     int
	data   []byte
}

// NewSegment prepares a reference to the named segment without touching the
// kernel.
func NewSegment(name string, access Access) *Segment {
	return &Segment{
		name:   name,
		key:    Key(name),
		access: access,
		id:     -1,
	}
}

// Name returns the segment's name.
func (s *Segment) Name() string { return s.name }

// Create creates the segment with the given size and attaches to it. It fails
// if a segment with the same name already exists.
func (s *Segment) Create(size int) (int, error) {
	if s.data != nil {
		return 0, ErrAlreadyAttached
	}
	if s.access == ReadOnly {
		return 0, fmt.Errorf("create %s: segment opened read-only", s.name)
	}
	if size <= 0 {
		return 0, fmt.Errorf("create %s: invalid size %d", s.name, size)
	}
	if !canAllocate(uint64(size)) {
		return 0, fmt.Errorf("create %s, size:%d: %w", s.name, size, ErrInsufficientMemory)
	}
	id, err := unix.SysvShmGet(s.key, size, unix.IPC_CREAT|unix.IPC_EXCL|0600)
	if err != nil {
		return 0, fmt.Errorf("shmget %s: %w", s.name, err)
	}
	data, err := unix.SysvShmAttach(id, 0, 0)
	if err != nil {
		_, _ = unix.SysvShmCtl(id, unix.IPC_RMID, nil)
		return 0, fmt.Errorf("shmat %s: %w", s.name, err)
	}
	s.id = id
	s.data = data
	return len(data), nil
}

// Attach maps an existing segment into the process.
func (s *Segment) Attach() error {
	if s.data != nil {
		return ErrAlreadyAttached
	}
	id, err := unix.SysvShmGet(s.key, 0, 0)
	if err != nil {
		return fmt.Errorf("shmget %s: %w", s.name, err)
	}
	flag := 0
	if s.access == ReadOnly {
		flag = unix.SHM_RDONLY
	}
	data, err := unix.SysvShmAttach(id, 0, flag)
	if err != nil {
		return fmt.Errorf("shmat %s: %w", s.name, err)
	}
	s.id = id
	s.data = data
	return nil
}

// Detach unmaps the segment. When no process is attached afterwards the
// segment is removed from the system.
func (s *Segment) Detach() error {
	if s.data == nil {
		return ErrNotAttached
	}
	if err := unix.SysvShmDetach(s.data); err != nil {
		return fmt.Errorf("shmdt %s: %w", s.name, err)
	}
	id := s.id
	s.data = nil
	s.id = -1

	var desc unix.SysvShmDesc
	if _, err := unix.SysvShmCtl(id, unix.IPC_STAT, &desc); err != nil {
		if isGone(err) {
			return nil
		}
		return fmt.Errorf("shmctl stat %s: %w", s.name, err)
	}
	if desc.Nattch == 0 {
		if _, err := unix.SysvShmCtl(id, unix.IPC_RMID, nil); err != nil && !isGone(err) {
			return fmt.Errorf("shmctl rmid %s: %w", s.name, err)
		}
	}
	return nil
}

// Attached reports whether the segment is mapped.
func (s *Segment) Attached() bool { return s.data != nil }

// Bytes returns the mapped memory, or nil when not attached.
func (s *Segment) Bytes() []byte { return s.data }

// Size returns the mapped size, or 0 when not attached.
func (s *Segment) Size() int { return len(s.data) }

// StatSegment reports the kernel state of the named segment without attaching.
func StatSegment(name string) (SegmentInfo, error) {
	id, err := unix.SysvShmGet(Key(name), 0, 0)
	if err != nil {
		if errors.Is(err, unix.ENOENT) {
			return SegmentInfo{}, nil
		}
		return SegmentInfo{}, fmt.Errorf("shmget %s: %w", name, err)
	}
	var desc unix.SysvShmDesc
	if _, err := unix.SysvShmCtl(id, unix.IPC_STAT, &desc); err != nil {
		if isGone(err) {
			return SegmentInfo{}, nil
		}
		return SegmentInfo{}, fmt.Errorf("shmctl stat %s: %w", name, err)
	}
	return SegmentInfo{
		Exists:   true,
		Size:     int(desc.Segsz),
		Attached: int(desc.Nattch),
	}, nil
}

// RemoveSegment marks the named segment for removal. A missing segment is not
// an error.
func RemoveSegment(name string) error {
	id, err := unix.SysvShmGet(Key(name), 0, 0)
	if err != nil {
		if errors.Is(err, unix.ENOENT) {
			return nil
		}
		return fmt.Errorf("shmget %s: %w", name, err)
	}
	if _, err := unix.SysvShmCtl(id, unix.IPC_RMID, nil); err != nil && !isGone(err) {
		return fmt.Errorf("shmctl rmid %s: %w", name, err)
	}
	return nil
}

func isGone(err error) bool {
	return errors.Is(err, unix.EINVAL) || errors.Is(err, unix.EIDRM) || errors.Is(err, unix.ENOENT)
}
