//go:build linux && (amd64 || arm64)

package shm

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	semUndo   = 0x1000
	semGetVal = 12
	semSetVal = 16
	ipcNoWait = 0x800
)

// sembuf mirrors struct sembuf from <sys/sem.h>.
type sembuf struct {
	num uint16
	op  int16
	flg int16
}

// Semaphore is a named, process-shared counting semaphore backed by a System V
// semaphore set with a single member.
type Semaphore struct {
	name string
	key  int
	id   int
	undo bool
}

// OpenSemaphore opens the named semaphore, creating it with the initial count
// when it does not exist yet. The initial count of an existing semaphore is
// left untouched. With undo set, the kernel reverts this process's operations
// when it exits, which suits a mutex but not a token handed between processes.
func OpenSemaphore(name string, initial int, undo bool) (*Semaphore, error) {
	key := Key(name)
	id, err := semget(key, unix.IPC_CREAT|unix.IPC_EXCL|0600)
	switch {
	case err == nil:
		if _, err := semctl(id, semSetVal, initial); err != nil {
			_, _ = semctl(id, unix.IPC_RMID, 0)
			return nil, fmt.Errorf("semctl setval %s: %w", name, err)
		}
	case errors.Is(err, unix.EEXIST):
		if id, err = semget(key, 0); err != nil {
			return nil, fmt.Errorf("semget %s: %w", name, err)
		}
	default:
		return nil, fmt.Errorf("semget %s: %w", name, err)
	}
	return &Semaphore{name: name, key: key, id: id, undo: undo}, nil
}

// Name returns the semaphore's name.
func (s *Semaphore) Name() string { return s.name }

// Acquire decrements the count, blocking while it is zero.
func (s *Semaphore) Acquire() error {
	if err := s.op(-1, 0); err != nil {
		return fmt.Errorf("semop acquire %s: %w", s.name, err)
	}
	return nil
}

// TryAcquire decrements the count if it is positive and reports whether it did.
func (s *Semaphore) TryAcquire() (bool, error) {
	err := s.op(-1, ipcNoWait)
	if errors.Is(err, unix.EAGAIN) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("semop try-acquire %s: %w", s.name, err)
	}
	return true, nil
}

// Release increments the count, waking one waiter.
func (s *Semaphore) Release() error {
	if err := s.op(1, 0); err != nil {
		return fmt.Errorf("semop release %s: %w", s.name, err)
	}
	return nil
}

// Value returns the current count.
func (s *Semaphore) Value() (int, error) {
	v, err := semctl(s.id, semGetVal, 0)
	if err != nil {
		return 0, fmt.Errorf("semctl getval %s: %w", s.name, err)
	}
	return v, nil
}

func (s *Semaphore) op(delta int16, flags int16) error {
	if s.undo {
		flags |= semUndo
	}
	ops := []sembuf{{num: 0, op: delta, flg: flags}}
	for {
		_, _, errno := unix.Syscall(unix.SYS_SEMOP, uintptr(s.id), uintptr(unsafe.Pointer(&ops[0])), uintptr(len(ops)))
		switch errno {
		case 0:
			return nil
		case unix.EINTR:
			continue
		default:
			return errno
		}
	}
}

// SemaphoreValue reads the count of the named semaphore without creating it.
// exists is false when no such semaphore is present.
func SemaphoreValue(name string) (value int, exists bool, err error) {
	id, err := semget(Key(name), 0)
	if err != nil {
		if errors.Is(err, unix.ENOENT) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("semget %s: %w", name, err)
	}
	v, err := semctl(id, semGetVal, 0)
	if err != nil {
		if isGone(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("semctl getval %s: %w", name, err)
	}
	return v, true, nil
}

// RemoveSemaphore removes the named semaphore, waking every waiter with an
// error. A missing semaphore is not an error.
func RemoveSemaphore(name string) error {
	id, err := semget(Key(name), 0)
	if err != nil {
		if errors.Is(err, unix.ENOENT) {
			return nil
		}
		return fmt.Errorf("semget %s: %w", name, err)
	}
	if _, err := semctl(id, unix.IPC_RMID, 0); err != nil && !isGone(err) {
		return fmt.Errorf("semctl rmid %s: %w", name, err)
	}
	return nil
}

func semget(key int, flags int) (int, error) {
	r, _, errno := unix.Syscall(unix.SYS_SEMGET, uintptr(key), 1, uintptr(flags))
	if errno != 0 {
		return -1, errno
	}
	return int(r), nil
}

func semctl(id int, cmd int, arg int) (int, error) {
	r, _, errno := unix.Syscall6(unix.SYS_SEMCTL, uintptr(id), 0, uintptr(cmd), uintptr(arg), 0, 0)
	if errno != 0 {
		return 0, errno
	}
	return int(r), nil
}
