/*
 * Copyright 2025 SREDiag Authors
 * Copyright 2023 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package prodcon

import (
	"errors"
	"fmt"

	"github.com/srediag/prodcon-shm/internal/shm"
)

var (
	errLocked    = errors.New("segment is already locked by this session")
	errNotLocked = errors.New("segment is not locked by this session")
)

// resource owns the kernel objects of one channel: the segment, the two slot
// semaphores and the segment lock. It keeps no state besides the attach and
// lock flags, and it is the only place in this package that talks to the
// platform layer.
type resource struct {
	id      Identity
	segment *shm.Segment
	empty   *shm.Semaphore
	full    *shm.Semaphore
	mutex   *shm.Semaphore
	locked  bool
}

// newResource opens (creating if necessary) the semaphores and prepares the
// segment reference without attaching to it.
func newResource(id Identity, access shm.Access) (*resource, error) {
	empty, err := shm.OpenSemaphore(id.EmptySemaphoreName(), 1, false)
	if err != nil {
		return nil, err
	}
	full, err := shm.OpenSemaphore(id.FullSemaphoreName(), 0, false)
	if err != nil {
		return nil, err
	}
	// SEM_UNDO hands the lock back if the holder dies
	mutex, err := shm.OpenSemaphore(id.LockName(), 1, true)
	if err != nil {
		return nil, err
	}
	return &resource{
		id:      id,
		segment: shm.NewSegment(id.SegmentName(), access),
		empty:   empty,
		full:    full,
		mutex:   mutex,
	}, nil
}

func (r *resource) attach() error { return r.segment.Attach() }

func (r *resource) detach() error { return r.segment.Detach() }

func (r *resource) create(size int) (int, error) { return r.segment.Create(size) }

func (r *resource) isAttached() bool { return r.segment.Attached() }

func (r *resource) rawView() []byte { return r.segment.Bytes() }

func (r *resource) lock() error {
	if r.locked {
		return errLocked
	}
	if err := r.mutex.Acquire(); err != nil {
		return fmt.Errorf("lock %s: %w", r.id.SegmentName(), err)
	}
	r.locked = true
	return nil
}

func (r *resource) unlock() error {
	if !r.locked {
		return errNotLocked
	}
	// the flag drops even on failure so the next transaction can lock again
	r.locked = false
	if err := r.mutex.Release(); err != nil {
		return fmt.Errorf("unlock %s: %w", r.id.SegmentName(), err)
	}
	return nil
}

func (r *resource) acquireEmpty() error { return r.empty.Acquire() }

func (r *resource) releaseEmpty() error { return r.empty.Release() }

func (r *resource) acquireFull() error { return r.full.Acquire() }

func (r *resource) releaseFull() error { return r.full.Release() }
