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

// SemaphoreState is the kernel-side count of one named semaphore.
type SemaphoreState struct {
	Name   string
	Exists bool
	Value  int
}

// SegmentState is the kernel-side state of the channel's segment.
type SegmentState struct {
	Name     string
	Exists   bool
	Size     int
	Attached int
}

// ChannelState is a snapshot of every kernel object of one channel.
type ChannelState struct {
	Identity Identity
	Empty    SemaphoreState
	Full     SemaphoreState
	Lock     SemaphoreState
	Segment  SegmentState
}

// Idle reports whether the channel holds no payload and nobody is inside a
// transaction: one empty token, no full token and a free lock.
func (s ChannelState) Idle() bool {
	return s.Empty.Value == 1 && s.Full.Value == 0 && s.Lock.Value == 1
}

func (s ChannelState) String() string {
	sem := func(st SemaphoreState) string {
		if !st.Exists {
			return fmt.Sprintf("%s:missing", st.Name)
		}
		return fmt.Sprintf("%s:%d", st.Name, st.Value)
	}
	seg := "segment:missing"
	if s.Segment.Exists {
		seg = fmt.Sprintf("segment:%s size:%d attached:%d", s.Segment.Name, s.Segment.Size, s.Segment.Attached)
	}
	return fmt.Sprintf("id:%s %s %s %s %s", s.Identity, sem(s.Empty), sem(s.Full), sem(s.Lock), seg)
}

// Inspect reads the state of id's kernel objects without creating, attaching
// to or changing any of them.
func Inspect(id Identity) (ChannelState, error) {
	state := ChannelState{Identity: id}
	var err error
	if state.Empty, err = semaphoreState(id.EmptySemaphoreName()); err != nil {
		return state, err
	}
	if state.Full, err = semaphoreState(id.FullSemaphoreName()); err != nil {
		return state, err
	}
	if state.Lock, err = semaphoreState(id.LockName()); err != nil {
		return state, err
	}
	info, err := shm.StatSegment(id.SegmentName())
	if err != nil {
		return state, newError(classifyOpen(err), "inspect", err)
	}
	state.Segment = SegmentState{
		Name:     id.SegmentName(),
		Exists:   info.Exists,
		Size:     info.Size,
		Attached: info.Attached,
	}
	return state, nil
}

func semaphoreState(name string) (SemaphoreState, error) {
	v, ok, err := shm.SemaphoreValue(name)
	if err != nil {
		return SemaphoreState{Name: name}, newError(classifyOpen(err), "inspect", err)
	}
	return SemaphoreState{Name: name, Exists: ok, Value: v}, nil
}

// Purge removes the segment and all semaphores of id. Objects that do not
// exist are skipped. Sessions of id still open in any process fail on their
// next operation, and blocked ones are woken with a SemaphoreFailure.
func Purge(id Identity) error {
	var errs []error
	if err := shm.RemoveSegment(id.SegmentName()); err != nil {
		errs = append(errs, err)
	}
	for _, name := range []string{id.EmptySemaphoreName(), id.FullSemaphoreName(), id.LockName()} {
		if err := shm.RemoveSemaphore(name); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return newError(classifyOpen(err), "purge", err)
	}
	return nil
}
