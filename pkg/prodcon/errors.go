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
)

//go:generate stringer -type=Kind

// Kind classifies channel errors.
type Kind uint8

const (
	// ProtocolViolation means Begin/End was called out of sequence, or the
	// session was misused. It is a programmer error and never retried.
	ProtocolViolation Kind = iota + 1
	// ResourceUnavailable means the segment could not be created even after
	// the single recovery attempt, or the platform lacks support.
	ResourceUnavailable
	// AttachFailure means the consumer could not map the segment.
	AttachFailure
	// LockFailure means the segment lock could not be taken or given back.
	LockFailure
	// SemaphoreFailure means a slot semaphore reported an OS-level error.
	SemaphoreFailure
)

// Error is returned by every session operation. Err carries the underlying OS
// error, when there is one.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op == "" && e.Err == nil:
		return "prodcon: " + e.Kind.String()
	case e.Err == nil:
		return fmt.Sprintf("prodcon: %s: %s", e.Op, e.Kind)
	default:
		return fmt.Sprintf("prodcon: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel errors below by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Op != "" || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrProtocolViolation   = &Error{Kind: ProtocolViolation}
	ErrResourceUnavailable = &Error{Kind: ResourceUnavailable}
	ErrAttachFailure       = &Error{Kind: AttachFailure}
	ErrLockFailure         = &Error{Kind: LockFailure}
	ErrSemaphoreFailure    = &Error{Kind: SemaphoreFailure}
)

var (
	errTransactionActive = errors.New("transaction already started, call End first")
	errNoTransaction     = errors.New("no transaction started, call Begin first")
	errSessionClosed     = errors.New("session is closed")
	errInvalidSize       = errors.New("desired size must be positive")
)

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of err, or 0 when err is not a channel error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
