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
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/srediag/prodcon-shm/internal/shm"
)

// Producer is the writing side of a channel. It creates the segment, fills it
// and signals the consumer. A Producer must be driven by one goroutine at a
// time and released with Close.
type Producer struct {
	id     Identity
	res    *resource
	log    *logger
	obs    *observer
	regKey string
	active bool
	closed bool
}

// NewProducer opens the channel's semaphores for writing. The segment itself
// is created by the first Begin.
func NewProducer(config *Config) (*Producer, error) {
	id, log, err := openSession(config, roleProducer)
	if err != nil {
		return nil, err
	}
	regKey, err := registerSession(roleProducer, id)
	if err != nil {
		return nil, err
	}
	res, err := newResource(id, shm.ReadWrite)
	if err != nil {
		unregisterSession(regKey)
		log.errorf("unable to open semaphores of channel %s: %v", id, err)
		return nil, newError(classifyOpen(err), "open", err)
	}
	return &Producer{
		id:     id,
		res:    res,
		log:    log,
		obs:    newObserver(config, roleProducer, id),
		regKey: regKey,
	}, nil
}

// Identity returns the resolved channel identity.
func (p *Producer) Identity() Identity { return p.id }

// Active reports whether a transaction is open.
func (p *Producer) Active() bool { return p.active }

// Begin starts a write transaction. It blocks until the consumer has drained
// the previous payload, then (re)creates the segment with desiredSize bytes
// and locks it. The returned buffer has length and capacity n, with
// n <= desiredSize; writing past it is a caller error.
//
// If the segment cannot be created, typically because a crashed run left it
// behind, Begin attaches to and detaches from it once to release it and
// retries the create once. A second failure is ResourceUnavailable.
func (p *Producer) Begin(desiredSize int) (n int, buf []byte, err error) {
	span := p.obs.start("begin")
	n, buf, err = p.begin(desiredSize)
	p.obs.finish(span, "begin", err)
	return n, buf, err
}

func (p *Producer) begin(desiredSize int) (int, []byte, error) {
	switch {
	case p.closed:
		return 0, nil, newError(ProtocolViolation, "begin", errSessionClosed)
	case p.active:
		p.log.warnf("already started a transaction, call End() first to start a new one")
		return 0, nil, newError(ProtocolViolation, "begin", errTransactionActive)
	case desiredSize <= 0:
		return 0, nil, newError(ProtocolViolation, "begin", errInvalidSize)
	}

	p.log.tracef("waiting for a free slot on %s", p.id)
	start := time.Now()
	if err := p.res.acquireEmpty(); err != nil {
		p.log.errorf("unable to acquire system semaphore %s: %v", p.id.EmptySemaphoreName(), err)
		return 0, nil, newError(SemaphoreFailure, "begin", err)
	}
	p.obs.waited(time.Since(start))

	if p.res.isAttached() {
		if err := p.res.detach(); err != nil {
			p.log.warnf("unable to detach from shared memory %s: %v", p.id, err)
		}
	}
	if _, err := p.create(desiredSize); err != nil {
		p.undoEmpty()
		p.log.errorf("unable to create or recover shared memory %s: %v", p.id, err)
		return 0, nil, newError(ResourceUnavailable, "begin", err)
	}
	if err := p.res.lock(); err != nil {
		p.undoEmpty()
		p.log.errorf("unable to lock shared memory %s: %v", p.id, err)
		return 0, nil, newError(LockFailure, "begin", err)
	}

	p.active = true
	view := p.res.rawView()
	n := min(len(view), desiredSize)
	p.log.debugf("transaction started on %s, size:%d", p.id, n)
	return n, view[:n:n], nil
}

// create creates the segment, recovering once from a stale segment.
func (p *Producer) create(size int) (int, error) {
	op := func() (int, error) {
		n, err := p.res.create(size)
		if errors.Is(err, shm.ErrInsufficientMemory) || errors.Is(err, shm.ErrUnsupportedPlatform) {
			return 0, backoff.Permanent(err)
		}
		return n, err
	}
	recoverStale := func(err error, _ time.Duration) {
		p.log.warnf("shared memory %s seems to be still existing (%v), trying to recover by attaching and detaching to delete it", p.id, err)
		p.obs.recovered()
		if err := p.res.attach(); err != nil {
			p.log.debugf("recovery attach %s: %v", p.id, err)
		}
		if err := p.res.detach(); err != nil {
			p.log.debugf("recovery detach %s: %v", p.id, err)
		}
	}
	n, err := backoff.RetryNotifyWithData[int](op, backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 1), recoverStale)
	if err == nil {
		p.log.tracef("shared memory %s created, size:%d", p.id, n)
	}
	return n, err
}

func (p *Producer) undoEmpty() {
	if err := p.res.releaseEmpty(); err != nil {
		p.log.errorf("unable to give back system semaphore %s: %v", p.id.EmptySemaphoreName(), err)
	}
}

// End commits the payload: it unlocks the segment and signals the consumer.
// The slot is signalled even when unlocking fails, and the session returns to
// idle either way. The segment stays attached until Close.
func (p *Producer) End() error {
	span := p.obs.start("end")
	err := p.end()
	p.obs.finish(span, "end", err)
	return err
}

func (p *Producer) end() error {
	if !p.active {
		p.log.warnf("you must call Begin() first before calling End()")
		return newError(ProtocolViolation, "end", errNoTransaction)
	}
	p.active = false

	var first error
	if err := p.res.unlock(); err != nil {
		p.log.errorf("unlocking shared memory %s failed: %v", p.id, err)
		first = newError(LockFailure, "end", err)
	}
	if err := p.res.releaseFull(); err != nil {
		p.log.errorf("releasing system semaphore %s failed: %v", p.id.FullSemaphoreName(), err)
		if first == nil {
			first = newError(SemaphoreFailure, "end", err)
		}
	}
	p.log.debugf("payload committed on %s", p.id)
	return first
}

// Drain blocks until the consumer has handed the slot back, that is until the
// last committed payload has been read. A producer about to Close calls it
// so the detach in Close does not remove an unread segment.
func (p *Producer) Drain() error {
	switch {
	case p.closed:
		return newError(ProtocolViolation, "drain", errSessionClosed)
	case p.active:
		return newError(ProtocolViolation, "drain", errTransactionActive)
	}
	start := time.Now()
	if err := p.res.acquireEmpty(); err != nil {
		p.log.errorf("unable to acquire system semaphore %s: %v", p.id.EmptySemaphoreName(), err)
		return newError(SemaphoreFailure, "drain", err)
	}
	p.obs.waited(time.Since(start))
	if err := p.res.releaseEmpty(); err != nil {
		p.log.errorf("unable to release system semaphore %s: %v", p.id.EmptySemaphoreName(), err)
		return newError(SemaphoreFailure, "drain", err)
	}
	return nil
}

// Close ends an open transaction, detaches from the segment and releases the
// session. Failures are logged; Close always returns nil and is idempotent.
//
// If no consumer is attached, the detach removes the segment. Closing after
// End without Drain can therefore drop an unread payload and leave the
// channel wedged: the consumer's Begin fails with AttachFailure and the next
// producer Begin blocks until the channel is purged with Purge.
func (p *Producer) Close() error {
	if p.closed {
		return nil
	}
	if p.active {
		p.log.warnf("closing %s with an open transaction, ending it", p.id)
		_ = p.end()
	}
	p.closed = true
	if p.res.isAttached() {
		if err := p.res.detach(); err != nil {
			p.log.warnf("unable to detach from shared memory %s: %v", p.id, err)
		}
	}
	unregisterSession(p.regKey)
	return nil
}

// openSession verifies the configuration, resolves the identity and builds the
// session logger.
func openSession(config *Config, role string) (Identity, *logger, error) {
	if err := VerifyConfig(config); err != nil {
		return Identity{}, nil, newError(ProtocolViolation, "open", err)
	}
	id, err := config.resolve()
	if err != nil {
		return Identity{}, nil, newError(ProtocolViolation, "open", err)
	}
	log := newLogger(role+" "+id.Name, config.LogOutput, config.Logging)
	source := "explicit"
	if id.FromFile {
		source = "loaded from " + config.KeyFile
	}
	log.infof("using shared memory with key=%s (%s)", id.Name, source)
	if id.ResidualLines {
		log.warnf("ignoring residual lines in %s", config.KeyFile)
	}
	return id, log, nil
}

func classifyOpen(err error) Kind {
	if errors.Is(err, shm.ErrUnsupportedPlatform) {
		return ResourceUnavailable
	}
	return SemaphoreFailure
}
