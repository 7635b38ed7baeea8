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
	"time"

	"github.com/srediag/prodcon-shm/internal/shm"
)

// Consumer is the reading side of a channel. It waits for the producer's
// signal, maps the segment read-only and hands the slot back when done. A
// Consumer must be driven by one goroutine at a time and released with Close.
type Consumer struct {
	id     Identity
	res    *resource
	log    *logger
	obs    *observer
	regKey string
	active bool
	closed bool
}

// NewConsumer opens the channel's semaphores for reading.
func NewConsumer(config *Config) (*Consumer, error) {
	id, log, err := openSession(config, roleConsumer)
	if err != nil {
		return nil, err
	}
	regKey, err := registerSession(roleConsumer, id)
	if err != nil {
		return nil, err
	}
	res, err := newResource(id, shm.ReadOnly)
	if err != nil {
		unregisterSession(regKey)
		log.errorf("unable to open semaphores of channel %s: %v", id, err)
		return nil, newError(classifyOpen(err), "open", err)
	}
	return &Consumer{
		id:     id,
		res:    res,
		log:    log,
		obs:    newObserver(config, roleConsumer, id),
		regKey: regKey,
	}, nil
}

// Identity returns the resolved channel identity.
func (c *Consumer) Identity() Identity { return c.id }

// Active reports whether a transaction is open.
func (c *Consumer) Active() bool { return c.active }

// Begin blocks until the producer has committed a payload, then attaches to
// and locks the segment. The returned view covers the whole segment and is
// mapped read-only: writing to it faults. It is valid until End.
func (c *Consumer) Begin() ([]byte, error) {
	span := c.obs.start("begin")
	view, err := c.begin()
	c.obs.finish(span, "begin", err)
	return view, err
}

func (c *Consumer) begin() ([]byte, error) {
	switch {
	case c.closed:
		return nil, newError(ProtocolViolation, "begin", errSessionClosed)
	case c.active:
		c.log.warnf("already started a transaction, call End() first to start a new one")
		return nil, newError(ProtocolViolation, "begin", errTransactionActive)
	}

	c.log.tracef("waiting for data on %s", c.id)
	start := time.Now()
	if err := c.res.acquireFull(); err != nil {
		c.log.errorf("unable to acquire system semaphore %s: %v", c.id.FullSemaphoreName(), err)
		return nil, newError(SemaphoreFailure, "begin", err)
	}
	c.obs.waited(time.Since(start))

	if err := c.res.attach(); err != nil {
		c.undoFull()
		c.log.errorf("unable to attach to shared memory %s: %v", c.id, err)
		return nil, newError(AttachFailure, "begin", err)
	}
	if err := c.res.lock(); err != nil {
		c.undoFull()
		if derr := c.res.detach(); derr != nil {
			c.log.warnf("unable to detach from shared memory %s: %v", c.id, derr)
		}
		c.log.errorf("unable to lock shared memory %s: %v", c.id, err)
		return nil, newError(LockFailure, "begin", err)
	}

	c.active = true
	view := c.res.rawView()
	c.log.debugf("transaction started on %s, size:%d", c.id, len(view))
	return view, nil
}

func (c *Consumer) undoFull() {
	if err := c.res.releaseFull(); err != nil {
		c.log.errorf("unable to give back system semaphore %s: %v", c.id.FullSemaphoreName(), err)
	}
}

// End unlocks and detaches from the segment and hands the slot back to the
// producer. The slot is handed back even when unlocking or detaching fails;
// a detach failure is only logged.
func (c *Consumer) End() error {
	span := c.obs.start("end")
	err := c.end()
	c.obs.finish(span, "end", err)
	return err
}

func (c *Consumer) end() error {
	if !c.active {
		c.log.warnf("you must call Begin() first before calling End()")
		return newError(ProtocolViolation, "end", errNoTransaction)
	}
	c.active = false

	var first error
	if err := c.res.unlock(); err != nil {
		c.log.errorf("unable to unlock shared memory %s: %v", c.id, err)
		first = newError(LockFailure, "end", err)
	}
	if err := c.res.detach(); err != nil {
		c.log.errorf("unable to detach shared memory %s: %v", c.id, err)
	}
	c.log.debugf("signaling that the produced data was consumed on %s", c.id)
	if err := c.res.releaseEmpty(); err != nil {
		c.log.errorf("unable to release system semaphore %s: %v", c.id.EmptySemaphoreName(), err)
		if first == nil {
			first = newError(SemaphoreFailure, "end", err)
		}
	}
	return first
}

// Close ends an open transaction and releases the session. It always returns
// nil and is idempotent.
func (c *Consumer) Close() error {
	if c.closed {
		return nil
	}
	if c.active {
		c.log.warnf("closing %s with an open transaction, ending it", c.id)
		_ = c.end()
	}
	c.closed = true
	if c.res.isAttached() {
		if err := c.res.detach(); err != nil {
			c.log.warnf("unable to detach from shared memory %s: %v", c.id, err)
		}
	}
	unregisterSession(c.regKey)
	return nil
}
