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

// Package transport moves whole payloads over a prodcon channel. Payloads are
// copied in and out so the slot is held only for the duration of the copy.
package transport

import (
	"errors"
	"io"

	"github.com/valyala/bytebufferpool"

	"github.com/srediag/prodcon-shm/pkg/prodcon"
)

// ErrShortBuffer is returned by Send when the segment came out smaller than
// the payload. The truncated payload has still been committed.
var ErrShortBuffer = errors.New("transport: segment is smaller than the payload")

// Sender writes payloads through a producer.
type Sender struct {
	p *prodcon.Producer
}

// NewSender returns a Sender on p. The caller keeps ownership of p.
func NewSender(p *prodcon.Producer) *Sender {
	return &Sender{p: p}
}

// Send blocks until the slot is free and commits payload as one transaction.
func (s *Sender) Send(payload []byte) error {
	short := false
	err := prodcon.Do(s.p, len(payload), func(buf []byte) error {
		if copy(buf, payload) < len(payload) {
			short = true
		}
		return nil
	})
	if err != nil {
		return err
	}
	if short {
		return ErrShortBuffer
	}
	return nil
}

// Receiver reads payloads through a consumer.
type Receiver struct {
	c    *prodcon.Consumer
	pool bytebufferpool.Pool
}

// NewReceiver returns a Receiver on c. The caller keeps ownership of c.
func NewReceiver(c *prodcon.Consumer) *Receiver {
	return &Receiver{c: c}
}

// Receive blocks until a payload is committed and returns a copy of the whole
// segment.
func (r *Receiver) Receive() ([]byte, error) {
	var out []byte
	err := prodcon.Do(r.c, 0, func(data []byte) error {
		out = append(make([]byte, 0, len(data)), data...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReceiveTo copies the next payload to w through a pooled buffer. The slot is
// handed back before w is written to.
func (r *Receiver) ReceiveTo(w io.Writer) (int64, error) {
	buf := r.pool.Get()
	defer r.pool.Put(buf)

	err := prodcon.Do(r.c, 0, func(data []byte) error {
		_, err := buf.Write(data)
		return err
	})
	if err != nil {
		return 0, err
	}
	return buf.WriteTo(w)
}
