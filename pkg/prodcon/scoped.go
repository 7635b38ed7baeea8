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

// Transactor is implemented by *Producer and *Consumer. It is sealed: the
// scoped helpers below are the only users of its begin method.
type Transactor interface {
	beginTransaction(size int) ([]byte, error)
	End() error
}

func (p *Producer) beginTransaction(size int) ([]byte, error) {
	_, buf, err := p.Begin(size)
	return buf, err
}

func (c *Consumer) beginTransaction(int) ([]byte, error) {
	return c.Begin()
}

// ScopedTransaction begins a transaction on construction and ends it on Close,
// but only if the begin succeeded. Use it with defer:
//
//	tx := prodcon.NewScopedTransaction(producer, len(payload))
//	if err := tx.Err(); err != nil {
//		return err
//	}
//	defer tx.Close()
//	copy(tx.Data(), payload)
type ScopedTransaction struct {
	s     Transactor
	data  []byte
	err   error
	ended bool
}

// NewScopedTransaction calls Begin on s. size is the producer's desired size
// and is ignored for consumers.
func NewScopedTransaction(s Transactor, size int) *ScopedTransaction {
	data, err := s.beginTransaction(size)
	return &ScopedTransaction{s: s, data: data, err: err}
}

// OK reports whether the transaction was acquired and is still open.
func (t *ScopedTransaction) OK() bool { return t.err == nil && !t.ended }

// Err returns the error Begin failed with, if any.
func (t *ScopedTransaction) Err() error { return t.err }

// Data returns the transaction's buffer, or nil when Begin failed or the
// transaction was closed.
func (t *ScopedTransaction) Data() []byte {
	if !t.OK() {
		return nil
	}
	return t.data
}

// Size returns len(Data()).
func (t *ScopedTransaction) Size() int { return len(t.Data()) }

// Close ends the transaction if Begin succeeded. Only the first call has an
// effect.
func (t *ScopedTransaction) Close() error {
	if !t.OK() {
		return nil
	}
	t.ended = true
	return t.s.End()
}

// Do runs fn inside a transaction on s. The transaction is ended however fn
// exits, panics included. An End error is returned only when fn succeeded.
func Do(s Transactor, size int, fn func(data []byte) error) (err error) {
	tx := NewScopedTransaction(s, size)
	if tx.Err() != nil {
		return tx.Err()
	}
	defer func() {
		if cerr := tx.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(tx.Data())
}
