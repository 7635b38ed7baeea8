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
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"github.com/srediag/prodcon-shm/internal/shm"
)

type ChannelTestSuite struct {
	suite.Suite
	config *Config
	id     Identity
}

func (s *ChannelTestSuite) SetupTest() {
	s.config = channelConfig(s.T())
	s.id = Identity{Name: s.config.Identity}
}

func (s *ChannelTestSuite) produce(p *Producer, payload []byte) {
	n, buf, err := p.Begin(len(payload))
	s.Require().NoError(err)
	s.Require().Equal(len(payload), n)
	copy(buf, payload)
	s.Require().NoError(p.End())
}

func (s *ChannelTestSuite) consume(c *Consumer, size int) []byte {
	view, err := c.Begin()
	s.Require().NoError(err)
	s.Require().GreaterOrEqual(len(view), size)
	out := append([]byte(nil), view[:size]...)
	s.Require().NoError(c.End())
	return out
}

func (s *ChannelTestSuite) TestRoundTrip() {
	p, c := openPair(s.T(), s.config)
	for i, size := range []int{1, 6, 4096, 100, 70000, 3} {
		payload := bytes.Repeat([]byte{byte('a' + i)}, size)
		payload[0] = byte(i)
		s.produce(p, payload)
		s.Equal(payload, s.consume(c, size), "transaction %d", i)
	}
	s.True(inspect(s.T(), s.id).Idle())
}

func (s *ChannelTestSuite) TestDemo() {
	s.config.Identity = fmt.Sprintf("demo.%d", os.Getpid())
	s.id = Identity{Name: s.config.Identity}
	id := s.id
	s.T().Cleanup(func() { _ = Purge(id) })
	s.Require().NoError(Purge(s.id))

	p, c := openPair(s.T(), s.config)
	n, buf, err := p.Begin(6)
	s.Require().NoError(err)
	s.Equal(6, n)
	copy(buf, "hello\x00")
	s.Require().NoError(p.End())

	view, err := c.Begin()
	s.Require().NoError(err)
	s.Equal([]byte("hello\x00"), view[:6])
	s.Require().NoError(c.End())

	done := make(chan []byte, 1)
	go func() {
		view, err := c.Begin()
		if err != nil {
			done <- nil
			return
		}
		done <- append([]byte(nil), view[:5]...)
	}()
	select {
	case <-done:
		s.FailNow("second consumer Begin did not block")
	case <-time.After(settle):
	}

	s.produce(p, []byte("again"))
	select {
	case got := <-done:
		s.Equal([]byte("again"), got)
	case <-time.After(watchdog):
		s.FailNow("consumer Begin still blocked after producer End")
	}
	s.Require().NoError(c.End())
}

func (s *ChannelTestSuite) TestConsumerBlocksUntilProducerEnds() {
	p, c := openPair(s.T(), s.config)

	done := make(chan error, 1)
	var got []byte
	go func() {
		view, err := c.Begin()
		if err == nil {
			got = append([]byte(nil), view[:5]...)
			err = c.End()
		}
		done <- err
	}()

	n, buf, err := p.Begin(5)
	s.Require().NoError(err)
	copy(buf[:n], "12345")
	select {
	case <-done:
		s.FailNow("consumer did not wait for the producer")
	case <-time.After(settle):
	}
	s.Require().NoError(p.End())

	select {
	case err := <-done:
		s.Require().NoError(err)
		s.Equal([]byte("12345"), got)
	case <-time.After(watchdog):
		s.FailNow("consumer Begin still blocked after producer End")
	}
}

func (s *ChannelTestSuite) TestDoubleBeginHasNoSideEffects() {
	p, c := openPair(s.T(), s.config)

	_, _, err := p.Begin(16)
	s.Require().NoError(err)
	before := inspect(s.T(), s.id)
	_, _, err = p.Begin(16)
	s.ErrorIs(err, ErrProtocolViolation)
	s.Equal(before, inspect(s.T(), s.id))
	s.Require().NoError(p.End())

	s.ErrorIs(p.End(), ErrProtocolViolation)

	_, err = c.Begin()
	s.Require().NoError(err)
	before = inspect(s.T(), s.id)
	_, err = c.Begin()
	s.ErrorIs(err, ErrProtocolViolation)
	s.Equal(before, inspect(s.T(), s.id))
	s.Require().NoError(c.End())
	s.ErrorIs(c.End(), ErrProtocolViolation)
}

func (s *ChannelTestSuite) TestBeginRejectsNonPositiveSize() {
	p, _ := openPair(s.T(), s.config)
	before := inspect(s.T(), s.id)
	_, _, err := p.Begin(0)
	s.ErrorIs(err, ErrProtocolViolation)
	_, _, err = p.Begin(-1)
	s.ErrorIs(err, ErrProtocolViolation)
	s.Equal(before, inspect(s.T(), s.id))
}

func (s *ChannelTestSuite) TestActualSizeBounds() {
	p, c := openPair(s.T(), s.config)
	for _, size := range []int{1, 7, 4097} {
		n, buf, err := p.Begin(size)
		s.Require().NoError(err)
		s.LessOrEqual(n, size)
		s.Len(buf, n)
		s.Equal(n, cap(buf))
		st := inspect(s.T(), s.id)
		s.LessOrEqual(n, st.Segment.Size)
		s.Require().NoError(p.End())
		s.consume(c, n)
	}
}

func (s *ChannelTestSuite) TestInspectDuringTransaction() {
	p, c := openPair(s.T(), s.config)

	st := inspect(s.T(), s.id)
	s.True(st.Idle())
	s.False(st.Segment.Exists)

	_, _, err := p.Begin(32)
	s.Require().NoError(err)
	st = inspect(s.T(), s.id)
	s.Equal(0, st.Empty.Value)
	s.Equal(0, st.Lock.Value)
	s.True(st.Segment.Exists)
	s.Equal(32, st.Segment.Size)
	s.Equal(1, st.Segment.Attached)
	s.Require().NoError(p.End())

	st = inspect(s.T(), s.id)
	s.Equal(1, st.Full.Value)
	s.Equal(1, st.Lock.Value)
	s.Contains(st.String(), s.id.FullSemaphoreName()+":1")

	_, err = c.Begin()
	s.Require().NoError(err)
	s.Equal(2, inspect(s.T(), s.id).Segment.Attached)
	s.Require().NoError(c.End())
	s.True(inspect(s.T(), s.id).Idle())
}

func (s *ChannelTestSuite) TestConsumerAttachFailureGivesTokenBack() {
	_, c := openPair(s.T(), s.config)

	// a full token without a segment
	full, err := shm.OpenSemaphore(s.id.FullSemaphoreName(), 0, false)
	s.Require().NoError(err)
	s.Require().NoError(full.Release())

	_, err = c.Begin()
	s.ErrorIs(err, ErrAttachFailure)
	s.False(c.Active())
	st := inspect(s.T(), s.id)
	s.Equal(1, st.Full.Value)
	s.Equal(1, st.Lock.Value)
}

func (s *ChannelTestSuite) TestProducerLockFailureGivesTokenBack() {
	p, _ := openPair(s.T(), s.config)
	s.Require().NoError(shm.RemoveSemaphore(s.id.LockName()))

	_, _, err := p.Begin(4)
	s.ErrorIs(err, ErrLockFailure)
	s.False(p.Active())
	st := inspect(s.T(), s.id)
	s.Equal(1, st.Empty.Value)
	s.Equal(0, st.Full.Value)
}

func (s *ChannelTestSuite) TestConsumerLockFailureGivesTokenBack() {
	p, c := openPair(s.T(), s.config)
	s.produce(p, []byte("data"))
	s.Require().NoError(shm.RemoveSemaphore(s.id.LockName()))

	_, err := c.Begin()
	s.ErrorIs(err, ErrLockFailure)
	s.False(c.Active())
	s.False(c.res.isAttached())
	st := inspect(s.T(), s.id)
	s.Equal(1, st.Full.Value)
	s.Equal(0, st.Empty.Value)
	s.Equal(1, st.Segment.Attached)
}

func (s *ChannelTestSuite) TestCloseWithoutDrainNeedsPurge() {
	p, c := openPair(s.T(), s.config)
	s.produce(p, []byte("lost"))
	s.Require().NoError(p.Close())

	_, err := c.Begin()
	s.ErrorIs(err, ErrAttachFailure)
	st := inspect(s.T(), s.id)
	s.Equal(0, st.Empty.Value)
	s.Equal(1, st.Full.Value)
	s.False(st.Segment.Exists)
	s.Require().NoError(c.Close())

	s.Require().NoError(Purge(s.id))
	p, c = openPair(s.T(), s.config)
	s.True(inspect(s.T(), s.id).Idle())
	s.produce(p, []byte("next"))
	s.Equal([]byte("next"), s.consume(c, 4))
}

func (s *ChannelTestSuite) TestCloseEndsOpenTransaction() {
	p, c := openPair(s.T(), s.config)
	_, buf, err := p.Begin(4)
	s.Require().NoError(err)
	copy(buf, "last")

	s.Require().NoError(p.Close())
	s.Require().NoError(p.Close())
	_, _, err = p.Begin(4)
	s.ErrorIs(err, ErrProtocolViolation)

	// the producer was the only attachment, so closing it removed the segment
	st := inspect(s.T(), s.id)
	s.Equal(1, st.Full.Value)
	s.False(st.Segment.Exists)

	_, err = c.Begin()
	s.ErrorIs(err, ErrAttachFailure)
}

func (s *ChannelTestSuite) TestKeyFileOverride() {
	path := filepath.Join(s.T().TempDir(), "key")
	name := uniqueName("prodcon-keyfile")
	s.Require().NoError(os.WriteFile(path, []byte(name+"\nleftover\n"), 0o600))
	s.T().Cleanup(func() { _ = Purge(Identity{Name: name}) })

	s.config.KeyFile = path
	p, c := openPair(s.T(), s.config)
	s.Equal(name, p.Identity().Name)
	s.True(p.Identity().FromFile)
	s.True(p.Identity().ResidualLines)
	s.Equal(p.Identity(), c.Identity())

	s.produce(p, []byte("via key file"))
	s.Equal([]byte("via key file"), s.consume(c, 12))
	s.True(inspect(s.T(), Identity{Name: name}).Idle())
}

func (s *ChannelTestSuite) TestScopedTransactionOverSessions() {
	p, c := openPair(s.T(), s.config)

	tx := NewScopedTransaction(p, 3)
	s.Require().NoError(tx.Err())
	copy(tx.Data(), "abc")
	s.Require().NoError(tx.Close())
	s.False(p.Active())

	var got []byte
	s.Require().NoError(Do(c, 0, func(data []byte) error {
		got = append(got, data[:3]...)
		return nil
	}))
	s.Equal([]byte("abc"), got)
	s.False(c.Active())
}

func (s *ChannelTestSuite) TestMetricsFollowTransactions() {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	s.Require().NoError(err)
	s.config.Metrics = m

	p, c := openPair(s.T(), s.config)
	s.produce(p, []byte("x"))
	s.consume(c, 1)
	s.produce(p, []byte("y"))
	_, err = c.Begin()
	s.Require().NoError(err)
	_, err = c.Begin()
	s.Require().ErrorIs(err, ErrProtocolViolation)
	s.Require().NoError(c.End())

	s.Equal(2.0, counterValue(s.T(), reg, "prodcon_operations_total",
		map[string]string{"role": "producer", "op": "begin", "result": "ok"}))
	s.Equal(2.0, counterValue(s.T(), reg, "prodcon_operations_total",
		map[string]string{"role": "consumer", "op": "begin", "result": "ok"}))
	s.Equal(1.0, counterValue(s.T(), reg, "prodcon_operations_total",
		map[string]string{"role": "consumer", "op": "begin", "result": "ProtocolViolation"}))
	s.Equal(2.0, counterValue(s.T(), reg, "prodcon_operations_total",
		map[string]string{"role": "consumer", "op": "end", "result": "ok"}))
}

func TestChannelTestSuite(t *testing.T) {
	suite.Run(t, new(ChannelTestSuite))
}

func TestDrainWaitsForConsumer(t *testing.T) {
	config := channelConfig(t)
	p, c := openPair(t, config)

	if err := p.Drain(); err != nil {
		t.Fatalf("Drain on an idle channel: %v", err)
	}
	_, buf, err := p.Begin(4)
	if err != nil {
		t.Fatal(err)
	}
	copy(buf, "tail")
	if err := p.Drain(); !errors.Is(err, ErrProtocolViolation) {
		t.Fatalf("Drain during a transaction: %v", err)
	}
	if err := p.End(); err != nil {
		t.Fatal(err)
	}

	drained := make(chan error, 1)
	go func() { drained <- p.Drain() }()
	select {
	case <-drained:
		t.Fatal("Drain returned before the payload was read")
	case <-time.After(settle):
	}

	view, err := c.Begin()
	if err != nil {
		t.Fatal(err)
	}
	if string(view[:4]) != "tail" {
		t.Fatalf("got %q", view[:4])
	}
	if err := c.End(); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-drained:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(watchdog):
		t.Fatal("Drain still blocked after the consumer ended")
	}
	if st := inspect(t, Identity{Name: config.Identity}); !st.Idle() {
		t.Fatalf("channel not idle after drain: %s", st)
	}
}
