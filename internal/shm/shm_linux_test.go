//go:build linux && (amd64 || arm64)

package shm

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testName(prefix string) string {
	return fmt.Sprintf("%s_%d_%d", prefix, rand.Int63(), time.Now().Nanosecond())
}

// skipWithoutSysV skips when the kernel or sandbox denies System V IPC.
func skipWithoutSysV(t *testing.T) {
	t.Helper()
	name := testName("sysv-check")
	sem, err := OpenSemaphore(name, 0, false)
	if err != nil {
		t.Skipf("System V IPC unavailable: %v", err)
	}
	_ = RemoveSemaphore(sem.Name())
}

func TestKeyIsStableAndPositive(t *testing.T) {
	assert.Equal(t, Key("demo"), Key("demo"))
	assert.NotEqual(t, Key("demo_sem_empty"), Key("demo_sem_full"))
	for _, name := range []string{"", "a", "demo", "x_sem_full"} {
		assert.Greater(t, Key(name), 0, name)
	}
}

func TestSegmentCreateAttachDetach(t *testing.T) {
	skipWithoutSysV(t)
	name := testName("seg")
	defer func() { _ = RemoveSegment(name) }()

	writer := NewSegment(name, ReadWrite)
	n, err := writer.Create(128)
	require.NoError(t, err)
	assert.Equal(t, 128, n)
	assert.True(t, writer.Attached())
	copy(writer.Bytes(), "hello,shm")

	// creating twice fails while the first segment lives
	other := NewSegment(name, ReadWrite)
	_, err = other.Create(128)
	assert.Error(t, err)

	reader := NewSegment(name, ReadOnly)
	require.NoError(t, reader.Attach())
	assert.Equal(t, "hello,shm", string(reader.Bytes()[:9]))

	info, err := StatSegment(name)
	require.NoError(t, err)
	assert.True(t, info.Exists)
	assert.Equal(t, 128, info.Size)
	assert.Equal(t, 2, info.Attached)

	require.NoError(t, reader.Detach())
	info, err = StatSegment(name)
	require.NoError(t, err)
	assert.True(t, info.Exists, "segment must survive while the writer is attached")

	require.NoError(t, writer.Detach())
	info, err = StatSegment(name)
	require.NoError(t, err)
	assert.False(t, info.Exists, "last detach removes the segment")

	assert.ErrorIs(t, writer.Detach(), ErrNotAttached)
}

func TestSegmentReadOnlyCannotCreate(t *testing.T) {
	s := NewSegment(testName("ro"), ReadOnly)
	_, err := s.Create(16)
	assert.Error(t, err)
}

func TestSemaphoreCounting(t *testing.T) {
	skipWithoutSysV(t)
	name := testName("sem")
	defer func() { _ = RemoveSemaphore(name) }()

	sem, err := OpenSemaphore(name, 1, false)
	require.NoError(t, err)

	// reopening keeps the existing count
	again, err := OpenSemaphore(name, 5, false)
	require.NoError(t, err)
	v, err := again.Value()
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	require.NoError(t, sem.Acquire())
	ok, err := sem.TryAcquire()
	require.NoError(t, err)
	assert.False(t, ok)

	done := make(chan error, 1)
	go func() { done <- again.Acquire() }()
	select {
	case <-done:
		t.Fatal("acquire on a zero count must block")
	case <-time.After(50 * time.Millisecond):
	}
	require.NoError(t, sem.Release())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("acquire was not woken by release")
	}

	v, exists, err := SemaphoreValue(name)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, 0, v)

	require.NoError(t, RemoveSemaphore(name))
	_, exists, err = SemaphoreValue(name)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, RemoveSemaphore(name))
}
