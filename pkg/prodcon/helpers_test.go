package prodcon

import (
	"fmt"
	"math/rand"
	"os"
	"testing"
	"time"

	"github.com/srediag/prodcon-shm/internal/shm"
)

// watchdog bounds every wait in the integration tests.
const watchdog = 5 * time.Second

// settle is how long a goroutine must stay blocked to count as blocked.
const settle = 150 * time.Millisecond

func uniqueName(prefix string) string {
	return fmt.Sprintf("%s.%d.%x", prefix, os.Getpid(), rand.Uint64())
}

// requireSysV skips t when System V semaphores cannot be created here.
func requireSysV(t *testing.T) {
	t.Helper()
	name := uniqueName("prodcon-sysv-check")
	sem, err := shm.OpenSemaphore(name, 0, false)
	if err != nil {
		t.Skipf("System V IPC unavailable: %v", err)
	}
	_ = shm.RemoveSemaphore(sem.Name())
}

// channelConfig returns a config for a fresh identity whose kernel objects
// are purged when t finishes.
func channelConfig(t *testing.T) *Config {
	t.Helper()
	requireSysV(t)
	config := DefaultConfig()
	config.Identity = uniqueName("prodcon-test")
	config.Logging = false
	id := Identity{Name: config.Identity}
	t.Cleanup(func() { _ = Purge(id) })
	return config
}

func openPair(t *testing.T, config *Config) (*Producer, *Consumer) {
	t.Helper()
	p, err := NewProducer(config)
	if err != nil {
		t.Fatalf("NewProducer: %v", err)
	}
	c, err := NewConsumer(config)
	if err != nil {
		_ = p.Close()
		t.Fatalf("NewConsumer: %v", err)
	}
	t.Cleanup(func() {
		_ = c.Close()
		_ = p.Close()
	})
	return p, c
}

func inspect(t *testing.T, id Identity) ChannelState {
	t.Helper()
	st, err := Inspect(id)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	return st
}
