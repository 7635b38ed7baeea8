// Package health exposes a channel's kernel objects as liveness and readiness
// checks.
package health

import (
	"fmt"

	"github.com/heptiolabs/healthcheck"

	"github.com/srediag/prodcon-shm/pkg/prodcon"
)

// Check names as they appear in the handler's verbose output.
const (
	SemaphoresCheck = "prodcon-semaphores"
	SegmentCheck    = "prodcon-segment"
)

// NewHandler returns a healthcheck handler for id. Liveness fails when any
// semaphore of the channel is missing, which happens after a purge; readiness
// fails when the channel's kernel objects cannot be inspected at all.
func NewHandler(id prodcon.Identity) healthcheck.Handler {
	h := healthcheck.NewHandler()
	h.AddLivenessCheck(SemaphoresCheck, SemaphoresPresent(id))
	h.AddReadinessCheck(SegmentCheck, Inspectable(id))
	return h
}

// SemaphoresPresent checks that the empty, full and lock semaphores of id exist.
func SemaphoresPresent(id prodcon.Identity) healthcheck.Check {
	return func() error {
		st, err := prodcon.Inspect(id)
		if err != nil {
			return err
		}
		for _, sem := range []prodcon.SemaphoreState{st.Empty, st.Full, st.Lock} {
			if !sem.Exists {
				return fmt.Errorf("semaphore %s is missing", sem.Name)
			}
		}
		return nil
	}
}

// Inspectable checks that the kernel state of id can be read.
func Inspectable(id prodcon.Identity) healthcheck.Check {
	return func() error {
		_, err := prodcon.Inspect(id)
		return err
	}
}
