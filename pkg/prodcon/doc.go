// Package prodcon implements a single-slot producer/consumer channel between
// two processes on the same machine.
//
// The producer writes one opaque payload into a named shared memory segment
// and signals the consumer; the consumer reads it and hands the slot back.
// Two named counting semaphores enforce strict alternation, so there is
// exactly one payload in flight at any time:
//
//	producer                          consumer
//	Begin(n)  waits for "empty"
//	          creates the segment
//	write     ...
//	End()     signals "full"  ------> Begin()  waits for "full"
//	                                  read     ...
//	Begin(n)  waits for "empty" <---- End()    signals "empty"
//
// Both sides must be configured with the same identity:
//
//	p, err := prodcon.NewProducer(&prodcon.Config{Identity: "demo"})
//	if err != nil {
//		return err
//	}
//	defer p.Close()
//	err = prodcon.Do(p, len(payload), func(buf []byte) error {
//		copy(buf, payload)
//		return nil
//	})
//
// Begin blocks without timeout. Callers that need responsiveness should run
// it on a separate goroutine.
package prodcon
