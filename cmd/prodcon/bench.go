package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/urfave/cli/v2"

	"github.com/srediag/prodcon-shm/pkg/prodcon"
)

func benchCommand() *cli.Command {
	return &cli.Command{
		Name:  "bench",
		Usage: "Measure round trips on a private channel inside this process",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "rounds", Usage: "number of payloads", Value: 10000},
			&cli.IntFlag{Name: "size", Usage: "payload size in bytes", Value: 4096},
		},
		Action: bench,
	}
}

type benchResult struct {
	rounds   int
	size     int
	elapsed  time.Duration
	mismatch uint64
}

func (r benchResult) String() string {
	secs := r.elapsed.Seconds()
	return fmt.Sprintf("rounds:%d size:%d elapsed:%s qps:%.0f throughput:%.1fMiB/s mismatches:%d",
		r.rounds, r.size, r.elapsed.Round(time.Millisecond), float64(r.rounds)/secs,
		float64(r.rounds*r.size)/secs/(1<<20), r.mismatch)
}

func bench(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	rounds, size := c.Int("rounds"), c.Int("size")
	if rounds <= 0 || size < 8 {
		return errors.New("bench needs --rounds > 0 and --size >= 8")
	}
	base := cfg.Channel.Identity
	if base == "" {
		base = "prodcon"
	}
	sc := sessionConfig(c, cfg)
	sc.Identity = fmt.Sprintf("%s.bench.%d", base, os.Getpid())
	sc.KeyFile = ""
	defer prodcon.Purge(prodcon.Identity{Name: sc.Identity}) //nolint:errcheck

	res, err := runBench(sc, rounds, size)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, res)
	return nil
}

// runBench drives one producer and one consumer on a two-worker pool. Each
// payload carries its round number so reordering or loss shows up as a
// mismatch.
func runBench(sc *prodcon.Config, rounds, size int) (benchResult, error) {
	p, err := prodcon.NewProducer(sc)
	if err != nil {
		return benchResult{}, err
	}
	defer p.Close()
	cons, err := prodcon.NewConsumer(sc)
	if err != nil {
		return benchResult{}, err
	}
	defer cons.Close()

	pool, err := ants.NewPool(2)
	if err != nil {
		return benchResult{}, err
	}
	defer pool.Release()

	var (
		wg       sync.WaitGroup
		mismatch atomic.Uint64
		errs     = make([]error, 2)
	)
	// a failing side purges the channel so the other one wakes up
	abort := func() { _ = prodcon.Purge(p.Identity()) }

	start := time.Now()
	wg.Add(2)
	if err := pool.Submit(func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			err := prodcon.Do(p, size, func(buf []byte) error {
				binary.LittleEndian.PutUint64(buf, uint64(i))
				return nil
			})
			if err != nil {
				errs[0] = err
				abort()
				return
			}
		}
	}); err != nil {
		return benchResult{}, err
	}
	if err := pool.Submit(func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			err := prodcon.Do(cons, 0, func(data []byte) error {
				if binary.LittleEndian.Uint64(data) != uint64(i) {
					mismatch.Add(1)
				}
				return nil
			})
			if err != nil {
				errs[1] = err
				abort()
				return
			}
		}
	}); err != nil {
		// the producer is already running and would block forever
		abort()
		wg.Done()
		wg.Wait()
		return benchResult{}, err
	}
	wg.Wait()

	if errs[0] != nil {
		return benchResult{}, fmt.Errorf("producer: %w", errs[0])
	}
	if errs[1] != nil {
		return benchResult{}, fmt.Errorf("consumer: %w", errs[1])
	}
	return benchResult{rounds: rounds, size: size, elapsed: time.Since(start), mismatch: mismatch.Load()}, nil
}
