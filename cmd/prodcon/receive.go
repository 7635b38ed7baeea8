package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/srediag/prodcon-shm/pkg/health"
	"github.com/srediag/prodcon-shm/pkg/prodcon"
	"github.com/srediag/prodcon-shm/pkg/transport"
)

func receiveCommand() *cli.Command {
	return &cli.Command{
		Name:  "receive",
		Usage: "Receive payloads and write them to stdout or a directory",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "count",
				Usage: "stop after this many payloads, 0 runs until killed",
				Value: 1,
			},
			&cli.StringFlag{
				Name:  "out",
				Usage: "directory receiving one file per payload instead of stdout",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "serve /metrics, /live and /ready on this address",
			},
		},
		Action: receive,
	}
}

func receive(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	id, err := channelIdentity(cfg)
	if err != nil {
		return err
	}
	sc := sessionConfig(c, cfg)

	if cfg.Metrics.Addr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		if sc.Metrics, err = prodcon.NewMetrics(reg); err != nil {
			return err
		}
		srv := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           adminMux(reg, id),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				fmt.Fprintf(c.App.ErrWriter, "metrics server: %v\n", err)
			}
		}()
		defer srv.Close()
	}

	cons, err := prodcon.NewConsumer(sc)
	if err != nil {
		return err
	}
	defer cons.Close()

	out := c.String("out")
	if out != "" {
		if err := os.MkdirAll(out, 0o755); err != nil {
			return err
		}
	}
	receiver := transport.NewReceiver(cons)
	count := c.Int("count")
	for i := 1; count <= 0 || i <= count; i++ {
		if err := receiveOne(c.App.Writer, receiver, out, i); err != nil {
			return err
		}
	}
	return nil
}

func receiveOne(stdout io.Writer, r *transport.Receiver, dir string, seq int) error {
	if dir == "" {
		_, err := r.ReceiveTo(stdout)
		return err
	}
	path := filepath.Join(dir, fmt.Sprintf("payload-%06d.bin", seq))
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	n, err := r.ReceiveTo(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "received %s (%d bytes)\n", path, n)
	return nil
}

func adminMux(reg *prometheus.Registry, id prodcon.Identity) *http.ServeMux {
	hc := health.NewHandler(id)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.Handle("/live", hc)
	mux.Handle("/ready", hc)
	return mux
}
