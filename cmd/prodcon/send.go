package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/Workiva/go-datastructures/queue"
	"github.com/urfave/cli/v2"

	"github.com/srediag/prodcon-shm/pkg/prodcon"
	"github.com/srediag/prodcon-shm/pkg/transport"
)

// prefetchDepth is how many files are read ahead of the channel.
const prefetchDepth = 4

type loadedFile struct {
	name string
	data []byte
	err  error
}

func sendCommand() *cli.Command {
	return &cli.Command{
		Name:      "send",
		Usage:     "Send each file as one payload",
		ArgsUsage: "FILE...",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "wait",
				Usage: "wait for the last payload to be received before exiting; with --wait=false an unread payload is lost and the channel stays blocked until 'prodcon purge'",
				Value: true,
			},
		},
		Action: send,
	}
}

func send(c *cli.Context) error {
	files := c.Args().Slice()
	if len(files) == 0 {
		return errors.New("send needs at least one file")
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if _, err := channelIdentity(cfg); err != nil {
		return err
	}
	p, err := prodcon.NewProducer(sessionConfig(c, cfg))
	if err != nil {
		return err
	}
	defer p.Close()

	ring := queue.NewRingBuffer(prefetchDepth)
	defer ring.Dispose()
	go prefetch(ring, files)

	sender := transport.NewSender(p)
	for range files {
		item, err := ring.Get()
		if err != nil {
			return err
		}
		f := item.(loadedFile)
		if f.err != nil {
			return f.err
		}
		if err := sender.Send(f.data); err != nil {
			if errors.Is(err, transport.ErrShortBuffer) {
				fmt.Fprintf(c.App.ErrWriter, "warning: %s was truncated\n", f.name)
				continue
			}
			return fmt.Errorf("send %s: %w", f.name, err)
		}
		fmt.Fprintf(c.App.Writer, "sent %s (%d bytes)\n", f.name, len(f.data))
	}
	if c.Bool("wait") {
		return p.Drain()
	}
	return nil
}

// prefetch reads files into ring in order. It stops when ring is disposed.
func prefetch(ring *queue.RingBuffer, files []string) {
	for _, name := range files {
		data, err := os.ReadFile(name)
		if err == nil && len(data) == 0 {
			err = fmt.Errorf("%s is empty", name)
		}
		if err := ring.Put(loadedFile{name: name, data: data, err: err}); err != nil {
			return
		}
	}
}
