package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/srediag/prodcon-shm/pkg/prodcon"
)

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:   "inspect",
		Usage:  "Show the channel's semaphores and segment",
		Action: inspect,
	}
}

func inspect(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	id, err := channelIdentity(cfg)
	if err != nil {
		return err
	}
	st, err := prodcon.Inspect(id)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "OBJECT\tNAME\tSTATE\n")
	for _, sem := range []struct {
		kind  string
		state prodcon.SemaphoreState
	}{{"empty", st.Empty}, {"full", st.Full}, {"lock", st.Lock}} {
		state := "missing"
		if sem.state.Exists {
			state = fmt.Sprintf("value=%d", sem.state.Value)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", sem.kind, sem.state.Name, state)
	}
	seg := "missing"
	if st.Segment.Exists {
		seg = fmt.Sprintf("size=%d attached=%d", st.Segment.Size, st.Segment.Attached)
	}
	fmt.Fprintf(w, "segment\t%s\t%s\n", id.SegmentName(), seg)
	if err := w.Flush(); err != nil {
		return err
	}
	if st.Empty.Exists && !st.Idle() {
		fmt.Fprintln(c.App.Writer, "channel is busy or holds an unread payload")
	}
	return nil
}

func purgeCommand() *cli.Command {
	return &cli.Command{
		Name:  "purge",
		Usage: "Remove the channel's semaphores and segment",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			id, err := channelIdentity(cfg)
			if err != nil {
				return err
			}
			if err := prodcon.Purge(id); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "purged %s\n", id)
			return nil
		},
	}
}
