package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"git.home.luguber.info/inful/stepd-host/internal/eventstore"
	ferrors "git.home.luguber.info/inful/stepd-host/internal/foundation/errors"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Limit int    `short:"n" help:"Number of events to show" default:"20"`
	Cycle string `help:"Only show events of this update cycle"`
	JSON  bool   `help:"Print events as JSON lines"`
}

func (h *HistoryCmd) Run(g *Global, root *CLI) error {
	cfg := root.Loaded()
	path := cfg.EventStorePath()
	if path == "" || path == ":memory:" {
		return ferrors.ConfigError("no persistent event store configured").WithContext("field", "events.store").Build()
	}
	if _, err := os.Stat(path); err != nil {
		return ferrors.FileSystemError("event store not found").WithCause(err).WithContext("path", path).Build()
	}
	store, err := eventstore.NewSQLiteStore(path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	var events []eventstore.Event
	if h.Cycle != "" {
		events, err = store.ByCycle(ctx, h.Cycle)
	} else {
		events, err = store.Recent(ctx, h.Limit)
	}
	if err != nil {
		return err
	}

	if h.JSON {
		enc := json.NewEncoder(os.Stdout)
		for _, e := range events {
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
		return nil
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tCYCLE\tTYPE\tSTATE\tPID\tMESSAGE")
	for _, e := range events {
		pid := ""
		if e.PID != 0 {
			pid = fmt.Sprint(e.PID)
		}
		cycle := e.CycleID
		if len(cycle) > 8 {
			cycle = cycle[:8]
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Local().Format(time.DateTime), cycle, e.Type, e.State, pid, e.Message)
	}
	return tw.Flush()
}
