package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mirajehossain/shift/internal/logger"
	"github.com/mirajehossain/shift/internal/migrator"
)

func printInfo(w io.Writer, slots []migrator.InfoSlot, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		return enc.Encode(slots)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tNAME\tTYPE\tSTATE\tINSTALLED ON\tTIME (ms)")
	for _, s := range slots {
		installed, took := "-", "-"
		if s.InstalledOn != nil {
			installed = s.InstalledOn.UTC().Format(time.RFC3339)
		}
		if s.ExecutionTime != nil {
			took = strconv.FormatInt(*s.ExecutionTime, 10)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", s.Version, s.Name, s.Type, s.State, installed, took)
	}
	return tw.Flush()
}

// watchInfo renders the report once and again after every change to dir until
// ctx is done.
func watchInfo(ctx context.Context, sh *migrator.Shift, dir string, w io.Writer, asJSON bool, log *logger.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	render := func() {
		slots, err := sh.Info(ctx)
		if err != nil {
			log.Warn("info failed", map[string]any{"error": err.Error()})
			return
		}
		if err := printInfo(w, slots, asJSON); err != nil {
			log.Warn("render failed", map[string]any{"error": err.Error()})
		}
	}
	render()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			log.Debug("migrations changed", map[string]any{"file": ev.Name, "op": ev.Op.String()})
			render()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("watch error", map[string]any{"error": err.Error()})
		}
	}
}
