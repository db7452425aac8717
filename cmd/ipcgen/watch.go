package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watch re-plans whenever the description changes until ctx is done.
func watch(ctx context.Context, cfg config, w io.Writer) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(cfg.idlFile); err != nil {
		return fmt.Errorf("watch %s: %w", cfg.idlFile, err)
	}

	replan := func() {
		if err := run(ctx, cfg, w); err != nil {
			fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		}
		fmt.Fprintln(w, helpStyle.Render("watching "+cfg.idlFile+" • ctrl+c quit"))
	}
	replan()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write | fsnotify.Create | fsnotify.Rename) {
				continue
			}
			settle(watcher.Events, 50*time.Millisecond)
			// editors replace the file on save, so the watch has to be renewed
			_ = watcher.Add(cfg.idlFile)
			replan()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintln(os.Stderr, errorStyle.Render("watch: "+err.Error()))
		}
	}
}

// settle drops events until none arrive for quiet.
func settle(events <-chan fsnotify.Event, quiet time.Duration) {
	for {
		select {
		case <-events:
		case <-time.After(quiet):
			return
		}
	}
}
