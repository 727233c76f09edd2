package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/distguard/distguard/internal/observability"
	"github.com/distguard/distguard/internal/observability/logging"
	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 500 * time.Millisecond

// watchCheck runs checkOnce now and after every change to the inputs.
// Blocks until ctx is cancelled.
func watchCheck(ctx context.Context, stdout, stderr io.Writer, opts checkOptions) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return failure(fmt.Errorf("failed to create file watcher: %w", err))
	}
	defer watcher.Close()

	// Editors replace files on save, so watch directories and filter by name.
	targets := map[string]bool{}
	dirs := map[string]bool{}
	for _, p := range []string{opts.document, opts.exceptions} {
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return failure(err)
		}
		targets[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	rulesDir := ""
	if opts.rulesPath != "" {
		abs, err := filepath.Abs(opts.rulesPath)
		if err != nil {
			return failure(err)
		}
		if info, err := os.Stat(abs); err == nil && !info.IsDir() {
			targets[abs] = true
			dirs[filepath.Dir(abs)] = true
		} else {
			rulesDir = abs
			dirs[abs] = true
		}
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return failure(fmt.Errorf("failed to watch %q: %w", dir, err))
		}
	}

	log := logging.From(ctx)
	run := func() {
		runCtx := observability.WithOpID(ctx)
		err := checkOnce(runCtx, stdout, opts)
		if err != nil && !errors.Is(err, errBlocking) {
			fmt.Fprintf(stderr, "check failed: %v\n", err)
		}
		fmt.Fprintf(stderr, "watching for changes (Ctrl-C to stop)\n")
	}
	run()

	rerun := make(chan struct{}, 1)
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-rerun:
			run()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			abs, _ := filepath.Abs(event.Name)
			relevant := targets[abs] || (rulesDir != "" && filepath.Dir(abs) == rulesDir)
			if !relevant || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(watchDebounce, func() {
				select {
				case rerun <- struct{}{}:
				default:
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("watch", "file watcher error", "error", err.Error())
			fmt.Fprintf(stderr, "file watcher error: %v\n", err)
		}
	}
}
