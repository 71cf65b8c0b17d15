package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/aretw0/promptflow/pkg/domain"
	"github.com/aretw0/promptflow/pkg/runner"
	"github.com/fsnotify/fsnotify"
)

// settleDelay lets editors finish writing before the reload.
const settleDelay = 100 * time.Millisecond

type runResult struct {
	state *domain.State
	err   error
}

// runWatch reruns the graph file whenever it changes until ctx ends.
func runWatch(ctx context.Context, app *App, opts RunOptions, seed *domain.State) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer watcher.Close()

	path, err := filepath.Abs(opts.Path)
	if err != nil {
		return err
	}
	// Editors often replace the file, so watch its directory.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	signals := runner.NewSignalManager(ctx)
	defer signals.Stop()
	ctx = signals.Context()
	// One reader for every iteration, so no stale pump steals lines.
	input := runner.NewTextInput(opts.Stdin, opts.Stdout, signals)

	app.Logger.Info("Starting Watcher", "path", path)
	printSystemMessage(opts.Stdout, "Watching '%s'.", opts.Path)

	for {
		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan runResult, 1)
		go func() {
			st, err := runOnce(runCtx, app, opts, seed, input)
			done <- runResult{state: st, err: err}
		}()

		reload, finished, err := waitIteration(ctx, watcher, path, done, opts)
		cancel()
		if !finished {
			<-done
		}
		if !reload {
			return err
		}
	}
}

// waitIteration blocks until a change or the end of ctx. It reports
// whether to run again and whether the run already delivered its result.
func waitIteration(ctx context.Context, watcher *fsnotify.Watcher, path string, done <-chan runResult, opts RunOptions) (reload, finished bool, err error) {
	for {
		select {
		case <-ctx.Done():
			printSystemMessage(opts.Stdout, "Stopping watcher.")
			return false, finished, nil
		case res := <-done:
			finished = true
			switch {
			case res.err != nil && !isInterrupted(res.err):
				printSystemMessage(opts.Stdout, "Run failed: %v", res.err)
			case res.err == nil:
				if err := printState(opts, res.state); err != nil {
					return false, true, err
				}
			}
			printSystemMessage(opts.Stdout, "Waiting for changes...")
		case ev, ok := <-watcher.Events:
			if !ok {
				return false, finished, nil
			}
			if filepath.Clean(ev.Name) != path || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			printSystemMessage(opts.Stdout, "Change detected in '%s'.", filepath.Base(path))
			time.Sleep(settleDelay)
			drain(watcher)
			return true, finished, nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return false, finished, nil
			}
			return false, finished, fmt.Errorf("watcher error: %w", err)
		}
	}
}

// drain discards the burst of events a single save produces.
func drain(watcher *fsnotify.Watcher) {
	for {
		select {
		case <-watcher.Events:
		default:
			return
		}
	}
}
