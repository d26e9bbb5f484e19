package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/bnema/dnr-filters/internal/fetcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Recompile whenever a local filter list changes",
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().StringP("output", "o", "./output", "output directory")
	watchCmd.Flags().Bool("dry-run", false, "parse and convert without writing files")
	watchCmd.Flags().Bool("combined", true, "generate combined output file")
	watchCmd.Flags().String("format", "", "output format, json or yaml (default from config)")
	watchCmd.Flags().Duration("debounce", 500*time.Millisecond, "quiet period before recompiling")
}

// localLists returns the absolute paths of enabled lists read from disk
func localLists() []string {
	var paths []string
	for _, list := range cfg.EnabledLists() {
		if fetcher.IsRemote(list.URL) {
			continue
		}
		path, err := filepath.Abs(strings.TrimPrefix(list.URL, "file://"))
		if err != nil {
			continue
		}
		paths = append(paths, path)
	}
	return paths
}

func runWatch(cmd *cobra.Command, args []string) error {
	opts := convertFlags(cmd)
	debounce, _ := cmd.Flags().GetDuration("debounce")

	paths := localLists()
	if len(paths) == 0 {
		return fmt.Errorf("no enabled local filter lists to watch")
	}

	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Editors replace files on save, watch the directories instead
	watched := make(map[string]bool)
	dirs := make(map[string]bool)
	for _, path := range paths {
		watched[path] = true
		dirs[filepath.Dir(path)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	if err := convertLists(ctx, opts); err != nil {
		logger.Error("Conversion failed", "err", err)
	}
	logger.Info("Watching filter lists", "files", len(paths))

	return watchLoop(ctx, watcher, watched, debounce, func() {
		if err := convertLists(ctx, opts); err != nil {
			logger.Error("Conversion failed", "err", err)
		}
	})
}

// watchLoop calls rebuild once events on watched files settle for debounce
func watchLoop(ctx context.Context, watcher *fsnotify.Watcher, watched map[string]bool, debounce time.Duration, rebuild func()) error {
	var timer *time.Timer
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !watched[filepath.Clean(event.Name)] {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			logger.Debug("List changed", "file", event.Name, "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			pending = timer.C
		case <-pending:
			pending = nil
			logger.Info("Recompiling filter lists")
			rebuild()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watcher error", "err", err)
		}
	}
}
