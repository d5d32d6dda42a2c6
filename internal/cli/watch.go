package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/calvinalkan/filehandle/pkg/fd"
	"github.com/calvinalkan/filehandle/pkg/fdsys"

	"github.com/fsnotify/fsnotify"
	flag "github.com/spf13/pflag"
)

// WatchCmd returns the watch command.
func WatchCmd(cfg *Config, sys fdsys.Sys) *Command {
	return &Command{
		Flags: flag.NewFlagSet("watch", flag.ContinueOnError),
		Usage: "watch <path>...",
		Short: "Print sizes whenever files change",
		Long: `Open each path once and keep the handle open while watching it.

The current size is printed at start and again after every write that
changes it. The size is always read through the handle opened at start, so
a path replaced by another file keeps reporting the original file. Removed
or renamed paths are dropped with a warning. Stops on interrupt.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			return execWatch(ctx, o, cfg, sys, args)
		},
	}
}

// watched is one path being watched together with the handle held for it.
type watched struct {
	path string
	file *fd.File
	last int64
}

func execWatch(ctx context.Context, o *IO, cfg *Config, sys fdsys.Sys, args []string) error {
	if len(args) == 0 {
		return ErrNoPaths
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}

	defer func() { _ = watcher.Close() }()

	// Keyed by the resolved path, which is what fsnotify reports.
	entries := make(map[string]*watched, len(args))

	defer func() {
		for _, e := range entries {
			e.file.Dispose()
		}
	}()

	for _, path := range args {
		resolved := resolvePath(cfg, path)

		// One handle per file; "a.txt" and "./a.txt" share it.
		if _, dup := entries[resolved]; dup {
			continue
		}

		f, openErr := fd.OpenWith(sys, resolved, os.O_RDONLY, 0)
		if openErr != nil {
			return asTyped(openErr, path)
		}

		entry := &watched{path: path, file: f, last: -1}
		entries[resolved] = entry

		if addErr := watcher.Add(resolved); addErr != nil {
			return fmt.Errorf("watching %s: %w", path, addErr)
		}

		if err := printWatched(o, cfg.Format, entry); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			entry := entries[ev.Name]
			if entry == nil {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				o.Warn("%s: %s, no longer watching", entry.path, opVerb(ev.Op))
				entry.file.Dispose()
				delete(entries, ev.Name)

				_ = watcher.Remove(ev.Name)

				if len(entries) == 0 {
					return nil
				}
			case ev.Op&(fsnotify.Write|fsnotify.Create) != 0:
				if err := printWatched(o, cfg.Format, entry); err != nil {
					return err
				}
			}
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			o.Warn("watch: %v", werr)
		}
	}
}

// printWatched prints entry's size if it changed since the last print.
// Size errors become warnings so one bad file does not stop the others.
func printWatched(o *IO, format string, entry *watched) error {
	size, err := entry.file.Size()
	if err != nil {
		o.Warn("%s: %v", entry.path, err)

		return nil
	}

	if size == entry.last {
		return nil
	}

	entry.last = size

	if format == FormatJSON {
		line, marshalErr := json.Marshal(sizeRow{Path: entry.path, Size: &size})
		if marshalErr != nil {
			return fmt.Errorf("encoding size: %w", marshalErr)
		}

		o.Println(string(line))

		return nil
	}

	o.Println(entry.path + "  " + formatSize(format, size))

	return nil
}

func opVerb(op fsnotify.Op) string {
	if op&fsnotify.Remove != 0 {
		return "removed"
	}

	return "renamed"
}
