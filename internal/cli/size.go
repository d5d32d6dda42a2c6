package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/calvinalkan/filehandle/pkg/fd"
	"github.com/calvinalkan/filehandle/pkg/fdsys"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
	"github.com/natefinch/atomic"
	flag "github.com/spf13/pflag"
)

// SizeCmd returns the size command.
func SizeCmd(cfg *Config, sys fdsys.Sys) *Command {
	fs := flag.NewFlagSet("size", flag.ContinueOnError)
	fs.StringP("output", "o", "", "Write the report to `file` instead of stdout")
	fs.Bool("create", false, "Create missing files (mode from create_mode)")

	return &Command{
		Flags: fs,
		Usage: "size [flags] <path>...",
		Short: "Print file sizes",
		Long: `Open each path, query its size through the open handle and close it.

Sizes are printed as raw bytes, human-readable IEC units or JSON, depending
on --format. Paths that fail are reported on stderr and the command exits 1
after every path was tried.`,
		Exec: func(_ context.Context, o *IO, args []string) error {
			output, _ := fs.GetString("output")
			create, _ := fs.GetBool("create")

			return execSize(o, cfg, sys, args, output, create)
		},
	}
}

// sizeRow is one line of the size report.
type sizeRow struct {
	Path  string `json:"path"`
	Size  *int64 `json:"size,omitempty"`
	Error string `json:"error,omitempty"`
}

func execSize(o *IO, cfg *Config, sys fdsys.Sys, args []string, output string, create bool) error {
	if len(args) == 0 {
		return ErrNoPaths
	}

	flags := os.O_RDONLY
	if create {
		flags |= os.O_CREATE
	}

	rows := make([]sizeRow, 0, len(args))
	failed := false

	for _, path := range args {
		size, err := statPath(sys, cfg, path, flags)

		row := sizeRow{Path: path}
		if err != nil {
			failed = true
			row.Error = err.Error()

			o.ErrPrintln("error:", err)
		}

		if size >= 0 {
			row.Size = &size
		}

		rows = append(rows, row)
	}

	report, err := renderSizes(cfg.Format, rows)
	if err != nil {
		return err
	}

	if output != "" {
		writeErr := atomic.WriteFile(resolvePath(cfg, output), bytes.NewReader(report))
		if writeErr != nil {
			return fmt.Errorf("writing report: %w", writeErr)
		}
	} else {
		_, _ = o.Write(report)
	}

	if failed {
		return ErrSizeFailed
	}

	return nil
}

// statPath opens path, reads its size through the handle and closes it.
// The size is -1 when it could not be read. A close failure is returned
// together with the size that was read before it. Errors name path as
// typed, not as resolved against the working directory.
func statPath(sys fdsys.Sys, cfg *Config, path string, flags int) (int64, error) {
	f, err := fd.OpenWith(sys, resolvePath(cfg, path), flags, cfg.Perm)
	if err != nil {
		return -1, asTyped(err, path)
	}

	size, sizeErr := f.Size()
	if sizeErr != nil {
		f.Dispose()

		return -1, fmt.Errorf("%s: %w", path, sizeErr)
	}

	if closeErr := f.Close(); closeErr != nil {
		return size, fmt.Errorf("%s: %w", path, closeErr)
	}

	return size, nil
}

func resolvePath(cfg *Config, path string) string {
	if filepath.IsAbs(path) || cfg.EffectiveCwd == "" {
		return path
	}

	return filepath.Join(cfg.EffectiveCwd, path)
}

// asTyped rewrites the path of an open error to the one the user gave.
func asTyped(err error, path string) error {
	var osErr *fd.OsError
	if errors.As(err, &osErr) && osErr.Op == fd.OpOpen {
		osErr.Path = path
	}

	return err
}

func renderSizes(format string, rows []sizeRow) ([]byte, error) {
	var buf bytes.Buffer

	switch format {
	case FormatJSON:
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")

		if err := enc.Encode(rows); err != nil {
			return nil, fmt.Errorf("encoding report: %w", err)
		}

		return buf.Bytes(), nil
	case FormatBytes, FormatHuman:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	width := 0

	for _, row := range rows {
		if row.Size != nil {
			width = max(width, runewidth.StringWidth(row.Path))
		}
	}

	for _, row := range rows {
		if row.Size == nil {
			continue
		}

		buf.WriteString(runewidth.FillRight(row.Path, width))
		buf.WriteString("  ")
		buf.WriteString(formatSize(format, *row.Size))
		buf.WriteByte('\n')
	}

	return buf.Bytes(), nil
}

func formatSize(format string, size int64) string {
	if format == FormatHuman && size >= 0 {
		return humanize.IBytes(uint64(size))
	}

	return strconv.FormatInt(size, 10)
}
