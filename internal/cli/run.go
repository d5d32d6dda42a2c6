package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/calvinalkan/filehandle/pkg/fdsys"

	flag "github.com/spf13/pflag"
)

const defaultCommand = "size"

// Run is the main entry point. Returns exit code.
// sigCh may be nil; a value received on it cancels the running command.
func Run(in io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	return run(in, out, errOut, args, env, sigCh, fdsys.NewReal())
}

// run is Run with the OS primitives injected, so tests can substitute
// a fault-injecting [fdsys.Sys].
func run(_ io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal, sys fdsys.Sys) int {
	o := NewIO(out, errOut)

	globals := flag.NewFlagSet("fsize", flag.ContinueOnError)
	globals.SetInterspersed(false)
	globals.SetOutput(&strings.Builder{})
	globals.Usage = func() {}

	flagHelp := globals.BoolP("help", "h", false, "Show help")
	flagCwd := globals.StringP("cwd", "C", "", "Run as if started in `dir`")
	flagConfig := globals.StringP("config", "c", "", "Use specified config `file`")
	flagFormat := globals.StringP("format", "f", "", "Output `format`: bytes, human or json")

	if len(args) == 0 {
		args = []string{"fsize"}
	}

	err := globals.Parse(args[1:])
	if err != nil && !errors.Is(err, flag.ErrHelp) {
		o.ErrPrintln("error:", err)
		o.ErrPrintln()
		printUsage(NewIO(errOut, errOut), globals, nil)

		return 1
	}

	if *flagHelp || errors.Is(err, flag.ErrHelp) {
		printUsage(o, globals, nil)

		return 0
	}

	rest := globals.Args()
	if len(rest) == 0 {
		printUsage(o, globals, nil)

		return 0
	}

	cfg, err := LoadConfig(LoadConfigInput{
		WorkDirOverride: *flagCwd,
		ConfigPath:      *flagConfig,
		FormatOverride:  *flagFormat,
		Env:             env,
	})
	if err != nil {
		o.ErrPrintln("error:", err)

		return 1
	}

	if cfg.Format == "" {
		cfg.Format = FormatBytes
		if o.IsTerminal() {
			cfg.Format = FormatHuman
		}
	}

	commands := []*Command{
		SizeCmd(&cfg, sys),
		WatchCmd(&cfg, sys),
		ConfigCmd(&cfg),
	}

	cmd, cmdArgs := lookupCommand(commands, rest)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sigCh != nil {
		go func() {
			select {
			case <-sigCh:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	return cmd.Run(ctx, o, cmdArgs)
}

// lookupCommand resolves the command named by rest[0]. Anything that is
// not a command name is treated as a path for the default command.
func lookupCommand(commands []*Command, rest []string) (*Command, []string) {
	var fallback *Command

	for _, cmd := range commands {
		if cmd.Name() == rest[0] {
			return cmd, rest[1:]
		}

		if cmd.Name() == defaultCommand {
			fallback = cmd
		}
	}

	return fallback, rest
}

func printUsage(o *IO, globals *flag.FlagSet, commands []*Command) {
	if commands == nil {
		cfg := DefaultConfig()
		commands = []*Command{SizeCmd(&cfg, nil), WatchCmd(&cfg, nil), ConfigCmd(&cfg)}
	}

	o.Println("fsize - report file sizes through an owned file handle")
	o.Println()
	o.Println("Usage: fsize [global flags] [command] [args]")
	o.Println()
	o.Println("Global flags:")

	var buf strings.Builder
	globals.SetOutput(&buf)
	globals.PrintDefaults()
	globals.SetOutput(&strings.Builder{})
	o.Printf("%s", buf.String())

	o.Println()
	o.Println("Commands:")

	for _, cmd := range commands {
		o.Println(cmd.HelpLine())
	}

	o.Println()
	o.Println("Without a command, arguments are treated as paths for size.")
}
