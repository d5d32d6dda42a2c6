package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	flag "github.com/spf13/pflag"
)

// Command is one fsize subcommand: size, watch or config.
type Command struct {
	// Flags holds the subcommand's own flags. Global flags such as
	// --format are parsed by [Run] before the subcommand sees its args.
	Flags *flag.FlagSet

	// Usage follows "fsize" in help output, e.g. "watch <path>...".
	// Its first word is the name the command is invoked by.
	Usage string

	// Short appears next to Usage in the command list.
	Short string

	// Long is printed by "fsize <cmd> --help". Short is used when empty.
	Long string

	// Exec gets the positional args (the paths) after flag parsing.
	// Problems that should not stop the command go through [IO.Warn].
	Exec func(ctx context.Context, o *IO, args []string) error
}

// Name is the word that selects the command on the command line.
func (c *Command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")
	return name
}

// HelpLine is the command's row in the global usage listing.
func (c *Command) HelpLine() string {
	return fmt.Sprintf("  %-24s %s", c.Usage, c.Short)
}

// PrintHelp prints usage, description and flags to stdout.
func (c *Command) PrintHelp(o *IO) {
	o.Println("Usage: fsize", c.Usage)
	o.Println()

	desc := c.Long
	if desc == "" {
		desc = c.Short
	}

	o.Println(desc)

	if c.Flags == nil || !c.Flags.HasFlags() {
		return
	}

	o.Println()
	o.Println("Flags:")

	var buf strings.Builder
	c.Flags.SetOutput(&buf)
	c.Flags.PrintDefaults()
	o.Printf("%s", buf.String())
}

// Run parses args into the command's flags and calls Exec. It returns 0 on
// success and 1 if flags are invalid, Exec fails or anything was warned
// about. Warnings collected before a failure are printed ahead of the error.
func (c *Command) Run(ctx context.Context, o *IO, args []string) int {
	c.Flags.SetOutput(&strings.Builder{}) // pflag's own messages are dropped

	if err := c.Flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			c.PrintHelp(o)

			return 0
		}

		o.ErrPrintln("error:", err)
		o.ErrPrintln()
		c.PrintHelp(o)

		return 1
	}

	if err := c.Exec(ctx, o, c.Flags.Args()); err != nil {
		_ = o.Finish()
		o.ErrPrintln("error:", err)

		return 1
	}

	return o.Finish()
}
