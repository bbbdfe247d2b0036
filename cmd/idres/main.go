// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/idres

// idres lists, extracts, repacks and patches DOOM (2016) resource archives,
// and builds a custom patch out of a mods folder.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"
)

// errUsage marks invalid command lines; usage was already printed.
var errUsage = errors.New("invalid usage")

// command is one subcommand.
type command struct {
	run   func(env *env, args []string) error
	name  string
	usage string
	short string
}

// env carries process streams and the logger built from common flags.
type env struct {
	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger
}

// commonFlags are accepted by every subcommand.
type commonFlags struct {
	quiet   bool
	verbose bool
}

// register adds common flags to fs.
func (c *commonFlags) register(fs *pflag.FlagSet) {
	fs.BoolVarP(&c.quiet, "quiet", "q", false, "only log warnings and errors")
	fs.BoolVarP(&c.verbose, "verbose", "v", false, "log every processed entry")
}

// logger builds a text logger on w honoring verbosity flags.
func (c *commonFlags) logger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch {
	case c.verbose:
		level = slog.LevelDebug
	case c.quiet:
		level = slog.LevelWarn
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func commands() []command {
	return []command{
		{name: "list", usage: "list [flags] <index>", short: "print directory entries", run: runList},
		{name: "extract", usage: "extract [flags] <index> [dest]", short: "write entry payloads and fileIds.txt", run: runExtract},
		{name: "repack", usage: "repack [flags] <index> <folder>", short: "rebuild the current patch level with replacements", run: runRepack},
		{name: "create-patch", usage: "create-patch [flags] <latest-index> <folder>", short: "add a patch level from a content folder", run: runCreatePatch},
		{name: "delete", usage: "delete [flags] <index> <name>...", short: "remove entries and rebuild the current patch level", run: runDelete},
		{name: "mods", usage: "mods [flags]", short: "build a custom patch from a mods folder", run: runMods},
	}
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

// run dispatches args to a subcommand.
func run(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printUsage(stderr)
		if len(args) == 0 {
			return errUsage
		}

		return nil
	}

	for _, cmd := range commands() {
		if cmd.name == args[0] {
			return cmd.run(&env{stdout: stdout, stderr: stderr}, args[1:])
		}
	}

	fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
	printUsage(stderr)
	return errUsage
}

// printUsage writes the command list.
func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: idres <command> [flags] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, cmd := range commands() {
		fmt.Fprintf(w, "  %-14s %s\n", cmd.name, cmd.short)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, `Files named "name;type" map to entries of that type, fileIds.txt holds name=id lines.`)
}

// parse parses subcommand flags, builds the logger and checks positional count.
func (e *env) parse(fs *pflag.FlagSet, common *commonFlags, usage string, args []string, minArgs, maxArgs int) ([]string, error) {
	common.register(fs)
	fs.SetOutput(e.stderr)
	fs.Usage = func() {
		fmt.Fprintf(e.stderr, "Usage: idres %s\n\nFlags:\n", usage)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, errUsage
		}

		return nil, fmt.Errorf("%w: %w", errUsage, err)
	}

	rest := fs.Args()
	if len(rest) < minArgs || (maxArgs >= 0 && len(rest) > maxArgs) {
		fs.Usage()
		return nil, errUsage
	}

	e.logger = common.logger(e.stderr)
	return rest, nil
}
