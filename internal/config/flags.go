package config

// This file parses the command line of the run mode:
//
//	foreach [flags] <files> <cmd> [args...]
//
// Flags may precede <files>. After <cmd>, only the double-dash forms of the
// value flags (--out, --err, --parallel, --timeout, --report) are taken back
// by foreach, up to the first "--". Everything else is forwarded untouched,
// so "foreach '*.go' gofmt -l {path}" passes -l to gofmt.

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
)

// Options is the parsed command line: the Job plus settings that only
// concern the CLI itself.
type Options struct {
	Job     Job
	Report  string // write a JSON run report to this path
	Verbose bool
}

// ErrUsage marks malformed command lines: unknown or incomplete flags, or
// missing positionals. The usage text has already been written.
var ErrUsage = errors.New("usage")

// ParseFlags parses args (without the program name) using cfg for defaults.
// It returns flag.ErrHelp when -h/--help is given; usage has then already
// been written to output.
func ParseFlags(args []string, cfg *Config, output io.Writer) (*Options, error) {
	fs := flag.NewFlagSet("foreach", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() { PrintUsage(fs) }

	opts := &Options{}
	fs.StringVar(&opts.Job.Out, "out", cfg.Out, "file path `template` to redirect standard out")
	fs.StringVar(&opts.Job.Err, "err", cfg.Err, "file path `template` to redirect standard error")
	fs.IntVar(&opts.Job.Parallel, "parallel", cfg.Parallel, "maximum concurrent processes (0 = unbounded)")
	fs.DurationVar(&opts.Job.Timeout, "timeout", cfg.Timeout(), "kill each process after this `duration` (0 = never)")
	fs.StringVar(&opts.Report, "report", "", "write a JSON run report to `file`")
	fs.BoolVar(&opts.Verbose, "v", false, "verbose (debug) logging")

	if err := parse(fs, args); err != nil {
		return nil, err
	}

	rest := fs.Args()
	if len(rest) < 2 {
		fs.Usage()
		return nil, fmt.Errorf("%w: expected <files> and <cmd>", ErrUsage)
	}
	opts.Job.Pattern = rest[0]
	opts.Job.Command = rest[1]

	cmdArgs, trailing := splitTrailing(rest[2:])
	if len(trailing) > 0 {
		if err := parse(fs, trailing); err != nil {
			return nil, err
		}
	}
	opts.Job.Args = cmdArgs

	if err := opts.Job.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

// parse runs fs.Parse. The flag package has already reported a parse error
// together with the usage text, so such errors come back as ErrUsage.
func parse(fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err == nil || errors.Is(err, flag.ErrHelp) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUsage, err)
}

// trailingFlags are the flags still recognised after <cmd>, in their
// double-dash form only. All of them take a value.
var trailingFlags = map[string]bool{
	"out":      true,
	"err":      true,
	"parallel": true,
	"timeout":  true,
	"report":   true,
}

// splitTrailing separates foreach flags given after <cmd> from the command's
// own arguments. Scanning stops at "--", which is forwarded with the rest.
func splitTrailing(args []string) (cmdArgs, flags []string) {
	cmdArgs = []string{}
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			return append(cmdArgs, args[i:]...), flags
		}
		name, _, hasValue := strings.Cut(strings.TrimPrefix(a, "--"), "=")
		if !strings.HasPrefix(a, "--") || !trailingFlags[name] {
			cmdArgs = append(cmdArgs, a)
			continue
		}
		flags = append(flags, a)
		if !hasValue && i+1 < len(args) {
			i++
			flags = append(flags, args[i])
		}
	}
	return cmdArgs, flags
}

// PrintUsage writes the run-mode help text to fs's output.
func PrintUsage(fs *flag.FlagSet) {
	w := fs.Output()
	fmt.Fprintln(w, `Usage: foreach [flags] <files> <cmd> [args...] [--out T] [--err T]

Runs <cmd> once for every file in <files>, all at the same time.

Positionals:
  files   glob pattern of the files you wish to find (supports **)
  cmd     command to run for each file
  args    additional arguments for <cmd>

Placeholders (case-insensitive) in args, -out and -err:
  {file}      file name with extension
  {basefile}  file name without extension
  {path}      full path of the file
  {dir}       directory containing the file ("." for a file in the
              current directory)

Other commands:
  foreach mcp       Start the MCP server
  foreach version   Print the version

Flags:`)
	fs.PrintDefaults()
}
