// SPDX-License-Identifier: Apache-2.0

// Command medteam runs a medical report through the specialist team and
// prints the multidisciplinary diagnosis.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
)

var version = "dev"

// envFiles are loaded before configuration when present. Variables already
// set in the environment win.
var envFiles = []string{".env", "groq.env"}

type globalFlags struct {
	ConfigArgs []string
	EnvFiles   []string
	JSON       bool
	Help       bool
}

type cli struct {
	global globalFlags
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one command and returns the process exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	global, rest, err := parseGlobalFlags(args)
	if err != nil {
		PrintSimpleError(stderr, err, false)
		return 2
	}
	c := &cli{global: global, stdin: stdin, stdout: stdout, stderr: stderr}
	if global.Help || len(rest) == 0 {
		printUsage(stdout)
		return 0
	}

	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "help":
		printUsage(stdout)
		return 0
	case "version":
		fmt.Fprintf(stdout, "medteam %s\n", version)
		return 0
	}

	c.loadEnvFiles()

	switch cmd {
	case "diagnose":
		err = c.runDiagnose(ctx, cmdArgs)
	case "validate":
		err = c.runValidate(cmdArgs)
	case "roles":
		err = c.runRoles(cmdArgs)
	case "history":
		err = c.runHistory(ctx, cmdArgs)
	default:
		err = NewInvalidArgumentError("command", fmt.Sprintf("unknown command %q", cmd))
	}
	if err != nil {
		PrintSimpleError(stderr, err, global.JSON)
		return exitCode(err)
	}
	return 0
}

func parseGlobalFlags(args []string) (globalFlags, []string, error) {
	var flags globalFlags
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return flags, args[i+1:], nil
		}
		if !strings.HasPrefix(arg, "-") {
			return flags, args[i:], nil
		}
		switch {
		case arg == "-h" || arg == "--help":
			flags.Help = true
			return flags, nil, nil
		case arg == "--json":
			flags.JSON = true
		case arg == "--config" || arg == "--set" || arg == "--profile":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for %s", arg)
			}
			flags.ConfigArgs = append(flags.ConfigArgs, arg, args[i+1])
			i++
		case strings.HasPrefix(arg, "--config="), strings.HasPrefix(arg, "--set="), strings.HasPrefix(arg, "--profile="):
			flags.ConfigArgs = append(flags.ConfigArgs, arg)
		case arg == "--env-file":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for --env-file")
			}
			flags.EnvFiles = append(flags.EnvFiles, args[i+1])
			i++
		case strings.HasPrefix(arg, "--env-file="):
			flags.EnvFiles = append(flags.EnvFiles, strings.TrimPrefix(arg, "--env-file="))
		default:
			return flags, nil, fmt.Errorf("unknown global flag %q", arg)
		}
	}
	return flags, nil, nil
}

// loadEnvFiles loads the default env files plus the ones given with
// --env-file. Missing files are skipped; a file that cannot be parsed is
// reported on stderr and otherwise ignored.
func (c *cli) loadEnvFiles() {
	for _, path := range append(append([]string(nil), envFiles...), c.global.EnvFiles...) {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			fmt.Fprintf(c.stderr, "warning: cannot load env file %s: %v\n", path, err)
		}
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `medteam - multidisciplinary medical report analysis

Usage:
  medteam [global flags] <command> [flags]

Commands:
  diagnose   Run a report through every specialist and the aggregator
  validate   Validate configuration and the specialist table
  roles      List specialist roles and their placeholders
  history    List audited runs
  version    Print the version

Global flags:
  --config <path>      Configuration file (YAML)
  --profile <name>     Overlay config.<name>.yaml
  --set key=value      Override a configuration key (repeatable)
  --env-file <path>    Extra env file to load (repeatable)
  --json               JSON output
  -h, --help           Show this help
`)
}

func (c *cli) printJSON(value any) error {
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

func (c *cli) newTabWriter() *tabwriter.Writer {
	return tabwriter.NewWriter(c.stdout, 0, 8, 2, ' ', 0)
}

func writeRow(w *tabwriter.Writer, cols ...string) {
	for i, col := range cols {
		cols[i] = normalizeCell(col)
	}
	fmt.Fprintln(w, strings.Join(cols, "\t"))
}

func normalizeCell(value string) string {
	value = strings.TrimSpace(strings.ReplaceAll(value, "\n", " "))
	if value == "" {
		return "-"
	}
	return value
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return "-"
	}
	return value.Local().Format(time.RFC3339)
}
