package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/hibiken/asynq"
	"github.com/spf13/pflag"
)

// Env carries what subcommands need from the process.
type Env struct {
	Redis  asynq.RedisConnOpt
	Stdout io.Writer
	Stderr io.Writer
}

const usage = `usage:
  odyssey catalog validate [--file PATH] [--json]
  odyssey jobs trigger NAME [--company ID]
  odyssey jobs inspect
`

// Run dispatches an operator subcommand and returns the process exit code.
func Run(ctx context.Context, args []string, env Env) int {
	if len(args) < 2 {
		_, _ = fmt.Fprint(env.Stderr, usage)
		return 2
	}
	switch args[0] + " " + args[1] {
	case "catalog validate":
		return runCatalogValidate(args[2:], env)
	case "jobs trigger":
		return runJobsTrigger(ctx, args[2:], env)
	case "jobs inspect":
		return runJobsInspect(ctx, env)
	default:
		_, _ = fmt.Fprint(env.Stderr, usage)
		return 2
	}
}

func runCatalogValidate(args []string, env Env) int {
	fs := pflag.NewFlagSet("catalog validate", pflag.ContinueOnError)
	fs.SetOutput(env.Stderr)
	path := fs.String("file", "", "catalog YAML file (default: built-in catalog)")
	asJSON := fs.Bool("json", false, "print a JSON summary")
	if err := fs.Parse(args); err != nil {
		return flagExit(err)
	}
	return ValidateCatalogCommand(CatalogValidateOptions{Path: *path, JSONOutput: *asJSON, Stdout: env.Stdout, Stderr: env.Stderr})
}

func runJobsTrigger(ctx context.Context, args []string, env Env) int {
	fs := pflag.NewFlagSet("jobs trigger", pflag.ContinueOnError)
	fs.SetOutput(env.Stderr)
	company := fs.Int64("company", 0, "company to refresh (0 refreshes all)")
	if err := fs.Parse(args); err != nil {
		return flagExit(err)
	}
	if fs.NArg() != 1 {
		_, _ = fmt.Fprintln(env.Stderr, "jobs trigger: exactly one job name is required")
		return 2
	}
	c := NewJobsCLI(env.Redis)
	defer c.Close()
	info, err := c.Trigger(ctx, fs.Arg(0), *company)
	if err != nil {
		_, _ = fmt.Fprintf(env.Stderr, "jobs trigger: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(env.Stdout, "enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
	return 0
}

func runJobsInspect(ctx context.Context, env Env) int {
	c := NewJobsCLI(env.Redis)
	defer c.Close()
	report, err := c.Inspect(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(env.Stderr, "jobs inspect: %v\n", err)
		return 1
	}
	if err := json.NewEncoder(env.Stdout).Encode(report); err != nil {
		_, _ = fmt.Fprintf(env.Stderr, "jobs inspect: encode json: %v\n", err)
		return 1
	}
	return 0
}

func flagExit(err error) int {
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	return 2
}
