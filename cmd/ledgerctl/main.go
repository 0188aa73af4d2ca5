// Command ledgerctl manages categories and entries of a ledger server from
// the terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"ledger/internal/cli"
	"ledger/internal/config"
	"ledger/internal/form"
	"ledger/internal/log"
	"ledger/internal/resource"
)

const usage = `usage: ledgerctl [flags] <categories|entries> <action> [args]

actions:
  list
  show ID
  new name=value...
  edit ID name=value...
  delete ID

flags:
`

func main() {
	cli.LoadEnvFile()
	cfg := config.Load()
	os.Exit(run(context.Background(), os.Args[1:], cfg, os.Stdout, os.Stderr))
}

func run(ctx context.Context, argv []string, cfg *config.Config, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ledgerctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	apiURL := fs.String("api", cfg.LedgerAPIURL, "ledger API base URL")
	timeout := fs.Duration("timeout", cfg.ClientTimeout, "HTTP client timeout")
	verbose := fs.Bool("v", false, "log requests")
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(argv); err != nil {
		return 2
	}
	args := fs.Args()
	if len(args) < 2 {
		fs.Usage()
		return 2
	}

	logCfg := log.DefaultConfig()
	logCfg.Component = log.ComponentCLI
	logCfg.Output = stderr
	logCfg.Level = log.ParseLevel(cfg.LogLevel)
	logger := log.Discard()
	if *verbose {
		logger = log.New(logCfg)
	}

	client := &http.Client{Timeout: *timeout}
	opts := []resource.Option{resource.WithLogger(logger.WithComponent(log.ComponentResource))}
	term := newTerminal(stdout, stderr)

	var err error
	switch args[0] {
	case "categories":
		err = categoriesFeature(client, *apiURL, opts...).run(ctx, term, args[1], args[2:])
	case "entries":
		err = entriesFeature(client, *apiURL, opts...).run(ctx, term, args[1], args[2:])
	default:
		err = fmt.Errorf("%w: unknown resource %q", errUsage, args[0])
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		fmt.Fprintln(stderr, err)
		fs.Usage()
		return 2
	case errors.Is(err, form.ErrInvalidForm):
		// The rendered page already lists the field errors.
		return 1
	default:
		fmt.Fprintln(stderr, "error:", describe(err, *timeout))
		return 1
	}
}

func describe(err error, timeout time.Duration) string {
	if msgs, ok := resource.ServerMessages(err); ok {
		return fmt.Sprint(msgs)
	}
	var terr *resource.TransportError
	if errors.As(err, &terr) {
		return fmt.Sprintf("%s (timeout %s)", form.MsgConnectivity, timeout)
	}
	return err.Error()
}
