// Command ninja talks to the analysis API from a terminal.
//
//	ninja poll [-api URL] [-token JWT] [-interval 5s] [-max-attempts 24] <analysis-id>
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/example/comms-ninja/internal/platform/logging"
	"github.com/example/comms-ninja/internal/poller"
)

const usage = `usage: ninja poll [-api URL] [-token JWT] [-interval 5s] [-max-attempts 24] [-json] <analysis-id>`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] != "poll" {
		fmt.Fprintln(stderr, usage)
		return 2
	}

	fs := flag.NewFlagSet("poll", flag.ContinueOnError)
	fs.SetOutput(stderr)
	apiURL := fs.String("api", envOr("NINJA_API_URL", "http://localhost:8080"), "API base URL")
	token := fs.String("token", os.Getenv("NINJA_TOKEN"), "bearer token")
	interval := fs.Duration("interval", poller.DefaultInterval, "delay between polls")
	maxAttempts := fs.Int("max-attempts", poller.DefaultMaxAttempts, "attempt ceiling")
	asJSON := fs.Bool("json", false, "print states as JSON lines")
	logLevel := fs.String("log-level", envOr("LOG_LEVEL", "warn"), "log level")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	if fs.NArg() != 1 || strings.TrimSpace(fs.Arg(0)) == "" {
		fmt.Fprintln(stderr, usage)
		return 2
	}
	id := strings.TrimSpace(fs.Arg(0))

	log, err := logging.NewConsole(*logLevel)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	defer func() { _ = log.Sync() }()

	var last poller.State
	show := func(st poller.State) {
		if *asJSON {
			_ = json.NewEncoder(stdout).Encode(st)
			return
		}
		// Only transitions are printed.
		if st.Phase == last.Phase && st.Status == last.Status && last.Attempts > 0 {
			last = st
			return
		}
		last = st
		fmt.Fprintf(stdout, "[%d] %s: %s\n", st.Attempts, st.Title, st.Description)
		if st.Error != "" && st.Error != st.Description {
			fmt.Fprintf(stdout, "    error: %s\n", st.Error)
		}
	}

	final, err := poller.Wait(ctx, poller.NewHTTPFetcher(*apiURL, *token), id, show,
		poller.WithInterval(*interval),
		poller.WithMaxAttempts(*maxAttempts),
		poller.WithErrorHook(func(err error) {
			log.Warn("fetch analysis", zap.String("analysis_id", id), zap.Error(err))
		}),
	)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(stderr, "interrupted")
		} else {
			fmt.Fprintln(stderr, err)
		}
		return 1
	}
	if final.Phase != poller.PhaseCompleted {
		return 1
	}
	return 0
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
