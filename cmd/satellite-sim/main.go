package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/okian/chorus/internal/domain/dedupe"
	"github.com/okian/chorus/internal/simulator"
)

const (
	defaultDuration = 10 * time.Second
	defaultTimeout  = 30 * time.Second
)

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:9080", "Base URL of the server")
		room     = flag.String("room", "rehearsal", "Room to join")
		parts    = flag.String("parts", "Soprano,Alto,Tenor,Bass", "Comma-separated part names")
		clip     = flag.String("clip", "", "WAV file every part replays")
		duration = flag.Duration("duration", defaultDuration, "How long to stream when no take is requested")
		take     = flag.Duration("take", 0, "Schedule and record a take of this length")
		timeout  = flag.Duration("timeout", defaultTimeout, "HTTP and upload timeout")
		window   = flag.Int("dedupe", dedupe.DefaultMaxSize, "Command ids each satellite remembers")
		logFile  = flag.String("log", "", "Log file (default: simulator_TIMESTAMP.log)")
		verbose  = flag.Bool("verbose", false, "Log every satellite event")
		help     = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		simulator.ShowHelp()
		return
	}

	closer, err := simulator.SetupLogging(*logFile)
	if err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		return
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := &simulator.Config{
		BaseURL:  *baseURL,
		Room:     *room,
		Parts:    splitParts(*parts),
		ClipPath: *clip,
		Duration: *duration,
		Take:     *take,
		Timeout:  *timeout,
		Dedupe:   *window,
		Verbose:  *verbose,
	}

	if _, err := simulator.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		os.Stderr.WriteString("Simulation failed: " + err.Error() + "\n")
		return
	}
}

func splitParts(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
