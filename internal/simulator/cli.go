package simulator

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/chorus/pkg/logger"
)

const logFilePermission = 0o600

// SetupLogging sends log output to stdout and logFile. An empty logFile
// gets a timestamped name.
func SetupLogging(logFile string) (io.Closer, error) {
	if logFile == "" {
		logFile = "simulator_" + time.Now().Format("20060102_150405") + ".log"
	}
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}
	if err := logger.InitWriter(io.MultiWriter(os.Stdout, file)); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return file, nil
}

// ShowHelp prints usage information for the satellite simulator.
func ShowHelp() {
	os.Stdout.WriteString(`Chorus Satellite Simulator
==========================

Joins a rehearsal room with one synthetic satellite per part. Each part
streams pitch telemetry over the room bus and, when a take is requested,
records and uploads its part like a real device would.

Usage:
  go run ./cmd/satellite-sim [options]

Options:
  -url string
        Base URL of the server (default "http://localhost:9080")
  -room string
        Room to join (default "rehearsal")
  -parts string
        Comma-separated part names (default "Soprano,Alto,Tenor,Bass")
  -clip string
        WAV file every part replays (default: a synthesized chord tone per part)
  -duration duration
        How long to stream when no take is requested (default 10s)
  -take duration
        Schedule and record a take of this length (default 0, disabled)
  -timeout duration
        HTTP and upload timeout (default 30s)
  -dedupe int
        Command ids each satellite remembers (default 1024)
  -log string
        Log file (default: simulator_TIMESTAMP.log)
  -verbose
        Log every satellite event
  -help
        Show this help message

Examples:
  # Four parts singing a C major chord for a minute
  go run ./cmd/satellite-sim -duration 1m

  # Record a 5 second take and upload every part
  go run ./cmd/satellite-sim -take 5s -verbose
`)
}
