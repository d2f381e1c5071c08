package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
)

const (
	ModeBooking  = "booking-service"
	ModeTracking = "tracking-service"
	ModeAdmin    = "admin-service"
)

// isKnownMode checks if the provided mode name is known.
func isKnownMode(s string) (string, bool) {
	switch s {
	case ModeBooking, "booking", "b":
		return ModeBooking, true
	case ModeTracking, "tracking", "t":
		return ModeTracking, true
	case ModeAdmin, "admin", "a":
		return ModeAdmin, true
	default:
		return "", false
	}
}

// ParseMode supports:
//
//	--mode=<value>
//	<value> (subcommand shorthand), e.g., `booking-service --max-concurrent=100`
func ParseMode(args []string) (string, []string, error) {
	var mode string
	var out []string

	for i := range args {
		arg := args[i]
		if after, ok := strings.CutPrefix(arg, "--mode="); ok {
			mode = after
			continue
		}

		if mode == "" {
			if m, ok := isKnownMode(arg); ok {
				mode = m
				continue
			}
		}
		out = append(out, arg)
	}

	if mode == "" {
		return "", out, errors.New("no mode specified: use --mode=<service>")
	}

	if m, ok := isKnownMode(mode); ok {
		mode = m
	}

	return mode, out, nil
}

// PrintUsage prints the usage information with examples.
func PrintUsage(w io.Writer) {
	fmt.Fprint(w, "\033[36m") // cyan

	fmt.Fprintln(w, `Usage:
  ./mech-dispatch --mode=<service> [flags]

Services (modes):
  booking-service     HTTP API and orchestrator for the booking lifecycle
  tracking-service    Mechanic location publisher sessions and realtime feed
  admin-service       Dispatch monitoring board and overview API

Examples:
  ./mech-dispatch --mode=booking-service --max-concurrent=100
  ./mech-dispatch --mode=tracking-service --prefetch=8 --max-concurrent=200
  ./mech-dispatch --mode=admin-service --max-concurrent=50`)

	fmt.Fprint(w, "\033[0m") // reset
}

// AttachUsage wires a concise per-mode usage to a FlagSet.
func AttachUsage(fs *flag.FlagSet, mode string) {
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: ./mech-dispatch --mode=%s [flags]\n", mode)
		fs.PrintDefaults()
	}
}
