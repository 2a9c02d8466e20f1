package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"
	"pkt.systems/pslog"

	"ratterm/pkg/app"
	"ratterm/pkg/daemon"
	"ratterm/pkg/mux"
	"ratterm/pkg/sshmgr"
)

const version = "0.3.0"

var (
	flagConfigDir    string
	flagShell        string
	flagLogLevel     string
	flagLogFile      string
	flagReceiverPort int
	flagVersion      bool
)

func init() {
	flag.StringVar(&flagConfigDir, "config-dir", "", "State directory (defaults to $XDG_CONFIG_HOME/ratterm)")
	flag.StringVar(&flagShell, "shell", "", "Shell for new panes (defaults to $SHELL, then /bin/sh)")
	flag.StringVar(&flagLogLevel, "log-level", "error", "Log level: trace|debug|info|warn|error")
	flag.StringVar(&flagLogFile, "log-file", "", "Append logs to a file instead of stderr")
	flag.IntVar(&flagReceiverPort, "receiver-port", 0, fmt.Sprintf("Metrics receiver port (default %d)", daemon.ReceiverPort))
	flag.BoolVar(&flagVersion, "version", false, "Print the version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "ratterm - terminal workstation\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  ratterm [options]\n")
		fmt.Fprintf(os.Stderr, "  ratterm scan [subnet]\n")
		fmt.Fprintf(os.Stderr, "  ratterm daemon-receiver [--receiver-port N]\n")
		fmt.Fprintf(os.Stderr, "  ratterm version\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  ratterm
  ratterm --shell /bin/zsh --log-file ~/.config/ratterm/ratterm.log --log-level debug
  ratterm scan 192.168.1.0/24
  ratterm daemon-receiver --receiver-port 19999
`)
	}
}

func main() {
	flag.Parse()

	if flagVersion || flag.Arg(0) == "version" {
		fmt.Println("ratterm " + version)
		return
	}

	if flag.NArg() >= 1 {
		switch flag.Arg(0) {
		case "scan":
			if err := runScanSubcommand(flag.Args()[1:]); err != nil {
				fmt.Fprintf(os.Stderr, "ratterm: %v\n", err)
				os.Exit(1)
			}
			return
		case "daemon-receiver":
			if err := runReceiverSubcommand(); err != nil {
				fmt.Fprintf(os.Stderr, "ratterm: %v\n", err)
				os.Exit(1)
			}
			return
		default:
			fmt.Fprintf(os.Stderr, "ratterm: unknown command %q\n", flag.Arg(0))
			flag.Usage()
			os.Exit(2)
		}
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Fprintln(os.Stderr, "ratterm: the TUI needs an interactive terminal (see `ratterm -h` for headless commands)")
		os.Exit(1)
	}

	log, cleanup, err := buildLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ratterm: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	err = app.Run(app.Options{
		ConfigDir:    flagConfigDir,
		Shell:        flagShell,
		Log:          log,
		ReceiverPort: flagReceiverPort,
		Spawn:        mux.DefaultSpawn,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "ratterm: %v\n", err)
		os.Exit(1)
	}
}

// buildLogger honors --log-file and --log-level. Without a file, only
// errors go to stderr so the alternate screen stays clean.
func buildLogger() (pslog.Logger, func(), error) {
	level := parseLevel(flagLogLevel)
	if flagLogFile == "" {
		if level < pslog.ErrorLevel {
			level = pslog.ErrorLevel
		}
		return pslog.NewWithOptions(os.Stderr, pslog.Options{MinLevel: level}), func() {}, nil
	}
	f, err := os.OpenFile(flagLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	log := pslog.NewWithOptions(f, pslog.Options{MinLevel: level})
	return log, func() { _ = f.Close() }, nil
}

func parseLevel(s string) pslog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return pslog.TraceLevel
	case "debug":
		return pslog.DebugLevel
	case "info":
		return pslog.InfoLevel
	case "warn", "warning":
		return pslog.WarnLevel
	default:
		return pslog.ErrorLevel
	}
}

// runScanSubcommand sweeps a subnet for SSH hosts and prints hits, one
// per line. Without an argument it scans the primary interface's /24.
func runScanSubcommand(args []string) error {
	subnet := ""
	if len(args) >= 1 {
		subnet = args[0]
	}
	if subnet == "" {
		s, err := sshmgr.PrimarySubnet()
		if err != nil {
			return err
		}
		subnet = s
	}

	scanner, err := sshmgr.NewReachabilityScan(subnet)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "scanning %s\n", subnet)

	for {
		ev, ok := scanner.Poll()
		if !ok {
			time.Sleep(50 * time.Millisecond)
			continue
		}
		switch ev.Kind {
		case sshmgr.EventHostFound:
			fmt.Printf("%s:%d\n", ev.Host.IP, ev.Host.Port)
		case sshmgr.EventComplete:
			fmt.Fprintf(os.Stderr, "done: %d hosts up out of %d scanned\n", len(ev.Hosts), ev.Scanned)
			return nil
		case sshmgr.EventError:
			return fmt.Errorf("scan: %s", ev.Err)
		case sshmgr.EventCancelled:
			return nil
		}
	}
}

// runReceiverSubcommand runs the metrics receiver standalone, for hosts
// that only aggregate. It blocks until SIGINT/SIGTERM.
func runReceiverSubcommand() error {
	port := flagReceiverPort
	if port == 0 {
		port = daemon.ReceiverPort
	}
	log := pslog.NewWithOptions(os.Stderr, pslog.Options{MinLevel: parseLevel(flagLogLevel)})

	mgr := daemon.NewManager(port, log)
	if err := mgr.Start(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "metrics receiver listening on port %d\n", port)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return mgr.Stop(ctx)
}
