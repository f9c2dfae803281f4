// Command radnode runs a peer-to-peer Git replication node: a reactor
// event loop driving Noise-XK sessions over TCP, a worker pool fetching
// and serving packfiles, and a local control socket for status and
// announce requests.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
)

// Set via -ldflags at build time:
//
//	go build -ldflags "-X main.version=0.1.0 -X main.commit=$(git rev-parse --short HEAD) -X main.buildDate=$(date -u +%Y-%m-%dT%H:%M:%SZ)" -o radnode ./cmd/radnode
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var osExit = os.Exit

func main() {
	level, rest, err := splitLogLevel(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(3)
		return
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))

	if len(rest) < 1 {
		printUsage()
		osExit(2)
		return
	}

	switch rest[0] {
	case "init":
		runInit(rest[1:])
	case "serve":
		runServe(rest[1:])
	case "status":
		runStatus(rest[1:])
	case "peers":
		runPeers(rest[1:])
	case "announce":
		runAnnounce(rest[1:])
	case "shutdown":
		runShutdown(rest[1:])
	case "whoami":
		runWhoami(rest[1:])
	case "version", "--version":
		printVersion()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", rest[0])
		printUsage()
		osExit(2)
	}
}

// splitLogLevel pulls a leading "--log-level <level>" pair off args, so it
// can be parsed before any subcommand-specific flag set exists and take
// effect for the slog default logger the rest of the program inherits.
func splitLogLevel(args []string) (slog.Level, []string, error) {
	if len(args) >= 2 && args[0] == "--log-level" {
		lvl, err := parseLogLevel(args[1])
		if err != nil {
			return 0, nil, err
		}
		return lvl, args[2:], nil
	}
	return slog.LevelInfo, args, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown --log-level %q: want debug, info, warn, or error", s)
	}
}

func printVersion() {
	fmt.Printf("radnode %s (%s) built %s\n", version, commit, buildDate)
	fmt.Printf("Go %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

func printUsage() {
	fmt.Println("Usage: radnode [--log-level debug|info|warn|error] <command> [options]")
	fmt.Println()
	fmt.Println("  init                                   Generate identity and config")
	fmt.Println("  serve [--config path]                  Run the node (reactor + control socket)")
	fmt.Println("  status [--config path] [--json]        Query the running daemon")
	fmt.Println("  peers [--config path] [--json]          List connected peers")
	fmt.Println("  announce <repo-id> [options]            Publish a repository to the network")
	fmt.Println("  shutdown [--config path]                Ask the daemon to stop gracefully")
	fmt.Println("  whoami [--config path]                  Show this node's identity")
	fmt.Println("  version                                 Show version information")
	fmt.Println()
	fmt.Println("Without --config, radnode searches: ./radnode.yaml, ~/.config/radnode/config.yaml, /etc/radnode/config.yaml")
}
