package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/shurlinet/radnode/internal/config"
	"github.com/shurlinet/radnode/internal/daemon"
)

// connectDaemon resolves the node's config and dials its control socket.
func connectDaemon(configFlag string) (*daemon.Client, error) {
	cfgFile, err := config.FindConfigFile(configFlag)
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	cfg, err := config.LoadNodeConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	config.ResolveConfigPaths(cfg, filepath.Dir(cfgFile))

	socketPath := cfg.Control.SocketPath
	if socketPath == "" {
		socketPath = filepath.Join(cfg.Storage.Path, "radnode.sock")
	}
	cookiePath := cfg.Control.CookiePath
	if cookiePath == "" {
		cookiePath = filepath.Join(cfg.Storage.Path, "radnode.cookie")
	}

	return daemon.NewClient(socketPath, cookiePath)
}

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configFlag := fs.String("config", "", "path to config file")
	jsonFlag := fs.Bool("json", false, "output JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(2)
		return
	}
	if err := doStatus(*configFlag, *jsonFlag, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
}

func doStatus(configFlag string, asJSON bool, stdout io.Writer) error {
	client, err := connectDaemon(configFlag)
	if err != nil {
		return err
	}
	status, err := client.Status()
	if err != nil {
		return err
	}
	if asJSON {
		return json.NewEncoder(stdout).Encode(status)
	}
	fmt.Fprintf(stdout, "Node ID:         %s\n", status.NodeId)
	fmt.Fprintf(stdout, "Version:         %s\n", status.Version)
	fmt.Fprintf(stdout, "Uptime:          %ds\n", status.UptimeSeconds)
	fmt.Fprintf(stdout, "Connected peers: %d\n", status.ConnectedPeers)
	fmt.Fprintf(stdout, "Listen address:  %s\n", status.ListenAddress)
	return nil
}

func runPeers(args []string) {
	fs := flag.NewFlagSet("peers", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configFlag := fs.String("config", "", "path to config file")
	jsonFlag := fs.Bool("json", false, "output JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(2)
		return
	}
	if err := doPeers(*configFlag, *jsonFlag, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
}

func doPeers(configFlag string, asJSON bool, stdout io.Writer) error {
	client, err := connectDaemon(configFlag)
	if err != nil {
		return err
	}
	peers, err := client.Peers()
	if err != nil {
		return err
	}
	if asJSON {
		return json.NewEncoder(stdout).Encode(peers)
	}
	if len(peers) == 0 {
		fmt.Fprintln(stdout, "No connected peers.")
		return nil
	}
	for _, p := range peers {
		fmt.Fprintln(stdout, p.NodeId)
	}
	return nil
}

func runShutdown(args []string) {
	fs := flag.NewFlagSet("shutdown", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configFlag := fs.String("config", "", "path to config file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(2)
		return
	}
	if err := doShutdown(*configFlag, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
}

func doShutdown(configFlag string, stdout io.Writer) error {
	client, err := connectDaemon(configFlag)
	if err != nil {
		return err
	}
	if err := client.Shutdown(); err != nil {
		return err
	}
	fmt.Fprintln(stdout, "Shutdown requested.")
	return nil
}
