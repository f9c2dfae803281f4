package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/shurlinet/radnode/internal/config"
	"github.com/shurlinet/radnode/internal/keystore"
)

func runInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	dirFlag := fs.String("dir", "", "config directory (default: ~/.config/radnode)")
	listenFlag := fs.String("listen", "0.0.0.0:7417", "listen address")
	storageFlag := fs.String("storage", "repos", "repository storage directory (relative to --dir unless absolute)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(2)
		return
	}
	if err := doInit(*dirFlag, *listenFlag, *storageFlag, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
}

func doInit(dirFlag, listenAddr, storagePath string, stdout io.Writer) error {
	configDir := dirFlag
	if configDir == "" {
		d, err := config.DefaultConfigDir()
		if err != nil {
			return fmt.Errorf("cannot determine config directory: %w", err)
		}
		configDir = d
	}

	configFile := filepath.Join(configDir, "config.yaml")
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config already exists: %s\nDelete it first if you want to reinitialize", configFile)
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	fmt.Fprintln(stdout, "Generating node identity...")
	passphrase, err := readPassphraseConfirm()
	if err != nil {
		return err
	}
	ks, seedPhrase, err := keystore.Create(passphrase)
	if err != nil {
		return fmt.Errorf("failed to generate identity: %w", err)
	}

	keyFile := filepath.Join(configDir, "identity.key")
	if err := ks.Save(keyFile); err != nil {
		return fmt.Errorf("failed to save identity: %w", err)
	}

	fmt.Fprintf(stdout, "Node ID: %s\n", ks.NodeId())
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Recovery seed phrase (write this down, it will not be shown again):")
	fmt.Fprintln(stdout, seedPhrase)
	fmt.Fprintln(stdout)

	yaml := defaultConfigYAML(listenAddr, storagePath)
	if err := os.WriteFile(configFile, []byte(yaml), 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Fprintf(stdout, "Config written to: %s\n", configFile)
	fmt.Fprintf(stdout, "Identity saved to: %s\n", keyFile)
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Start the node with: radnode serve --config "+configFile)
	return nil
}

func defaultConfigYAML(listenAddr, storagePath string) string {
	return fmt.Sprintf(`version: %d
identity:
  key_file: identity.key
network:
  listen_address: %q
storage:
  path: %q
peers:
  seeds: []
replication:
  default_factor_kind: must_reach
  default_min: 3
control:
  socket_path: radnode.sock
  cookie_path: radnode.cookie
`, config.CurrentConfigVersion, listenAddr, storagePath)
}
