package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/shurlinet/radnode/internal/config"
	"github.com/shurlinet/radnode/internal/keystore"
)

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configFlag := fs.String("config", "", "path to config file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(2)
		return
	}
	if err := doServe(*configFlag); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
}

func doServe(configFlag string) error {
	cfgFile, err := config.FindConfigFile(configFlag)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	cfg, err := config.LoadNodeConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	config.ResolveConfigPaths(cfg, filepath.Dir(cfgFile))
	if err := config.ValidateNodeConfig(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ks, err := keystore.Load(cfg.Identity.KeyFile)
	if err != nil {
		return fmt.Errorf("failed to load identity: %w", err)
	}
	passphrase, err := readPassphrase("Passphrase: ")
	if err != nil {
		return err
	}
	if err := ks.Unseal(passphrase); err != nil {
		return err
	}
	defer ks.Seal()

	n, err := newNode(cfg, ks)
	if err != nil {
		return fmt.Errorf("failed to start node: %w", err)
	}
	return n.Run(context.Background())
}
