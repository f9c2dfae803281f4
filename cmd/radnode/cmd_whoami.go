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

func runWhoami(args []string) {
	fs := flag.NewFlagSet("whoami", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configFlag := fs.String("config", "", "path to config file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(2)
		return
	}
	if err := doWhoami(*configFlag, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
}

func doWhoami(configFlag string, stdout io.Writer) error {
	cfgFile, err := config.FindConfigFile(configFlag)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	cfg, err := config.LoadNodeConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	config.ResolveConfigPaths(cfg, filepath.Dir(cfgFile))

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

	fmt.Fprintln(stdout, ks.NodeId())
	return nil
}
