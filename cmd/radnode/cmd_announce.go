package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shurlinet/radnode/internal/daemon"
)

func runAnnounce(args []string) {
	fs := flag.NewFlagSet("announce", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configFlag := fs.String("config", "", "path to config file")
	minFlag := fs.Int("min", 3, "minimum replication factor")
	maxFlag := fs.Int("max", 0, "maximum replication factor (0 = must-reach only)")
	preferredFlag := fs.String("preferred", "", "comma-separated preferred node IDs")
	syncedFlag := fs.String("synced", "", "comma-separated already-synced node IDs")
	unsyncedFlag := fs.String("unsynced", "", "comma-separated candidate node IDs")
	jsonFlag := fs.Bool("json", false, "output JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(2)
		return
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: announce requires exactly one repository ID argument")
		osExit(2)
		return
	}

	req := daemon.AnnounceRequest{
		RepoId:    fs.Arg(0),
		Preferred: splitNonEmpty(*preferredFlag),
		Synced:    splitNonEmpty(*syncedFlag),
		Unsynced:  splitNonEmpty(*unsyncedFlag),
	}
	if *maxFlag > 0 {
		req.Factor = daemon.ReplicationFactorRequest{Kind: "range", Min: *minFlag, Max: *maxFlag}
	} else {
		req.Factor = daemon.ReplicationFactorRequest{Kind: "must_reach", Min: *minFlag}
	}

	if err := doAnnounce(*configFlag, req, *jsonFlag, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
}

func doAnnounce(configFlag string, req daemon.AnnounceRequest, asJSON bool, stdout io.Writer) error {
	client, err := connectDaemon(configFlag)
	if err != nil {
		return err
	}
	resp, err := client.Announce(req)
	if err != nil {
		return err
	}
	if asJSON {
		return json.NewEncoder(stdout).Encode(resp)
	}
	fmt.Fprintf(stdout, "Outcome:      %s\n", resp.Kind)
	if resp.Preferred > 0 {
		fmt.Fprintf(stdout, "Preferred:    %d\n", resp.Preferred)
	}
	if resp.Synced > 0 {
		fmt.Fprintf(stdout, "Synced:       %d\n", resp.Synced)
	}
	if resp.TotalSynced > 0 {
		fmt.Fprintf(stdout, "Total synced: %d\n", resp.TotalSynced)
	}
	return nil
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
