// Package main provides agentfsd, the filesystem coordination daemon.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/agentfs/internal/agentfs"
	agentfsio "github.com/calvinalkan/agentfs/pkg/fs"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr *os.File) int {
	fs := flag.NewFlagSet("agentfsd", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", "", "path to the JSONC configuration file (defaults built in if unset)")
	stateFile := fs.String("state-file", "", "override the configured persistence state file path")
	shutdownTimeout := fs.Duration("shutdown-timeout", 10*time.Second, "maximum time to wait for in-flight locks to drain on shutdown")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}

		return 2
	}

	logger := agentfs.StdLogger{Logger: log.New(stderr, "agentfsd: ", log.LstdFlags)}

	cfg := agentfs.DefaultConfig()

	if *configPath != "" {
		loaded, err := agentfs.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(stderr, "agentfsd: load config: %v\n", err)
			return 1
		}

		cfg = loaded
	}

	if *stateFile != "" {
		cfg.Persistence.StateFile = *stateFile
	}

	core, err := agentfs.New(cfg, agentfsio.NewReal(), logger)
	if err != nil {
		fmt.Fprintf(stderr, "agentfsd: build core: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := core.Start(ctx); err != nil {
		fmt.Fprintf(stderr, "agentfsd: start: %v\n", err)
		return 1
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	fmt.Fprintf(stdout, "agentfsd: ready, base directories: %v\n", cfg.BaseDirectories)

	<-sigCh

	fmt.Fprintln(stdout, "agentfsd: shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), *shutdownTimeout)
	defer shutdownCancel()

	if err := core.Close(shutdownCtx); err != nil {
		fmt.Fprintf(stderr, "agentfsd: shutdown: %v\n", err)
		return 1
	}

	return 0
}
