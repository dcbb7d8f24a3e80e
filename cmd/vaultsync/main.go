package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/iudanet/vaultsync/internal/cli"
	"github.com/iudanet/vaultsync/internal/engine"
	"github.com/iudanet/vaultsync/internal/iocli"
	"github.com/iudanet/vaultsync/internal/models"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Глобальные флаги
	showVersion := flag.Bool("version", false, "Show version information")
	dataDir := flag.String("data", defaultDataDir(), "Data directory")
	listenAddr := flag.String("listen", engine.DefaultListenAddr, "Listen address")
	deviceName := flag.String("name", "", "Device name, used on first run (default: hostname)")
	policy := flag.String("policy", "lww", "Conflict policy: lww, prefer-local, prefer-remote, manual")
	verbose := flag.Bool("verbose", false, "Enable debug logging")

	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		cli.PrintUsage()
		os.Exit(1)
	}
	command := args[0]

	conflictPolicy, err := parsePolicy(*policy)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	// Движок живет до конца команды; фоновые команды держит ctx сигналов.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := engine.Open(ctx, engine.Options{
		DataDir:    *dataDir,
		ListenAddr: *listenAddr,
		DeviceName: *deviceName,
		Policy:     conflictPolicy,
		Logger:     logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open engine: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := eng.Close(); err != nil {
			logger.Error("failed to close engine", "error", err)
		}
	}()

	commands := cli.New(eng, iocli.NewStdio())
	if err := commands.Run(ctx, command, args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		_ = eng.Close()
		os.Exit(1)
	}
}

func parsePolicy(name string) (models.ConflictPolicy, error) {
	switch name {
	case "lww":
		return models.PolicyLastWriteWins, nil
	case "prefer-local":
		return models.PolicyPreferLocal, nil
	case "prefer-remote":
		return models.PolicyPreferRemote, nil
	case "manual":
		return models.PolicyManual, nil
	default:
		return "", fmt.Errorf("unknown conflict policy: %s", name)
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "vaultsync-data"
	}
	return filepath.Join(home, ".vaultsync")
}

func printVersion() {
	fmt.Printf("VaultSync\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
