package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/gmsas95/dosewise/internal/app"
	"github.com/gmsas95/dosewise/internal/cli"
	"github.com/gmsas95/dosewise/internal/config"
	"github.com/gmsas95/dosewise/internal/logger"
)

var (
	configPath = flag.String("config", "", "Path to config file")
	dataDir    = flag.String("data", "", "Path to data directory")
	userID     = flag.String("user", "default", "User for CLI commands")
	serverMode = flag.Bool("server", false, "Run in server mode even when a command is given")
	version    = "dev"
)

func main() {
	flag.Usage = func() { cli.PrintHelp(os.Stderr) }
	flag.Parse()
	cli.Version = version

	args := flag.Args()
	if *serverMode {
		args = nil
	}
	if len(args) > 0 {
		switch args[0] {
		case "help", "--help", "-h":
			cli.PrintHelp(os.Stdout)
			return
		case "version", "--version", "-v":
			fmt.Printf("dosewise %s\n", version)
			return
		}
		if !cli.IsCommand(args[0]) {
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
			cli.PrintHelp(os.Stderr)
			os.Exit(2)
		}
	}

	application := initApp(len(args) > 0)

	if len(args) == 0 {
		if err := application.RunServer(); err != nil {
			application.Logger.Fatal("Server stopped", zap.Error(err))
		}
		return
	}

	if err := application.Open(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	env := &cli.Env{
		Tracker:  application.Tracker,
		Prefs:    application.Prefs,
		Catalog:  application.Health,
		Config:   application.Config,
		UserID:   *userID,
		Out:      os.Stdout,
		Decorate: cli.IsTerminal(os.Stdout),
	}
	err := cli.Run(context.Background(), env, args)
	if cerr := application.Close(); cerr != nil {
		application.Logger.Warn("Failed to close stores", zap.Error(cerr))
	}
	if err != nil && !errors.Is(err, flag.ErrHelp) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func initApp(quiet bool) *app.App {
	if err := config.LoadEnvFiles(); err != nil {
		log.Printf("Warning: %v", err)
	}

	cfg, err := config.Load(*configPath, *dataDir)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	l, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	// one-shot commands only surface warnings
	if quiet {
		_ = l.SetLevel("warn")
	}

	l.Info("Starting dosewise",
		zap.String("version", version),
		zap.String("data_dir", cfg.Storage.DataDir),
		zap.String("config", cfg.File),
	)
	return app.New(cfg, l, version)
}
