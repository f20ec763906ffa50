package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/eltrade/mnconfig/internal/config"
	"github.com/eltrade/mnconfig/internal/logging"
	"github.com/eltrade/mnconfig/internal/registry"
	"github.com/eltrade/mnconfig/internal/server"
	"github.com/eltrade/mnconfig/internal/service"
	"github.com/eltrade/mnconfig/internal/store"
)

// Version is set at build time with -ldflags "-X main.Version=..."
var Version = "dev"

const shutdownTimeout = 10 * time.Second

var (
	configPath string
	logPath    string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mnconfig",
		Short:         "Runtime component configuration server",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runServe,
	}

	addGlobalFlags(root.PersistentFlags())

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Start the HTTP server",
			Args:  cobra.NoArgs,
			RunE:  runServe,
		},
		&cobra.Command{
			Use:   "validate COMPONENT FILE",
			Short: "Validate a JSON value file against the component registry",
			Args:  cobra.ExactArgs(2),
			RunE:  runValidate,
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), Version)
			},
		},
	)
	return root
}

func addGlobalFlags(flags *pflag.FlagSet) {
	flags.StringVar(&configPath, "config", "config.ini", "Path to configuration file")
	flags.StringVar(&logPath, "log", "", "Path to log directory (overrides the config file)")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if logPath != "" {
		cfg.Log.LogPath = logPath
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		logrus.Errorf("Failed to load configuration: %v", err)
		return err
	}

	// Initialize logger
	logger := logging.NewLogger(logging.Options{
		Path:          cfg.Log.LogPath,
		MaxLines:      cfg.Log.MaxLines,
		RetentionDays: cfg.Log.RetentionDays,
	})
	defer logger.Close()
	if cfg.Server.TraceLogEnabled {
		logger.EnableTrace()
	}
	logger.InstallAsDefault()

	logger.Info("mnconfig %s starting...", Version)
	if cfg.Source != "" {
		logger.Info("Using config file: %s", cfg.Source)
	} else {
		logger.Info("Config file %s not found, using defaults", configPath)
	}

	st, err := store.Open(cfg.Store.Backend, cfg.Store.DataDir)
	if err != nil {
		logger.Error("Failed to open %s store: %v", cfg.Store.Backend, err)
		return err
	}
	defer st.Close()
	logger.Info("Using %s store in %s", cfg.Store.Backend, cfg.Store.DataDir)

	if err := os.MkdirAll(cfg.Store.SchemaDir, 0755); err != nil {
		logger.Error("Failed to create schema directory: %v", err)
		return errors.Wrapf(err, "error creating schema dir %s", cfg.Store.SchemaDir)
	}
	reg, err := registry.Load(cfg.RegistryPath())
	if err != nil {
		logger.Error("Failed to load registry: %v", err)
		return err
	}
	logger.Info("Loaded %d components from %s", len(reg.Keys()), reg.Path())

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if cfg.Store.WatchRegistry {
		if err := reg.Watch(ctx, logger.Logrus(), nil); err != nil {
			logger.Warning("Registry hot reload disabled: %v", err)
		}
	}

	svc := service.New(st, reg, logger)

	httpServer, err := server.NewHTTPServer(cfg, logger, svc)
	if err != nil {
		logger.Error("Failed to create HTTP server: %v", err)
		return err
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpServer.Start()
	}()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logger.Info("Received signal: %v, shutting down...", sig)
	case err := <-serverErr:
		if err != nil {
			logger.Error("HTTP server failed: %v", err)
			return err
		}
	}

	httpServer.Stop(shutdownTimeout)
	logger.Info("Server stopped")
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	reg, err := registry.Load(cfg.RegistryPath())
	if err != nil {
		return err
	}

	componentKey, file := args[0], args[1]
	details, err := validateFile(reg, componentKey, file)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(details) == 0 {
		fmt.Fprintf(out, "%s: valid for %s\n", filepath.Base(file), componentKey)
		return nil
	}
	for _, d := range details {
		fmt.Fprintln(out, d)
	}
	return errors.Errorf("%s: %d validation error(s) for %s", filepath.Base(file), len(details), componentKey)
}
