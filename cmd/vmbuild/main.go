package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"os/user"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/larsks/vmbuild/internal/config"
)

type (
	Options struct {
		configFile string
		logLevel   string

		workdir      string
		destdir      string
		outputFormat string
		keepTemp     bool
		diskPrefix   string
		fstabUUID    bool

		profile    string
		layoutFile string
		rootSize   config.Size
		swapSize   config.Size
		optSize    config.Size
		bootSize   config.Size
		filesystem string
		raw        string

		suite      string
		mirror     string
		arch       string
		flavour    string
		hostname   string
		domain     string
		addPkg     []string
		removePkg  []string
		bootloader string

		firstBoot  string
		firstLogin string
	}
)

var options Options

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "vmbuild",
		Short:         "Build virtual machine disk images",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&options.configFile, "config", "c", "", fmt.Sprintf("configuration file (default %s if it exists)", config.DefaultPath))
	cmd.PersistentFlags().StringVar(&options.logLevel, "log-level", "", "log level (panic, fatal, error, warn, info, debug, trace)")

	cmd.AddCommand(newBuildCommand(), newPlanCommand(), newConfigCommand(), newVersionCommand())

	return cmd
}

// loadConfig reads the configuration file and applies the flags given on
// the command line on top of it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := options.configFile
	if path == "" {
		if _, err := os.Stat(config.DefaultPath); err == nil {
			path = config.DefaultPath
		}
	}

	cfg := config.Default()

	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
	}

	options.apply(cmd, cfg)

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	logrus.SetLevel(level)

	return cfg, cfg.Validate()
}

func requireRoot() error {
	currentUser, err := user.Current()
	if err != nil {
		return fmt.Errorf("failed to get current user: %w", err)
	}

	if currentUser.Uid != "0" {
		return fmt.Errorf("this program must be run as root")
	}

	return nil
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
