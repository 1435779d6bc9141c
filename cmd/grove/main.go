package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pbanos/grove/config"
	"github.com/pbanos/grove/logger"
	"github.com/pbanos/grove/metrics"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type rootCmdConfig struct {
	verbose    bool
	configPath string
	*config.Config
	logger *zap.Logger
}

func main() {
	if err := cliParser().Execute(); err != nil {
		os.Exit(1)
	}
}

func cliParser() *cobra.Command {
	config := &rootCmdConfig{}
	rootCmd := &cobra.Command{
		Use:   "grove",
		Short: "grove is a tool to grow random forests",
		Long:  `A tool to grow random forests from your data on a cluster of workers, score them and use them to make predictions`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if config.logger != nil {
				_ = config.logger.Sync()
			}
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&(config.verbose), "verbose", "v", false, "log debug messages")
	rootCmd.PersistentFlags().StringVar(&(config.configPath), "config", "", "path to a YAML configuration file (settings can also be given as GROVE_ prefixed environment variables)")
	rootCmd.AddCommand(versionCmd(), growCmd(config), scoreCmd(config), workCmd(config), treeCmd(config), predictCmd(config), datasetCmd(config))
	return rootCmd
}

// setup loads the configuration, builds the logger and serves
// metrics if an address to do so is configured
func (rcc *rootCmdConfig) setup() error {
	c, err := config.Load(rcc.configPath)
	if err != nil {
		return err
	}
	rcc.Config = c
	if rcc.verbose {
		rcc.Log.Level = "debug"
	}
	rcc.logger, err = logger.New(rcc.Log)
	if err != nil {
		return err
	}
	if rcc.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		go func() {
			err := http.ListenAndServe(rcc.MetricsAddr, mux)
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				rcc.logger.Error("serving metrics", zap.String("addr", rcc.MetricsAddr), zap.Error(err))
			}
		}()
	}
	return nil
}

// Context returns a context cancelled on interrupts
func (rcc *rootCmdConfig) Context() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func exit(code int, err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(code)
}
