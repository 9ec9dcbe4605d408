//go:build linux

// Command floraseven runs one FloraSeven node: the hub (pump controller,
// camera and command router) or a plant sensor node.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"floraseven/services/config"
	"floraseven/x/logx"
)

var (
	cfgFile  string
	envFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:           "floraseven",
	Short:         "FloraSeven plant monitoring node",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var hubCmd = &cobra.Command{
	Use:   "hub",
	Short: "Run the hub: pump control, camera capture and status reporting",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := setup(config.NodeHub)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()
		return runHub(cmd.Context(), cfg, log)
	},
}

var sensorCmd = &cobra.Command{
	Use:   "sensor",
	Short: "Run a plant sensor node publishing soil and light readings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := setup(config.NodeSensor)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()
		return runSensor(cmd.Context(), cfg, log)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "YAML file overlaid on the built-in defaults")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file with FLORA_* overrides")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	rootCmd.AddCommand(hubCmd, sensorCmd)
}

func setup(node string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(config.Options{
		Node:     node,
		File:     cfgFile,
		EnvFile:  envFile,
		LogLevel: logLevel,
	})
	if err != nil {
		return nil, nil, err
	}
	log, err := logx.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, logx.Node(log, node), nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "floraseven:", err)
		stop()
		os.Exit(1)
	}
}
