// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/AleutianAI/listsync/pkg/logging"
	"github.com/AleutianAI/listsync/pkg/ux"
	"github.com/AleutianAI/listsync/services/listsync/config"
)

// env is what every subcommand shares once the root command has run.
type env struct {
	cfg    config.Config
	logger *logging.Logger
	tracer *sdktrace.TracerProvider
}

func (e *env) slog() *slog.Logger {
	if e.logger == nil {
		return slog.Default()
	}
	return e.logger.Slog()
}

// --- Global Flags ---
type rootFlags struct {
	configPath string
	logLevel   string
	logJSON    bool
	trace      bool
}

func newRootCmd() *cobra.Command {
	var flags rootFlags
	e := &env{}

	rootCmd := &cobra.Command{
		Use:   "listsync",
		Short: "Diff, watch and search keyed, sectioned lists",
		Long: `listsync computes minimal edit scripts between list snapshots and keeps
a displayed list in sync with a stream of snapshots.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.setup(cmd, flags)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return e.close(cmd.Context())
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "path to a listsync YAML config file")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	pf.BoolVar(&flags.logJSON, "log-json", false, "write logs as JSON (overrides config)")
	pf.BoolVar(&flags.trace, "trace", false, "print apply spans to stderr")

	rootCmd.AddCommand(
		newDiffCmd(e),
		newWatchCmd(e),
		newSearchCmd(e),
		newConfigCmd(),
	)
	return rootCmd
}

// setup loads the configuration and builds the logger.
func (e *env) setup(cmd *cobra.Command, flags rootFlags) error {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	if cmd.Flags().Changed("log-json") {
		cfg.Logging.JSON = flags.logJSON
	}
	lc, err := cfg.LoggingConfig()
	if err != nil {
		return err
	}
	lc.Output = cmd.ErrOrStderr()
	e.cfg = cfg
	e.logger = logging.New(lc)
	slog.SetDefault(e.logger.Slog())

	if flags.trace {
		exp, err := stdouttrace.New(stdouttrace.WithWriter(cmd.ErrOrStderr()), stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("trace exporter: %w", err)
		}
		e.tracer = sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
		otel.SetTracerProvider(e.tracer)
	}
	return nil
}

// close flushes spans and closes the logger.
func (e *env) close(ctx context.Context) error {
	var errs []error
	if e.tracer != nil {
		if ctx == nil {
			ctx = context.Background()
		}
		errs = append(errs, e.tracer.Shutdown(ctx))
	}
	if e.logger != nil {
		errs = append(errs, e.logger.Close())
	}
	return errors.Join(errs...)
}

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the listsync configuration file",
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration to path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(args[0]); err == nil {
				return fmt.Errorf("%s already exists", args[0])
			}
			if err := config.WriteDefault(args[0]); err != nil {
				return err
			}
			ux.Status(cmd.OutOrStdout(), ux.IconSuccess, "wrote "+args[0], isTerminal(cmd.OutOrStdout()))
			return nil
		},
	})
	return configCmd
}

// isTerminal reports whether stream is an interactive terminal.
func isTerminal(stream any) bool {
	f, ok := stream.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
