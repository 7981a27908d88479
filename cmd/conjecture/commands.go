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
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/adamchainz/conjecture/pkg/logging"
	"github.com/adamchainz/conjecture/pkg/ux"
	"github.com/adamchainz/conjecture/services/conjecture/config"
	"github.com/adamchainz/conjecture/services/conjecture/eval"
	"github.com/adamchainz/conjecture/services/conjecture/examples"
	"github.com/adamchainz/conjecture/services/conjecture/telemetry"
)

// errVerificationFailed is returned by verify when any property failed.
var errVerificationFailed = errors.New("verification failed")

// cliOptions holds the persistent and per-command flag values.
type cliOptions struct {
	configPath string
	logLevel   string
	jsonLogs   bool
	logDir     string
	output     string

	seed           uint64
	parallel       int
	tags           []string
	stopOnFailure  bool
	traceExporter  string
	metricExporter string
	otlpEndpoint   string
	metricsFile    string
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}
	rootCmd := &cobra.Command{
		Use:   "conjecture",
		Short: "Search for and shrink counterexamples to byte-stream properties",
		Long: `Conjecture drives properties with random byte buffers, mutates them
until a property fails, then shrinks the failing buffer to the simplest
one that still fails.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "settings file (YAML or JSON)")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	flags.BoolVar(&opts.jsonLogs, "json-logs", false, "write logs as JSON")
	flags.StringVar(&opts.logDir, "log-dir", "", "also write JSON logs to this directory")
	flags.StringVar(&opts.output, "output", "", "output style: full, minimal, machine (default: detect terminal)")

	verifyCmd := &cobra.Command{
		Use:   "verify [property...]",
		Short: "Verify the bundled properties and report counterexamples",
		Long: `Runs every bundled property, or only the named ones, and prints the
shrunk counterexample for each property that fails. Exits 1 if any
property failed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd, opts, args)
		},
	}
	vf := verifyCmd.Flags()
	vf.Uint64Var(&opts.seed, "seed", 0, "seed for every property (overrides settings)")
	vf.IntVar(&opts.parallel, "parallel", 0, "properties verified concurrently (default: GOMAXPROCS)")
	vf.StringSliceVar(&opts.tags, "tags", nil, "only verify properties with any of these tags")
	vf.BoolVar(&opts.stopOnFailure, "stop-on-failure", false, "skip remaining properties after the first failure")
	vf.StringVar(&opts.traceExporter, "trace-exporter", "", "trace exporter: otlp, stdout, none (default: $OTEL_TRACES_EXPORTER)")
	vf.StringVar(&opts.metricExporter, "metric-exporter", "", "metric exporter: prometheus, stdout, none (default: $OTEL_METRICS_EXPORTER)")
	vf.StringVar(&opts.otlpEndpoint, "otlp-endpoint", "", "OTLP gRPC endpoint for traces")
	vf.StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus metrics to this file after the run")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the bundled properties",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry, err := newRegistry()
			if err != nil {
				return err
			}
			printer(cmd, opts).PrintPropertyList(registry.Select(opts.tags))
			return nil
		},
	}

	listCmd.Flags().StringSliceVar(&opts.tags, "tags", nil, "only list properties with any of these tags")

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective settings as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			out, err := settings.YAML()
			if err != nil {
				return fmt.Errorf("render settings: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	rootCmd.AddCommand(verifyCmd, listCmd, configCmd)
	return rootCmd
}

func newRegistry() (*eval.Registry, error) {
	registry := eval.NewRegistry()
	if err := examples.Register(registry); err != nil {
		return nil, fmt.Errorf("register properties: %w", err)
	}
	return registry, nil
}

func newLogger(opts *cliOptions, cmd *cobra.Command) (*logging.Logger, error) {
	level, err := logging.ParseLevel(opts.logLevel)
	if err != nil {
		return nil, err
	}
	return logging.New(logging.Config{
		Level:   level,
		JSON:    opts.jsonLogs,
		LogDir:  opts.logDir,
		Service: "conjecture",
		Writer:  cmd.ErrOrStderr(),
	})
}

// printer picks the output style from --output, or from whether stdout is
// a terminal.
func printer(cmd *cobra.Command, opts *cliOptions) *ux.Printer {
	out := cmd.OutOrStdout()
	level := ux.PersonalityMachine
	if opts.output != "" {
		level = ux.ParsePersonalityLevel(opts.output)
	} else if f, ok := out.(*os.File); ok {
		level = ux.DetectPersonality(f)
	}
	return ux.NewPrinter(out, level)
}

func providerConfig(opts *cliOptions) telemetry.ProviderConfig {
	cfg := telemetry.DefaultProviderConfig()
	if opts.traceExporter != "" {
		cfg.TraceExporter = opts.traceExporter
	}
	if opts.metricExporter != "" {
		cfg.MetricExporter = opts.metricExporter
	}
	if opts.otlpEndpoint != "" {
		cfg.OTLPEndpoint = opts.otlpEndpoint
	}
	return cfg
}
