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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/adamchainz/conjecture/services/conjecture/config"
	"github.com/adamchainz/conjecture/services/conjecture/eval"
	"github.com/adamchainz/conjecture/services/conjecture/eval/correctness"
	"github.com/adamchainz/conjecture/services/conjecture/telemetry"
)

// shutdownTimeout bounds telemetry flushing after a run.
const shutdownTimeout = 5 * time.Second

func runVerify(cmd *cobra.Command, opts *cliOptions, names []string) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	logger, err := newLogger(opts, cmd)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, logger.Close()) }()
	log := logger.Slog()

	settings, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	provider := providerConfig(opts)
	provider.PrometheusRegistry = reg
	provider.Writer = cmd.ErrOrStderr()
	shutdown, err := telemetry.Init(ctx, provider)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if serr := shutdown(sctx); serr != nil {
			log.Warn("telemetry shutdown failed", slog.String("error", serr.Error()))
		}
	}()

	sink, err := newSink(reg, log)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sink.Close(); cerr != nil {
			log.Warn("close telemetry sink", slog.String("error", cerr.Error()))
		}
	}()

	registry, err := newRegistry()
	if err != nil {
		return err
	}

	vopts := []correctness.Option{
		correctness.WithSettings(settings),
		correctness.WithTags(opts.tags...),
		correctness.WithStopOnFailure(opts.stopOnFailure),
		correctness.WithLogger(log),
		correctness.WithSink(sink),
	}
	if cmd.Flags().Changed("seed") {
		vopts = append(vopts, correctness.WithSeed(opts.seed))
	}
	if opts.parallel > 0 {
		vopts = append(vopts, correctness.WithParallelism(opts.parallel))
	}

	verifier := correctness.NewVerifier(registry)
	var res *eval.VerifyResult
	if len(names) > 0 {
		res, err = verifier.VerifyNames(ctx, names, vopts...)
	} else {
		res, err = verifier.VerifyAll(ctx, vopts...)
	}
	if err != nil {
		return err
	}

	printer(cmd, opts).PrintVerifyResult(res)

	if ferr := sink.Flush(ctx); ferr != nil {
		log.Warn("flush telemetry sink", slog.String("error", ferr.Error()))
	}
	if opts.metricsFile != "" {
		if werr := prometheus.WriteToTextfile(opts.metricsFile, reg); werr != nil {
			return fmt.Errorf("write metrics file: %w", werr)
		}
	}

	if !res.Passed {
		return errVerificationFailed
	}
	return nil
}

// newSink fans run telemetry out to Prometheus collectors on reg, the
// global OpenTelemetry providers and the log.
func newSink(reg *prometheus.Registry, log *slog.Logger) (telemetry.Sink, error) {
	promCfg := telemetry.DefaultPrometheusConfig()
	promCfg.Registry = reg
	promSink, err := telemetry.NewPrometheusSink(promCfg)
	if err != nil {
		return nil, fmt.Errorf("create prometheus sink: %w", err)
	}
	otelSink, err := telemetry.NewOTelSink(telemetry.DefaultOTelConfig())
	if err != nil {
		_ = promSink.Close()
		return nil, fmt.Errorf("create otel sink: %w", err)
	}
	return telemetry.NewCompositeSink(promSink, otelSink, telemetry.NewLogSink(log))
}
