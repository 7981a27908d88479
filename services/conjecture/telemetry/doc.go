// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry carries engine observability.
//
// Two layers live here. Sinks receive run summaries and accepted shrinks
// from the engine: PrometheusSink, OTelSink, LogSink, NopSink and the
// CompositeSink that fans out to several of them. Init installs global
// OpenTelemetry providers so the engine's own spans and the OTelSink's
// instruments reach a backend.
//
// # Exporters
//
//   - traces: "otlp" (gRPC), "stdout", "none"
//   - metrics: "prometheus" (into a prometheus.Registerer), "stdout", "none"
//
// # Usage
//
//	shutdown, err := telemetry.Init(ctx, telemetry.DefaultProviderConfig())
//	if err != nil {
//	    return fmt.Errorf("init telemetry: %w", err)
//	}
//	defer shutdown(ctx)
//
//	sink, err := telemetry.NewCompositeSink(promSink, otelSink)
//
// # Thread Safety
//
// All sinks are safe for concurrent use.
package telemetry
