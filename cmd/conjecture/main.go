// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command conjecture runs the bundled property suite through the search
// and shrink engine.
//
//	conjecture list
//	conjecture verify --seed 42 --tags lists,numbers
//	conjecture verify summing_list --metrics-file metrics.prom
//	conjecture config --config conjecture.yaml
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errVerificationFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		stop()
		os.Exit(exitCode(err))
	}
}

// exitCode maps command errors to process exit codes: 1 when a property
// failed, 2 for any other error.
func exitCode(err error) int {
	if errors.Is(err, errVerificationFailed) {
		return 1
	}
	return 2
}
