// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefault(t *testing.T) {
	s := Default()

	assert.Equal(t, 8192, s.BufferSize)
	assert.Equal(t, 50, s.MaxMutationAttemptsPerRound)
	assert.Equal(t, 100, s.MaxRounds)
	assert.Equal(t, 2000, s.MaxShrinks)
	assert.False(t, s.Debug)
	assert.False(t, s.ShortCircuitByteScan)
	assert.Equal(t, 5000, s.MaxExecutions())
	require.NoError(t, s.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"zero buffer", func(s *Settings) { s.BufferSize = 0 }},
		{"zero attempts", func(s *Settings) { s.MaxMutationAttemptsPerRound = 0 }},
		{"zero rounds", func(s *Settings) { s.MaxRounds = 0 }},
		{"negative shrinks", func(s *Settings) { s.MaxShrinks = -1 }},
		{"negative cache", func(s *Settings) { s.CacheSize = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default()
			tt.mutate(&s)
			err := s.Validate()
			if !errors.Is(err, ErrInvalidSettings) {
				t.Errorf("Validate() error = %v, want ErrInvalidSettings", err)
			}
		})
	}

	t.Run("zero shrinks allowed", func(t *testing.T) {
		s := Default()
		s.MaxShrinks = 0
		assert.NoError(t, s.Validate())
	})
}

// TestLoad_Priority verifies env overrides file and file overrides
// defaults.
func TestLoad_Priority(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conjecture.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_rounds: 7\nmax_shrinks: 11\nseed: 42\n"), 0o600))

	t.Setenv(EnvMaxShrinks, "13")
	t.Setenv(EnvDebug, "true")
	t.Setenv(EnvBufferSize, "not-a-number")

	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7, s.MaxRounds, "from file")
	assert.Equal(t, 13, s.MaxShrinks, "env wins")
	assert.Equal(t, uint64(42), s.Seed)
	assert.True(t, s.Debug)
	assert.Equal(t, 8192, s.BufferSize, "bad env value ignored")
}

func TestLoad_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conjecture.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"buffer_size": 64, "cache_size": 0}`), 0o600))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 64, s.BufferSize)
	assert.Equal(t, 0, s.CacheSize)
}

func TestLoad_MissingFile(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), s)
}

func TestLoad_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_rounds: [1, 2\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	t.Setenv(EnvMaxRounds, "0")

	_, err := Load("")
	assert.ErrorIs(t, err, ErrInvalidSettings)
}

func TestYAML_RoundTrip(t *testing.T) {
	s := Default()
	s.Seed = 99
	s.ShortCircuitByteScan = true

	out, err := s.YAML()
	require.NoError(t, err)
	assert.Contains(t, string(out), "max_mutation_attempts_per_round: 50")

	var back Settings
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, s, back)
}
