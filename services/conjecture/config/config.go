// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds the search budget and its loading rules.
//
// Settings are resolved with priority env > file > defaults:
//
//	settings, err := config.Load("conjecture.yaml")
//	if err != nil {
//	    return fmt.Errorf("load settings: %w", err)
//	}
//
// A missing file is not an error. Files are parsed as YAML first, then
// JSON. Environment variables use the CONJECTURE_ prefix.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalidSettings is returned when Settings fail validation.
var ErrInvalidSettings = errors.New("invalid settings")

// settingsValidate checks the struct tags on Settings.
var settingsValidate = validator.New()

// Environment variable names.
const (
	EnvBufferSize           = "CONJECTURE_BUFFER_SIZE"
	EnvMaxMutationAttempts  = "CONJECTURE_MAX_MUTATION_ATTEMPTS_PER_ROUND"
	EnvMaxRounds            = "CONJECTURE_MAX_ROUNDS"
	EnvMaxShrinks           = "CONJECTURE_MAX_SHRINKS"
	EnvDebug                = "CONJECTURE_DEBUG"
	EnvSeed                 = "CONJECTURE_SEED"
	EnvRandomSeed           = "CONJECTURE_RANDOM_SEED"
	EnvCacheSize            = "CONJECTURE_CACHE_SIZE"
	EnvShortCircuitByteScan = "CONJECTURE_SHORT_CIRCUIT_BYTE_SCAN"
)

// Settings is the search budget for one run.
//
// Thread Safety: Value type; copy freely.
type Settings struct {
	// BufferSize is the length of each freshly sampled random buffer.
	BufferSize int `yaml:"buffer_size" json:"buffer_size" validate:"min=1"`

	// MaxMutationAttemptsPerRound is how many fresh random samples a
	// discovery round executes before falling back to a mutation of the
	// best result, which starts the next round.
	MaxMutationAttemptsPerRound int `yaml:"max_mutation_attempts_per_round" json:"max_mutation_attempts_per_round" validate:"min=1"`

	// MaxRounds is how many discovery rounds run before giving up.
	MaxRounds int `yaml:"max_rounds" json:"max_rounds" validate:"min=1"`

	// MaxShrinks caps accepted shrink improvements. Zero disables shrinking.
	MaxShrinks int `yaml:"max_shrinks" json:"max_shrinks" validate:"min=0"`

	// Debug logs discovery progress and every accepted shrink.
	Debug bool `yaml:"debug" json:"debug"`

	// Seed feeds the random source. Runs with the same seed are identical.
	Seed uint64 `yaml:"seed" json:"seed"`

	// RandomSeed ignores Seed and derives one from the clock.
	RandomSeed bool `yaml:"random_seed" json:"random_seed"`

	// CacheSize bounds the execution cache. Zero disables it.
	CacheSize int `yaml:"cache_size" json:"cache_size" validate:"min=0"`

	// ShortCircuitByteScan stops the per-byte shrink pass at the first
	// byte that cannot be decremented instead of moving on to the next.
	ShortCircuitByteScan bool `yaml:"short_circuit_byte_scan" json:"short_circuit_byte_scan"`
}

// Default returns the stock budget.
func Default() Settings {
	return Settings{
		BufferSize:                  8 * 1024,
		MaxMutationAttemptsPerRound: 50,
		MaxRounds:                   100,
		MaxShrinks:                  2000,
		CacheSize:                   4096,
	}
}

// Validate checks every field against its bounds.
func (s Settings) Validate() error {
	if err := settingsValidate.Struct(s); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	return nil
}

// MaxExecutions is the upper bound on discovery executions.
func (s Settings) MaxExecutions() int {
	return s.MaxRounds * s.MaxMutationAttemptsPerRound
}

// YAML renders the settings as a YAML document.
func (s Settings) YAML() ([]byte, error) {
	return yaml.Marshal(s)
}

// Load resolves settings from defaults, an optional file and the
// environment, then validates them.
//
// Description:
//
//	Priority is env > file > defaults. An empty path or a missing file
//	falls through to defaults. File content is parsed as YAML first and
//	JSON second. Unparseable environment values are ignored.
//
// Inputs:
//
//	path - Settings file path. May be empty.
//
// Outputs:
//
//	Settings - The resolved settings.
//	error - Non-nil if the file cannot be read or parsed, or validation fails.
func Load(path string) (Settings, error) {
	s := Default()
	if path != "" {
		if err := loadFile(path, &s); err != nil {
			return Settings{}, fmt.Errorf("load settings file %s: %w", path, err)
		}
	}
	loadEnv(&s)
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func loadFile(path string, s *Settings) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		if jsonErr := json.Unmarshal(data, s); jsonErr != nil {
			return fmt.Errorf("parse settings (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}
	return nil
}

func loadEnv(s *Settings) {
	envInt(EnvBufferSize, &s.BufferSize)
	envInt(EnvMaxMutationAttempts, &s.MaxMutationAttemptsPerRound)
	envInt(EnvMaxRounds, &s.MaxRounds)
	envInt(EnvMaxShrinks, &s.MaxShrinks)
	envInt(EnvCacheSize, &s.CacheSize)
	envBool(EnvDebug, &s.Debug)
	envBool(EnvRandomSeed, &s.RandomSeed)
	envBool(EnvShortCircuitByteScan, &s.ShortCircuitByteScan)
	if v := os.Getenv(EnvSeed); v != "" {
		if u, err := strconv.ParseUint(v, 10, 64); err == nil {
			s.Seed = u
		}
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*dst = i
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
