// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the listsync YAML configuration file and converts it
// into the per-component configurations.
//
// Example file:
//
//	coalescer:
//	  stream_id: search
//	  quiescence: 300ms
//	  mode: animated
//	  error_buffer: 16
//	diff:
//	  moves: moves
//	snapshot:
//	  duplicate_sections: reject
//	apply:
//	  compare_payloads: true
//	logging:
//	  level: info
//	  json: false
//	  dir: ~/.listsync/logs
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/listsync/pkg/logging"
	"github.com/AleutianAI/listsync/services/listsync/apply"
	"github.com/AleutianAI/listsync/services/listsync/coalesce"
	"github.com/AleutianAI/listsync/services/listsync/diff"
	"github.com/AleutianAI/listsync/services/listsync/snapshot"
)

// ErrInvalid is returned when a configuration fails validation.
var ErrInvalid = errors.New("invalid listsync configuration")

// configValidate is the validator instance for configuration structs.
var configValidate *validator.Validate

func init() {
	configValidate = validator.New()
}

// =============================================================================
// Types
// =============================================================================

// Config is the root of the configuration file.
type Config struct {
	Coalescer CoalescerConfig `yaml:"coalescer"`
	Diff      DiffConfig      `yaml:"diff"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	Apply     ApplyConfig     `yaml:"apply"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// CoalescerConfig configures the update coalescer.
type CoalescerConfig struct {
	// StreamID names the update stream. Empty means a random UUID.
	StreamID string `yaml:"stream_id,omitempty" validate:"omitempty,max=128,printascii"`

	// Quiescence accepts Go duration strings such as "300ms".
	Quiescence time.Duration `yaml:"quiescence" validate:"gte=0,lte=1m"`

	Mode        string `yaml:"mode" validate:"omitempty,oneof=animated reload"`
	ErrorBuffer int    `yaml:"error_buffer" validate:"gte=0,lte=4096"`
}

// DiffConfig configures the diff engine.
type DiffConfig struct {
	Moves string `yaml:"moves" validate:"omitempty,oneof=moves delete-insert"`
}

// SnapshotConfig configures snapshots built from files.
type SnapshotConfig struct {
	DuplicateSections string `yaml:"duplicate_sections" validate:"omitempty,oneof=reject ignore"`
}

// ApplyConfig configures the applicator.
type ApplyConfig struct {
	ComparePayloads bool `yaml:"compare_payloads"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	JSON  bool   `yaml:"json"`
	Dir   string `yaml:"dir,omitempty"`
	Quiet bool   `yaml:"quiet"`
}

// =============================================================================
// Loading
// =============================================================================

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Coalescer: CoalescerConfig{
			Quiescence:  coalesce.DefaultQuiescence,
			Mode:        apply.ModeAnimated.String(),
			ErrorBuffer: coalesce.DefaultErrorBuffer,
		},
		Diff:     DiffConfig{Moves: diff.PreferMoves.String()},
		Snapshot: SnapshotConfig{DuplicateSections: snapshot.PolicyReject.String()},
		Apply:    ApplyConfig{ComparePayloads: true},
		Logging:  LoggingConfig{Level: "info"},
	}
}

// Load reads and validates a configuration file.
//
// Description:
//
//	Fields missing from the file keep their Default() values. An empty
//	path returns Default().
//
// Inputs:
//   - path: YAML file path. May be empty.
//
// Outputs:
//   - Config: The merged configuration.
//   - error: Read, parse or ErrInvalid validation failure.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// WriteDefault writes Default() to path, creating parent directories.
func WriteDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks struct tags, wrapping failures in ErrInvalid.
func (c *Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// =============================================================================
// Conversion
// =============================================================================

// CoalescerConfig converts the coalescer section.
func (c *Config) CoalescerConfig() (coalesce.Config, error) {
	mode, err := apply.ParseMode(c.Coalescer.Mode)
	if err != nil {
		return coalesce.Config{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return coalesce.Config{
		StreamID:    c.Coalescer.StreamID,
		Quiescence:  c.Coalescer.Quiescence,
		Mode:        mode,
		ErrorBuffer: c.Coalescer.ErrorBuffer,
	}, nil
}

// ApplyConfig converts the diff and apply sections.
func (c *Config) ApplyConfig() (apply.Config, error) {
	moves, err := diff.ParseMovePolicy(c.Diff.Moves)
	if err != nil {
		return apply.Config{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return apply.Config{Moves: moves, ComparePayloads: c.Apply.ComparePayloads}, nil
}

// DiffOptions converts the diff section for direct Compute calls.
func (c *Config) DiffOptions() (diff.MovePolicy, error) {
	moves, err := diff.ParseMovePolicy(c.Diff.Moves)
	if err != nil {
		return diff.PreferMoves, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return moves, nil
}

// SnapshotOptions converts the snapshot section.
func (c *Config) SnapshotOptions() ([]snapshot.Option, error) {
	policy, err := snapshot.ParseDuplicatePolicy(c.Snapshot.DuplicateSections)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return []snapshot.Option{snapshot.WithDuplicateSections(policy)}, nil
}

// LoggingConfig converts the logging section.
func (c *Config) LoggingConfig() (logging.Config, error) {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return logging.Config{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return logging.Config{
		Level:  level,
		LogDir: c.Logging.Dir,
		JSON:   c.Logging.JSON,
		Quiet:  c.Logging.Quiet,
	}, nil
}
