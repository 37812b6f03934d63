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
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ClientConfig is the layout of ~/.finhelp/finhelp.yaml.
type ClientConfig struct {
	// RelayURL is the relay base URL, without a path.
	RelayURL string `yaml:"relay_url"`

	// EventStream requests SSE framing from the relay.
	EventStream bool `yaml:"event_stream"`

	// CannedTablePath overrides the built-in canned answers matched
	// locally before a request is sent.
	CannedTablePath string `yaml:"canned_table,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// LogDir enables file logging. Supports ~.
	LogDir string `yaml:"log_dir"`
}

// DefaultClientConfig returns the configuration written on first run.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		RelayURL:    "http://localhost:12210",
		EventStream: false,
		LogLevel:    "warn",
		LogDir:      "~/.finhelp/logs",
	}
}

// ChatURL returns the relay chat endpoint.
func (c ClientConfig) ChatURL() string {
	return strings.TrimSuffix(c.RelayURL, "/") + "/api/chat"
}

// CannedURL returns the relay canned-questions endpoint.
func (c ClientConfig) CannedURL() string {
	return strings.TrimSuffix(c.RelayURL, "/") + "/v1/canned"
}

var (
	// globalConfig is loaded once per process by loadConfig.
	globalConfig ClientConfig
	configOnce   sync.Once
	configErr    error
)

// loadConfig loads path (or the default location when empty) into
// globalConfig exactly once.
func loadConfig(path string) (ClientConfig, error) {
	configOnce.Do(func() {
		globalConfig, configErr = readConfig(path)
	})
	return globalConfig, configErr
}

// defaultConfigPath returns ~/.finhelp/finhelp.yaml.
func defaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".finhelp", "finhelp.yaml"), nil
}

// readConfig reads path, creating it with defaults when missing. Fields
// absent from the file keep their default values.
func readConfig(path string) (ClientConfig, error) {
	if path == "" {
		var err error
		if path, err = defaultConfigPath(); err != nil {
			return ClientConfig{}, err
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := createDefaultConfig(path); err != nil {
			return ClientConfig{}, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return ClientConfig{}, fmt.Errorf("failed to read the config file: %w", err)
	}
	cfg := DefaultClientConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return ClientConfig{}, fmt.Errorf("failed to parse the config file %s: %w", path, err)
	}
	if cfg.RelayURL == "" {
		return ClientConfig{}, fmt.Errorf("config %s: relay_url is empty", path)
	}
	return cfg, nil
}

func createDefaultConfig(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultClientConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
