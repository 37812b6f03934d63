// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestReadConfig_CreatesDefaultWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "finhelp.yaml")

	cfg, err := readConfig(path)
	if err != nil {
		t.Fatalf("readConfig: %v", err)
	}
	if cfg != DefaultClientConfig() {
		t.Errorf("got %+v, want defaults", cfg)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("default config was not written: %v", err)
	}
	var written ClientConfig
	if err := yaml.Unmarshal(data, &written); err != nil {
		t.Fatalf("written config is not valid YAML: %v", err)
	}
	if written.RelayURL != DefaultClientConfig().RelayURL {
		t.Errorf("written relay_url = %q", written.RelayURL)
	}
}

func TestReadConfig_DefaultLocationUnderHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	if _, err := readConfig(""); err != nil {
		t.Fatalf("readConfig: %v", err)
	}
	if _, err := os.Stat(filepath.Join(home, ".finhelp", "finhelp.yaml")); err != nil {
		t.Errorf("expected config under HOME: %v", err)
	}
}

func TestReadConfig_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "finhelp.yaml")
	content := "relay_url: https://relay.example.com\nevent_stream: true\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := readConfig(path)
	if err != nil {
		t.Fatalf("readConfig: %v", err)
	}
	if cfg.RelayURL != "https://relay.example.com" || !cfg.EventStream {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("log_level should keep its default, got %q", cfg.LogLevel)
	}
}

func TestReadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"invalid yaml", "relay_url: [unterminated\n"},
		{"empty relay", "relay_url: \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "finhelp.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := readConfig(path); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestClientConfig_URLs(t *testing.T) {
	cfg := ClientConfig{RelayURL: "http://relay:12210/"}
	if got := cfg.ChatURL(); got != "http://relay:12210/api/chat" {
		t.Errorf("ChatURL() = %q", got)
	}
	if got := cfg.CannedURL(); got != "http://relay:12210/v1/canned" {
		t.Errorf("CannedURL() = %q", got)
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	base := DefaultClientConfig()

	unchanged := applyFlagOverrides(base, "", false, "")
	if unchanged != base {
		t.Errorf("empty flags should not change config: %+v", unchanged)
	}

	got := applyFlagOverrides(base, "http://other:1", true, "debug")
	if got.RelayURL != "http://other:1" || !got.EventStream || got.LogLevel != "debug" {
		t.Errorf("flags not applied: %+v", got)
	}
}
