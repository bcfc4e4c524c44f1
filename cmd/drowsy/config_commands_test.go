package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"drowsy/internal/mockservice"
)

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t, mockservice.Options{})

	out, _, err := runCLI(t, []string{"config", "validate"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, env.configPath)

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	_, _, err = runCLI(t, []string{"config", "init", "--path", target}, env.socketPath, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected existing file error, got %v", err)
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, env.socketPath, env.configPath); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}

	out, _, err = runCLI(t, []string{"config", "validate"}, env.socketPath, target)
	if err != nil {
		t.Fatalf("validate sample: %v", err)
	}
	requireContains(t, out, "Configuration valid")
}

func TestConfigValidateRejectsBadFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[service]\nbase_url = \"ftp://nowhere\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, _, err := runCLI(t, []string{"config", "validate"}, "", path)
	if err == nil || !strings.Contains(err.Error(), "service.base_url") {
		t.Fatalf("expected base_url error, got %v", err)
	}
}

func TestConfigShow(t *testing.T) {
	env := setupCLITestEnv(t, mockservice.Options{})

	out, _, err := runCLI(t, []string{"config", "show"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, env.cfg.Service.BaseURL)
	requireContains(t, out, "virtual")
}
