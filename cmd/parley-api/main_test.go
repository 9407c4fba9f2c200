package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

func useConfigFlags(t *testing.T, configPath string) {
	t.Helper()
	previousConfig, previousEnv := cfgFile, envFile
	cfgFile, envFile = configPath, ""
	t.Cleanup(func() {
		cfgFile, envFile = previousConfig, previousEnv
		viper.Reset()
	})
}

func TestInitConfigFailsForMissingConfigFile(t *testing.T) {
	useConfigFlags(t, filepath.Join(t.TempDir(), "missing.yaml"))
	if err := initConfig(); err == nil {
		t.Fatalf("expected an error for a named config file that does not exist")
	}
}

func TestInitConfigFailsForUnparsableConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parley.yaml")
	if err := os.WriteFile(path, []byte("http: [unterminated"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	useConfigFlags(t, path)
	if err := initConfig(); err == nil {
		t.Fatalf("expected a parse error for a malformed config file")
	}
}

func TestInitConfigReadsNamedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parley.yaml")
	if err := os.WriteFile(path, []byte("http:\n  address: 127.0.0.1:9000\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	useConfigFlags(t, path)
	if err := initConfig(); err != nil {
		t.Fatalf("init config failed: %v", err)
	}
	if got := viper.GetString("http.address"); got != "127.0.0.1:9000" {
		t.Fatalf("expected address from file, got %q", got)
	}
}

func TestInitConfigWithoutFileIsOptional(t *testing.T) {
	useConfigFlags(t, "")
	if err := initConfig(); err != nil {
		t.Fatalf("expected no error without a config file, got %v", err)
	}
}
