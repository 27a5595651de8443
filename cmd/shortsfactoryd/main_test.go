package main

import (
	"path/filepath"
	"testing"
)

func TestCommandRejectsPositionalArgs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cmd := newCommand()
	cmd.SetArgs([]string{"--config", path, "--once", "extra"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected positional arguments to be rejected")
	}
}

func TestCommandFlags(t *testing.T) {
	cmd := newCommand()
	for _, name := range []string{"config", "once"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Fatalf("missing --%s flag", name)
		}
	}
}
