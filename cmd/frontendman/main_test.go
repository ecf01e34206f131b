package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRootCommandWiring(t *testing.T) {
	root := newRootCommand()

	expected := map[string]bool{
		"start":   false,
		"stop":    false,
		"restart": false,
		"status":  false,
		"run":     false,
	}
	for _, cmd := range root.Commands() {
		if _, ok := expected[cmd.Name()]; ok {
			expected[cmd.Name()] = true
		}
	}
	for name, found := range expected {
		assert.True(t, found, "missing subcommand %q", name)
	}
}

func TestStatusWithoutDaemon(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "frontendman.toml")
	content := "log_dir = " + `"` + dir + `"` + "\n"
	assert.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o644))

	root := newRootCommand()
	root.SetArgs([]string{"status", "--config", cfgPath})

	assert.NoError(t, root.Execute())
}

func TestStopWithoutDaemon(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "frontendman.toml")
	content := "log_dir = " + `"` + dir + `"` + "\n"
	assert.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o644))

	root := newRootCommand()
	root.SetArgs([]string{"stop", "--config", cfgPath})

	// No pid file means "not running", which is not an error.
	assert.NoError(t, root.Execute())
}
