package commands

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Subcommands(t *testing.T) {
	root := newRootCommand("1.2.3", "abc", "today")

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "migrate", "backfill", "replay", "status", "validate", "health", "synclog"} {
		assert.Contains(t, names, want)
	}
	assert.Contains(t, root.Version, "1.2.3")
}

func TestRootCommand_RequiredFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "replay without type", args: []string{"replay"}},
		{name: "validate without id", args: []string{"validate", "--type", "events"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := newRootCommand("dev", "none", "none")
			root.SetArgs(tt.args)
			root.SetOut(&bytes.Buffer{})
			root.SetErr(&bytes.Buffer{})

			err := root.Execute()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "required flag")
		})
	}
}

func TestLoadConfig_Verbose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logger:\n  level: warn\n"), 0o600))

	root := newRootCommand("dev", "none", "none")
	require.NoError(t, root.ParseFlags([]string{"--config", path, "--verbose"}))
	t.Cleanup(func() { configPath, verbose = "", false })

	cfg, log, err := loadConfig()
	require.NoError(t, err)
	require.NotNil(t, log)
	assert.Equal(t, "debug", cfg.Logger.Level)
}

func TestRender(t *testing.T) {
	t.Cleanup(func() { jsonOutput = false })

	var buf bytes.Buffer
	jsonOutput = false
	require.NoError(t, render(&buf, map[string]int{"n": 1}, func(w io.Writer) {
		w.Write([]byte("text\n"))
	}))
	assert.Equal(t, "text\n", buf.String())

	buf.Reset()
	jsonOutput = true
	require.NoError(t, render(&buf, map[string]int{"n": 1}, func(w io.Writer) {
		w.Write([]byte("text\n"))
	}))
	assert.JSONEq(t, `{"n":1}`, buf.String())
}
