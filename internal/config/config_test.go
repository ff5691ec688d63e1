package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	fs := FlagSet("test")
	cfg, err := Load(fs, []string{"exam.json"})
	require.NoError(t, err)

	assert.Equal(t, "studydeck.db", cfg.DB)
	assert.Equal(t, "localhost:8080", cfg.Addr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "repos", cfg.ReposDir)
	assert.Equal(t, "gemini-1.5-flash", cfg.GeminiModel)
	assert.InDelta(t, 0.9, cfg.DesiredRetention, 1e-9)
	assert.InDelta(t, 36500, cfg.MaximumInterval, 1e-9)
	assert.False(t, cfg.EnableFuzz)
	assert.Equal(t, []string{"exam.json"}, fs.Args())
}

func TestLoadPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "studydeck.yaml")
	yaml := "db: file.db\naddr: \":9000\"\nlog_level: debug\ndesired_retention: 0.85\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	t.Setenv("STUDYDECK_ADDR", ":9100")
	t.Setenv("STUDYDECK_ENABLE_FUZZ", "true")
	t.Setenv("STUDYDECK_GEMINI_API_KEY", "secret")

	cfg, err := Load(FlagSet("test"), []string{"--config", path, "--log-level", "warn"})
	require.NoError(t, err)

	assert.Equal(t, "file.db", cfg.DB)
	assert.Equal(t, ":9100", cfg.Addr)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.InDelta(t, 0.85, cfg.DesiredRetention, 1e-9)
	assert.True(t, cfg.EnableFuzz)
	assert.Equal(t, "secret", cfg.GeminiAPIKey)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantMsg string
	}{
		{name: "unknown log level", args: []string{"--log-level", "loud"}, wantMsg: "LogLevel"},
		{name: "unknown log format", args: []string{"--log-format", "xml"}, wantMsg: "LogFormat"},
		{name: "retention out of range", args: []string{"--desired-retention", "1.5"}, wantMsg: "DesiredRetention"},
		{name: "missing config file", args: []string{"--config", "/nonexistent/studydeck.yaml"}, wantMsg: "failed to load config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(FlagSet("test"), tt.args)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}
