package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/cellview/internal/rules"
	"github.com/rendis/cellview/internal/validation"
)

func withHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, k := range []string{
		"CELLVIEW_DB_PATH", "CELLVIEW_LOG_LEVEL", "CELLVIEW_SHAPE_PREFIX",
		"CELLVIEW_MAINTENANCE_SCHEDULE", "CELLVIEW_EVENT_RETENTION",
	} {
		t.Setenv(k, "")
	}
	return home
}

func writeSettings(t *testing.T, home, body string) {
	t.Helper()
	dir := filepath.Join(home, ".cellview")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.json"), []byte(body), 0o644))
}

func TestLoadConfig_Defaults(t *testing.T) {
	home := withHome(t)
	cfg := loadConfig()

	assert.Equal(t, filepath.Join(home, ".cellview", "cellview.db"), cfg.DBPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "cv", cfg.ShapePrefix)
	assert.Equal(t, "0 3 * * *", cfg.MaintenanceSchedule)
	d, err := cfg.retention()
	require.NoError(t, err)
	assert.Equal(t, 720*time.Hour, d)
}

func TestLoadConfig_SettingsThenEnv(t *testing.T) {
	home := withHome(t)
	writeSettings(t, home, `{
		"log_level": "debug",
		"shape_prefix": "book",
		"custom_rules": [{"name": "urls", "engine": "expr", "expression": "value startsWith \"http\"", "kind": "cell_data_type_image"}]
	}`)
	t.Setenv("CELLVIEW_SHAPE_PREFIX", "env")
	t.Setenv("CELLVIEW_DB_PATH", "/tmp/x.db")

	cfg := loadConfig()
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "env", cfg.ShapePrefix)
	assert.Equal(t, "/tmp/x.db", cfg.DBPath)
	assert.Equal(t, "file:/tmp/x.db", cfg.dbURI())
	require.Len(t, cfg.CustomRules, 1)
	assert.Equal(t, "urls", cfg.CustomRules[0].Name)
}

func TestLoadConfig_BrokenSettingsKeepsDefaults(t *testing.T) {
	home := withHome(t)
	writeSettings(t, home, `{not json`)
	assert.Equal(t, "info", loadConfig().LogLevel)
}

func TestConfig_Validate(t *testing.T) {
	v, err := validation.NewJSONSchemaValidator()
	require.NoError(t, err)

	cfg := defaultConfig()
	assert.NoError(t, cfg.validate(v))

	cfg.EventRetention = "soon"
	assert.Error(t, cfg.validate(v))

	cfg = defaultConfig()
	cfg.EventRetention = "-1h"
	assert.Error(t, cfg.validate(v))

	cfg = defaultConfig()
	cfg.CustomRules = []rules.CustomRule{{Name: "x", Engine: "lua", Expression: "true", Kind: "cell_data_type_str"}}
	assert.Error(t, cfg.validate(v))
}

func TestConfig_RetentionDisabled(t *testing.T) {
	for _, s := range []string{"", "0"} {
		d, err := Config{EventRetention: s}.retention()
		require.NoError(t, err)
		assert.Zero(t, d)
	}
}

func TestConfig_SlogLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", Config{LogLevel: "debug"}.slogLevel().String())
	assert.Equal(t, "WARN", Config{LogLevel: "Warning"}.slogLevel().String())
	assert.Equal(t, "INFO", Config{LogLevel: "bogus"}.slogLevel().String())
}

func TestNewRuleSet_RegistersCustomRules(t *testing.T) {
	cfg := defaultConfig()
	cfg.CustomRules = []rules.CustomRule{{Name: "big", Engine: "cel", Expression: `shape == "int" && value > 1000`, Kind: "cell_data_type_figure", First: true}}

	rs, err := newRuleSet(cfg, newLogger(cfg))
	require.NoError(t, err)
	assert.Equal(t, "big", rs.Rules()[0].Name())
}
