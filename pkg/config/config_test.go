package config

import (
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.NilError(t, err)
	assert.Check(t, is.DeepEqual(cfg, Default()))
	assert.NilError(t, Default().Validate())
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agbsave.yaml")
	assert.NilError(t, os.WriteFile(path, []byte(`
keys_file: /home/me/.3ds/agb.keys
log_level: debug
archive:
  method: zstd
  level: 19
`), 0o644))

	cfg, err := Load(path)
	assert.NilError(t, err)
	assert.Check(t, is.Equal(cfg.KeysFile, "/home/me/.3ds/agb.keys"))
	assert.Check(t, is.Equal(cfg.LogLevel, "debug"))
	assert.Check(t, is.Equal(cfg.Archive.Method, "zstd"))
	assert.Check(t, is.Equal(cfg.Archive.Level, 19))
	assert.Check(t, is.Equal(cfg.OracleAttempts, 10))
	assert.Check(t, is.Equal(cfg.SidecarSuffix, ".arm7"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"level name", func(c *Config) { c.LogLevel = "loud" }, "not a valid logrus Level"},
		{"attempts", func(c *Config) { c.OracleAttempts = 0 }, "oracle_attempts"},
		{"method", func(c *Config) { c.Archive.Method = "rar" }, "unknown archive method"},
		{"deflate level", func(c *Config) { c.Archive.Level = 12 }, "deflate level"},
		{"zstd level", func(c *Config) { c.Archive.Method = "zstd"; c.Archive.Level = 0 }, "zstd level"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tc.want)
		})
	}
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	assert.NilError(t, os.WriteFile(path, []byte("archive: [oops"), 0o644))
	_, err := Load(path)
	assert.ErrorContains(t, err, "parsing")
}
