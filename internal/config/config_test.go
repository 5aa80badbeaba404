package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(flags)
	// Point at a missing .env unless the test chooses one.
	require.NoError(t, flags.Set(envFileFlag, filepath.Join(t.TempDir(), "absent.env")))
	require.NoError(t, flags.Parse(args))
	return Load(flags)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(t)
	require.NoError(t, err)

	assert.Equal(t, "apkgbridge.db", cfg.DBPath)
	assert.Equal(t, "media", cfg.MediaDir)
	assert.Equal(t, "", cfg.WorkDir)
	assert.Equal(t, ".", cfg.OutputDir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoadLayerPrecedence(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "apkgbridge.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
db: from-file.db
media_dir: file-media
output_dir: file-out
log_level: debug
`), 0o644))

	t.Setenv("APKG_MEDIA_DIR", "env-media")
	t.Setenv("APKG_OUTPUT_DIR", "env-out")

	cfg, err := load(t, "--config", cfgPath, "--output-dir", "flag-out")
	require.NoError(t, err)

	assert.Equal(t, "from-file.db", cfg.DBPath, "file beats flag defaults")
	assert.Equal(t, "env-media", cfg.MediaDir, "env beats file")
	assert.Equal(t, "flag-out", cfg.OutputDir, "explicit flag beats env")
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadEnvFile(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(envPath, []byte("APKG_WORK_DIR=/tmp/from-dotenv\n"), 0o644))
	t.Setenv("APKG_WORK_DIR", "")
	os.Unsetenv("APKG_WORK_DIR")

	cfg, err := load(t, "--env-file", envPath)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/from-dotenv", cfg.WorkDir)
}

func TestLoadValidation(t *testing.T) {
	testCases := []struct {
		name string
		args []string
	}{
		{"bad log level", []string{"--log-level", "loud"}},
		{"bad log format", []string{"--log-format", "xml"}},
		{"empty db path", []string{"--db", ""}},
		{"bad library url", []string{"--library-url", "not a url"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := load(t, tc.args...)
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	_, err := load(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadNormalizesCase(t *testing.T) {
	cfg, err := load(t, "--log-level", "WARN", "--log-format", "JSON")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}
