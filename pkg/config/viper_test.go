package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/JakeFAU/urlsec-blocklist/internal/config"
)

func TestInitConfigDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Chdir(t.TempDir())

	InitConfig("")

	assert.Equal(t, 5, viper.GetInt("fetch.max_concurrent_requests"))
	assert.Equal(t, "blocklist.txt", viper.GetString("output.path"))
	assert.Empty(t, viper.ConfigFileUsed())
}

func TestInitConfigReadsFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "urlsec.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fetch:\n  pacing_delay: 2s\noutput:\n  path: custom.txt\n"), 0o600))

	InitConfig(path)

	cfg, err := appconfig.FromViper(viper.GetViper())
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.Fetch.PacingDelay)
	assert.Equal(t, "custom.txt", cfg.Output.Path)
	assert.Equal(t, path, viper.ConfigFileUsed())
}

func TestInitConfigSearchPath(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("metrics:\n  job: nightly\n"), 0o600))

	InitConfig("")
	assert.Equal(t, "nightly", viper.GetString("metrics.job"))
}

func TestInitConfigEnv(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Chdir(t.TempDir())
	t.Setenv("URLSEC_EXTRACT_ENDPOINT", "https://mirror.example/getList")

	InitConfig("")
	assert.Equal(t, "https://mirror.example/getList", viper.GetString("extract.endpoint"))
}
