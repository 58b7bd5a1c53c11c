package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Port  int `mapstructure:"port"`
	Store struct {
		Driver  string        `mapstructure:"driver"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"store"`
	RateLimit struct {
		LoginPerMinute int `mapstructure:"login_per_minute"`
	} `mapstructure:"ratelimit"`
}

func TestEnvKeyToPath(t *testing.T) {
	assert.Equal(t, "store.driver", envKeyToPath("TEST_STORE_DRIVER", "TEST_"))
	assert.Equal(t, "port", envKeyToPath("TEST_PORT", "TEST_"))
	assert.Equal(t, "ratelimit.login_per_minute", envKeyToPath("TEST_RATELIMIT_LOGIN__PER__MINUTE", "TEST_"))
}

func TestLoadDefaultsAndEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CFGTEST_STORE_DRIVER", "postgres")
	t.Setenv("CFGTEST_RATELIMIT_LOGIN__PER__MINUTE", "7")

	var cfg sample
	err := Load("CFGTEST_", &cfg, Options{Defaults: map[string]any{
		"port":          3000,
		"store.driver":  "sqlite",
		"store.timeout": "2s",
	}})
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 2*time.Second, cfg.Store.Timeout)
	assert.Equal(t, 7, cfg.RateLimit.LoginPerMinute)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "prompty.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 8080\nstore:\n  driver: memory\n"), 0o600))
	t.Setenv("CFGTEST_PORT", "9090")

	var cfg sample
	require.NoError(t, Load("CFGTEST_", &cfg, Options{File: path}))
	assert.Equal(t, 9090, cfg.Port, "environment wins over file")
	assert.Equal(t, "memory", cfg.Store.Driver)
}

func TestLoadBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [\n"), 0o600))
	var cfg sample
	assert.Error(t, Load("CFGTEST_", &cfg, Options{File: path}))
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(old) })
}
