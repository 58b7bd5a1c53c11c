package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Options tunes Load. Zero value reads only the environment.
type Options struct {
	// File is an explicit config file (yaml, json, toml or .env). Optional.
	File string
	// Defaults are applied before any file or env value, keyed by dotted path.
	Defaults map[string]any
}

// Load loads configuration from an optional file and environment variables
// prefix: Environment variable prefix (e.g. "PROMPTY_")
// target: Pointer to the config struct to load into
func Load(prefix string, target any, opts ...Options) error {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}

	v := viper.New()
	for key, value := range o.Defaults {
		v.SetDefault(key, value)
	}

	file := o.File
	if file == "" {
		if _, err := os.Stat(".env"); err == nil {
			file = ".env"
		}
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return fmt.Errorf("failed to read config file %s: %w", file, err)
			}
		}
		// .env files use the same PREFIX_KEY naming as the environment.
		if strings.HasSuffix(file, ".env") {
			for _, key := range v.AllKeys() {
				upper := strings.ToUpper(key)
				if strings.HasPrefix(upper, strings.ToUpper(prefix)) {
					v.Set(envKeyToPath(upper, prefix), v.Get(key))
				}
			}
		}
	}

	// Viper's AutomaticEnv doesn't work well with Unmarshal when keys aren't
	// known up front, so walk the environment instead.
	prefixUpper := strings.ToUpper(prefix)
	for _, envStr := range os.Environ() {
		key, value, ok := strings.Cut(envStr, "=")
		if !ok || !strings.HasPrefix(key, prefixUpper) {
			continue
		}
		v.Set(envKeyToPath(key, prefix), value)
	}

	if err := v.Unmarshal(target); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return nil
}

// envKeyToPath maps PROMPTY_STORE_DRIVER -> store.driver.
// A double underscore keeps a literal underscore: PROMPTY_RATELIMIT_LOGIN__PER__MINUTE -> ratelimit.login_per_minute.
func envKeyToPath(key, prefix string) string {
	propKey := strings.TrimPrefix(key, strings.ToUpper(prefix))
	propKey = strings.ReplaceAll(propKey, "__", "\x00")
	propKey = strings.ToLower(strings.ReplaceAll(propKey, "_", "."))
	propKey = strings.ReplaceAll(propKey, "\x00", "_")
	return strings.TrimPrefix(propKey, ".")
}
