package config

import "github.com/caarlos0/env/v11"

// EnvPrefix prefixes every environment variable read into Config.
const EnvPrefix = "GATEKEEPER_"

// parseEnv overlays Config with GATEKEEPER_* environment variables. Unset
// variables leave the current value untouched. Malformed values panic.
func parseEnv(config *Config) {
	if err := env.ParseWithOptions(config, env.Options{Prefix: EnvPrefix}); err != nil {
		panic(err)
	}
}
