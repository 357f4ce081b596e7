package config

import (
	"os"

	"github.com/rs/zerolog/log"
)

// Environment variables read by ApplyEnv.
const (
	EnvUsername = "GGE_USERNAME"
	EnvPassword = "GGE_PASSWORD"
	EnvFilename = "GGE_FILENAME"
	EnvServer   = "GGE_SERVER"
)

// Values shorter than this are treated as unset.
const minCredentialLen = 2

// ApplyEnv overlays the environment on cfg. It is applied after Load, so
// overridden values are never written back to disk. lookup defaults to
// os.LookupEnv.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) []string {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		if !ok || len(v) < minCredentialLen {
			return "", false
		}
		return v, true
	}

	cfg.mu.Lock()
	defer cfg.mu.Unlock()

	var applied []string
	if v, ok := get(EnvUsername); ok {
		cfg.Server.Username = v
		applied = append(applied, EnvUsername)
	}
	if v, ok := get(EnvPassword); ok {
		cfg.Server.Password = v
		applied = append(applied, EnvPassword)
	}
	if v, ok := get(EnvFilename); ok {
		cfg.ApplicationData.Storage.JSONPath = v
		applied = append(applied, EnvFilename)
	}
	if v, ok := get(EnvServer); ok {
		cfg.Server.Address = v
		applied = append(applied, EnvServer)
	}

	if len(applied) > 0 {
		log.Debug().Strs("vars", applied).Msg("environment overrides applied")
	}
	return applied
}
