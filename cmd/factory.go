package cmd

import (
	"errors"
	"io/fs"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/jnwerner/vouch/internal/config"
	"github.com/jnwerner/vouch/internal/provider"
)

// defaultConfigFile is tried when --config is not given.
const defaultConfigFile = "vouch.yaml"

// openProvider assembles a provider from the configured (or default)
// configuration file. The caller must Close the provider.
func openProvider() (*provider.Provider, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return provider.Open(cfg, log.Logger)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); errors.Is(err, fs.ErrNotExist) {
			log.Debug().Msg("no config file, using defaults (in-memory store)")
			return config.Default(), nil
		}
		path = defaultConfigFile
	}

	log.Debug().Str("path", path).Msg("loading config file")
	return config.Load(path)
}
