// Package toml loads and saves the configuration file.
package toml

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fwojciec/ragkb"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Environment variables that override file settings.
const (
	EnvDB      = "RAGKB_DB"
	EnvOllama  = "OLLAMA_HOST"
	EnvGemini  = "GEMINI_API_KEY"
	EnvBrave   = "BRAVE_API_KEY"
	EnvGitHub  = "GITHUB_TOKEN"
	EnvYouTube = "YOUTUBE_API_KEY"
)

// DefaultDir returns ~/.ragkb.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".ragkb"), nil
}

// DefaultPath returns the default config file location.
func DefaultPath() (string, error) {
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads .env into the process environment, then builds the config from
// defaults, the file at path and the environment.
func Load(path string) (ragkb.Config, error) {
	_ = godotenv.Load()
	return LoadEnv(path, os.Getenv)
}

// LoadEnv builds the config from defaults, the file at path (skipped when it
// does not exist) and getenv. The result is validated.
func LoadEnv(path string, getenv func(string) string) (ragkb.Config, error) {
	cfg := ragkb.DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return cfg, ragkb.Errorf(ragkb.EINVALID, "parse %s: %v", path, err)
			}
		}
	}

	overlay(&cfg, getenv)

	if cfg.Database.Path == "" {
		dir, err := DefaultDir()
		if err != nil {
			return cfg, err
		}
		cfg.Database.Path = filepath.Join(dir, "ragkb.db")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func overlay(cfg *ragkb.Config, getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&cfg.Database.Path, EnvDB)
	set(&cfg.Ollama.Host, EnvOllama)
	set(&cfg.Gemini.APIKey, EnvGemini)
	set(&cfg.Brave.APIKey, EnvBrave)
	set(&cfg.GitHub.Token, EnvGitHub)
	set(&cfg.YouTube.APIKey, EnvYouTube)
}

// Save writes cfg to path, creating the directory. The file may hold API
// keys so it is only readable by the owner.
func Save(path string, cfg ragkb.Config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}
