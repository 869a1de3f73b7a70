package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"igclient/client"
	"igclient/resources"
)

// Config is the optional YAML file: account defaults and a proxy descriptor.
type Config struct {
	Username     string                `yaml:"username"`
	SettingsFile string                `yaml:"settings_file"`
	Locale       string                `yaml:"locale"`
	Proxy        *resources.ProxyConfig `yaml:"proxy"`
}

func loadConfig(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// newLogger builds a console logger; debug turns request tracing on.
func newLogger(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).With().Timestamp().Logger()
}

// buildClient assembles a client from global flags and the YAML config,
// restoring a saved settings snapshot when one exists.
func buildClient(cmd *cli.Command) (*client.Client, Config, error) {
	cfg, err := loadConfig(cmd.String("config"))
	if err != nil {
		return nil, cfg, err
	}
	log := newLogger(cmd.Bool("debug"))

	c := client.New()
	c.SetLogger(log)
	if cfg.Locale != "" {
		c.SetLocale(cfg.Locale)
	}
	if cfg.Proxy != nil {
		proxyURL, err := resources.BuildProxyURL(*cfg.Proxy)
		if err != nil {
			return nil, cfg, err
		}
		if err := c.SetProxy(proxyURL); err != nil {
			return nil, cfg, err
		}
	}
	if cfg.SettingsFile != "" {
		if _, err := os.Stat(cfg.SettingsFile); err == nil {
			if err := c.LoadSettings(cfg.SettingsFile); err != nil {
				log.Warn().Err(err).Str("file", cfg.SettingsFile).Msg("could not restore settings")
			}
		}
	}
	return c, cfg, nil
}
