package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode             string        `mapstructure:"mode"`
	Port             int           `mapstructure:"port"`
	AnalysisURL      string        `mapstructure:"analysis_url"`
	WaitTimeout      time.Duration `mapstructure:"wait_timeout"`
	CaptureWindow    time.Duration `mapstructure:"capture_window"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("analysis_url", "")
	v.SetDefault("wait_timeout", "60s")
	v.SetDefault("capture_window", "10s")
	v.SetDefault("handshake_timeout", "5s")

	// MEETSCOPE_PORT, MEETSCOPE_ANALYSIS_URL, ... override the file.
	v.SetEnvPrefix("meetscope")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	// A missing analysis URL is deliberately not fatal here: it only
	// matters once a capture window completes.
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).
		Dur("wait_timeout", cfg.WaitTimeout).Dur("capture_window", cfg.CaptureWindow).
		Bool("analysis_url_set", cfg.AnalysisURL != "").Msg("effective config")
	return &cfg, nil
}
