package main

import (
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config is the daemon configuration file.
type Config struct {
	// BoltFile is the variables/log database.
	BoltFile string `yaml:"bolt"`

	// StatsFile is the sqlite statistics database; ":memory:" works.
	StatsFile string `yaml:"stats"`

	// RulesFile maps group ids to rule lists (YAML).
	RulesFile string `yaml:"rules"`

	// Listen is the WebSocket event feed address (the platform
	// gateway pushes events here).
	Listen string `yaml:"listen"`

	// MQTTBroker enables the MQTT feed and action publisher when
	// set (for example "tcp://localhost:1883").
	MQTTBroker string `yaml:"mqtt_broker"`

	// MQTTEvents is the topic events arrive on.
	MQTTEvents string `yaml:"mqtt_events"`

	// MQTTActions is the topic actions are published to.
	MQTTActions string `yaml:"mqtt_actions"`

	AggregationDelayMS int `yaml:"aggregation_delay_ms"`
	GraceSeconds       int `yaml:"grace_seconds"`

	// StatsRetentionDays bounds the statistics stream; events older
	// than this are pruned daily.  Zero disables pruning.
	StatsRetentionDays int `yaml:"stats_retention_days"`

	LogLevel string `yaml:"log_level"`
}

// LoadConfig reads a YAML config file, filling defaults.
func LoadConfig(filename string) (*Config, error) {
	cfg := &Config{
		BoltFile:           "warden.db",
		StatsFile:          "warden-stats.db",
		RulesFile:          "rules.yaml",
		Listen:             ":8357",
		MQTTEvents:         "warden/events",
		MQTTActions:        "warden/actions",
		StatsRetentionDays: 30,
	}
	if filename == "" {
		return cfg, nil
	}
	bs, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(bs, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) aggregationDelay() time.Duration {
	if cfg.AggregationDelayMS <= 0 {
		return 0
	}
	return time.Duration(cfg.AggregationDelayMS) * time.Millisecond
}

func (cfg *Config) grace() time.Duration {
	if cfg.GraceSeconds <= 0 {
		return 0
	}
	return time.Duration(cfg.GraceSeconds) * time.Second
}

func (cfg *Config) statsRetention() time.Duration {
	if cfg.StatsRetentionDays <= 0 {
		return 0
	}
	return time.Duration(cfg.StatsRetentionDays) * 24 * time.Hour
}
