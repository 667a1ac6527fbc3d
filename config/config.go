package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration decodes from YAML either as a Go duration string ("500ms",
// "5m") or a bare number of seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a scalar, got %v", node.Kind)
	}
	raw := node.Value
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration.
type Config struct {
	Decoynet DecoynetConfig `yaml:"decoynet"`
}

// DecoynetConfig is the project configuration.
type DecoynetConfig struct {
	Redis      RedisConfig      `yaml:"redis"`
	Sources    SourcesConfig    `yaml:"sources"`
	Analyzer   AnalyzerConfig   `yaml:"analyzer"`
	Oracle     OracleConfig     `yaml:"oracle"`
	Campaigns  CampaignConfig   `yaml:"campaigns"`
	Adaptation AdaptationConfig `yaml:"adaptation"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// RedisConfig controls access to the shared data store.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// SourcesConfig lists the deception-service streams to follow.
type SourcesConfig struct {
	Shell SourceConfig `yaml:"shell"`
	HTTP  SourceConfig `yaml:"http"`
	FTP   SourceConfig `yaml:"ftp"`
}

// SourceConfig controls one ingestion watcher.
type SourceConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Path         string   `yaml:"path"`
	PollInterval Duration `yaml:"poll_interval"`
}

// AnalyzerConfig controls the command pattern analyzer.
type AnalyzerConfig struct {
	RulesPath string `yaml:"rules_path"`
}

// OracleConfig controls the classification client.
type OracleConfig struct {
	URL           string   `yaml:"url"`
	Timeout       Duration `yaml:"timeout"`
	ProbeInterval Duration `yaml:"probe_interval"`
	ProbeTimeout  Duration `yaml:"probe_timeout"`
}

// CampaignConfig controls periodic campaign detection.
type CampaignConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Interval      Duration `yaml:"interval"`
	Window        Duration `yaml:"window"`
	MinIPs        int      `yaml:"min_ips"`
	MinCommandHit int      `yaml:"min_command_hits"`
	MinBucketHit  int      `yaml:"min_bucket_events"`
	MinNetworkHit int      `yaml:"min_network_events"`
}

// AdaptationConfig controls the automated response engine.
type AdaptationConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Cooldown       Duration `yaml:"cooldown"`
	BannerConfig   string   `yaml:"banner_config"`
	HoneyfilesPath string   `yaml:"honeyfiles_path"`
	RestartCommand string   `yaml:"restart_command"`
	RestartTimeout Duration `yaml:"restart_timeout"`
}

// MetricsConfig controls the Prometheus listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LoggingConfig controls logging output.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
