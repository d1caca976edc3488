package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Storage    StorageConfig    `mapstructure:"storage"`
	Dataset    DatasetConfig    `mapstructure:"dataset"`
	Datasets   []DatasetSource  `mapstructure:"datasets"`
	Processing ProcessingConfig `mapstructure:"processing"`
	Alerts     AlertsConfig     `mapstructure:"alerts"`
	Server     ServerConfig     `mapstructure:"server"`
}

type StorageConfig struct {
	Path     string         `mapstructure:"path"`
	Memgraph MemgraphConfig `mapstructure:"memgraph"`
}

type MemgraphConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// DatasetConfig holds the defaults applied when a command names a dataset.
type DatasetConfig struct {
	Root            string `mapstructure:"root"`
	Name            string `mapstructure:"name"`
	MaxRingSize     int    `mapstructure:"max_ring_size"`
	UseEdgeFeatures bool   `mapstructure:"use_edge_features"`
	IncludeDownAdj  bool   `mapstructure:"include_down_adj"`
}

// DatasetSource is one entry of the scheduled dataset list. Zero fields fall
// back to DatasetConfig.
type DatasetSource struct {
	Name            string `mapstructure:"name"`
	MaxRingSize     int    `mapstructure:"max_ring_size"`
	UseEdgeFeatures bool   `mapstructure:"use_edge_features"`
}

type ProcessingConfig struct {
	Workers          int    `mapstructure:"workers"`
	MaxRingsPerGraph int    `mapstructure:"max_rings_per_graph"`
	SkipInvalid      bool   `mapstructure:"skip_invalid"`
	Schedule         string `mapstructure:"schedule"`
	OnStartup        bool   `mapstructure:"on_startup"`
}

// AlertsConfig selects where scheduled processing results are reported.
type AlertsConfig struct {
	Webhook WebhookConfig `mapstructure:"webhook"`
	Stdout  StdoutConfig  `mapstructure:"stdout"`
}

type WebhookConfig struct {
	Enabled bool              `mapstructure:"enabled"`
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
}

type StdoutConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type ServerConfig struct {
	Listen     string `mapstructure:"listen"`
	ReadOnly   bool   `mapstructure:"read_only"`
	APIToken   string `mapstructure:"api_token"`
	CORSOrigin string `mapstructure:"cors_origin"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.path", "./data/cwn.db")
	v.SetDefault("storage.memgraph.enabled", false)
	v.SetDefault("storage.memgraph.uri", "bolt://localhost:7687")
	v.SetDefault("dataset.root", "./datasets")
	v.SetDefault("dataset.name", "ZINC")
	v.SetDefault("dataset.max_ring_size", 12)
	v.SetDefault("dataset.use_edge_features", false)
	v.SetDefault("dataset.include_down_adj", false)
	v.SetDefault("processing.workers", 4)
	v.SetDefault("processing.max_rings_per_graph", 0)
	v.SetDefault("processing.skip_invalid", false)
	v.SetDefault("processing.on_startup", false)
	v.SetDefault("alerts.stdout.enabled", true)
	v.SetDefault("alerts.webhook.enabled", false)
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.read_only", false)
}

// Load reads the configuration from file and environment variables.
// Environment variables use the CWN_ prefix with dots replaced by
// underscores, e.g. CWN_STORAGE_PATH.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".cwn"))
		}
		v.AddConfigPath(".")
		v.SetConfigName("cwn")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("CWN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// secrets may reference the environment, e.g. api_token: ${CWN_TOKEN}
	cfg.Server.APIToken = os.ExpandEnv(cfg.Server.APIToken)
	cfg.Storage.Memgraph.Password = os.ExpandEnv(cfg.Storage.Memgraph.Password)
	for k, v := range cfg.Alerts.Webhook.Headers {
		cfg.Alerts.Webhook.Headers[k] = os.ExpandEnv(v)
	}

	return &cfg, nil
}
