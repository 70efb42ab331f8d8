package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		AllowOrigins    []string      `yaml:"allow_origins"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
		// ErrorTopic enables the aggregated error collector when set.
		ErrorTopic string `yaml:"error_topic"`
	} `yaml:"log"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Data struct {
		Source          string   `yaml:"source"` // csv | clickhouse
		Dir             string   `yaml:"dir"`
		Candidates      []string `yaml:"candidates"`
		PerformanceFile string   `yaml:"performance_file"`
	} `yaml:"data"`
	Features struct {
		TrainCutoff string        `yaml:"train_cutoff"`
		Centering   string        `yaml:"centering"` // refit | fit_once
		CacheTTL    time.Duration `yaml:"cache_ttl"`
		Persist     bool          `yaml:"persist"`
	} `yaml:"features"`
	Models struct {
		ServiceURL    string        `yaml:"service_url"`
		Timeout       time.Duration `yaml:"timeout"`
		Retries       int           `yaml:"retries"`
		LevelStdError float64       `yaml:"level_std_error"`
		Breaker       struct {
			ConsecutiveFailures uint32        `yaml:"consecutive_failures"`
			OpenTimeout         time.Duration `yaml:"open_timeout"`
		} `yaml:"breaker"`
	} `yaml:"models"`
	Kafka struct {
		Brokers       []string `yaml:"brokers"`
		SnapshotTopic string   `yaml:"snapshot_topic"`
		UpdatesTopic  string   `yaml:"updates_topic"`
		RequiredAcks  int      `yaml:"required_acks"`
		Compression   string   `yaml:"compression"`
		Producer      struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`
	Queue struct {
		Enabled    bool          `yaml:"enabled"`
		Workers    int           `yaml:"workers"`
		RetryLimit int           `yaml:"retry_limit"`
		RetryDelay time.Duration `yaml:"retry_delay"`
	} `yaml:"queue"`
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
}

// Default returns a config usable without a file: CSV source, no external services.
func Default() *Config {
	var c Config
	c.Environment = "local"
	c.Server.Port = 8080
	c.Server.ReadTimeout = 10 * time.Second
	c.Server.WriteTimeout = 10 * time.Second
	c.Server.ShutdownTimeout = 10 * time.Second
	c.Log.Level = "info"
	c.Log.Format = "console"
	c.Log.Output = "stdout"
	c.Metrics.Enabled = true
	c.Metrics.Path = "/metrics"
	c.Data.Source = "csv"
	c.Data.Dir = "data"
	c.Data.Candidates = []string{"merged_final.csv", "merged_final_corrected.csv"}
	c.Data.PerformanceFile = "data_model_performance_2025.csv"
	c.Features.TrainCutoff = "2021-01-01"
	c.Features.Centering = "refit"
	c.Features.CacheTTL = time.Hour
	c.Models.Timeout = 3 * time.Second
	c.Models.Retries = 3
	c.Models.LevelStdError = 0.03
	c.Models.Breaker.ConsecutiveFailures = 3
	c.Models.Breaker.OpenTimeout = 30 * time.Second
	c.Kafka.SnapshotTopic = "ovip.features.snapshots"
	c.Kafka.UpdatesTopic = "ovip.panel.observations"
	c.Kafka.RequiredAcks = -1
	c.Kafka.Compression = "gzip"
	c.Kafka.Consumer.GroupID = "ovip-features"
	c.Kafka.Consumer.Workers = 1
	c.Kafka.Consumer.RetryMax = 3
	c.ClickHouse.Database = "ovip"
	c.ClickHouse.Port = 9000
	c.Redis.Prefix = "ovip"
	c.Queue.Workers = 1
	c.Queue.RetryLimit = 3
	c.Queue.RetryDelay = 10 * time.Second
	c.RateLimit.RPS = 5
	c.RateLimit.Burst = 10
	return &c
}

// Load reads a YAML file on top of Default and validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.ApplyEnv()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// ApplyEnv overrides selected fields from the process environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("OVIP_DATA_DIR"); v != "" {
		c.Data.Dir = v
	}
	if v := os.Getenv("OVIP_DATA_SOURCE"); v != "" {
		c.Data.Source = v
	}
	if v := os.Getenv("OVIP_TRAIN_CUTOFF"); v != "" {
		c.Features.TrainCutoff = v
	}
	if v := os.Getenv("MODEL_SERVICE_URL"); v != "" {
		c.Models.ServiceURL = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("OVIP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	switch c.Data.Source {
	case "csv":
		if c.Data.Dir == "" {
			return fmt.Errorf("data.dir is required for csv source")
		}
		if len(c.Data.Candidates) == 0 {
			return fmt.Errorf("data.candidates cannot be empty")
		}
	case "clickhouse":
		if !c.ClickHouse.Enabled || c.ClickHouse.Host == "" {
			return fmt.Errorf("clickhouse source requires clickhouse.enabled and clickhouse.host")
		}
	default:
		return fmt.Errorf("data.source must be 'csv' or 'clickhouse', got '%s'", c.Data.Source)
	}
	if c.Features.TrainCutoff == "" {
		return fmt.Errorf("features.train_cutoff is required")
	}
	if c.Features.Centering != "refit" && c.Features.Centering != "fit_once" {
		return fmt.Errorf("features.centering must be 'refit' or 'fit_once', got '%s'", c.Features.Centering)
	}
	if c.Models.LevelStdError < 0 {
		return fmt.Errorf("models.level_std_error must be non-negative")
	}
	if c.Features.Persist && !c.ClickHouse.Enabled {
		return fmt.Errorf("features.persist requires clickhouse.enabled")
	}
	if c.Queue.Enabled && !c.Redis.Enabled {
		return fmt.Errorf("queue.enabled requires redis.enabled")
	}
	return nil
}

// KafkaEnabled reports whether brokers are configured.
func (c *Config) KafkaEnabled() bool { return len(c.Kafka.Brokers) > 0 }
