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
		Host            string        `yaml:"host"`
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		SlowRequest     time.Duration `yaml:"slow_request"`
		CORS            bool          `yaml:"cors"`
	} `yaml:"server"`
	Logging struct {
		Level      string        `yaml:"level"`
		Format     string        `yaml:"format"`
		Output     string        `yaml:"output"`
		TimeFormat string        `yaml:"time_format"`
		Collect    bool          `yaml:"collect"`
		Topic      string        `yaml:"topic"`
		Interval   time.Duration `yaml:"interval"`
		Threshold  int           `yaml:"threshold"`
	} `yaml:"logging"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	RateLimit struct {
		Enabled bool          `yaml:"enabled"`
		RPS     float64       `yaml:"rps"`
		Burst   int           `yaml:"burst"`
		IdleTTL time.Duration `yaml:"idle_ttl"`
	} `yaml:"ratelimit"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`
	Cache struct {
		MemorySize int           `yaml:"memory_size"`
		ResultTTL  time.Duration `yaml:"result_ttl"`
		DatasetTTL time.Duration `yaml:"dataset_ttl"`
	} `yaml:"cache"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		EventsTopic  string   `yaml:"events_topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled           bool          `yaml:"enabled"`
			ObservationsTopic string        `yaml:"observations_topic"`
			GroupID           string        `yaml:"group_id"`
			Workers           int           `yaml:"workers"`
			BufferSize        int           `yaml:"buffer_size"`
			RetryMax          int           `yaml:"retry_max"`
			BackoffMin        time.Duration `yaml:"backoff_min"`
			BackoffMax        time.Duration `yaml:"backoff_max"`
			DLQTopic          string        `yaml:"dlq_topic"`
			MinBytes          int           `yaml:"min_bytes"`
			MaxBytes          int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Jobs struct {
		Backend    string        `yaml:"backend"`
		Workers    int           `yaml:"workers"`
		QueueSize  int           `yaml:"queue_size"`
		RetryLimit int           `yaml:"retry_limit"`
		RetryDelay time.Duration `yaml:"retry_delay"`
		ResultTTL  time.Duration `yaml:"result_ttl"`
	} `yaml:"jobs"`
	FredMD struct {
		URL     string        `yaml:"url"`
		Timeout time.Duration `yaml:"timeout"`
		Retries int           `yaml:"retries"`
	} `yaml:"fredmd"`
	Shiller struct {
		MultplURL string        `yaml:"multpl_url"`
		FREDURL   string        `yaml:"fred_url"`
		Timeout   time.Duration `yaml:"timeout"`
	} `yaml:"shiller"`
	Factors struct {
		Kmax    int     `yaml:"kmax"`
		P       int     `yaml:"p"`
		MaxIter int     `yaml:"max_iter"`
		Tol     float64 `yaml:"tol"`
	} `yaml:"factors"`
}

// Default returns a configuration that runs without any external service:
// in-memory cache, in-memory vintage store and a local job queue.
func Default() *Config {
	c := &Config{Environment: "development"}
	c.Server.Host = "0.0.0.0"
	c.Server.Port = 8080
	c.Server.ReadTimeout = 30 * time.Second
	c.Server.WriteTimeout = 5 * time.Minute
	c.Server.ShutdownTimeout = 15 * time.Second
	c.Server.SlowRequest = 2 * time.Second
	c.Server.CORS = true
	c.Logging.Level = "info"
	c.Logging.Format = "console"
	c.Logging.Output = "stdout"
	c.Logging.Topic = "finds.logs"
	c.Logging.Interval = 30 * time.Second
	c.Logging.Threshold = 100
	c.Metrics.Enabled = true
	c.Metrics.Path = "/metrics"
	c.RateLimit.RPS = 20
	c.RateLimit.Burst = 40
	c.RateLimit.IdleTTL = 10 * time.Minute
	c.Redis.Host = "localhost"
	c.Redis.Port = 6379
	c.Redis.Prefix = "finds"
	c.Cache.MemorySize = 512
	c.Cache.ResultTTL = time.Hour
	c.Cache.DatasetTTL = 24 * time.Hour
	c.ClickHouse.Port = 9000
	c.ClickHouse.Database = "finds"
	c.ClickHouse.DialTimeout = 5 * time.Second
	c.ClickHouse.ReadTimeout = 30 * time.Second
	c.ClickHouse.WriteTimeout = 30 * time.Second
	c.Kafka.EventsTopic = "finds.events"
	c.Kafka.RequiredAcks = -1
	c.Kafka.Compression = "gzip"
	c.Kafka.Producer.MaxAttempts = 3
	c.Kafka.Producer.Linger = time.Second
	c.Kafka.Producer.BatchSize = 100
	c.Kafka.Producer.BatchBytes = 1 << 20
	c.Kafka.Producer.WriteTimeout = 10 * time.Second
	c.Kafka.Producer.ReadTimeout = 10 * time.Second
	c.Kafka.Consumer.ObservationsTopic = "finds.observations"
	c.Kafka.Consumer.GroupID = "finds"
	c.Kafka.Consumer.Workers = 2
	c.Kafka.Consumer.BufferSize = 64
	c.Kafka.Consumer.RetryMax = 3
	c.Kafka.Consumer.BackoffMin = 50 * time.Millisecond
	c.Kafka.Consumer.BackoffMax = 2 * time.Second
	c.Kafka.Consumer.MinBytes = 1
	c.Kafka.Consumer.MaxBytes = 10e6
	c.Jobs.Backend = "local"
	c.Jobs.Workers = 2
	c.Jobs.QueueSize = 64
	c.Jobs.RetryLimit = 1
	c.Jobs.RetryDelay = 10 * time.Second
	c.Jobs.ResultTTL = 24 * time.Hour
	c.FredMD.Timeout = 2 * time.Minute
	c.FredMD.Retries = 2
	c.Shiller.Timeout = 30 * time.Second
	c.Factors.P = 2
	c.Factors.MaxIter = 50
	c.Factors.Tol = 1e-12
	return c
}

// Load reads a YAML configuration file over the defaults.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
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

	if v := os.Getenv("FINDS_ENV"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("FINDS_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("FINDS_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("FINDS_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("FINDS_REDIS_ADDR"); v != "" {
		host, port, ok := strings.Cut(v, ":")
		c.Redis.Enabled = true
		c.Redis.Host = host
		if ok {
			p, err := strconv.Atoi(port)
			if err != nil {
				return nil, fmt.Errorf("FINDS_REDIS_ADDR: %w", err)
			}
			c.Redis.Port = p
		}
	}
	if v := os.Getenv("FINDS_KAFKA_BROKERS"); v != "" {
		c.Kafka.Enabled = true
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("FINDS_CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Enabled = true
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("FINDS_FREDMD_URL"); v != "" {
		c.FredMD.URL = v
	}

	return c, c.Validate()
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	switch c.Jobs.Backend {
	case "local":
	case "redis":
		if !c.Redis.Enabled {
			return fmt.Errorf("jobs.backend 'redis' requires redis.enabled")
		}
	default:
		return fmt.Errorf("jobs.backend must be 'local' or 'redis', got '%s'", c.Jobs.Backend)
	}
	if c.Jobs.Workers <= 0 {
		return fmt.Errorf("jobs.workers must be positive")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Kafka.Consumer.Enabled && !c.Kafka.Enabled {
		return fmt.Errorf("kafka.consumer requires kafka.enabled")
	}
	if c.ClickHouse.Enabled && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required when clickhouse is enabled")
	}
	if c.Logging.Collect && !c.Kafka.Enabled {
		return fmt.Errorf("logging.collect publishes to kafka and requires kafka.enabled")
	}
	if c.Factors.P < 0 || c.Factors.P > 3 {
		return fmt.Errorf("factors.p must be in 0..3, got %d", c.Factors.P)
	}
	return nil
}
