package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "formlink.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "FORMLINK_PORT")
	setString(&cfg.Server.CORSOrigin, "FORMLINK_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "FORMLINK_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "FORMLINK_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "FORMLINK_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "FORMLINK_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "FORMLINK_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.Stream, "FORMLINK_NATS_STREAM")
	setString(&cfg.NATS.SubjectPrefix, "FORMLINK_NATS_SUBJECT_PREFIX")
	setString(&cfg.LiteLLM.URL, "LITELLM_URL")
	setString(&cfg.LiteLLM.MasterKey, "LITELLM_MASTER_KEY")
	setDuration(&cfg.LiteLLM.Timeout, "FORMLINK_LLM_TIMEOUT")
	setString(&cfg.Logging.Level, "FORMLINK_LOG_LEVEL")
	setString(&cfg.Logging.Service, "FORMLINK_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "FORMLINK_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "FORMLINK_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "FORMLINK_BREAKER_TIMEOUT")

	// Agent
	setString(&cfg.Agent.PlanModel, "FORMLINK_AGENT_PLAN_MODEL")
	setString(&cfg.Agent.QuestionModel, "FORMLINK_AGENT_QUESTION_MODEL")
	setString(&cfg.Agent.RepairModel, "FORMLINK_AGENT_REPAIR_MODEL")
	setFloat64(&cfg.Agent.Temperature, "FORMLINK_AGENT_TEMPERATURE")
	setInt(&cfg.Agent.MaxTokens, "FORMLINK_AGENT_MAX_TOKENS")
	setInt(&cfg.Agent.MaxIterations, "FORMLINK_AGENT_MAX_ITERATIONS")
	setInt(&cfg.Agent.CompletionParallel, "FORMLINK_AGENT_COMPLETION_PARALLEL")
	setBool(&cfg.Agent.ResultsPageFallback, "FORMLINK_AGENT_RESULTS_PAGE")

	// Cache
	setInt64(&cfg.Cache.L1MaxSizeMB, "FORMLINK_CACHE_L1_SIZE_MB")
	setString(&cfg.Cache.L2Bucket, "FORMLINK_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.L2TTL, "FORMLINK_CACHE_L2_TTL")

	// OTEL
	setBool(&cfg.OTEL.Enabled, "FORMLINK_OTEL_ENABLED")
	setString(&cfg.OTEL.Endpoint, "FORMLINK_OTEL_ENDPOINT")
	setString(&cfg.OTEL.ServiceName, "FORMLINK_OTEL_SERVICE_NAME")
	setBool(&cfg.OTEL.Insecure, "FORMLINK_OTEL_INSECURE")
	setFloat64(&cfg.OTEL.SampleRate, "FORMLINK_OTEL_SAMPLE_RATE")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Agent.MaxIterations < 1 {
		return errors.New("agent.max_iterations must be >= 1")
	}
	if cfg.Agent.CompletionParallel < 1 {
		return errors.New("agent.completion_parallel must be >= 1")
	}
	if cfg.Agent.Temperature < 0 || cfg.Agent.Temperature > 2 {
		return errors.New("agent.temperature must be within [0, 2]")
	}
	if cfg.OTEL.SampleRate < 0 || cfg.OTEL.SampleRate > 1 {
		return errors.New("otel.sample_rate must be within [0, 1]")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
