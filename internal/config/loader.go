package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "sapguard.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// The YAML file is optional; a missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV.
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
	setString(&cfg.Server.Port, "SAPGUARD_PORT")
	setString(&cfg.Server.CORSOrigin, "SAPGUARD_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "SAPGUARD_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "SAPGUARD_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "SAPGUARD_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "SAPGUARD_PG_MAX_CONN_IDLE_TIME")
	setString(&cfg.NATS.URL, "NATS_URL")
	setDuration(&cfg.NATS.RequestTimeout, "SAPGUARD_NATS_REQUEST_TIMEOUT")
	setInt64(&cfg.NATS.MaxInFlight, "SAPGUARD_NATS_MAX_IN_FLIGHT")
	setString(&cfg.LiteLLM.URL, "LITELLM_URL")
	setString(&cfg.LiteLLM.MasterKey, "LITELLM_MASTER_KEY")
	setString(&cfg.LiteLLM.Model, "SAPGUARD_DECISION_MODEL")
	setInt(&cfg.LiteLLM.MaxTokens, "SAPGUARD_DECISION_MAX_TOKENS")
	setString(&cfg.Logging.Level, "SAPGUARD_LOG_LEVEL")
	setString(&cfg.Logging.Service, "SAPGUARD_LOG_SERVICE")
	setInt(&cfg.Breaker.MaxFailures, "SAPGUARD_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "SAPGUARD_BREAKER_TIMEOUT")
	setInt64(&cfg.Cache.MaxCostBytes, "SAPGUARD_CACHE_MAX_COST_BYTES")
	setDuration(&cfg.Cache.CatalogTTL, "SAPGUARD_CACHE_CATALOG_TTL")
	setInt(&cfg.Orchestrator.MaxIterations, "SAPGUARD_MAX_ITERATIONS")
	setDuration(&cfg.Orchestrator.InvocationTimeout, "SAPGUARD_INVOCATION_TIMEOUT")
	setStringSlice(&cfg.Safety.ProtectedEnvs, "SAPGUARD_PROTECTED_ENVS")
	setDuration(&cfg.Safety.ConfirmationTTL, "SAPGUARD_CONFIRMATION_TTL")
	setString(&cfg.Catalog.Dir, "SAPGUARD_CATALOG_DIR")
	setBool(&cfg.Telemetry.Enabled, "SAPGUARD_TELEMETRY_ENABLED")
	setString(&cfg.Telemetry.OTLPEndpoint, "SAPGUARD_OTLP_ENDPOINT")
}

// validate checks cfg for values that would break startup.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Orchestrator.MaxIterations < 1 {
		return errors.New("orchestrator.max_iterations must be >= 1")
	}
	if cfg.Orchestrator.Name == "" {
		return errors.New("orchestrator.name is required")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.NATS.MaxInFlight < 1 {
		return errors.New("nats.max_in_flight must be >= 1")
	}
	return nil
}

func setString(target *string, env string) {
	if v := os.Getenv(env); v != "" {
		*target = v
	}
}

func setStringSlice(target *[]string, env string) {
	if v := os.Getenv(env); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*target = out
	}
}

func setInt(target *int, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func setInt32(target *int32, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*target = int32(n)
		}
	}
}

func setInt64(target *int64, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*target = n
		}
	}
}

func setBool(target *bool, env string) {
	if v := os.Getenv(env); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*target = b
		}
	}
}

func setDuration(target *time.Duration, env string) {
	if v := os.Getenv(env); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*target = d
		}
	}
}
