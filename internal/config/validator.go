package config

import (
	"fmt"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errors []error

	if err := validateServer(cfg.Server); err != nil {
		errors = append(errors, err)
	}

	if err := validateHost(cfg.Host); err != nil {
		errors = append(errors, err)
	}

	if cfg.Broker.Enabled {
		if err := validateKafka(cfg.Broker.Kafka); err != nil {
			errors = append(errors, err)
		}
	}

	if err := validateDedup(cfg.Dedup, cfg.Redis); err != nil {
		errors = append(errors, err)
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout_seconds",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout_seconds",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateHost(cfg HostConfig) error {
	if cfg.URL == "" {
		return &ValidationError{
			Field:   "host.url",
			Message: "host bridge URL is required",
		}
	}

	if !strings.HasPrefix(cfg.URL, "ws://") && !strings.HasPrefix(cfg.URL, "wss://") {
		return &ValidationError{
			Field:   "host.url",
			Message: fmt.Sprintf("host bridge URL must start with ws:// or wss://, got %s", cfg.URL),
		}
	}

	if cfg.ReconnectInitial < 0 {
		return &ValidationError{
			Field:   "host.reconnect_initial",
			Message: "reconnect_initial must be non-negative",
		}
	}

	if cfg.ReconnectMax > 0 && cfg.ReconnectInitial > 0 && cfg.ReconnectMax < cfg.ReconnectInitial {
		return &ValidationError{
			Field:   "host.reconnect_max",
			Message: "reconnect_max must be greater than or equal to reconnect_initial",
		}
	}

	return nil
}

func validateKafka(cfg KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return &ValidationError{
			Field:   "broker.kafka.brokers",
			Message: "at least one Kafka broker is required",
		}
	}

	for i, broker := range cfg.Brokers {
		if broker == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("broker.kafka.brokers[%d]", i),
				Message: "broker address cannot be empty",
			}
		}
	}

	if cfg.GroupID == "" {
		return &ValidationError{
			Field:   "broker.kafka.group_id",
			Message: "Kafka consumer group ID is required",
		}
	}

	if cfg.Retry.MaxAttempts < 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.max_attempts",
			Message: "max_attempts must be non-negative",
		}
	}

	if cfg.Retry.InitialInterval < 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.initial_interval",
			Message: "initial_interval must be non-negative",
		}
	}

	if cfg.Retry.MaxInterval < 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.max_interval",
			Message: "max_interval must be non-negative",
		}
	}

	if cfg.Retry.MaxInterval > 0 && cfg.Retry.InitialInterval > 0 && cfg.Retry.MaxInterval < cfg.Retry.InitialInterval {
		return &ValidationError{
			Field:   "broker.kafka.retry.max_interval",
			Message: "max_interval must be greater than or equal to initial_interval",
		}
	}

	if cfg.Retry.Multiplier <= 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.multiplier",
			Message: "multiplier must be positive",
		}
	}

	return nil
}

func validateDedup(cfg DedupConfig, redisCfg RedisConfig) error {
	switch strings.ToLower(cfg.Backend) {
	case "", "memory":
	case "redis":
		if redisCfg.Host == "" {
			return &ValidationError{
				Field:   "redis.host",
				Message: "Redis host is required when dedup backend is redis",
			}
		}
		if redisCfg.Port < 1 || redisCfg.Port > 65535 {
			return &ValidationError{
				Field:   "redis.port",
				Message: fmt.Sprintf("port must be between 1 and 65535, got %d", redisCfg.Port),
			}
		}
	default:
		return &ValidationError{
			Field:   "dedup.backend",
			Message: fmt.Sprintf("unknown dedup backend: %s (supported: memory, redis)", cfg.Backend),
		}
	}

	if cfg.TTLSeconds < 0 {
		return &ValidationError{
			Field:   "dedup.ttl_seconds",
			Message: "TTL must be non-negative",
		}
	}

	validOnError := map[string]bool{
		"allow": true, "deny": true,
	}
	if cfg.OnError != "" && !validOnError[strings.ToLower(cfg.OnError)] {
		return &ValidationError{
			Field:   "dedup.on_error",
			Message: fmt.Sprintf("invalid on_error value: %s (valid: allow, deny)", cfg.OnError),
		}
	}

	return nil
}
