package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate checks the configuration. Missing credentials are not an error
// here; they can still come from the environment or a prompt.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	sd := cfg.GetServerData()
	ad := cfg.GetApplicationData()

	validateServerData(&sd, result)
	validateApplicationData(&ad, result)

	return result
}

func validateServerData(data *ServerData, result *ValidationResult) {
	if strings.TrimSpace(data.Address) == "" {
		result.AddError("server.address", "server address is required")
	} else if _, port, err := net.SplitHostPort(data.Address); err != nil || port == "" {
		result.AddError("server.address", fmt.Sprintf("expected host:port, got %q", data.Address))
	}

	if strings.TrimSpace(data.Room) == "" {
		result.AddError("server.room", "room is required")
	}
	if strings.TrimSpace(data.Language) == "" {
		result.AddWarning("server.language", "no language set, the server default applies")
	}

	if data.ReadTimeoutMs < 100 {
		result.AddWarning("server.read_timeout_ms",
			"read timeout below 100ms will end collection before the server is done")
	}
	if data.ConnectTimeoutSec < 1 {
		result.AddWarning("server.connect_timeout_sec", "connect timeout not set, using the default")
	}

	for i, q := range data.RegionQueries {
		field := fmt.Sprintf("server.region_queries[%d]", i)
		if q.World < 0 || q.World > 4 {
			result.AddError(field+".world", fmt.Sprintf("unknown world %d (must be 0-4)", q.World))
		}
		if q.X2 < q.X1 || q.Y2 < q.Y1 {
			result.AddError(field, "rectangle corners are reversed")
		}
	}
}

func validateApplicationData(data *ApplicationData, result *ValidationResult) {
	if strings.TrimSpace(data.Storage.JSONPath) == "" {
		result.AddError("application_data.storage.json_path", "output file is required")
	}

	if data.MQTT.Enabled {
		if strings.TrimSpace(data.MQTT.BrokerURL) == "" {
			result.AddError("application_data.mqtt.broker_url", "MQTT broker URL is required when enabled")
		}
		if data.MQTT.Port < 1 || data.MQTT.Port > 65535 {
			result.AddError("application_data.mqtt.port", "invalid MQTT port")
		}
	}

	if data.API.Enabled {
		validatePort(data.API.Port, "application_data.api.port", result)
		if len(data.API.AllowedOrigins) == 0 {
			result.AddWarning("application_data.api.allowed_origins",
				"no allowed origins, browsers on other hosts cannot use the API")
		}
		if data.API.RateLimitRPS < 1 {
			result.AddWarning("application_data.api.rate_limit_rps",
				"rate limit is disabled (0 RPS)")
		}
	}
}

func validatePort(port int, field string, result *ValidationResult) {
	if port < 1 || port > 65535 {
		result.AddError(field, fmt.Sprintf("invalid port number: %d (must be 1-65535)", port))
		return
	}
	if port < 1024 {
		result.AddWarning(field,
			fmt.Sprintf("port %d is a privileged port, may require elevated permissions", port))
	}
}
