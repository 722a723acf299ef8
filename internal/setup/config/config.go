package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var (
	ErrConfigFileNotFound    = errors.New("could not find config file in any config path")
	ErrConfigVersionMissing  = errors.New("config file is missing version field")
	ErrConfigVersionMismatch = errors.New("config file version mismatch")
)

// RepositoryVersion is the repository version tag for config file references.
const RepositoryVersion = "v0.1.0"

// Current version of the config file.
const (
	CurrentCommonVersion  = 1
	CurrentAgentVersion   = 1
	CurrentSweeperVersion = 1
)

// Config represents the entire application configuration.
type Config struct {
	Common  CommonConfig
	Agent   AgentConfig
	Sweeper SweeperConfig
}

// CommonConfig contains configuration shared between the agent and sweeper.
type CommonConfig struct {
	// Version of the common config.
	Version    int        `koanf:"version"`
	Debug      Debug      `koanf:"debug"`
	PostgreSQL PostgreSQL `koanf:"postgresql"`
	Redis      Redis      `koanf:"redis"`
}

// AgentConfig contains presence agent specific configuration.
type AgentConfig struct {
	// Version of the agent config.
	Version int `koanf:"version"`
	// Identity of the user this agent tracks presence for.
	User UserIdentity `koanf:"user"`
	// Local REST API configuration.
	API API `koanf:"api"`
	// Geofence monitoring configuration.
	Geofence Geofence `koanf:"geofence"`
}

// UserIdentity identifies the user an agent acts for.
type UserIdentity struct {
	// Stable user identifier in the shared store.
	ID string `koanf:"id"`
	// Name shown to other group members.
	DisplayName string `koanf:"display_name"`
}

// API contains the agent's local REST API configuration.
type API struct {
	// Address the API listens on.
	ListenAddr string `koanf:"listen_addr"`
	// Static bearer token required on every request.
	AuthToken string `koanf:"auth_token"`
}

// Geofence contains geofence monitoring configuration.
type Geofence struct {
	// Largest region radius the host platform accepts, in meters.
	// Zero means unlimited.
	MaxRadius float64 `koanf:"max_radius"`
	// Authorization level granted to the watcher (always, while_in_use, none).
	Authorization string `koanf:"authorization"`
}

// SweeperConfig contains stale presence sweeper specific configuration.
type SweeperConfig struct {
	// Version of the sweeper config.
	Version int `koanf:"version"`
	// Minutes between sweep cycles.
	IntervalMinutes int `koanf:"interval_minutes"`
	// Maximum stale records processed per cycle.
	BatchSize int `koanf:"batch_size"`
}

// Debug contains debug-related configuration.
type Debug struct {
	// Log level (debug, info, warn, error).
	LogLevel string `koanf:"log_level"`
	// Maximum log files to keep.
	MaxLogsToKeep int `koanf:"max_logs_to_keep"`
	// Maximum lines per log file.
	MaxLogLines int `koanf:"max_log_lines"`
	// Forward error logs to OpenTelemetry spans.
	EnableTracing bool `koanf:"enable_tracing"`
	// Enable pprof debugging.
	EnablePprof bool `koanf:"enable_pprof"`
	// pprof server port.
	PprofPort int `koanf:"pprof_port"`
}

// PostgreSQL contains database connection configuration.
type PostgreSQL struct {
	// Database hostname.
	Host string `koanf:"host"`
	// Database port.
	Port int `koanf:"port"`
	// Database username.
	User string `koanf:"user"`
	// Database password.
	Password string `koanf:"password"`
	// Database name.
	DBName string `koanf:"db_name"`
	// Maximum open connections.
	MaxOpenConns int `koanf:"max_open_conns"`
	// Maximum idle connections.
	MaxIdleConns int `koanf:"max_idle_conns"`
	// Connection lifetime in minutes.
	MaxLifetime int `koanf:"max_lifetime"`
	// Idle timeout in minutes.
	MaxIdleTime int `koanf:"max_idle_time"`
}

// Redis contains Redis connection configuration.
type Redis struct {
	// Redis hostname.
	Host string `koanf:"host"`
	// Redis port.
	Port int `koanf:"port"`
	// Redis username.
	Username string `koanf:"username"`
	// Redis password.
	Password string `koanf:"password"`
}

// LoadConfig loads the configuration from the specified file.
// Returns the config along with the used config directory.
func LoadConfig() (*Config, string, error) {
	k := koanf.New(".")

	// Get user's home directory
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get home directory: %w", err)
	}

	// List search paths
	configPaths := []string{
		".roost",
		homeDir + "/.roost/config",
		"/etc/roost/config",
		"/app/config",
		"config",
		".",
	}

	// Load all config files
	var usedConfigPath string

	configFiles := []string{"common", "agent", "sweeper"}
	for _, configName := range configFiles {
		configLoaded := false

		for _, path := range configPaths {
			configPath := fmt.Sprintf("%s/%s.toml", path, configName)
			if err := k.Load(file.Provider(configPath), toml.Parser()); err == nil {
				configLoaded = true

				if usedConfigPath == "" {
					usedConfigPath = path
				}

				break
			}
		}

		if !configLoaded {
			return nil, "", fmt.Errorf("%w: %s.toml", ErrConfigFileNotFound, configName)
		}
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, "", fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Check versions for each config file
	if err := checkConfigVersion("common", config.Common.Version, CurrentCommonVersion); err != nil {
		return nil, "", err
	}

	if err := checkConfigVersion("agent", config.Agent.Version, CurrentAgentVersion); err != nil {
		return nil, "", err
	}

	if err := checkConfigVersion("sweeper", config.Sweeper.Version, CurrentSweeperVersion); err != nil {
		return nil, "", err
	}

	return &config, usedConfigPath, nil
}

// checkConfigVersion checks if the config file version is correct.
func checkConfigVersion(name string, current, expected int) error {
	if current == 0 {
		return fmt.Errorf("%w: %s.toml", ErrConfigVersionMissing, name)
	}

	if current != expected {
		return fmt.Errorf(
			"%w: %s.toml (got: %d, expected: %d)\n"+
				"Please update your config file from: https://github.com/roostlabs/roost/tree/%s/config/%s.toml",
			ErrConfigVersionMismatch,
			name,
			current,
			expected,
			RepositoryVersion,
			name,
		)
	}

	return nil
}
