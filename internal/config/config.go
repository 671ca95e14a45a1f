// Package config loads worker settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ZerkerEOD/krakenhashes/jwtworker/pkg/debug"
)

const (
	RelayModeHTTP      = "http"
	RelayModeWebSocket = "websocket"
)

// Config holds all worker settings
type Config struct {
	ListenAddr string

	// jwt_tool invocation
	ToolPath        string
	ToolInterpreter string

	// Wordlists
	DefaultWordlist string
	WordlistDir     string
	SweepSchedule   string
	WordlistMaxAge  time.Duration

	// Relay to the observing backend
	BackendURL   string
	RelayMode    string
	RelayTimeout time.Duration

	// CrackTimeout bounds a whole job; zero means unbounded
	CrackTimeout time.Duration

	NoiseLines        []string
	DetectorRulesFile string
}

// Load reads a .env file (if present) and then the environment.
// A missing env file is not an error.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
			}
			debug.Debug("No env file at %s, using process environment", envFile)
		} else {
			// DEBUG/LOG_LEVEL may have come from the file
			debug.Reinitialize()
		}
	}

	cfg := &Config{
		ListenAddr:        getEnvString("LISTEN_ADDR", ":8000"),
		ToolPath:          getEnvString("JWT_TOOL_PATH", "/opt/jwt_tool/jwt_tool.py"),
		ToolInterpreter:   getEnvRaw("JWT_TOOL_INTERPRETER", "python"),
		DefaultWordlist:   getEnvString("DEFAULT_WORDLIST", "/opt/app/common_secrets.txt"),
		WordlistDir:       getEnvString("WORDLIST_DIR", os.TempDir()),
		SweepSchedule:     getEnvRaw("WORDLIST_SWEEP_SCHEDULE", "@every 30m"),
		WordlistMaxAge:    getEnvDuration("WORDLIST_MAX_AGE", 6*time.Hour),
		BackendURL:        strings.TrimRight(getEnvRaw("BACKEND_URL", "http://backend:8000"), "/"),
		RelayMode:         strings.ToLower(getEnvString("RELAY_MODE", RelayModeHTTP)),
		RelayTimeout:      getEnvDuration("RELAY_TIMEOUT", 5*time.Second),
		CrackTimeout:      getEnvDuration("CRACK_TIMEOUT", 0),
		NoiseLines:        getEnvList("NOISE_LINES"),
		DetectorRulesFile: getEnvString("DETECTOR_RULES_FILE", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail later at job time
func (c *Config) Validate() error {
	if c.ToolPath == "" {
		return fmt.Errorf("JWT_TOOL_PATH must not be empty")
	}
	if c.DefaultWordlist == "" {
		return fmt.Errorf("DEFAULT_WORDLIST must not be empty")
	}
	switch c.RelayMode {
	case RelayModeHTTP, RelayModeWebSocket:
	default:
		return fmt.Errorf("unsupported RELAY_MODE %q (want %s or %s)", c.RelayMode, RelayModeHTTP, RelayModeWebSocket)
	}
	if c.RelayTimeout <= 0 {
		return fmt.Errorf("RELAY_TIMEOUT must be positive")
	}
	if c.CrackTimeout < 0 {
		return fmt.Errorf("CRACK_TIMEOUT must not be negative")
	}
	return nil
}

// ToolCommand returns the executable and the arguments that precede the
// jwt_tool flags.
func (c *Config) ToolCommand() (string, []string) {
	if c.ToolInterpreter == "" {
		return c.ToolPath, nil
	}
	return c.ToolInterpreter, []string{c.ToolPath}
}

// getEnvRaw returns the variable if it is set at all, so an explicit empty
// value can disable a feature.
func getEnvRaw(key, defaultValue string) string {
	if v, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(v)
	}
	return defaultValue
}

func getEnvString(key, defaultValue string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		debug.Warning("Invalid %s value: %s, using default: %v", key, v, defaultValue)
		return defaultValue
	}
	return d
}

func getEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
