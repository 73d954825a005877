// Package config loads process configuration from RESERVATIONS_* environment
// variables, optionally preloaded from a dotenv file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/example/room-reservations/internal/logging"
)

const (
	// DefaultEnvFile is read when present and RESERVATIONS_ENV_FILE is unset.
	DefaultEnvFile = ".env"

	envFileKey = "RESERVATIONS_ENV_FILE"
)

// Config captures environment driven configuration values for the reservation service.
type Config struct {
	HTTPPort         int
	SQLitePath       string
	Timezone         string
	LockoutThreshold int
	LockoutCooldown  time.Duration
	CancelRate       float64
	CancelBurst      int
	DeviceCacheTTL   time.Duration
	ShutdownTimeout  time.Duration
	LogLevel         string
}

// Load reads the dotenv file, if any, and parses configuration values from
// the process environment. Variables already set in the environment win over
// the file.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}
	return FromEnvironment()
}

func loadEnvFile() error {
	if path := strings.TrimSpace(os.Getenv(envFileKey)); path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("config: load %s=%s: %w", envFileKey, path, err)
		}
		return nil
	}
	if _, err := os.Stat(DefaultEnvFile); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: stat %s: %w", DefaultEnvFile, err)
	}
	if err := godotenv.Load(DefaultEnvFile); err != nil {
		return fmt.Errorf("config: load %s: %w", DefaultEnvFile, err)
	}
	return nil
}

// FromEnvironment parses configuration values from the current process environment.
//
// The loader applies defaults for optional fields and reports every missing
// and invalid key together.
func FromEnvironment() (Config, error) {
	cfg := Config{
		HTTPPort:         8080,
		Timezone:         "America/Chicago",
		LockoutThreshold: 5,
		LockoutCooldown:  5 * time.Minute,
		CancelRate:       1,
		CancelBurst:      5,
		DeviceCacheTTL:   time.Minute,
		ShutdownTimeout:  10 * time.Second,
		LogLevel:         "info",
	}

	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 2)

	if portValue := strings.TrimSpace(os.Getenv("RESERVATIONS_HTTP_PORT")); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 || port > 65535 {
			invalid = append(invalid, "RESERVATIONS_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if path := strings.TrimSpace(os.Getenv("RESERVATIONS_SQLITE_PATH")); path == "" {
		missing = append(missing, "RESERVATIONS_SQLITE_PATH")
	} else {
		cfg.SQLitePath = path
	}

	if tz := strings.TrimSpace(os.Getenv("RESERVATIONS_TIMEZONE")); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			invalid = append(invalid, "RESERVATIONS_TIMEZONE")
		} else {
			cfg.Timezone = tz
		}
	}

	if value := strings.TrimSpace(os.Getenv("RESERVATIONS_LOCKOUT_THRESHOLD")); value != "" {
		threshold, err := strconv.Atoi(value)
		if err != nil || threshold <= 0 {
			invalid = append(invalid, "RESERVATIONS_LOCKOUT_THRESHOLD")
		} else {
			cfg.LockoutThreshold = threshold
		}
	}

	durations := []struct {
		key    string
		target *time.Duration
	}{
		{"RESERVATIONS_LOCKOUT_COOLDOWN", &cfg.LockoutCooldown},
		{"RESERVATIONS_DEVICE_CACHE_TTL", &cfg.DeviceCacheTTL},
		{"RESERVATIONS_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout},
	}
	for _, d := range durations {
		value := strings.TrimSpace(os.Getenv(d.key))
		if value == "" {
			continue
		}
		parsed, err := time.ParseDuration(value)
		if err != nil || parsed <= 0 {
			invalid = append(invalid, d.key)
			continue
		}
		*d.target = parsed
	}

	if value := strings.TrimSpace(os.Getenv("RESERVATIONS_CANCEL_RATE")); value != "" {
		rate, err := strconv.ParseFloat(value, 64)
		if err != nil || rate <= 0 {
			invalid = append(invalid, "RESERVATIONS_CANCEL_RATE")
		} else {
			cfg.CancelRate = rate
		}
	}

	if value := strings.TrimSpace(os.Getenv("RESERVATIONS_CANCEL_BURST")); value != "" {
		burst, err := strconv.Atoi(value)
		if err != nil || burst <= 0 {
			invalid = append(invalid, "RESERVATIONS_CANCEL_BURST")
		} else {
			cfg.CancelBurst = burst
		}
	}

	if level := strings.TrimSpace(os.Getenv("RESERVATIONS_LOG_LEVEL")); level != "" {
		if _, err := logging.ParseLevel(level); err != nil {
			invalid = append(invalid, "RESERVATIONS_LOG_LEVEL")
		} else {
			cfg.LogLevel = level
		}
	}

	var errs []error
	if len(missing) > 0 {
		errs = append(errs, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", ")))
	}
	if len(invalid) > 0 {
		errs = append(errs, fmt.Errorf("invalid environment variable values: %s", strings.Join(invalid, ", ")))
	}
	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}

	return cfg, nil
}
