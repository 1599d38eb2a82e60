package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	DB       DatabaseConfig
	Oracle   OracleConfig
	Dispatch DispatchConfig
	Detector DetectorConfig
	Matching MatchingConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DatabaseConfig struct {
	Path string
}

type OracleConfig struct {
	Enabled  bool
	URL      string
	Timeout  time.Duration
	CacheTTL time.Duration
}

type DispatchConfig struct {
	Workers      int
	BufferSize   int
	MaxRetries   int
	RetryBackoff time.Duration
	ServiceLines []string // fixed dispatch lines, always notified
}

type DetectorConfig struct {
	ImpactThresholdG    float64
	SpeedDeltaThreshold float64
	NearStopSpeed       float64
	HeartRateLow        float64
	HeartRateHigh       float64
	OxygenThreshold     float64
	GyroThreshold       float64
	Cooldown            time.Duration
	CancelHold          time.Duration
	SampleInterval      time.Duration
}

type MatchingConfig struct {
	RadiusKm float64
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "localhost"),
			Port: getEnvInt("SERVER_PORT", 8080),
		},
		DB: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/emergency-dispatch.db"),
		},
		Oracle: OracleConfig{
			Enabled:  getEnvBool("ORACLE_ENABLED", true),
			URL:      getEnv("ORACLE_URL", "http://localhost:8000/api/analyze-emergency"),
			Timeout:  getEnvDuration("ORACLE_TIMEOUT", 2*time.Second),
			CacheTTL: getEnvDuration("ORACLE_CACHE_TTL", 30*time.Second),
		},
		Dispatch: DispatchConfig{
			Workers:      getEnvInt("DISPATCH_WORKERS", 4),
			BufferSize:   getEnvInt("DISPATCH_BUFFER_SIZE", 64),
			MaxRetries:   getEnvInt("DISPATCH_MAX_RETRIES", 1),
			RetryBackoff: getEnvDuration("DISPATCH_RETRY_BACKOFF", 500*time.Millisecond),
			ServiceLines: getEnvList("DISPATCH_SERVICE_LINES", []string{"police-100", "ambulance-108", "hospital-102"}),
		},
		Detector: DetectorConfig{
			ImpactThresholdG:    getEnvFloat("DETECTOR_IMPACT_G", 20.0),
			SpeedDeltaThreshold: getEnvFloat("DETECTOR_SPEED_DELTA", 30.0),
			NearStopSpeed:       getEnvFloat("DETECTOR_NEAR_STOP_SPEED", 10.0),
			HeartRateLow:        getEnvFloat("DETECTOR_HR_LOW", 50.0),
			HeartRateHigh:       getEnvFloat("DETECTOR_HR_HIGH", 120.0),
			OxygenThreshold:     getEnvFloat("DETECTOR_SPO2_MIN", 90.0),
			GyroThreshold:       getEnvFloat("DETECTOR_GYRO_RADS", 3.0),
			Cooldown:            getEnvDuration("DETECTOR_COOLDOWN", 5*time.Second),
			CancelHold:          getEnvDuration("DETECTOR_CANCEL_HOLD", 5*time.Second),
			SampleInterval:      getEnvDuration("DETECTOR_SAMPLE_INTERVAL", 500*time.Millisecond),
		},
		Matching: MatchingConfig{
			RadiusKm: getEnvFloat("MATCHING_RADIUS_KM", 10.0),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Dispatch.Workers < 1 {
		return fmt.Errorf("dispatch workers must be at least 1")
	}
	if c.Dispatch.MaxRetries < 0 {
		return fmt.Errorf("dispatch max retries must not be negative")
	}
	if c.Detector.ImpactThresholdG <= 0 {
		return fmt.Errorf("impact threshold must be positive")
	}
	if c.Detector.HeartRateLow >= c.Detector.HeartRateHigh {
		return fmt.Errorf("heart rate band is inverted: [%v, %v]", c.Detector.HeartRateLow, c.Detector.HeartRateHigh)
	}
	if c.Matching.RadiusKm <= 0 {
		return fmt.Errorf("matching radius must be positive")
	}
	if c.Oracle.Enabled && c.Oracle.Timeout <= 0 {
		return fmt.Errorf("oracle timeout must be positive")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	if val := os.Getenv(key); val != "" {
		parts := strings.Split(val, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return fallback
}
