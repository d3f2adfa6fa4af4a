package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds application configuration
type Config struct {
	Port              int
	MaxUploadMB       int
	TargetSizeKB      int
	ToleranceKB       int
	OutputFormat      string
	MinScale          float64
	MinQuality        float64
	MaxQuality        float64
	ScaleIterations   int
	QualityIterations int
	PaletteColors     int
	MaxConcurrent     int
	RateLimitPerSec   int
	RateLimitBurst    int
	WorkerCount       int
	LogLevel          string
	LogFile           string
	LogMaxSizeMB      int
	LogMaxBackups     int
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	cfg := &Config{
		Port:              getEnvInt("PORT", 8080),
		MaxUploadMB:       getEnvInt("MAX_UPLOAD_MB", 20),
		TargetSizeKB:      getEnvInt("TARGET_SIZE_KB", 500),
		ToleranceKB:       getEnvInt("TOLERANCE_KB", 10),
		OutputFormat:      getEnvString("OUTPUT_FORMAT", "jpeg"),
		MinScale:          getEnvFloat("MIN_SCALE", 0.05),
		MinQuality:        getEnvFloat("MIN_QUALITY", 0.3),
		MaxQuality:        getEnvFloat("MAX_QUALITY", 0.95),
		ScaleIterations:   getEnvInt("SCALE_ITERATIONS", 10),
		QualityIterations: getEnvInt("QUALITY_ITERATIONS", 6),
		PaletteColors:     getEnvInt("PALETTE_COLORS", 256),
		MaxConcurrent:     getEnvInt("MAX_CONCURRENT", 50),
		RateLimitPerSec:   getEnvInt("RATE_LIMIT", 10),
		RateLimitBurst:    getEnvInt("RATE_LIMIT_BURST", 20),
		WorkerCount:       getEnvInt("WORKER_COUNT", 10),
		LogLevel:          getEnvString("LOG_LEVEL", "info"),
		LogFile:           getEnvString("LOG_FILE", ""),
		LogMaxSizeMB:      getEnvInt("LOG_MAX_SIZE_MB", 100),
		LogMaxBackups:     getEnvInt("LOG_MAX_BACKUPS", 3),
	}
	cfg.Validate()
	return cfg
}

// Validate replaces out-of-range values with their defaults.
func (c *Config) Validate() {
	if c.Port <= 0 || c.Port > 65535 {
		c.Port = 8080
	}
	if c.MaxUploadMB <= 0 {
		c.MaxUploadMB = 20
	}
	if c.TargetSizeKB <= 0 {
		c.TargetSizeKB = 500
	}
	if c.ToleranceKB < 0 {
		c.ToleranceKB = 0
	}
	if c.MinScale <= 0 || c.MinScale > 1 {
		c.MinScale = 0.05
	}
	if c.MinQuality < 0 || c.MinQuality > 1 {
		c.MinQuality = 0.3
	}
	if c.MaxQuality <= 0 || c.MaxQuality > 1 {
		c.MaxQuality = 0.95
	}
	if c.MinQuality > c.MaxQuality {
		c.MinQuality, c.MaxQuality = c.MaxQuality, c.MinQuality
	}
	if c.ScaleIterations < 0 {
		c.ScaleIterations = 10
	}
	if c.QualityIterations < 0 {
		c.QualityIterations = 6
	}
	if c.PaletteColors < 0 {
		c.PaletteColors = 0
	}
	if c.PaletteColors > 256 {
		c.PaletteColors = 256
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 50
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = 10
	}
	if c.LogMaxSizeMB <= 0 {
		c.LogMaxSizeMB = 100
	}
	c.OutputFormat = strings.ToLower(c.OutputFormat)
}

func getEnvInt(key string, defaultValue int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvString(key, defaultValue string) string {
	if val, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(val)
	}
	return defaultValue
}
