package config

import (
	"fmt"
	"net"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultMaxFileSize = 10 * 1024 * 1024 // 10MB

type Config struct {
	Host               string
	Port               string
	RequestTimeout     time.Duration
	ImageFetchTimeout  time.Duration
	AnalysisTimeout    time.Duration
	MaxRequestBodySize int64

	// Upload validation
	MaxFileSize       int64
	AllowedExtensions []string

	// Baseline thresholds
	ConfidenceThreshold float64
	IoUThreshold        float64
	ModerationThreshold float64

	// Models
	ONNXRuntimeLib         string
	DetectionModelPath     string
	DetectionLabelsFile    string
	DetectionInputSize     int
	ModerationModelPath    string
	ModerationLabelsFile   string
	ModerationInputSize    int
	ModerationPolicyFile   string
	// ModerationPolicyPreset names the built-in policy the policy file is layered over
	ModerationPolicyPreset string
	ModerationSoftmax      bool
	InferenceWorkers       int

	LogLevel string

	// Edge
	RateLimitPerMinute int
	CORSAllowedOrigins []string

	// Remote sources
	AllowedSourceHosts  []string
	AzureStorageAccount string
	AzureStorageKey     string

	// Result cache and audit log; empty disables
	RedisURL    string
	CacheTTL    time.Duration
	AuditDBPath string
}

func (c *Config) ServerAddress() string {
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

// AzureEnabled reports whether blob credentials were supplied
func (c *Config) AzureEnabled() bool {
	return c.AzureStorageAccount != "" && c.AzureStorageKey != ""
}

// LoadFromEnv reads configuration from the environment, loading a .env file first when one exists.
func LoadFromEnv() (*Config, error) {
	// A missing .env is normal in containers.
	_ = godotenv.Load()

	maxFileSize := parseIntOrDefault("MAX_FILE_SIZE", defaultMaxFileSize)

	cfg := &Config{
		Host:               getEnvOrDefault("HOST", "0.0.0.0"),
		Port:               getEnvOrDefault("PORT", "8080"),
		RequestTimeout:     parseDurationOrDefault("REQUEST_TIMEOUT", 30*time.Second),
		ImageFetchTimeout:  parseDurationOrDefault("IMAGE_FETCH_TIMEOUT", 15*time.Second),
		AnalysisTimeout:    parseDurationOrDefault("ANALYSIS_TIMEOUT", 20*time.Second),
		MaxRequestBodySize: parseIntOrDefault("MAX_REQUEST_BODY_SIZE", maxFileSize+1024*1024),

		MaxFileSize:       maxFileSize,
		AllowedExtensions: parseListOrDefault("ALLOWED_EXTENSIONS", []string{"jpg", "jpeg", "png", "bmp", "webp"}),

		ConfidenceThreshold: parseFloatOrDefault("CONFIDENCE_THRESHOLD", 0.25),
		IoUThreshold:        parseFloatOrDefault("IOU_THRESHOLD", 0.45),
		ModerationThreshold: parseFloatOrDefault("MODERATION_THRESHOLD", 0.7),

		ONNXRuntimeLib:         getEnvOrDefault("ONNX_RUNTIME_LIB", ""),
		DetectionModelPath:     getEnvOrDefault("DETECTION_MODEL_PATH", "models/yolov8n.onnx"),
		DetectionLabelsFile:    getEnvOrDefault("DETECTION_LABELS_FILE", ""),
		DetectionInputSize:     int(parseIntOrDefault("DETECTION_INPUT_SIZE", 640)),
		ModerationModelPath:    getEnvOrDefault("MODERATION_MODEL_PATH", "models/nsfw_classifier.onnx"),
		ModerationLabelsFile:   getEnvOrDefault("MODERATION_LABELS_FILE", ""),
		ModerationInputSize:    int(parseIntOrDefault("MODERATION_INPUT_SIZE", 224)),
		ModerationPolicyFile:   getEnvOrDefault("MODERATION_POLICY_FILE", ""),
		ModerationPolicyPreset: getEnvOrDefault("MODERATION_POLICY_PRESET", "default"),
		ModerationSoftmax:      parseBoolOrDefault("MODERATION_APPLY_SOFTMAX", false),
		InferenceWorkers:       int(parseIntOrDefault("INFERENCE_WORKERS", int64(runtime.NumCPU()))),

		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),

		RateLimitPerMinute: int(parseIntOrDefault("RATE_LIMIT_PER_MINUTE", 100)),
		CORSAllowedOrigins: parseListOrDefault("CORS_ALLOWED_ORIGINS", []string{"*"}),

		AllowedSourceHosts:  parseListOrDefault("ALLOWED_SOURCE_HOSTS", nil),
		AzureStorageAccount: getEnvOrDefault("AZURE_STORAGE_ACCOUNT", ""),
		AzureStorageKey:     getEnvOrDefault("AZURE_STORAGE_KEY", ""),

		RedisURL:    getEnvOrDefault("REDIS_URL", ""),
		CacheTTL:    parseDurationOrDefault("CACHE_TTL", 10*time.Minute),
		AuditDBPath: getEnvOrDefault("AUDIT_DB_PATH", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges that would otherwise surface as confusing runtime failures.
func (c *Config) Validate() error {
	p, err := strconv.Atoi(strings.TrimSpace(c.Port))
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid PORT: %q", c.Port)
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", c.MaxRequestBodySize)
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE must be > 0 (got %d)", c.MaxFileSize)
	}
	if c.RequestTimeout <= 0 || c.ImageFetchTimeout <= 0 || c.AnalysisTimeout <= 0 {
		return fmt.Errorf("timeouts must be > 0 (got request=%s, fetch=%s, analysis=%s)",
			c.RequestTimeout, c.ImageFetchTimeout, c.AnalysisTimeout)
	}
	if len(c.AllowedExtensions) == 0 {
		return fmt.Errorf("ALLOWED_EXTENSIONS must not be empty")
	}
	thresholds := map[string]float64{
		"CONFIDENCE_THRESHOLD": c.ConfidenceThreshold,
		"IOU_THRESHOLD":        c.IoUThreshold,
		"MODERATION_THRESHOLD": c.ModerationThreshold,
	}
	for key, value := range thresholds {
		if value < 0 || value > 1 {
			return fmt.Errorf("%s must be within [0, 1] (got %v)", key, value)
		}
	}
	if c.DetectionInputSize <= 0 || c.ModerationInputSize <= 0 {
		return fmt.Errorf("model input sizes must be > 0 (got detection=%d, moderation=%d)",
			c.DetectionInputSize, c.ModerationInputSize)
	}
	if c.InferenceWorkers <= 0 {
		c.InferenceWorkers = runtime.NumCPU()
	}
	if c.RateLimitPerMinute < 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be >= 0 (got %d)", c.RateLimitPerMinute)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// parseFloatOrDefault keeps malformed numbers out of the range check; out-of-range
// numbers are returned as-is so Validate can report them.
func parseFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func parseListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
