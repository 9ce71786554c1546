// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultSegmentationModelFile = "segmentation.yaml"
	DefaultEmbeddingModelFile    = "embedding.yaml"

	DefaultThreshold = 0.52

	minMaxSpeakers = 1
	minSessionTTL  = 60 * time.Second
)

// Config is the complete service configuration.
type Config struct {
	Service       ServiceConfig
	Models        ModelsConfig
	Diarize       DiarizeConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

// ServiceConfig holds listener and lifecycle settings.
type ServiceConfig struct {
	Principal       string
	HTTPHost        string
	HTTPPort        int
	MaxBodyBytes    int64
	ShutdownTimeout time.Duration
	GRPCPort        string // empty disables the gRPC health listener
	MetricsPort     string // empty disables the metrics listener
}

// ModelsConfig holds the acoustic model file paths. Empty paths are resolved
// next to the binary by ResolveModelPaths.
type ModelsConfig struct {
	Segmentation string
	Embedding    string
}

// DiarizeConfig holds server-wide diarization defaults.
type DiarizeConfig struct {
	MaxSpeakers int
	Threshold   float32
	SessionTTL  time.Duration
}

// KafkaConfig holds tracks event publishing settings.
type KafkaConfig struct {
	Enabled        bool
	Brokers        []string
	Topic          string
	Principal      string
	PublishTimeout time.Duration
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string
}

// Load reads the configuration from the environment. Unparseable values fall
// back to their defaults.
func Load() *Config {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-speaker-diarization")

	return &Config{
		Service: ServiceConfig{
			Principal:       principal,
			HTTPHost:        envOrDefault("HTTP_HOST", "127.0.0.1"),
			HTTPPort:        envOrDefaultInt("HTTP_PORT", 9705),
			MaxBodyBytes:    envOrDefaultInt64("HTTP_MAX_BODY_BYTES", 64<<20),
			ShutdownTimeout: envOrDefaultDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
			GRPCPort:        envOrDefaultAllowEmpty("GRPC_PORT", "9706"),
			MetricsPort:     envOrDefaultAllowEmpty("METRICS_PORT", "9707"),
		},
		Models: ModelsConfig{
			Segmentation: os.Getenv("SEGMENTATION_MODEL"),
			Embedding:    os.Getenv("EMBEDDING_MODEL"),
		},
		Diarize: DiarizeConfig{
			MaxSpeakers: envOrDefaultInt("DIARIZE_MAX_SPEAKERS", 8),
			Threshold:   envOrDefaultFloat32("DIARIZE_THRESHOLD", DefaultThreshold),
			SessionTTL:  time.Duration(envOrDefaultInt("SESSION_TTL_SEC", 3600)) * time.Second,
		},
		Kafka: KafkaConfig{
			Enabled:        envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:        splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:          envOrDefault("KAFKA_TOPIC_TRACKS", "diarization.tracks"),
			Principal:      envOrDefault("KAFKA_PRINCIPAL", principal),
			PublishTimeout: envOrDefaultDuration("KAFKA_PUBLISH_TIMEOUT", 2*time.Second),
		},
		Observability: ObservabilityConfig{
			LogLevel:  envOrDefault("LOG_LEVEL", "info"),
			LogFormat: envOrDefault("LOG_FORMAT", "json"),
		},
	}
}

// Normalize clamps diarization settings into their valid ranges. A NaN
// threshold is replaced by DefaultThreshold.
func (c *Config) Normalize() {
	c.Diarize.MaxSpeakers = max(c.Diarize.MaxSpeakers, minMaxSpeakers)
	if math.IsNaN(float64(c.Diarize.Threshold)) {
		c.Diarize.Threshold = DefaultThreshold
	}
	c.Diarize.Threshold = min(max(c.Diarize.Threshold, 0), 1)
	c.Diarize.SessionTTL = max(c.Diarize.SessionTTL, minSessionTTL)
}

// ResolveModelPaths fills empty model paths with the default files in the
// models directory next to the binary.
func (c *Config) ResolveModelPaths(exeDir string) {
	if c.Models.Segmentation == "" {
		c.Models.Segmentation = filepath.Join(exeDir, "models", DefaultSegmentationModelFile)
	}
	if c.Models.Embedding == "" {
		c.Models.Embedding = filepath.Join(exeDir, "models", DefaultEmbeddingModelFile)
	}
}

// Validate checks settings that cannot be defaulted. Missing model files are
// fatal.
func (c *Config) Validate() error {
	var errs []error
	for name, path := range map[string]string{
		"segmentation": c.Models.Segmentation,
		"embedding":    c.Models.Embedding,
	} {
		if path == "" {
			errs = append(errs, fmt.Errorf("%s model path is empty", name))
			continue
		}
		if _, err := os.Stat(path); err != nil {
			errs = append(errs, fmt.Errorf("%s model not found at %s: %w", name, path, err))
		}
	}
	if c.Service.HTTPPort <= 0 || c.Service.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid http port %d", c.Service.HTTPPort))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("KAFKA_ENABLED requires KAFKA_BROKERS"))
	}
	return errors.Join(errs...)
}

// HTTPAddr returns the diarization API listen address.
func (c *Config) HTTPAddr() string {
	return net.JoinHostPort(c.Service.HTTPHost, strconv.Itoa(c.Service.HTTPPort))
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envOrDefaultAllowEmpty distinguishes an unset variable from one explicitly
// set to the empty string.
func envOrDefaultAllowEmpty(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(v)
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envOrDefaultInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return def
}

func envOrDefaultFloat32(key string, def float32) float32 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil && !math.IsNaN(f) {
			return float32(f)
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
