// Package config loads job settings from ORDERLAKE_* environment variables,
// with command-line flags taking precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const envPrefix = "ORDERLAKE_"

// Sink values for the manifest and quarantine outputs.
const (
	SinkFile  = "file"
	SinkKafka = "kafka"
	SinkBoth  = "both"
	SinkNone  = "none"
)

// Source values.
const (
	SourceFile  = "file"
	SourceHTTP  = "http"
	SourceKafka = "kafka"
)

type Config struct {
	Source           string        `env:"SOURCE" envDefault:"file"`
	SourcePath       string        `env:"SOURCE_PATH" envDefault:"sample_data/api_orders.json"`
	SourceURL        string        `env:"SOURCE_URL"`
	HTTPRetries      int           `env:"HTTP_RETRIES" envDefault:"2"`
	KafkaBrokers     string        `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaTopic       string        `env:"KAFKA_TOPIC" envDefault:"orders"`
	KafkaReadTimeout time.Duration `env:"KAFKA_READ_TIMEOUT" envDefault:"5s"`

	OutputDir    string `env:"OUTPUT_DIR" envDefault:"output"`
	UsersPath    string `env:"USERS_PATH" envDefault:"sample_data/users.csv"`
	ProductsPath string `env:"PRODUCTS_PATH" envDefault:"sample_data/products.csv"`

	RetryAttempts   int           `env:"RETRY_ATTEMPTS" envDefault:"3"`
	RetryDelay      time.Duration `env:"RETRY_DELAY" envDefault:"0s"`
	RetryMultiplier float64       `env:"RETRY_MULTIPLIER" envDefault:"1"`

	MergePolicy string `env:"MERGE_POLICY" envDefault:"arrival"`
	CatalogDir  string `env:"CATALOG_DIR"`

	ManifestSink    string `env:"MANIFEST_SINK" envDefault:"file"`
	ManifestTopic   string `env:"MANIFEST_TOPIC" envDefault:"orderlake.manifest"`
	QuarantineSink  string `env:"QUARANTINE_SINK" envDefault:"file"`
	QuarantineTopic string `env:"QUARANTINE_TOPIC" envDefault:"orderlake.quarantine"`

	MetricsFile string `env:"METRICS_FILE"`
	MetricsAddr string `env:"METRICS_ADDR"`

	OTelEndpoint string `env:"OTEL_ENDPOINT"`
}

// Load reads the environment into a Config with defaults applied.
func Load() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// RegisterFlags binds the settings people override most often on the command
// line. Call after Load so flag defaults show the environment values.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Source, "source", c.Source, "order source: file, http or kafka")
	fs.StringVar(&c.SourcePath, "source-path", c.SourcePath, "orders JSON file for the file source")
	fs.StringVar(&c.SourceURL, "source-url", c.SourceURL, "orders API endpoint for the http source")
	fs.StringVar(&c.KafkaBrokers, "brokers", c.KafkaBrokers, "comma-separated Kafka bootstrap servers")
	fs.StringVar(&c.KafkaTopic, "topic", c.KafkaTopic, "Kafka topic with raw orders")
	fs.StringVar(&c.OutputDir, "output", c.OutputDir, "output root (raw/, curated/, quarantine/)")
	fs.StringVar(&c.UsersPath, "users", c.UsersPath, "users dimension CSV")
	fs.StringVar(&c.ProductsPath, "products", c.ProductsPath, "products dimension CSV")
	fs.IntVar(&c.RetryAttempts, "retries", c.RetryAttempts, "fetch attempts before giving up")
	fs.DurationVar(&c.RetryDelay, "retry-delay", c.RetryDelay, "delay before the second fetch attempt")
	fs.StringVar(&c.MergePolicy, "merge-policy", c.MergePolicy, "conflict policy for existing keys: arrival or recency")
	fs.StringVar(&c.CatalogDir, "catalog", c.CatalogDir, "pebble catalog directory (default <output>/_catalog)")
	fs.StringVar(&c.MetricsFile, "metrics-file", c.MetricsFile, "write Prometheus textfile here at the end of the run")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "serve /metrics on this address while running")
}

// Validate rejects settings the job cannot start with.
func (c Config) Validate() error {
	var errs []error
	switch c.Source {
	case SourceFile:
		if strings.TrimSpace(c.SourcePath) == "" {
			errs = append(errs, errors.New("source path is required for the file source"))
		}
	case SourceHTTP:
		if strings.TrimSpace(c.SourceURL) == "" {
			errs = append(errs, errors.New("source url is required for the http source"))
		}
		if c.HTTPRetries < 0 {
			errs = append(errs, fmt.Errorf("http retries must not be negative, got %d", c.HTTPRetries))
		}
	case SourceKafka:
		if strings.TrimSpace(c.KafkaBrokers) == "" || strings.TrimSpace(c.KafkaTopic) == "" {
			errs = append(errs, errors.New("kafka brokers and topic are required for the kafka source"))
		}
		if c.KafkaReadTimeout <= 0 {
			errs = append(errs, errors.New("kafka read timeout must be positive"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown source %q", c.Source))
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		errs = append(errs, errors.New("output dir is required"))
	}
	if c.RetryAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry attempts must be at least 1, got %d", c.RetryAttempts))
	}
	if c.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("retry delay must not be negative, got %s", c.RetryDelay))
	}
	if c.RetryMultiplier < 1 {
		errs = append(errs, fmt.Errorf("retry multiplier must be at least 1, got %v", c.RetryMultiplier))
	}
	switch c.MergePolicy {
	case "", "arrival", "recency":
	default:
		errs = append(errs, fmt.Errorf("unknown merge policy %q", c.MergePolicy))
	}
	for name, sink := range map[string]string{"manifest": c.ManifestSink, "quarantine": c.QuarantineSink} {
		switch sink {
		case SinkFile, SinkNone:
		case SinkKafka, SinkBoth:
			if strings.TrimSpace(c.KafkaBrokers) == "" {
				errs = append(errs, fmt.Errorf("%s sink %q needs kafka brokers", name, sink))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown %s sink %q", name, sink))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c Config) RawDir() string        { return filepath.Join(c.OutputDir, "raw") }
func (c Config) CuratedDir() string    { return filepath.Join(c.OutputDir, "curated") }
func (c Config) QuarantineDir() string { return filepath.Join(c.OutputDir, "quarantine") }

// CatalogPath is CatalogDir, or <output>/_catalog when unset.
func (c Config) CatalogPath() string {
	if c.CatalogDir != "" {
		return c.CatalogDir
	}
	return filepath.Join(c.OutputDir, "_catalog")
}

// WantsFile reports whether sink includes the filesystem.
func WantsFile(sink string) bool { return sink == SinkFile || sink == SinkBoth }

// WantsKafka reports whether sink includes Kafka.
func WantsKafka(sink string) bool { return sink == SinkKafka || sink == SinkBoth }
