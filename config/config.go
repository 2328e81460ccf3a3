//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of sensorload.
//
// sensorload is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// sensorload is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with sensorload. If not, see https://www.gnu.org/licenses/.

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/aaronlmathis/sensorload/core"
)

// Package config loads sensorload settings.
//
// Values are layered in this order, later layers winning:
//
//   1. built-in defaults
//   2. an optional YAML file, with ${VAR} references expanded
//   3. an optional .env file
//   4. the process environment
//
// The resulting Config is treated as read-only after Load returns.

// Store backends.
const (
	BackendS3    = "s3"
	BackendMinIO = "minio"
	BackendDir   = "dir"
)

// Generator output formats.
const (
	FormatJSON    = "json"
	FormatParquet = "parquet"
)

// StoreConfig selects and configures the object store.
type StoreConfig struct {
	Backend         string `yaml:"backend"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	UseTLS          bool   `yaml:"use_tls"`
	AccessKey       string `yaml:"access_key"`
	SecretKey       string `yaml:"secret_key"`
	Prefix          string `yaml:"prefix"`
	Suffix          string `yaml:"suffix"`
	ProcessedPrefix string `yaml:"processed_prefix"`
	DeleteAfterMark bool   `yaml:"delete_after_mark"`
	Dir             string `yaml:"dir"`
}

// DatabaseConfig describes the PostgreSQL destination.
type DatabaseConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Name           string        `yaml:"name"`
	User           string        `yaml:"user"`
	Password       string        `yaml:"password"`
	SSLMode        string        `yaml:"sslmode"`
	Schema         string        `yaml:"schema"`
	Table          string        `yaml:"table"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// RejectConfig enables the side outputs for rejected records.
type RejectConfig struct {
	File         string   `yaml:"file"`
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`
}

// SummaryConfig enables the run summary destinations.
type SummaryConfig struct {
	File            string `yaml:"file"`
	MongoURI        string `yaml:"mongo_uri"`
	MongoDatabase   string `yaml:"mongo_database"`
	MongoCollection string `yaml:"mongo_collection"`
}

// MetricsConfig configures the Pushgateway target.
type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url"`
	Job            string `yaml:"job"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// GeneratorConfig configures the test data generator.
type GeneratorConfig struct {
	Sensors      int           `yaml:"sensors"`
	Files        int           `yaml:"files"`
	Measurements int           `yaml:"measurements"`
	Interval     time.Duration `yaml:"interval"`
	Format       string        `yaml:"format"`
}

// Config is the complete sensorload configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Database  DatabaseConfig  `yaml:"database"`
	BatchSize int             `yaml:"batch_size"`
	Rejects   RejectConfig    `yaml:"rejects"`
	Summary   SummaryConfig   `yaml:"summary"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
	Generator GeneratorConfig `yaml:"generator"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Store: StoreConfig{
			Backend:         BackendS3,
			Bucket:          "awssensorsbucket",
			Region:          "us-east-1",
			UseTLS:          true,
			ProcessedPrefix: "processed/",
			Dir:             "sensor_data",
		},
		Database: DatabaseConfig{
			Host:           "localhost",
			Port:           5432,
			Name:           "postgres",
			User:           "postgres",
			SSLMode:        "disable",
			Schema:         core.DefaultSchema,
			Table:          core.DefaultTable,
			ConnectTimeout: 10 * time.Second,
		},
		BatchSize: 100,
		Rejects: RejectConfig{
			KafkaTopic: "sensor-readings-dlq",
		},
		Summary: SummaryConfig{
			MongoDatabase:   "sensorload",
			MongoCollection: "runs",
		},
		Metrics: MetricsConfig{
			Job: "sensorload",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Generator: GeneratorConfig{
			Sensors:      5,
			Files:        5,
			Measurements: 10,
			Interval:     2 * time.Second,
			Format:       FormatJSON,
		},
	}
}

// LoadOptions controls where Load reads from.
type LoadOptions struct {
	File    string // YAML file, optional
	EnvFile string // .env file; a missing default file is ignored
	Lookup  func(string) (string, bool)
}

// LoadOption is a functional option for Load.
type LoadOption func(*LoadOptions)

// WithFile reads a YAML file after the defaults.
func WithFile(path string) LoadOption {
	return func(o *LoadOptions) {
		o.File = path
	}
}

// WithEnvFile sets the .env file. An explicitly named file must exist.
func WithEnvFile(path string) LoadOption {
	return func(o *LoadOptions) {
		o.EnvFile = path
	}
}

// WithLookup replaces os.LookupEnv as the process environment.
func WithLookup(lookup func(string) (string, bool)) LoadOption {
	return func(o *LoadOptions) {
		o.Lookup = lookup
	}
}

const defaultEnvFile = ".env"

// Load builds a Config from every layer and validates it.
func Load(opts ...LoadOption) (*Config, error) {
	options := LoadOptions{Lookup: os.LookupEnv}
	for _, opt := range opts {
		opt(&options)
	}

	envFile := options.EnvFile
	required := envFile != ""
	if envFile == "" {
		envFile = defaultEnvFile
	}
	dotenv, err := godotenv.Read(envFile)
	if err != nil {
		if required || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: reading %s: %w", envFile, err)
		}
		dotenv = map[string]string{}
	}

	lookup := func(key string) (string, bool) {
		if v, ok := options.Lookup(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}

	cfg := Default()
	if options.File != "" {
		if err := cfg.readFile(options.File, lookup); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) readFile(path string, lookup func(string) (string, bool)) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("config: reading %s: %w", path, err)
	}
	expanded := os.Expand(string(data), func(key string) string {
		v, _ := lookup(key)
		return v
	})
	if err := yaml.Unmarshal([]byte(expanded), c); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return nil
}

// envBinder applies environment overrides and remembers the first parse failure.
type envBinder struct {
	lookup func(string) (string, bool)
	err    error
}

func (b *envBinder) str(key string, dst *string) {
	if v, ok := b.lookup(key); ok {
		*dst = v
	}
}

func (b *envBinder) integer(key string, dst *int) {
	v, ok := b.lookup(key)
	if !ok || b.err != nil {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		b.err = fmt.Errorf("config: %s: %w", key, err)
		return
	}
	*dst = n
}

func (b *envBinder) boolean(key string, dst *bool) {
	v, ok := b.lookup(key)
	if !ok || b.err != nil {
		return
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		b.err = fmt.Errorf("config: %s: %w", key, err)
		return
	}
	*dst = parsed
}

func (b *envBinder) duration(key string, dst *time.Duration) {
	v, ok := b.lookup(key)
	if !ok || b.err != nil {
		return
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		b.err = fmt.Errorf("config: %s: %w", key, err)
		return
	}
	*dst = d
}

func (b *envBinder) list(key string, dst *[]string) {
	v, ok := b.lookup(key)
	if !ok {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	b := &envBinder{lookup: lookup}

	b.str("STORE_BACKEND", &c.Store.Backend)
	b.str("S3_BUCKET_NAME", &c.Store.Bucket)
	b.str("AWS_REGION", &c.Store.Region)
	b.str("STORE_ENDPOINT", &c.Store.Endpoint)
	b.boolean("STORE_PATH_STYLE", &c.Store.PathStyle)
	b.boolean("STORE_USE_TLS", &c.Store.UseTLS)
	b.str("STORE_ACCESS_KEY", &c.Store.AccessKey)
	b.str("STORE_SECRET_KEY", &c.Store.SecretKey)
	b.str("STORE_PREFIX", &c.Store.Prefix)
	b.str("STORE_SUFFIX", &c.Store.Suffix)
	b.str("STORE_PROCESSED_PREFIX", &c.Store.ProcessedPrefix)
	b.boolean("STORE_DELETE_AFTER_MARK", &c.Store.DeleteAfterMark)
	b.str("STORE_DIR", &c.Store.Dir)

	b.str("DB_HOST", &c.Database.Host)
	b.integer("DB_PORT", &c.Database.Port)
	b.str("DB_NAME", &c.Database.Name)
	b.str("DB_USER", &c.Database.User)
	b.str("DB_PASSWORD", &c.Database.Password)
	b.str("DB_SSLMODE", &c.Database.SSLMode)
	b.str("DB_SCHEMA", &c.Database.Schema)
	b.str("DB_TABLE", &c.Database.Table)
	b.duration("DB_CONNECT_TIMEOUT", &c.Database.ConnectTimeout)

	b.integer("BATCH_SIZE", &c.BatchSize)

	b.str("REJECT_FILE", &c.Rejects.File)
	b.list("KAFKA_BROKERS", &c.Rejects.KafkaBrokers)
	b.str("KAFKA_DLQ_TOPIC", &c.Rejects.KafkaTopic)

	b.str("SUMMARY_FILE", &c.Summary.File)
	b.str("MONGO_URI", &c.Summary.MongoURI)
	b.str("MONGO_DATABASE", &c.Summary.MongoDatabase)
	b.str("MONGO_COLLECTION", &c.Summary.MongoCollection)

	b.str("PUSHGATEWAY_URL", &c.Metrics.PushgatewayURL)
	b.str("PUSHGATEWAY_JOB", &c.Metrics.Job)

	b.str("LOG_LEVEL", &c.Log.Level)
	b.str("LOG_FORMAT", &c.Log.Format)
	b.str("LOG_FILE", &c.Log.File)

	b.integer("GEN_SENSORS", &c.Generator.Sensors)
	b.integer("GEN_FILES", &c.Generator.Files)
	b.integer("GEN_MEASUREMENTS", &c.Generator.Measurements)
	b.duration("GEN_INTERVAL", &c.Generator.Interval)
	b.str("GEN_FORMAT", &c.Generator.Format)

	return b.err
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendS3, BackendMinIO:
		if c.Store.Bucket == "" {
			return fmt.Errorf("config: bucket is required for the %s backend", c.Store.Backend)
		}
		if c.Store.Backend == BackendMinIO && c.Store.Endpoint == "" {
			return errors.New("config: endpoint is required for the minio backend")
		}
	case BackendDir:
		if c.Store.Dir == "" {
			return errors.New("config: dir is required for the dir backend")
		}
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}
	if c.Store.ProcessedPrefix == "" {
		return errors.New("config: processed prefix cannot be empty")
	}
	if c.Store.Prefix != "" && c.Store.Prefix == c.Store.ProcessedPrefix {
		return errors.New("config: prefix and processed prefix must differ")
	}

	if c.Database.Host == "" {
		return errors.New("config: database host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("config: database port out of range: %d", c.Database.Port)
	}
	if c.Database.Name == "" || c.Database.User == "" {
		return errors.New("config: database name and user are required")
	}
	switch c.Database.SSLMode {
	case "disable", "allow", "prefer", "require", "verify-ca", "verify-full":
	default:
		return fmt.Errorf("config: invalid sslmode %q", c.Database.SSLMode)
	}
	if c.Database.Schema == "" || c.Database.Table == "" {
		return errors.New("config: database schema and table are required")
	}
	if c.Database.ConnectTimeout <= 0 {
		return errors.New("config: connect timeout must be positive")
	}

	if c.BatchSize <= 0 {
		return fmt.Errorf("config: batch size must be positive, got %d", c.BatchSize)
	}
	if len(c.Rejects.KafkaBrokers) > 0 && c.Rejects.KafkaTopic == "" {
		return errors.New("config: kafka topic is required when brokers are set")
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("config: invalid log format %q", c.Log.Format)
	}

	if c.Generator.Sensors <= 0 || c.Generator.Files <= 0 || c.Generator.Measurements <= 0 {
		return errors.New("config: generator counts must be positive")
	}
	if c.Generator.Interval < 0 {
		return errors.New("config: generator interval cannot be negative")
	}
	if c.Generator.Format != FormatJSON && c.Generator.Format != FormatParquet {
		return fmt.Errorf("config: invalid generator format %q", c.Generator.Format)
	}
	return nil
}

// DSN returns the lib/pq connection URL for the destination database.
func (c *Config) DSN() string {
	return c.dsnURL().String()
}

// RedactedDSN is DSN with the password masked, for logging.
func (c *Config) RedactedDSN() string {
	return c.dsnURL().Redacted()
}

func (c *Config) dsnURL() *url.URL {
	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", c.Database.Host, c.Database.Port),
		Path:   "/" + c.Database.Name,
	}
	if c.Database.Password != "" {
		u.User = url.UserPassword(c.Database.User, c.Database.Password)
	} else {
		u.User = url.User(c.Database.User)
	}
	q := url.Values{}
	q.Set("sslmode", c.Database.SSLMode)
	u.RawQuery = q.Encode()
	return u
}
