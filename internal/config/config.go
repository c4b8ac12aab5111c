// Package config loads the indexer configuration from YAML and GRANTS_
// environment variables and validates it against an embedded CUE schema.
package config

import (
	_ "embed"
	"fmt"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/shuoer86/grants-stack-indexer/internal/indexer"
	"github.com/shuoer86/grants-stack-indexer/internal/logging"
)

// EnvPrefix prefixes environment overrides: GRANTS_SERVER_ADDRESS sets
// server.address.
const EnvPrefix = "GRANTS"

//go:embed schema.cue
var schemaSource string

// Config is the validated configuration of every command.
type Config struct {
	DataDir    string           `mapstructure:"data_dir"`
	Namespace  string           `mapstructure:"namespace"`
	Server     ServerConfig     `mapstructure:"server"`
	Indexer    IndexerConfig    `mapstructure:"indexer"`
	Calculator CalculatorConfig `mapstructure:"calculator"`
	Log        LogConfig        `mapstructure:"log"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Address string `mapstructure:"address"`
	Mode    string `mapstructure:"mode"` // gin mode
}

// IndexerConfig tunes the donation buffer and the recompute schedule.
type IndexerConfig struct {
	FlushInterval     time.Duration `mapstructure:"flush_interval"`
	RecomputeInterval time.Duration `mapstructure:"recompute_interval"`
	ChunkSize         int           `mapstructure:"chunk_size"`
	TokenCacheSize    int           `mapstructure:"token_cache_size"`
}

// CalculatorConfig selects the round input source and matching policy.
type CalculatorConfig struct {
	// SourceURL is a gocloud.dev bucket URL holding round inputs. Empty means
	// the API serves no matches.
	SourceURL    string `mapstructure:"source_url"`
	SourcePrefix string `mapstructure:"source_prefix"`

	OracleWorkers  int    `mapstructure:"oracle_workers"`
	SybilThreshold string `mapstructure:"sybil_threshold"`
	// PriceBlock pins USD conversion to the newest quote at or before this
	// block. Zero uses the latest quote.
	PriceBlock int64 `mapstructure:"price_block"`
}

// LogConfig selects the log handler and optional file rotation.
type LogConfig struct {
	Format     string `mapstructure:"format"`
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig names the Prometheus namespace.
type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
}

func setDefaults(v *viper.Viper) {
	def := indexer.DefaultConfig()

	v.SetDefault("data_dir", "./data")
	v.SetDefault("namespace", "production")
	v.SetDefault("server.address", ":4000")
	v.SetDefault("server.mode", "release")
	v.SetDefault("indexer.flush_interval", def.FlushInterval)
	v.SetDefault("indexer.recompute_interval", def.RecomputeInterval)
	v.SetDefault("indexer.chunk_size", def.ChunkSize)
	v.SetDefault("indexer.token_cache_size", def.TokenCacheSize)
	v.SetDefault("calculator.source_url", "")
	v.SetDefault("calculator.source_prefix", "")
	v.SetDefault("calculator.oracle_workers", 8)
	v.SetDefault("calculator.sybil_threshold", "")
	v.SetDefault("calculator.price_block", 0)
	v.SetDefault("log.format", "text")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 0)
	v.SetDefault("log.max_backups", 0)
	v.SetDefault("log.max_age_days", 0)
	v.SetDefault("log.compress", false)
	v.SetDefault("metrics.namespace", "grants_indexer")
}

// Load reads the YAML file at path (optional: empty uses defaults), applies
// GRANTS_ environment overrides and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// IndexerSettings converts the indexer section to service settings.
func (c *Config) IndexerSettings() indexer.Config {
	return indexer.Config{
		FlushInterval:     c.Indexer.FlushInterval,
		RecomputeInterval: c.Indexer.RecomputeInterval,
		ChunkSize:         c.Indexer.ChunkSize,
		TokenCacheSize:    c.Indexer.TokenCacheSize,
	}
}

func (c *Config) Logging() logging.Config {
	return logging.Config{
		Format:     c.Log.Format,
		Level:      c.Log.Level,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
		Compress:   c.Log.Compress,
	}
}

// Threshold returns the configured sybil score threshold, or nil when none
// is set.
func (c *Config) Threshold() (*decimal.Decimal, error) {
	if c.Calculator.SybilThreshold == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(c.Calculator.SybilThreshold)
	if err != nil {
		return nil, fmt.Errorf("sybil threshold: %w", err)
	}
	return &d, nil
}

// validationView is the shape the CUE schema constrains. Durations are
// checked in whole milliseconds.
type validationView struct {
	DataDir   string `json:"data_dir"`
	Namespace string `json:"namespace"`
	Server    struct {
		Address string `json:"address"`
		Mode    string `json:"mode"`
	} `json:"server"`
	Indexer struct {
		FlushIntervalMS     int64 `json:"flush_interval_ms"`
		RecomputeIntervalMS int64 `json:"recompute_interval_ms"`
		ChunkSize           int   `json:"chunk_size"`
		TokenCacheSize      int   `json:"token_cache_size"`
	} `json:"indexer"`
	Calculator struct {
		SourceURL      string `json:"source_url"`
		SourcePrefix   string `json:"source_prefix"`
		OracleWorkers  int    `json:"oracle_workers"`
		SybilThreshold string `json:"sybil_threshold"`
		PriceBlock     int64  `json:"price_block"`
	} `json:"calculator"`
	Log struct {
		Format     string `json:"format"`
		Level      string `json:"level"`
		File       string `json:"file"`
		MaxSizeMB  int    `json:"max_size_mb"`
		MaxBackups int    `json:"max_backups"`
		MaxAgeDays int    `json:"max_age_days"`
		Compress   bool   `json:"compress"`
	} `json:"log"`
	Metrics struct {
		Namespace string `json:"namespace"`
	} `json:"metrics"`
}

func (c *Config) view() validationView {
	var v validationView
	v.DataDir = c.DataDir
	v.Namespace = c.Namespace
	v.Server.Address = c.Server.Address
	v.Server.Mode = c.Server.Mode
	v.Indexer.FlushIntervalMS = c.Indexer.FlushInterval.Milliseconds()
	v.Indexer.RecomputeIntervalMS = c.Indexer.RecomputeInterval.Milliseconds()
	v.Indexer.ChunkSize = c.Indexer.ChunkSize
	v.Indexer.TokenCacheSize = c.Indexer.TokenCacheSize
	v.Calculator.SourceURL = c.Calculator.SourceURL
	v.Calculator.SourcePrefix = c.Calculator.SourcePrefix
	v.Calculator.OracleWorkers = c.Calculator.OracleWorkers
	v.Calculator.SybilThreshold = c.Calculator.SybilThreshold
	v.Calculator.PriceBlock = c.Calculator.PriceBlock
	v.Log.Format = strings.ToLower(c.Log.Format)
	v.Log.Level = strings.ToLower(c.Log.Level)
	v.Log.File = c.Log.File
	v.Log.MaxSizeMB = c.Log.MaxSizeMB
	v.Log.MaxBackups = c.Log.MaxBackups
	v.Log.MaxAgeDays = c.Log.MaxAgeDays
	v.Log.Compress = c.Log.Compress
	v.Metrics.Namespace = c.Metrics.Namespace
	return v
}

// Validate checks c against the embedded schema. Every violation is
// reported, one per line.
func (c *Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Config"))
	unified := def.Unify(ctx.Encode(c.view()))
	if err := unified.Validate(cue.Concrete(true), cue.All()); err != nil {
		return &ValidationError{Details: cueerrors.Details(err, nil)}
	}
	return nil
}

// ValidationError lists schema violations.
type ValidationError struct {
	Details string
}

func (e *ValidationError) Error() string {
	return "invalid config:\n" + strings.TrimRight(e.Details, "\n")
}
