// Package config loads server configuration from flags and environment
// variables, in the teacher's style: flags define defaults, a same-named
// REPLAY_* environment variable overrides them, generalized to every knob
// the replay service needs.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
)

// TableConfig is one entry of the -tables flag / REPLAY_TABLES env var,
// parsed by ParseTables.
type TableConfig struct {
	Name                     string
	MaxSize                  int64
	MaxPendingInserts        int
	SampleRateHz             float64
	PriorityAlpha            float64
	DefaultFlexibleBatchSize int
}

// Config holds every knob the server binary needs.
type Config struct {
	Port int

	CallbackExecutorWorkers int

	CheckpointDir         string
	CheckpointFallbackDir string

	MetricsPort int
	MetricsPath string

	LogLevel string

	Tables []TableConfig
}

// Load parses flags (falling back to REPLAY_* environment variables for
// any flag left at its default) and returns a validated Config.
func Load() (*Config, error) {
	var (
		port         = flag.Int("port", envInt("REPLAY_PORT", 8080), "gRPC server port")
		workers      = flag.Int("callback-workers", envInt("REPLAY_CALLBACK_WORKERS", 32), "callback executor worker count")
		ckptDir      = flag.String("checkpoint-dir", envString("REPLAY_CHECKPOINT_DIR", "./checkpoints"), "checkpoint directory")
		ckptFallback = flag.String("checkpoint-fallback-dir", envString("REPLAY_CHECKPOINT_FALLBACK_DIR", ""), "read-only fallback checkpoint directory")
		metricsPort  = flag.Int("metrics-port", envInt("REPLAY_METRICS_PORT", 9090), "Prometheus /metrics port")
		metricsPath  = flag.String("metrics-path", envString("REPLAY_METRICS_PATH", "/metrics"), "Prometheus metrics path")
		logLevel     = flag.String("log-level", envString("REPLAY_LOG_LEVEL", "info"), "zap log level")
		tables       = flag.String("tables", envString("REPLAY_TABLES", "default"), "comma-separated table specs, name[:max_size[:alpha]]")
	)
	flag.Parse()

	tableCfgs, err := ParseTables(*tables)
	if err != nil {
		return nil, fmt.Errorf("config: parse -tables: %w", err)
	}

	cfg := &Config{
		Port:                    *port,
		CallbackExecutorWorkers: *workers,
		CheckpointDir:           *ckptDir,
		CheckpointFallbackDir:   *ckptFallback,
		MetricsPort:             *metricsPort,
		MetricsPath:             *metricsPath,
		LogLevel:                *logLevel,
		Tables:                  tableCfgs,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseTables parses the -tables flag's comma-separated
// name[:max_size[:alpha]] spec list.
func ParseTables(spec string) ([]TableConfig, error) {
	if spec == "" {
		return nil, fmt.Errorf("at least one table must be configured")
	}
	var out []TableConfig
	start := 0
	for i := 0; i <= len(spec); i++ {
		if i < len(spec) && spec[i] != ',' {
			continue
		}
		part := spec[start:i]
		start = i + 1
		if part == "" {
			continue
		}
		tc, err := parseTableSpec(part)
		if err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one table must be configured")
	}
	return out, nil
}

func parseTableSpec(part string) (TableConfig, error) {
	fields := splitColon(part)
	tc := TableConfig{
		Name:                     fields[0],
		PriorityAlpha:            1.0,
		MaxPendingInserts:        64,
		DefaultFlexibleBatchSize: 64,
	}
	if tc.Name == "" {
		return tc, fmt.Errorf("table spec %q: empty name", part)
	}
	if len(fields) > 1 && fields[1] != "" {
		n, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return tc, fmt.Errorf("table spec %q: max_size: %w", part, err)
		}
		tc.MaxSize = n
	}
	if len(fields) > 2 && fields[2] != "" {
		a, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return tc, fmt.Errorf("table spec %q: alpha: %w", part, err)
		}
		tc.PriorityAlpha = a
	}
	return tc, nil
}

func splitColon(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ':' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return out
}

// Validate checks the config is internally consistent.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config: port must be between 1 and 65535")
	}
	if c.CallbackExecutorWorkers < 1 {
		return fmt.Errorf("config: callback-workers must be positive")
	}
	seen := make(map[string]bool, len(c.Tables))
	for _, t := range c.Tables {
		if seen[t.Name] {
			return fmt.Errorf("config: duplicate table name %q", t.Name)
		}
		seen[t.Name] = true
	}
	return nil
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
