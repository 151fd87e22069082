package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	envPrefix = "STRICT_DIR_SYNC_"

	DefaultConcurrency  = 1
	DefaultConfirmDelay = 5
	DefaultRedisKey     = "strict-dir-sync:progress"
)

// Config holds the command line settings of a run
type Config struct {
	SourceDir string
	TargetDir string

	Excludes        []string
	Concurrency     int
	CopyConcurrency int

	Copy                bool
	Yes                 bool
	ConfirmDelaySeconds int
	ManifestPath        string

	Quiet      bool
	Verbose    bool
	NoProgress bool

	PlanJSONFile   string
	ResultJSONFile string

	ManifestS3URI string
	Profile       string
	Region        string

	RedisAddr     string
	RedisPassword string
	RedisKey      string

	EnvFile string
}

// New returns a Config with defaults applied
func New() *Config {
	return &Config{
		Concurrency:         DefaultConcurrency,
		CopyConcurrency:     DefaultConcurrency,
		ConfirmDelaySeconds: DefaultConfirmDelay,
		RedisKey:            DefaultRedisKey,
	}
}

// ConfirmDelay returns the wait before a confirmation answer is accepted
func (c *Config) ConfirmDelay() time.Duration {
	return time.Duration(c.ConfirmDelaySeconds) * time.Second
}

// LoadEnvFile loads variables from a dotenv file without overriding the environment
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv fills settings whose flag was not given from the environment.
// changed reports whether a flag was set on the command line.
func (c *Config) ApplyEnv(changed func(flag string) bool) error {
	lookup := func(flag, name string) (string, bool) {
		if changed(flag) {
			return "", false
		}
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			return "", false
		}
		return v, true
	}

	var errs []error
	setInt := func(flag, name string, dst *int) {
		v, ok := lookup(flag, name)
		if !ok {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		*dst = n
	}
	setString := func(flag, name string, dst *string) {
		if v, ok := lookup(flag, name); ok {
			*dst = v
		}
	}

	if v, ok := lookup("exclude", envPrefix+"EXCLUDE"); ok {
		c.Excludes = splitList(v)
	}
	setInt("concurrency", envPrefix+"CONCURRENCY", &c.Concurrency)
	setInt("copy-concurrency", envPrefix+"COPY_CONCURRENCY", &c.CopyConcurrency)
	setInt("confirm-delay", envPrefix+"CONFIRM_DELAY", &c.ConfirmDelaySeconds)
	setString("manifest-s3-uri", envPrefix+"MANIFEST_S3_URI", &c.ManifestS3URI)
	setString("progress-redis-addr", "REDIS_ADDR", &c.RedisAddr)
	setString("progress-redis-key", "REDIS_KEY", &c.RedisKey)
	if v, ok := os.LookupEnv("REDIS_PASSWORD"); ok {
		c.RedisPassword = v
	}

	return errors.Join(errs...)
}

// Validate checks the configuration before anything is touched
func (c *Config) Validate() error {
	if c.SourceDir == "" {
		return fmt.Errorf("source directory is required")
	}
	if c.TargetDir == "" {
		return fmt.Errorf("target directory is required")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive")
	}
	if c.CopyConcurrency <= 0 {
		return fmt.Errorf("copy concurrency must be positive")
	}
	if c.ConfirmDelaySeconds < 0 {
		return fmt.Errorf("confirm delay must not be negative")
	}
	if c.Quiet && c.Verbose {
		return fmt.Errorf("--quiet and --verbose cannot be used together")
	}
	if c.ManifestS3URI != "" && !strings.HasPrefix(c.ManifestS3URI, "s3://") {
		return fmt.Errorf("manifest S3 URI must start with s3://")
	}
	if c.RedisAddr != "" && c.RedisKey == "" {
		return fmt.Errorf("progress redis key is required when a redis address is set")
	}
	return nil
}

func splitList(v string) []string {
	var items []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
