package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/example/groupmsg/internal/session"
)

type Config struct {
	DefaultRegion string `yaml:"default_region"`

	// delivery
	MinDelaySeconds  int    `yaml:"min_delay_seconds"`
	MaxDelaySeconds  int    `yaml:"max_delay_seconds"`
	MaxRetries       int    `yaml:"max_retries"`
	Backoff          string `yaml:"backoff"`
	BackoffBaseSecs  int    `yaml:"backoff_base_seconds"`
	BackoffMaxSecs   int    `yaml:"backoff_max_seconds"`
	SendTarget       string `yaml:"send_target"`
	NotFoundFallback bool   `yaml:"not_found_fallback"`
	MetadataLanguage string `yaml:"metadata_language"`
	PreviewLimit     int    `yaml:"preview_limit"`

	LedgerPath  string `yaml:"ledger_path"`
	DatabaseURL string `yaml:"database_url"`

	DriverURL            string `yaml:"driver_url"`
	DriverTimeoutSeconds int    `yaml:"driver_timeout_seconds"`

	SessionFile     string `yaml:"session_file"`
	SessionHashKey  string `yaml:"session_hash_key"`
	SessionBlockKey string `yaml:"session_block_key"`
	SessionSecret   string `yaml:"session_secret"`

	OCRLanguages string `yaml:"ocr_languages"`
	OCRPSM       int    `yaml:"ocr_psm"`

	ReportDir string `yaml:"report_dir"`
	LogLevel  string `yaml:"log_level"`
}

func Default() Config {
	return Config{
		DefaultRegion:        "US",
		MinDelaySeconds:      10,
		MaxDelaySeconds:      30,
		MaxRetries:           3,
		Backoff:              "exponential",
		BackoffBaseSecs:      5,
		BackoffMaxSecs:       60,
		SendTarget:           "phone",
		MetadataLanguage:     "en",
		PreviewLimit:         3,
		LedgerPath:           "data/ledger.jsonl",
		DriverURL:            "http://127.0.0.1:9515",
		DriverTimeoutSeconds: 60,
		SessionFile:          "data/session",
		OCRLanguages:         "eng",
		OCRPSM:               6,
		ReportDir:            "logs",
		LogLevel:             "info",
	}
}

// FromEnv builds a Config from defaults and the environment only.
func FromEnv() (Config, error) {
	return Load("")
}

// Load reads the optional YAML file at path, then applies environment
// overrides, then validates.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.DefaultRegion = strings.ToUpper(getenv("DEFAULT_REGION", c.DefaultRegion))
	c.Backoff = getenv("BACKOFF", c.Backoff)
	c.SendTarget = getenv("SEND_TARGET", c.SendTarget)
	c.MetadataLanguage = getenv("METADATA_LANGUAGE", c.MetadataLanguage)
	c.LedgerPath = getenv("LEDGER_PATH", c.LedgerPath)
	c.DatabaseURL = getenv("DATABASE_URL", c.DatabaseURL)
	c.DriverURL = getenv("DRIVER_URL", c.DriverURL)
	c.SessionFile = getenv("SESSION_FILE", c.SessionFile)
	c.SessionHashKey = getenv("SESSION_HASH_KEY", c.SessionHashKey)
	c.SessionBlockKey = getenv("SESSION_BLOCK_KEY", c.SessionBlockKey)
	c.SessionSecret = getenv("SESSION_SECRET", c.SessionSecret)
	c.OCRLanguages = getenv("OCR_LANGUAGES", c.OCRLanguages)
	c.ReportDir = getenv("REPORT_DIR", c.ReportDir)
	c.LogLevel = getenv("LOG_LEVEL", c.LogLevel)

	ints := []struct {
		key string
		dst *int
	}{
		{"MIN_DELAY_SECONDS", &c.MinDelaySeconds},
		{"MAX_DELAY_SECONDS", &c.MaxDelaySeconds},
		{"MAX_RETRIES", &c.MaxRetries},
		{"BACKOFF_BASE_SECONDS", &c.BackoffBaseSecs},
		{"BACKOFF_MAX_SECONDS", &c.BackoffMaxSecs},
		{"DRIVER_TIMEOUT_SECONDS", &c.DriverTimeoutSeconds},
		{"OCR_PSM", &c.OCRPSM},
		{"PREVIEW_LIMIT", &c.PreviewLimit},
	}
	for _, i := range ints {
		v := os.Getenv(i.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s", i.key)
		}
		*i.dst = n
	}

	if v := os.Getenv("NOT_FOUND_FALLBACK"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid NOT_FOUND_FALLBACK")
		}
		c.NotFoundFallback = b
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	if c.DefaultRegion != "" && len(c.DefaultRegion) != 2 {
		errs = append(errs, fmt.Errorf("default_region must be a two-letter region code, got %q", c.DefaultRegion))
	}
	if c.MinDelaySeconds < 0 || c.MaxDelaySeconds < c.MinDelaySeconds {
		errs = append(errs, fmt.Errorf("delay range %d..%d is invalid", c.MinDelaySeconds, c.MaxDelaySeconds))
	}
	if c.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("max_retries must be at least 1"))
	}
	if c.Backoff != "exponential" && c.Backoff != "fixed" {
		errs = append(errs, fmt.Errorf("backoff must be exponential or fixed, got %q", c.Backoff))
	}
	if c.BackoffBaseSecs < 0 || c.BackoffMaxSecs < 0 {
		errs = append(errs, fmt.Errorf("backoff durations must not be negative"))
	}
	if c.SendTarget != "phone" && c.SendTarget != "name" {
		errs = append(errs, fmt.Errorf("send_target must be phone or name, got %q", c.SendTarget))
	}
	if c.DriverTimeoutSeconds < 1 {
		errs = append(errs, fmt.Errorf("driver_timeout_seconds must be at least 1"))
	}
	if c.OCRPSM < 0 || c.OCRPSM > 13 {
		errs = append(errs, fmt.Errorf("ocr_psm must be 0..13"))
	}
	if c.LedgerPath == "" && c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("either ledger_path or database_url is required"))
	}
	return errors.Join(errs...)
}

func (c Config) MinDelay() time.Duration { return time.Duration(c.MinDelaySeconds) * time.Second }

func (c Config) MaxDelay() time.Duration { return time.Duration(c.MaxDelaySeconds) * time.Second }

func (c Config) BackoffBase() time.Duration { return time.Duration(c.BackoffBaseSecs) * time.Second }

func (c Config) BackoffMax() time.Duration { return time.Duration(c.BackoffMaxSecs) * time.Second }

func (c Config) DriverTimeout() time.Duration {
	return time.Duration(c.DriverTimeoutSeconds) * time.Second
}

// SessionKeys returns the securecookie keys for the session file. Explicit
// base64 keys win over a derived secret.
func (c Config) SessionKeys() (hashKey, blockKey []byte, err error) {
	if c.SessionHashKey != "" || c.SessionBlockKey != "" {
		if c.SessionHashKey == "" || c.SessionBlockKey == "" {
			return nil, nil, fmt.Errorf("SESSION_HASH_KEY and SESSION_BLOCK_KEY must be set together")
		}
		if hashKey, err = decodeB64(c.SessionHashKey); err != nil {
			return nil, nil, fmt.Errorf("SESSION_HASH_KEY: %w", err)
		}
		if blockKey, err = decodeB64(c.SessionBlockKey); err != nil {
			return nil, nil, fmt.Errorf("SESSION_BLOCK_KEY: %w", err)
		}
		switch len(blockKey) {
		case 16, 24, 32:
		default:
			return nil, nil, fmt.Errorf("SESSION_BLOCK_KEY must decode to 16, 24 or 32 bytes")
		}
		return hashKey, blockKey, nil
	}
	if c.SessionSecret != "" {
		return session.DeriveKeys([]byte(c.SessionSecret))
	}
	return nil, nil, fmt.Errorf("SESSION_SECRET or SESSION_HASH_KEY/SESSION_BLOCK_KEY are required")
}

// decodeB64 accepts a base64 value or a path to a file holding one, for
// secret mounts.
func decodeB64(s string) ([]byte, error) {
	if b, err := os.ReadFile(s); err == nil {
		s = string(b)
	}
	return base64.StdEncoding.DecodeString(strings.TrimSpace(s))
}

func getenv(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
