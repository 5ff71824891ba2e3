package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/egdose/reqwrap"
)

// appConfig is the CLI's merged configuration. Precedence, lowest to
// highest: built-in defaults, environment (plus optional .env file), TOML
// config file, command-line flags.
type appConfig struct {
	Client reqwrap.Config
	Env    string `validate:"omitempty,oneof=dev prod"`
	Log    logConfig
}

type logConfig struct {
	ConsoleLevel string `validate:"omitempty,oneof=debug info warn error"`
	FileLevel    string `validate:"omitempty,oneof=debug info warn error"`
	File         string
	ErrorFile    string
}

// duration is a time.Duration that TOML can decode from strings like "45s".
type duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(parsed)
	return nil
}

// fileConfig mirrors the TOML config file. Pointer fields distinguish "not
// set" from zero values so the file only overrides what it mentions.
type fileConfig struct {
	RetryCount       *int      `toml:"retry_count"`
	RetryStatusCodes []int     `toml:"retry_status_codes"`
	Proxies          []string  `toml:"proxies"`
	CacheEnabled     *bool     `toml:"cache_enabled"`
	CacheDir         string    `toml:"cache_dir"`
	CacheCompress    *bool     `toml:"cache_compress"`
	CacheExpiry      *duration `toml:"cache_expiry"`
	Timeout          *duration `toml:"timeout"`
	VerifySSL        *bool     `toml:"verify_ssl"`
	UserAgent        string    `toml:"user_agent"`

	Env string `toml:"env"`

	Log struct {
		ConsoleLevel string `toml:"console_level"`
		FileLevel    string `toml:"file_level"`
		File         string `toml:"file"`
		ErrorFile    string `toml:"error_file"`
	} `toml:"log"`
}

var validateConfig = validator.New()

// loadConfig builds the CLI configuration from defaults, the environment and
// an optional TOML file.
func loadConfig(path string) (appConfig, error) {
	_ = godotenv.Load()

	cfg := appConfig{
		Client: reqwrap.DefaultConfig(),
		Env:    getenv("REQWRAP_ENV", "prod"),
		Log: logConfig{
			ConsoleLevel: strings.ToLower(getenv("REQWRAP_LOG_CONSOLE_LEVEL", "info")),
			FileLevel:    strings.ToLower(getenv("REQWRAP_LOG_FILE_LEVEL", "debug")),
			File:         os.Getenv("REQWRAP_LOG_FILE"),
			ErrorFile:    os.Getenv("REQWRAP_LOG_ERROR_FILE"),
		},
	}

	if err := applyEnv(&cfg.Client); err != nil {
		return appConfig{}, err
	}

	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return appConfig{}, err
		}
	}

	if err := validateConfig.Struct(cfg); err != nil {
		return appConfig{}, err
	}
	if err := cfg.Client.Validate(); err != nil {
		return appConfig{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *reqwrap.Config) error {
	if v := os.Getenv("REQWRAP_RETRY_COUNT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REQWRAP_RETRY_COUNT: %w", err)
		}
		cfg.RetryCount = n
	}
	if v := os.Getenv("REQWRAP_PROXIES"); v != "" {
		cfg.Proxies = splitList(v)
	}
	if v := os.Getenv("REQWRAP_CACHE_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("REQWRAP_CACHE_ENABLED: %w", err)
		}
		cfg.CacheEnabled = b
	}
	if v := os.Getenv("REQWRAP_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}
	if v := os.Getenv("REQWRAP_CACHE_EXPIRY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("REQWRAP_CACHE_EXPIRY: %w", err)
		}
		cfg.CacheExpiry = d
	}
	if v := os.Getenv("REQWRAP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("REQWRAP_TIMEOUT: %w", err)
		}
		cfg.Timeout = d
	}
	if v := os.Getenv("REQWRAP_VERIFY_SSL"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("REQWRAP_VERIFY_SSL: %w", err)
		}
		cfg.VerifySSL = b
	}
	if v := os.Getenv("REQWRAP_USER_AGENT"); v != "" {
		cfg.UserAgent = v
	}
	return nil
}

func applyFile(cfg *appConfig, path string) error {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	if fc.RetryCount != nil {
		cfg.Client.RetryCount = *fc.RetryCount
	}
	if fc.RetryStatusCodes != nil {
		cfg.Client.RetryStatusCodes = fc.RetryStatusCodes
	}
	if fc.Proxies != nil {
		cfg.Client.Proxies = fc.Proxies
	}
	if fc.CacheEnabled != nil {
		cfg.Client.CacheEnabled = *fc.CacheEnabled
	}
	if fc.CacheDir != "" {
		cfg.Client.CacheDir = fc.CacheDir
	}
	if fc.CacheCompress != nil {
		cfg.Client.CacheCompress = *fc.CacheCompress
	}
	if fc.CacheExpiry != nil {
		cfg.Client.CacheExpiry = time.Duration(*fc.CacheExpiry)
	}
	if fc.Timeout != nil {
		cfg.Client.Timeout = time.Duration(*fc.Timeout)
	}
	if fc.VerifySSL != nil {
		cfg.Client.VerifySSL = *fc.VerifySSL
	}
	if fc.UserAgent != "" {
		cfg.Client.UserAgent = fc.UserAgent
	}
	if fc.Env != "" {
		cfg.Env = fc.Env
	}
	if fc.Log.ConsoleLevel != "" {
		cfg.Log.ConsoleLevel = fc.Log.ConsoleLevel
	}
	if fc.Log.FileLevel != "" {
		cfg.Log.FileLevel = fc.Log.FileLevel
	}
	if fc.Log.File != "" {
		cfg.Log.File = fc.Log.File
	}
	if fc.Log.ErrorFile != "" {
		cfg.Log.ErrorFile = fc.Log.ErrorFile
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
