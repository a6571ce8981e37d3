package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config carries everything the collectors and orchestration need.
// It is built once by Load and passed down explicitly.
type Config struct {
	DataDir      string         `yaml:"data_dir"`
	TemplatesDir string         `yaml:"templates_dir"`
	APIKeys      APIKeys        `yaml:"api_keys"`
	HTTP         HTTPConfig     `yaml:"http"`
	Database     DatabaseConfig `yaml:"database"`
	Storage      StorageConfig  `yaml:"storage"`
	Render       RenderConfig   `yaml:"render"`
	Server       ServerConfig   `yaml:"server"`
	Metrics      MetricsConfig  `yaml:"metrics"`
}

type APIKeys struct {
	ExchangeRate string `yaml:"exchange_rate"`
	MetalsDev    string `yaml:"metals_dev"`
	MetalsAPI    string `yaml:"metals_api"`
}

type HTTPConfig struct {
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type RenderConfig struct {
	JPEG        bool   `yaml:"jpeg"`
	ChromePath  string `yaml:"chrome_path"`
	Width       int    `yaml:"width"`
	Height      int    `yaml:"height"`
	JPEGQuality int    `yaml:"jpeg_quality"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// Default returns the configuration used when no file or env overrides exist.
func Default() *Config {
	return &Config{
		DataDir:      "data",
		TemplatesDir: "templates",
		HTTP: HTTPConfig{
			Timeout:           10 * time.Second,
			RequestsPerSecond: 1,
			Burst:             1,
		},
		Database: DatabaseConfig{
			Driver:  "sqlite",
			Path:    filepath.Join("data", "historical", "rba_forex_data.db"),
			Host:    "localhost",
			Port:    "5432",
			User:    "audtracker",
			Name:    "audtracker",
			SSLMode: "disable",
		},
		Render: RenderConfig{
			JPEG:        true,
			Width:       1080,
			Height:      1350,
			JPEGQuality: 95,
		},
		Server: ServerConfig{Port: "8080"},
	}
}

// Load reads .env (if present), then the optional YAML file at path, then
// applies environment overrides. An empty path skips the YAML step.
func Load(path string) (*Config, error) {
	// .env is optional; real environment variables always win
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	applyEnv(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.DataDir = getEnv("DATA_DIR", cfg.DataDir)
	cfg.TemplatesDir = getEnv("TEMPLATES_DIR", cfg.TemplatesDir)

	cfg.APIKeys.ExchangeRate = getEnv("EXCHANGE_RATE_API_KEY", cfg.APIKeys.ExchangeRate)
	cfg.APIKeys.MetalsDev = getEnv("METALS_DEV_API_KEY", cfg.APIKeys.MetalsDev)
	cfg.APIKeys.MetalsAPI = getEnv("METALS_API_KEY", cfg.APIKeys.MetalsAPI)
	// Metals.Dev used to share the METALS_API_KEY setting
	if cfg.APIKeys.MetalsDev == "" {
		cfg.APIKeys.MetalsDev = cfg.APIKeys.MetalsAPI
	}

	cfg.Database.Driver = getEnv("DB_DRIVER", cfg.Database.Driver)
	cfg.Database.Path = getEnv("DB_PATH", cfg.Database.Path)
	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnv("DB_PORT", cfg.Database.Port)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.Name = getEnv("DB_NAME", cfg.Database.Name)
	cfg.Database.SSLMode = getEnv("DB_SSL_MODE", cfg.Database.SSLMode)

	if v := os.Getenv("S3_BUCKET"); v != "" {
		cfg.Storage.S3.Enabled = true
		cfg.Storage.S3.Bucket = v
	}
	cfg.Storage.S3.Region = getEnv("S3_REGION", cfg.Storage.S3.Region)
	cfg.Storage.S3.Endpoint = getEnv("S3_ENDPOINT", cfg.Storage.S3.Endpoint)
	cfg.Storage.S3.Prefix = getEnv("S3_PREFIX", cfg.Storage.S3.Prefix)
	if cfg.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			cfg.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			cfg.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
	}

	cfg.Render.ChromePath = getEnv("CHROME_PATH", cfg.Render.ChromePath)
	if v := os.Getenv("RENDER_JPEG"); v != "" {
		cfg.Render.JPEG = v == "1" || strings.EqualFold(v, "true")
	}

	cfg.Server.Port = getEnv("SERVER_PORT", cfg.Server.Port)
	cfg.Metrics.Textfile = getEnv("METRICS_TEXTFILE", cfg.Metrics.Textfile)
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Storage.S3.Enabled && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3 storage enabled without a bucket")
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http timeout must be positive")
	}
	return nil
}

var placeholderKey = regexp.MustCompile(`^your_.*_here$`)

// IsConfigured reports whether the named API key holds a real value.
// Empty values and template placeholders such as "your_metals_api_key_here"
// count as unconfigured. Unknown fields are never configured.
func (c *Config) IsConfigured(field string) bool {
	var v string
	switch field {
	case "exchange_rate":
		v = c.APIKeys.ExchangeRate
	case "metals_dev":
		v = c.APIKeys.MetalsDev
	case "metals_api":
		v = c.APIKeys.MetalsAPI
	default:
		return false
	}
	v = strings.TrimSpace(v)
	return v != "" && !placeholderKey.MatchString(v)
}

// Path joins elements under the data directory.
func (c *Config) Path(elem ...string) string {
	return filepath.Join(append([]string{c.DataDir}, elem...)...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
