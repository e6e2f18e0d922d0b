package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Database DatabaseConfig `json:"database" yaml:"database"`
	ML       MLConfig       `json:"ml" yaml:"ml"`
	Log      LogConfig      `json:"log" yaml:"log"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port          string `json:"port" yaml:"port"`
	StaticDir     string `json:"static_dir" yaml:"static_dir"`
	Debug         bool   `json:"debug" yaml:"debug"`
	SessionSecret string `json:"session_secret" yaml:"session_secret"`
	SecureCookies bool   `json:"secure_cookies" yaml:"secure_cookies"`
	HistoryLimit  int    `json:"history_limit" yaml:"history_limit"`
	// AllowedOrigins are the cross-origin callers allowed to use the API
	// and the websocket. Same-origin requests are always allowed.
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
}

// DatabaseConfig selects and configures the profile/history store.
type DatabaseConfig struct {
	Driver string `json:"driver" yaml:"driver"` // "sqlite" or "postgres"
	Path   string `json:"path" yaml:"path"`     // sqlite file
	URL    string `json:"url" yaml:"url"`       // postgres connection string
}

// MLConfig selects and configures the generative model backend.
type MLConfig struct {
	Type            string `json:"type" yaml:"type"` // "google" (Vertex AI) or "gemini" (API key)
	Model           string `json:"model" yaml:"model"`
	ProjectID       string `json:"project_id" yaml:"project_id"`
	Location        string `json:"location" yaml:"location"`
	CredentialsFile string `json:"credentials_file" yaml:"credentials_file"`
	APIKey          string `json:"api_key" yaml:"api_key"`
	Timeout         string `json:"timeout" yaml:"timeout"`
}

// TimeoutDuration parses Timeout, falling back to the default.
func (c MLConfig) TimeoutDuration() time.Duration {
	if d, err := time.ParseDuration(c.Timeout); err == nil && d > 0 {
		return d
	}
	return DefaultTimeout
}

// LogConfig configures zerolog.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Pretty bool   `json:"pretty" yaml:"pretty"`
}

const (
	DefaultPort         = "8080"
	DefaultModel        = "gemini-2.0-flash"
	DefaultTimeout      = 30 * time.Second
	DefaultHistoryLimit = 10
)

// Default returns a configuration with every default filled in.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig loads configuration from a JSON or YAML file, then applies
// environment overrides and defaults.
func LoadConfig(configPath string) (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	var config Config
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := unmarshal(configPath, data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case os.IsNotExist(err):
		// Environment-only configuration.
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config.applyEnvOverrides()
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func unmarshal(path string, data []byte, out *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, out)
	default:
		return json.Unmarshal(data, out)
	}
}

// applyEnvOverrides lets the environment win over the file.
func (c *Config) applyEnvOverrides() {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString(&c.Server.Port, "PORT")
	setString(&c.Server.StaticDir, "HEALTHWISE_STATIC_DIR")
	setString(&c.Server.SessionSecret, "SESSION_SECRET")
	setString(&c.Database.Driver, "HEALTHWISE_DB_DRIVER")
	setString(&c.Database.Path, "HEALTHWISE_DB_PATH")
	setString(&c.Database.URL, "DATABASE_URL")
	setString(&c.ML.Type, "HEALTHWISE_ML_TYPE")
	setString(&c.ML.Model, "HEALTHWISE_ML_MODEL")
	setString(&c.ML.ProjectID, "GOOGLE_PROJECT_ID")
	setString(&c.ML.Location, "GOOGLE_LOCATION")
	setString(&c.ML.CredentialsFile, "GOOGLE_CREDENTIALS_FILE")
	setString(&c.ML.Timeout, "HEALTHWISE_ML_TIMEOUT")
	setString(&c.Log.Level, "LOG_LEVEL")
	if v := os.Getenv("HEALTHWISE_ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = nil
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				c.Server.AllowedOrigins = append(c.Server.AllowedOrigins, origin)
			}
		}
	}

	// An API key selects the Gemini API backend unless a type was chosen.
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.ML.APIKey = key
		if c.ML.Type == "" {
			c.ML.Type = "gemini"
		}
	}
	if v, err := strconv.ParseBool(os.Getenv("HEALTHWISE_DEBUG")); err == nil {
		c.Server.Debug = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = DefaultPort
	}
	if c.Server.StaticDir == "" {
		c.Server.StaticDir = "./static"
	}
	if c.Server.HistoryLimit <= 0 {
		c.Server.HistoryLimit = DefaultHistoryLimit
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Path == "" {
		c.Database.Path = "healthwise.db"
	}
	if c.ML.Type == "" {
		c.ML.Type = "google"
	}
	if c.ML.Model == "" {
		c.ML.Model = DefaultModel
	}
	if c.ML.Location == "" {
		c.ML.Location = "us-central1"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
		if c.Server.Debug {
			c.Log.Level = "debug"
		}
	}
}

// Validate rejects configurations that cannot start.
func (c *Config) Validate() error {
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return fmt.Errorf("server port %q is not a number", c.Server.Port)
	}
	for _, origin := range c.Server.AllowedOrigins {
		if strings.Contains(origin, "*") {
			return fmt.Errorf("allowed origin %q must be an exact origin", origin)
		}
		if !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return fmt.Errorf("allowed origin %q must start with http:// or https://", origin)
		}
	}
	switch c.Database.Driver {
	case "sqlite":
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("database url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	switch c.ML.Type {
	case "google", "gemini":
	default:
		return fmt.Errorf("unsupported model type: %s", c.ML.Type)
	}
	if c.ML.Timeout != "" {
		if _, err := time.ParseDuration(c.ML.Timeout); err != nil {
			return fmt.Errorf("invalid ml timeout %q: %w", c.ML.Timeout, err)
		}
	}
	return nil
}

// GetConfigPath returns the path to the configuration file
func GetConfigPath() string {
	// First try environment variable
	if path := os.Getenv("HEALTHWISE_CONFIG"); path != "" {
		return path
	}

	// Then try config directory
	for _, name := range []string{"config.yaml", "config.yml", "config.json"} {
		path := filepath.Join("config", name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	// Finally, try current directory
	return "config.json"
}
