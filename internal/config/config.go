package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	GitHub     GitHubConfig     `mapstructure:"github"`
	Summarizer SummarizerConfig `mapstructure:"summarizer"`
	Jobs       JobsConfig       `mapstructure:"jobs"`
	Collector  CollectorConfig  `mapstructure:"collector"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres
	Path            string        `mapstructure:"path"`   // sqlite file path
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN builds the driver-specific connection string.
// Parameters: none.
// Returns:
//   - string: connection string for the configured driver.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
	}
	return c.Path
}

type GitHubConfig struct {
	Token           string        `mapstructure:"token"`
	PerPage         int           `mapstructure:"per_page"`
	RequestInterval time.Duration `mapstructure:"request_interval"` // pacing between API calls
	AuthorBlacklist []string      `mapstructure:"author_blacklist"` // author display names to exclude
}

type SummarizerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Model   string `mapstructure:"model"`
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

type JobsConfig struct {
	Retention         time.Duration `mapstructure:"retention"`           // terminal job retention window
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`      // GC sweep cadence
	JobTimeout        time.Duration `mapstructure:"job_timeout"`         // per-job watchdog
	PerRepoDetailCap  int           `mapstructure:"per_repo_detail_cap"` // detail fetches per repo per run
	PacingDelay       time.Duration `mapstructure:"pacing_delay"`        // delay between detail fetches and repos
	DefaultAnnotate   bool          `mapstructure:"default_annotate"`
	DefaultSinceDays  int           `mapstructure:"default_since_days"`
	DefaultRepos      []string      `mapstructure:"default_repos"`
}

type CollectorConfig struct {
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/commitdeck.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("github.per_page", 50)
	v.SetDefault("github.request_interval", "200ms")
	v.SetDefault("github.author_blacklist", []string{})
	v.SetDefault("summarizer.enabled", true)
	v.SetDefault("summarizer.model", "gpt-4o-mini")
	v.SetDefault("summarizer.base_url", "https://api.openai.com/v1")
	v.SetDefault("jobs.retention", "1h")
	v.SetDefault("jobs.sweep_interval", "10m")
	v.SetDefault("jobs.job_timeout", "30m")
	v.SetDefault("jobs.per_repo_detail_cap", 5)
	v.SetDefault("jobs.pacing_delay", "200ms")
	v.SetDefault("jobs.default_annotate", true)
	v.SetDefault("jobs.default_since_days", 30)
	v.SetDefault("jobs.default_repos", []string{})
	v.SetDefault("collector.command", "")
	v.SetDefault("collector.args", []string{})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("github.token", "GITHUB_TOKEN")
	v.BindEnv("summarizer.api_key", "OPENAI_API_KEY")
	v.BindEnv("summarizer.base_url", "OPENAI_BASE_URL")
	v.BindEnv("summarizer.model", "SUMMARIZER_MODEL")
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.name", "DB_NAME")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
