package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration. It is loaded once per
// invocation and treated as immutable afterwards.
type Config struct {
	App        App        `mapstructure:"app"`
	Sources    Sources    `mapstructure:"sources"`
	Cluster    Cluster    `mapstructure:"cluster"`
	Generation Generation `mapstructure:"generation"`
	Images     Images     `mapstructure:"images"`
	Fetch      Fetch      `mapstructure:"fetch"`
}

// App holds general application configuration.
type App struct {
	Debug   bool   `mapstructure:"debug"`
	DataDir string `mapstructure:"data_dir"`
}

// Sources holds upstream feed configuration.
type Sources struct {
	NewsAPIKey string   `mapstructure:"newsapi_key"`
	Language   string   `mapstructure:"language"`
	PageSize   int      `mapstructure:"page_size"`
	RSSFeeds   []string `mapstructure:"rss_feeds"`
	Timeout    string   `mapstructure:"timeout"`
}

// Cluster holds grouping configuration.
type Cluster struct {
	WindowHours     int      `mapstructure:"window_hours"`
	PrefixBits      int      `mapstructure:"prefix_bits"`
	MinClusterSize  int      `mapstructure:"min_cluster_size"`
	ExcludedDomains []string `mapstructure:"excluded_domains"`
}

// Generation holds text-generation backend configuration.
type Generation struct {
	Enabled     bool    `mapstructure:"enabled"`
	GeminiKey   string  `mapstructure:"gemini_key"`
	Model       string  `mapstructure:"model"`
	Temperature float32 `mapstructure:"temperature"`
	Timeout     string  `mapstructure:"timeout"`
	// LegacyGate switches the generation gate back to the non-transactional
	// check-then-insert used by early versions of the pipeline.
	LegacyGate bool `mapstructure:"legacy_gate"`
}

// Images holds image backend configuration.
type Images struct {
	Enabled   bool   `mapstructure:"enabled"`
	OpenAIKey string `mapstructure:"openai_key"`
	Model     string `mapstructure:"model"`
	Size      string `mapstructure:"size"`
	RunLimit  int    `mapstructure:"run_limit"`
	Timeout   string `mapstructure:"timeout"`
}

// Fetch holds article-body fetch configuration.
type Fetch struct {
	Timeout        string `mapstructure:"timeout"`
	PerSourceChars int    `mapstructure:"per_source_chars"`
	UserAgent      string `mapstructure:"user_agent"`
}

var globalConfig *Config

// Load loads the configuration from .env, config file, and environment.
// Passing an explicit configFile always (re)loads from that file; with an
// empty path an already-loaded configuration is reused.
func Load(configFile string) (*Config, error) {
	if globalConfig != nil && configFile == "" {
		return globalConfig, nil
	}

	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Printf("Warning: Error loading .env file: %v\n", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".itriggr")
		viper.SetConfigType("yaml")
	}

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	bindEnvironmentVariables()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it if necessary.
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

// Reset clears the global configuration so tests can reload it.
func Reset() {
	globalConfig = nil
	viper.Reset()
}

func setDefaults() {
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.data_dir", ".itriggr-data")

	viper.SetDefault("sources.language", "en")
	viper.SetDefault("sources.page_size", 50)
	viper.SetDefault("sources.timeout", "20s")

	viper.SetDefault("cluster.window_hours", 6)
	viper.SetDefault("cluster.prefix_bits", 16)
	viper.SetDefault("cluster.min_cluster_size", 1)
	viper.SetDefault("cluster.excluded_domains", []string{})

	viper.SetDefault("generation.enabled", false)
	viper.SetDefault("generation.model", "gemini-2.0-flash")
	viper.SetDefault("generation.temperature", 0.2)
	viper.SetDefault("generation.timeout", "60s")
	viper.SetDefault("generation.legacy_gate", false)

	viper.SetDefault("images.enabled", false)
	viper.SetDefault("images.model", "gpt-image-1")
	viper.SetDefault("images.size", "1536x1024")
	viper.SetDefault("images.run_limit", 30)
	viper.SetDefault("images.timeout", "120s")

	viper.SetDefault("fetch.timeout", "10s")
	viper.SetDefault("fetch.per_source_chars", 1500)
	viper.SetDefault("fetch.user_agent", "Mozilla/5.0 (compatible; ITriggr/1.0)")
}

func bindEnvironmentVariables() {
	_ = viper.BindEnv("sources.newsapi_key", "NEWSAPI_KEY")
	_ = viper.BindEnv("sources.rss_feeds", "RSS_SOURCES")
	_ = viper.BindEnv("generation.gemini_key", "GEMINI_API_KEY")
	_ = viper.BindEnv("generation.enabled", "USE_GEMINI")
	_ = viper.BindEnv("images.openai_key", "OPENAI_API_KEY")
	_ = viper.BindEnv("images.enabled", "USE_IMAGES")
}

func validateConfig(config *Config) error {
	if config.Cluster.PrefixBits <= 0 || config.Cluster.PrefixBits > 64 || config.Cluster.PrefixBits%4 != 0 {
		return fmt.Errorf("cluster.prefix_bits must be a multiple of 4 in (0, 64], got %d", config.Cluster.PrefixBits)
	}
	if config.Cluster.WindowHours <= 0 {
		return fmt.Errorf("cluster.window_hours must be positive, got %d", config.Cluster.WindowHours)
	}
	if config.Cluster.MinClusterSize < 1 {
		return fmt.Errorf("cluster.min_cluster_size must be at least 1, got %d", config.Cluster.MinClusterSize)
	}
	return nil
}

// Window returns the clustering time window as a duration.
func (c *Config) Window() time.Duration {
	return time.Duration(c.Cluster.WindowHours) * time.Hour
}

// ParseTimeout parses a timeout string, falling back to a default on error.
func ParseTimeout(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
