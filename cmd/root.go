package cmd

import (
	"errors"
	"io/fs"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/shl-recommender/internal/querycache"
	"github.com/spigell/shl-recommender/internal/scraper"
	"github.com/spigell/shl-recommender/internal/server"
)

const (
	app = "shl-recommender"
)

type Config struct {
	Catalog   *CatalogConfig    `mapstructure:"catalog"`
	Index     *IndexConfig      `mapstructure:"index"`
	Gemini    *GeminiConfig     `mapstructure:"gemini"`
	Recommend *RecommendConfig  `mapstructure:"recommend"`
	Server    server.Config     `mapstructure:"server"`
	Cache     querycache.Config `mapstructure:"cache"`
	Watch     *WatchConfig      `mapstructure:"watch"`
	Scraper   scraper.Config    `mapstructure:"scraper"`
}

type CatalogConfig struct {
	Files []string `mapstructure:"files"`
}

type IndexConfig struct {
	Dir          string        `mapstructure:"dir"`
	IndexFile    string        `mapstructure:"index-file"`
	MetadataFile string        `mapstructure:"metadata-file"`
	BatchSize    int           `mapstructure:"batch-size"`
	BuildTimeout time.Duration `mapstructure:"build-timeout"`
}

type GeminiConfig struct {
	APIKey          string        `mapstructure:"api-key"`
	APIKeyFile      string        `mapstructure:"api-key-file"`
	EmbeddingModel  string        `mapstructure:"embedding-model"`
	GenerationModel string        `mapstructure:"generation-model"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxRetries      int           `mapstructure:"max-retries"`
	MaxLogLength    int           `mapstructure:"max-log-length"`
}

type RecommendConfig struct {
	DefaultK int  `mapstructure:"default-k"`
	MaxK     int  `mapstructure:"max-k"`
	Enhance  bool `mapstructure:"enhance"`
}

type WatchConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Debounce time.Duration `mapstructure:"debounce"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:          app,
		Short:        "shl-recommender recommends SHL assessments for a job description or hiring query",
		SilenceUsage: true,
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	setDefaults()

	for key, env := range map[string]string{
		"gemini.api-key":      "GOOGLE_API_KEY",
		"gemini.api-key-file": "GOOGLE_API_KEY_FILE",
		"cache.redis.addr":    "SHL_REDIS_ADDR",
	} {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is shl-recommender.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func setDefaults() {
	viper.SetDefault("catalog.files", []string{"shl_assessments_individual.json", "shl_assessments_pre.json"})

	viper.SetDefault("index.dir", ".")
	viper.SetDefault("index.index-file", "shl_index.bin")
	viper.SetDefault("index.metadata-file", "shl_metadata.json")
	viper.SetDefault("index.batch-size", 100)
	viper.SetDefault("index.build-timeout", "10m")

	viper.SetDefault("gemini.embedding-model", "text-embedding-004")
	viper.SetDefault("gemini.generation-model", "gemini-2.0-flash")
	viper.SetDefault("gemini.timeout", "30s")
	viper.SetDefault("gemini.max-retries", 1)
	viper.SetDefault("gemini.max-log-length", 200)

	viper.SetDefault("recommend.default-k", 10)
	viper.SetDefault("recommend.max-k", 50)
	viper.SetDefault("recommend.enhance", true)

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8000)
	viper.SetDefault("server.request-timeout", "60s")
	viper.SetDefault("server.cors-origins", []string{"*"})

	viper.SetDefault("cache.enabled", false)
	viper.SetDefault("cache.backend", querycache.BackendMemory)
	viper.SetDefault("cache.size", querycache.DefaultSize)
	viper.SetDefault("cache.ttl", "24h")

	viper.SetDefault("watch.enabled", false)
	viper.SetDefault("watch.debounce", "2s")

	viper.SetDefault("scraper.base-url", scraper.DefaultBaseURL)
	viper.SetDefault("scraper.delay", "2s")
	viper.SetDefault("scraper.timeout", "10s")
}

func initConfig() {
	// Values from .env never override the real environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("loading .env: %v", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// The config file is optional unless it was given explicitly.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	if config.Catalog == nil || len(config.Catalog.Files) == 0 {
		return nil, errors.New("catalog.files must list at least one catalog file")
	}
	if config.Index == nil || config.Gemini == nil || config.Recommend == nil {
		return nil, errors.New("configuration is incomplete: missing index, gemini or recommend section")
	}
	if config.Watch == nil {
		config.Watch = &WatchConfig{}
	}

	return config, nil
}
