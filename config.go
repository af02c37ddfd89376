package kivaquery

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	KivaAppId           string `mapstructure:"KIVA_APP_ID"`
	KivaBaseURL         string `mapstructure:"KIVA_BASE_URL"`
	KivaDumpDir         string `mapstructure:"KIVA_DUMP_DIR"`
	QueryCache          string `mapstructure:"QUERY_CACHE"`
	QueryCacheDir       string `mapstructure:"QUERY_CACHE_DIR"`
	GeocodeCache        string `mapstructure:"GEOCODE_CACHE"`
	GoogleGeocodeAPIKey string `mapstructure:"GOOGLE_GEOCODE_API_KEY"`
	PostgresUrl         string `mapstructure:"POSTGRES_URL"`
	MigrationsDir       string `mapstructure:"MIGRATIONS_DIR"`
	RedisAddr           string `mapstructure:"REDIS_ADDR"`
	RedisPassword       string `mapstructure:"REDIS_PASSWORD"`
	RedisDB             int    `mapstructure:"REDIS_DB"`
	RedisPrefix         string `mapstructure:"REDIS_PREFIX"`
	S3Endpoint          string `mapstructure:"S3_ENDPOINT"`
	S3AccessKey         string `mapstructure:"S3_ACCESS_KEY"`
	S3SecretKey         string `mapstructure:"S3_SECRET_KEY"`
	S3Bucket            string `mapstructure:"S3_BUCKET"`
	S3Region            string `mapstructure:"S3_REGION"`
	S3UseSSL            bool   `mapstructure:"S3_USE_SSL"`
	S3Prefix            string `mapstructure:"S3_PREFIX"`
	ApiPort             string `mapstructure:"API_PORT"`
	LogLevel            string `mapstructure:"LOG_LEVEL"`
}

var configDefaults = map[string]interface{}{
	"KIVA_APP_ID":            "com.kivanewyork.query",
	"KIVA_BASE_URL":          "https://api.kivaws.org/v1",
	"KIVA_DUMP_DIR":          "./data/dumps",
	"QUERY_CACHE":            "./data/query_cache.json",
	"QUERY_CACHE_DIR":        "./data/query_cache",
	"GEOCODE_CACHE":          "./data/geocode_cache.json",
	"GOOGLE_GEOCODE_API_KEY": "",
	"POSTGRES_URL":           "",
	"MIGRATIONS_DIR":         "./migrations",
	"REDIS_ADDR":             "",
	"REDIS_PASSWORD":         "",
	"REDIS_DB":               0,
	"REDIS_PREFIX":           "kivaquery_",
	"S3_ENDPOINT":            "localhost:9000",
	"S3_ACCESS_KEY":          "",
	"S3_SECRET_KEY":          "",
	"S3_BUCKET":              "exports",
	"S3_REGION":              "us-east-1",
	"S3_USE_SSL":             false,
	"S3_PREFIX":              "",
	"API_PORT":               "8080",
	"LOG_LEVEL":              "info",
}

// LoadConfig reads configPath when it exists, then lets the environment override any key
func LoadConfig(configPath string) (Config, error) {
	v := viper.New()
	v.SetConfigType("env")

	for key, value := range configDefaults {
		v.SetDefault(key, value)
	}

	v.AutomaticEnv()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return Config{}, fmt.Errorf("unable to read config %q: %w", configPath, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("unable to stat config %q: %w", configPath, err)
		}
	}

	c := Config{}
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unable to decode config: %w", err)
	}

	return c, nil
}

func (c Config) Redis() RedisConfig {
	return RedisConfig{
		Addr:        c.RedisAddr,
		Password:    c.RedisPassword,
		DB:          c.RedisDB,
		DialTimeout: 10 * time.Second,
		Timeout:     5 * time.Second,
		Prefix:      c.RedisPrefix,
	}
}

func (c Config) S3() S3Config {
	return S3Config{
		Endpoint:        c.S3Endpoint,
		AccessKeyId:     c.S3AccessKey,
		SecretAccessKey: c.S3SecretKey,
		Bucket:          c.S3Bucket,
		UseSSL:          c.S3UseSSL,
		Region:          c.S3Region,
		Prefix:          c.S3Prefix,
	}
}
