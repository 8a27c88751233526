package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:",squash"`
	Database DatabaseConfig `mapstructure:",squash"`
	Redis    RedisConfig    `mapstructure:",squash"`
	Kafka    KafkaConfig    `mapstructure:",squash"`
	Feed     FeedConfig     `mapstructure:",squash"`
	Cache    CacheConfig    `mapstructure:",squash"`
}

type AppConfig struct {
	AppName     string `mapstructure:"app_name"`
	Environment string `mapstructure:"app_env"`
	HTTPPort    string `mapstructure:"http_port"`
}

type DatabaseConfig struct {
	DBHost     string `mapstructure:"db_host"`
	DBPort     string `mapstructure:"db_port"`
	DBName     string `mapstructure:"db_name"`
	DBUser     string `mapstructure:"db_user"`
	DBPassword string `mapstructure:"db_password"`
	DBSSLMode  string `mapstructure:"db_ssl_mode"`

	ConnectTimeout        time.Duration `mapstructure:"db_connect_timeout"`
	PoolMaxConns          int32         `mapstructure:"db_pool_max_conns"`
	PoolMinConns          int32         `mapstructure:"db_pool_min_conns"`
	PoolMaxConnLifetime   time.Duration `mapstructure:"db_pool_max_conn_lifetime"`
	PoolMaxConnIdleTime   time.Duration `mapstructure:"db_pool_max_conn_idle_time"`
	PoolHealthCheckPeriod time.Duration `mapstructure:"db_pool_health_check_period"`
}

type RedisConfig struct {
	Host     string `mapstructure:"redis_host"`
	Port     string `mapstructure:"redis_port"`
	Password string `mapstructure:"redis_password"`
	DB       int    `mapstructure:"redis_db"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", strings.TrimSpace(c.Host), strings.TrimSpace(c.Port))
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"kafka_brokers"`
	Topic   string   `mapstructure:"kafka_topic"`
	GroupID string   `mapstructure:"kafka_group_id"`
}

// FeedConfig carries the ranking knobs. Base weights and the decay half-life
// are business tuning, not correctness: the scorer only requires weights to be
// non-negative and the decay to be strictly decreasing in age.
type FeedConfig struct {
	BaseWeights    map[string]float64 `mapstructure:"feed_base_weights"`
	DecayHalfLife  time.Duration      `mapstructure:"feed_decay_half_life"`
	SweepInterval  time.Duration      `mapstructure:"feed_sweep_interval"`
	SweepBatchSize int                `mapstructure:"feed_sweep_batch_size"`
	Retention      time.Duration      `mapstructure:"feed_retention"`
}

type CacheConfig struct {
	MatchTTL          time.Duration `mapstructure:"cache_match_ttl"`
	RecommendationTTL time.Duration `mapstructure:"cache_recommendation_ttl"`
	MinMatchPercent   float64       `mapstructure:"recommendation_min_match"`
}

var errMissingRequiredEnv = errors.New("missing required environment variables")

func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("app_name", "jobfeed")
	v.SetDefault("app_env", "development")
	v.SetDefault("http_port", "8080")

	// Empty defaults keep env-only keys visible to Unmarshal.
	v.SetDefault("db_host", "")
	v.SetDefault("db_port", "")
	v.SetDefault("db_name", "")
	v.SetDefault("db_user", "")
	v.SetDefault("db_password", "")
	v.SetDefault("db_ssl_mode", "disable")
	v.SetDefault("db_connect_timeout", 5*time.Second)
	v.SetDefault("db_pool_max_conns", 0)
	v.SetDefault("db_pool_min_conns", 0)
	v.SetDefault("db_pool_max_conn_lifetime", time.Duration(0))
	v.SetDefault("db_pool_max_conn_idle_time", time.Duration(0))
	v.SetDefault("db_pool_health_check_period", time.Duration(0))
	v.SetDefault("redis_password", "")

	v.SetDefault("redis_host", "localhost")
	v.SetDefault("redis_port", "6379")
	v.SetDefault("redis_db", 0)

	v.SetDefault("kafka_brokers", []string{"localhost:9092"})
	v.SetDefault("kafka_topic", "jobportal.domain-events")
	v.SetDefault("kafka_group_id", "jobfeed-publisher")

	v.SetDefault("feed_base_weights", map[string]float64{
		"job_posted":            1.0,
		"company_joined":        0.5,
		"promotion_activated":   10.0,
		"application_milestone": 0.8,
	})
	v.SetDefault("feed_decay_half_life", 48*time.Hour)
	v.SetDefault("feed_sweep_interval", 15*time.Minute)
	v.SetDefault("feed_sweep_batch_size", 500)
	v.SetDefault("feed_retention", 180*24*time.Hour)

	v.SetDefault("cache_match_ttl", 5*time.Minute)
	v.SetDefault("cache_recommendation_ttl", 5*time.Minute)
	v.SetDefault("recommendation_min_match", 50.0)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	var missing []string
	req := func(key, val string) {
		if strings.TrimSpace(val) == "" {
			missing = append(missing, key)
		}
	}
	req("DB_HOST", cfg.Database.DBHost)
	req("DB_PORT", cfg.Database.DBPort)
	req("DB_NAME", cfg.Database.DBName)
	req("DB_USER", cfg.Database.DBUser)
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("%w: %s", errMissingRequiredEnv, strings.Join(missing, ", "))
	}

	return cfg, nil
}
