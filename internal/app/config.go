package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/yungbote/neurobridge-tutor/internal/domain/quota"
)

type Config struct {
	LogMode string        `mapstructure:"log_mode" validate:"required,oneof=development production test"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	DB      DBConfig      `mapstructure:"db"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Auth    AuthConfig    `mapstructure:"auth"`
	LLM     LLMConfig     `mapstructure:"llm"`
	Quota   QuotaConfig   `mapstructure:"quota"`
	Session SessionConfig `mapstructure:"session"`
	Reset   ResetConfig   `mapstructure:"reset"`
	Otel    OtelConfig    `mapstructure:"otel"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	GinMode         string        `mapstructure:"gin_mode" validate:"oneof=debug release test"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

type DBConfig struct {
	Driver       string `mapstructure:"driver" validate:"required,oneof=postgres sqlite"`
	DSN          string `mapstructure:"dsn" validate:"required"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" validate:"gte=0"`
	LogLevel     string `mapstructure:"log_level" validate:"oneof=silent error warn info"`
}

// RedisConfig is optional. With an address set, session leases live in Redis
// instead of the database.
type RedisConfig struct {
	Addr        string `mapstructure:"addr"`
	LeasePrefix string `mapstructure:"lease_prefix" validate:"required"`
}

type AuthConfig struct {
	JWTSecretKey   string        `mapstructure:"jwt_secret_key" validate:"required,min=16"`
	Issuer         string        `mapstructure:"issuer"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl" validate:"gt=0"`
}

type LLMConfig struct {
	Provider    string        `mapstructure:"provider" validate:"required,oneof=openai anthropic mock"`
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"api_key" validate:"required_unless=Provider mock"`
	BaseURL     string        `mapstructure:"base_url" validate:"omitempty,url"`
	MaxAttempts uint          `mapstructure:"max_attempts" validate:"gte=1,lte=10"`
	RetryDelay  time.Duration `mapstructure:"retry_delay" validate:"gte=0"`

	// CallTimeout bounds every quota-guarded AI call, retries included.
	CallTimeout          time.Duration `mapstructure:"call_timeout" validate:"gt=0"`
	QuizMaxTokens        int           `mapstructure:"quiz_max_tokens" validate:"gt=0"`
	ExplainMaxTokens     int           `mapstructure:"explain_max_tokens" validate:"gt=0"`
	AutoExplainMaxTokens int           `mapstructure:"auto_explain_max_tokens" validate:"gt=0"`
	Temperature          float64       `mapstructure:"temperature" validate:"gte=0,lte=2"`
}

type QuotaConfig struct {
	LearningInteractions int `mapstructure:"learning_interactions" validate:"gt=0"`
	AutoExplain          int `mapstructure:"auto_explain" validate:"gt=0"`
}

// Limits maps the configured defaults onto buckets.
func (q QuotaConfig) Limits() map[quota.Bucket]int {
	return map[quota.Bucket]int{
		quota.BucketLearningInteractions: q.LearningInteractions,
		quota.BucketAutoExplain:          q.AutoExplain,
	}
}

type SessionConfig struct {
	LeaseTTL time.Duration `mapstructure:"lease_ttl" validate:"gt=0"`
}

type ResetConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Interval    time.Duration `mapstructure:"interval" validate:"gte=1m"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"gt=0"`
	BatchSize   int           `mapstructure:"batch_size" validate:"gt=0,lte=10000"`
	Concurrency int           `mapstructure:"concurrency" validate:"gt=0,lte=64"`
	MaxAttempts uint          `mapstructure:"max_attempts" validate:"gte=1"`
	RetryDelay  time.Duration `mapstructure:"retry_delay" validate:"gte=0"`
	StaleAfter  time.Duration `mapstructure:"stale_after" validate:"gt=0"`
}

type OtelConfig struct {
	Enabled     bool              `mapstructure:"enabled"`
	ServiceName string            `mapstructure:"service_name" validate:"required"`
	Environment string            `mapstructure:"environment"`
	Endpoint    string            `mapstructure:"endpoint"`
	Insecure    bool              `mapstructure:"insecure"`
	Headers     map[string]string `mapstructure:"headers"`
	SampleRatio float64           `mapstructure:"sample_ratio" validate:"gte=0,lte=1"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_mode", "development")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.gin_mode", "release")
	v.SetDefault("http.allowed_origins", []string{})
	v.SetDefault("http.shutdown_timeout", "15s")

	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.dsn", "host=localhost user=postgres password=postgres dbname=tutor port=5432 sslmode=disable")
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.log_level", "warn")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.lease_prefix", "tutor:lease:")

	v.SetDefault("auth.jwt_secret_key", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.access_token_ttl", "1h")

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.max_attempts", 3)
	v.SetDefault("llm.retry_delay", "500ms")
	v.SetDefault("llm.call_timeout", "60s")
	v.SetDefault("llm.quiz_max_tokens", 2048)
	v.SetDefault("llm.explain_max_tokens", 1200)
	v.SetDefault("llm.auto_explain_max_tokens", 800)
	v.SetDefault("llm.temperature", 0.3)

	v.SetDefault("quota.learning_interactions", 150)
	v.SetDefault("quota.auto_explain", 20)

	v.SetDefault("session.lease_ttl", "2m")

	v.SetDefault("reset.enabled", true)
	v.SetDefault("reset.interval", "1h")
	v.SetDefault("reset.timeout", "30m")
	v.SetDefault("reset.batch_size", 500)
	v.SetDefault("reset.concurrency", 8)
	v.SetDefault("reset.max_attempts", 3)
	v.SetDefault("reset.retry_delay", "200ms")
	v.SetDefault("reset.stale_after", "15m")

	v.SetDefault("otel.enabled", false)
	v.SetDefault("otel.service_name", "neurobridge-tutor")
	v.SetDefault("otel.environment", "")
	v.SetDefault("otel.endpoint", "")
	v.SetDefault("otel.insecure", false)
	v.SetDefault("otel.sample_ratio", 1.0)
}

// Load reads configFile (or ./config.yaml when empty), then the environment.
// Every key can be set as TUTOR_<SECTION>_<KEY>; the common secrets also
// accept their conventional unprefixed names.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	v.SetEnvPrefix("TUTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, envs := range map[string][]string{
		"auth.jwt_secret_key": {"TUTOR_AUTH_JWT_SECRET_KEY", "JWT_SECRET_KEY"},
		"db.dsn":              {"TUTOR_DB_DSN", "DATABASE_URL"},
		"redis.addr":          {"TUTOR_REDIS_ADDR", "REDIS_ADDR"},
		"llm.api_key":         {"TUTOR_LLM_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY"},
		"log_mode":            {"TUTOR_LOG_MODE", "LOG_MODE"},
	} {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("failed to bind environment for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("configuration file found but could not be read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration format: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every failing field in one error, worded by the English translator.
func (c *Config) Validate() error {
	validate, trans, err := newValidator()
	if err != nil {
		return err
	}
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validate config: %w", err)
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fe.Translate(trans))
		}
		return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
	}
	return nil
}
