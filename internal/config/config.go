// Package config loads engine configuration from the environment, in the
// same layered fashion the rest of this codebase uses for every other
// external dependency: environment variables take precedence, an optional
// file supplies defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Session  SessionConfig
	CORS     CORSConfig
}

// ServerConfig is the HTTP/WebSocket server configuration.
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// PostgresConfig configures the document store (quiz content, final results).
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig configures the fast store (session state, locks, caches).
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig configures verification of the bearer token the engine
// consumes as a verified user identity. Token issuance is out of scope;
// only the signing secret used to validate inbound tokens and an optional
// expected issuer are needed here.
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// SessionConfig holds engine-specific tunables.
type SessionConfig struct {
	TTLHours             int `mapstructure:"ttl_hours"`
	DefaultQuestionSeconds int `mapstructure:"default_question_seconds"`
}

// CORSConfig configures allowed browser origins for the REST auxiliaries.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load loads configuration from environment variables (prefixed APP_, with
// explicit binds for unprefixed standard names) and an optional config
// file named by APP_CONFIG_FILE.
func Load() (*Config, error) {
	cfg := &Config{}
	v := viper.New()

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvVariables(v)
	setDefaults(v)

	if configFile := os.Getenv("APP_CONFIG_FILE"); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			log.Warn().Err(err).Str("path", configFile).Msg("unable to read config file, continuing with env/defaults")
		} else {
			log.Info().Str("path", v.ConfigFileUsed()).Msg("loaded config file")
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if raw := v.GetString("cors.allowed_origins"); raw != "" && len(cfg.CORS.AllowedOrigins) == 0 {
		cfg.CORS.AllowedOrigins = strings.Split(raw, ",")
	}

	return cfg, nil
}

func bindEnvVariables(v *viper.Viper) {
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	v.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")
	v.BindEnv("server.idle_timeout", "SERVER_IDLE_TIMEOUT")

	v.BindEnv("postgres.host", "POSTGRES_HOST")
	v.BindEnv("postgres.port", "POSTGRES_PORT")
	v.BindEnv("postgres.user", "POSTGRES_USER")
	v.BindEnv("postgres.password", "POSTGRES_PASSWORD")
	v.BindEnv("postgres.database", "POSTGRES_DB")
	v.BindEnv("postgres.sslmode", "POSTGRES_SSLMODE")

	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")

	v.BindEnv("jwt.secret", "JWT_SECRET")
	v.BindEnv("jwt.issuer", "JWT_ISSUER")

	v.BindEnv("session.ttl_hours", "SESSION_TTL_HOURS")
	v.BindEnv("session.default_question_seconds", "SESSION_DEFAULT_QUESTION_SECONDS")

	v.BindEnv("cors.allowed_origins", "CORS_ALLOWED_ORIGINS")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)

	v.SetDefault("postgres.sslmode", "disable")

	v.SetDefault("redis.db", 0)

	v.SetDefault("session.ttl_hours", 6)
	v.SetDefault("session.default_question_seconds", 20)
}

// GetConnectionString returns a formatted PostgreSQL connection string.
func (p PostgresConfig) GetConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode)
}

// GetAddr returns the Redis address in "host:port" form.
func (r RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// TTL returns the session time-to-live as a duration.
func (s SessionConfig) TTL() time.Duration {
	return time.Duration(s.TTLHours) * time.Hour
}
