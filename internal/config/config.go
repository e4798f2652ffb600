package config

import (
	"fmt"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/viper"
)

// Config holds everything the server and the CLI need at startup.
type Config struct {
	Port string

	DatabaseURL string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	DBSSLMode   string

	JWTSecret string
	TokenTTL  time.Duration

	LogLevel           string
	LogFormat          string
	SlowQueryThreshold time.Duration

	TxMaxRetries      int
	TxTimeout         time.Duration
	VoteRatePerMinute int

	CORSOrigins []string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", "5432")
	v.SetDefault("db_user", "postgres")
	v.SetDefault("db_name", "qaforum")
	v.SetDefault("db_sslmode", "disable")
	v.SetDefault("token_ttl", 72*time.Hour)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("slow_query_threshold", time.Second)
	v.SetDefault("tx_max_retries", 5)
	v.SetDefault("tx_timeout", 10*time.Second)
	v.SetDefault("vote_rate_per_minute", 120)
	v.SetDefault("cors_origins", "*")
}

// Load reads configuration from the environment (and .env via godotenv)
// through the given viper instance. Flags bound to v take precedence.
func Load(v *viper.Viper) (Config, error) {
	setDefaults(v)
	v.AutomaticEnv()

	cfg := Config{
		Port:               v.GetString("port"),
		DatabaseURL:        v.GetString("database_url"),
		DBHost:             v.GetString("db_host"),
		DBPort:             v.GetString("db_port"),
		DBUser:             v.GetString("db_user"),
		DBPassword:         v.GetString("db_password"),
		DBName:             v.GetString("db_name"),
		DBSSLMode:          v.GetString("db_sslmode"),
		JWTSecret:          v.GetString("jwt_secret"),
		TokenTTL:           v.GetDuration("token_ttl"),
		LogLevel:           strings.ToLower(v.GetString("log_level")),
		LogFormat:          strings.ToLower(v.GetString("log_format")),
		SlowQueryThreshold: v.GetDuration("slow_query_threshold"),
		TxMaxRetries:       v.GetInt("tx_max_retries"),
		TxTimeout:          v.GetDuration("tx_timeout"),
		VoteRatePerMinute:  v.GetInt("vote_rate_per_minute"),
		CORSOrigins:        splitList(v.GetString("cors_origins")),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.TxMaxRetries < 1 {
		return fmt.Errorf("TX_MAX_RETRIES must be at least 1, got %d", c.TxMaxRetries)
	}
	if c.TxTimeout <= 0 {
		return fmt.Errorf("TX_TIMEOUT must be positive, got %s", c.TxTimeout)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// DSN returns the postgres connection string. DATABASE_URL wins over the
// individual DB_* variables when set.
func (c Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort, c.DBSSLMode,
	)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
