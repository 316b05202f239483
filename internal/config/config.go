package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port               int      `mapstructure:"port"`
		Environment        string   `mapstructure:"environment"`
		TimeZone           string   `mapstructure:"time_zone"`
		TrustProxy         bool     `mapstructure:"trust_proxy"` // Read client IPs from X-Forwarded-For
		CorsAllowedOrigins []string `mapstructure:"cors_allowed_origins"`
		CorsAllowedMethods []string `mapstructure:"cors_allowed_methods"`
		CorsAllowedHeaders []string `mapstructure:"cors_allowed_headers"`
	} `mapstructure:"server"`

	Database struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"ssl_mode"`
	} `mapstructure:"database"`

	Redis struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		Password string `mapstructure:"password"`
	} `mapstructure:"redis"`

	JWT struct {
		Secret string `mapstructure:"secret"`
		Issuer string `mapstructure:"issuer"`
	} `mapstructure:"jwt"`

	Gateway struct {
		MerchantID     string        `mapstructure:"merchant_id"`
		MerchantKey    string        `mapstructure:"merchant_key"`
		Passphrase     string        `mapstructure:"passphrase"`
		Sandbox        bool          `mapstructure:"sandbox"`
		ConfirmTimeout time.Duration `mapstructure:"confirm_timeout"`
		AllowedCIDRs   []string      `mapstructure:"allowed_cidrs"` // Empty disables the source check
	} `mapstructure:"gateway"`

	Platform struct {
		FeeRate         string `mapstructure:"fee_rate"` // Decimal fraction, e.g. "0.035"
		CallbackBaseURL string `mapstructure:"callback_base_url"`
		AppBaseURL      string `mapstructure:"app_base_url"`
	} `mapstructure:"platform"`

	Archive struct {
		Enabled   bool   `mapstructure:"enabled"`
		Endpoint  string `mapstructure:"endpoint"`
		Region    string `mapstructure:"region"`
		Bucket    string `mapstructure:"bucket"`
		AccessKey string `mapstructure:"access_key"`
		SecretKey string `mapstructure:"secret_key"`
	} `mapstructure:"archive"`

	Jobs struct {
		LatenessSchedule  string `mapstructure:"lateness_schedule"`
		ReconcileSchedule string `mapstructure:"reconcile_schedule"`
	} `mapstructure:"jobs"`

	// FeeRate is Platform.FeeRate parsed once at load
	FeeRate decimal.Decimal `mapstructure:"-"`
}

// IsProduction reports whether the service runs against the live gateway
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// DatabaseURL builds the pgx connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// RedisAddr returns host:port for the Redis client
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// NotifyURL is where the gateway posts notifications
func (c *Config) NotifyURL() string {
	return strings.TrimRight(c.Platform.CallbackBaseURL, "/") + "/webhook"
}

// ReturnURL is where the gateway sends the browser after payment
func (c *Config) ReturnURL() string {
	return strings.TrimRight(c.Platform.AppBaseURL, "/") + "/payments/return"
}

// CancelURL is where the gateway sends the browser when the payer cancels
func (c *Config) CancelURL() string {
	return strings.TrimRight(c.Platform.AppBaseURL, "/") + "/payments/cancel"
}

// Load reads configs/config.yaml (optional), .env (optional) and the environment, once, at start.
func Load() (*Config, error) {
	// Load .env file if exists (ignore error in production)
	if err := godotenv.Load(); err != nil {
		logrus.Debug("[Config] No .env file found")
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile("configs/config.yaml")

	// Auto bind environment variables (server.port -> SERVER_PORT)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		logrus.Infof("[Config] No config file found, using defaults")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.time_zone", "Africa/Johannesburg")
	v.SetDefault("server.cors_allowed_methods", []string{"GET", "POST", "PUT", "OPTIONS"})
	v.SetDefault("server.cors_allowed_headers", []string{"Authorization", "Content-Type"})
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "handshake_db")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("jwt.issuer", "handshake")
	v.SetDefault("gateway.sandbox", true)
	v.SetDefault("gateway.confirm_timeout", 10*time.Second)
	v.SetDefault("platform.fee_rate", "0.035")
	v.SetDefault("archive.region", "auto")
	v.SetDefault("jobs.lateness_schedule", "0 6 * * *")
	v.SetDefault("jobs.reconcile_schedule", "15 * * * *")
}

// applyEnvOverrides maps the short environment names operators already use
func applyEnvOverrides(cfg *Config) {
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Database.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil && n > 0 {
			cfg.Database.Port = n
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.Database.User = user
	}
	if pass := os.Getenv("DB_PASSWORD"); pass != "" {
		cfg.Database.Password = pass
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.Database.Name = name
	}

	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.Redis.Host = host
	}
	if pass := os.Getenv("REDIS_PASSWORD"); pass != "" {
		cfg.Redis.Password = pass
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.JWT.Secret = secret
	}

	if id := os.Getenv("PAYFAST_MERCHANT_ID"); id != "" {
		cfg.Gateway.MerchantID = id
	}
	if key := os.Getenv("PAYFAST_MERCHANT_KEY"); key != "" {
		cfg.Gateway.MerchantKey = key
	}
	if pass := os.Getenv("PAYFAST_PASSPHRASE"); pass != "" {
		cfg.Gateway.Passphrase = pass
	}
	if sandbox := os.Getenv("PAYFAST_SANDBOX"); sandbox != "" {
		cfg.Gateway.Sandbox = sandbox == "true" || sandbox == "1"
	}

	if rate := os.Getenv("PLATFORM_FEE_RATE"); rate != "" {
		cfg.Platform.FeeRate = rate
	}
	if base := os.Getenv("CALLBACK_BASE_URL"); base != "" {
		cfg.Platform.CallbackBaseURL = base
	}
	if base := os.Getenv("APP_BASE_URL"); base != "" {
		cfg.Platform.AppBaseURL = base
	}

	if bucket := os.Getenv("ARCHIVE_BUCKET"); bucket != "" {
		cfg.Archive.Bucket = bucket
		cfg.Archive.Enabled = true
	}
	if endpoint := os.Getenv("ARCHIVE_ENDPOINT"); endpoint != "" {
		cfg.Archive.Endpoint = endpoint
	}
	if key := os.Getenv("ARCHIVE_ACCESS_KEY"); key != "" {
		cfg.Archive.AccessKey = key
	}
	if secret := os.Getenv("ARCHIVE_SECRET_KEY"); secret != "" {
		cfg.Archive.SecretKey = secret
	}
}

// finalize parses derived values and rejects configurations the service cannot run with
func (c *Config) finalize() error {
	rate, err := decimal.NewFromString(c.Platform.FeeRate)
	if err != nil {
		return fmt.Errorf("invalid platform fee rate %q: %w", c.Platform.FeeRate, err)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("platform fee rate %s out of range [0, 1)", rate)
	}
	c.FeeRate = rate

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Gateway.MerchantID == "" || c.Gateway.MerchantKey == "" {
		return fmt.Errorf("PAYFAST_MERCHANT_ID and PAYFAST_MERCHANT_KEY are required")
	}
	if c.Platform.CallbackBaseURL == "" {
		return fmt.Errorf("CALLBACK_BASE_URL is required")
	}
	if c.Platform.AppBaseURL == "" {
		c.Platform.AppBaseURL = c.Platform.CallbackBaseURL
	}
	if c.Archive.Enabled && c.Archive.Bucket == "" {
		return fmt.Errorf("archive enabled without a bucket")
	}
	return nil
}
