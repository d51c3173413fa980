package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var ErrInvalidConfig = errors.New("invalid config")

type RateLimitType string

const (
	RateLimitNone        RateLimitType = "none"
	RateLimitFixedWindow RateLimitType = "fixed_window"
	RateLimitTokenBucket RateLimitType = "token_bucket"
	RateLimitRedisBucket RateLimitType = "redis_bucket"
)

const (
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
)

type Config struct {
	AllowedClientSubjectDNPath string        `mapstructure:"ALLOWED_CLIENT_SUBJECT_DN_PATH"`
	SSLClientSubjectDNHeader   string        `mapstructure:"SSL_CLIENT_SUBJECT_DN_HEADER"`
	ServerAddr                 string        `mapstructure:"SERVER_ADDR"`
	LogLevel                   string        `mapstructure:"LOG_LEVEL"`
	LogFormat                  string        `mapstructure:"LOG_FORMAT"`
	ShutdownTimeout            time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
	RateLimitType              RateLimitType `mapstructure:"RATE_LIMIT_TYPE"`
	RateLimitCapacity          int           `mapstructure:"RATE_LIMIT_CAPACITY"`
	RateLimitRatePS            int           `mapstructure:"RATE_LIMIT_RATE_PS"`
	RateLimitRefill            time.Duration `mapstructure:"RATE_LIMIT_REFILL"`
	RedisAddr                  string        `mapstructure:"REDIS_ADDR"`
	RedisPassword              string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB                    int           `mapstructure:"REDIS_DB"`
	KafkaBrokers               string        `mapstructure:"KAFKA_BROKERS"`
	KafkaAuditTopic            string        `mapstructure:"KAFKA_AUDIT_TOPIC"`
}

var defaults = map[string]any{
	"ALLOWED_CLIENT_SUBJECT_DN_PATH": "/config/allowed_client_dn.txt",
	"SSL_CLIENT_SUBJECT_DN_HEADER":   "ssl-client-subject-dn",
	"SERVER_ADDR":                    "0.0.0.0:8000",
	"LOG_LEVEL":                      "info",
	"LOG_FORMAT":                     LogFormatJSON,
	"SHUTDOWN_TIMEOUT":               "30s",
	"RATE_LIMIT_TYPE":                string(RateLimitNone),
	"RATE_LIMIT_CAPACITY":            100,
	"RATE_LIMIT_RATE_PS":             100,
	"RATE_LIMIT_REFILL":              "1s",
	"REDIS_ADDR":                     "",
	"REDIS_PASSWORD":                 "",
	"REDIS_DB":                       0,
	"KAFKA_BROKERS":                  "",
	"KAFKA_AUDIT_TOPIC":              "nsi-auth-audit",
}

// flag name -> config key
var flagKeys = map[string]string{
	"addr":            "SERVER_ADDR",
	"allowed-dn-path": "ALLOWED_CLIENT_SUBJECT_DN_PATH",
	"dn-header":       "SSL_CLIENT_SUBJECT_DN_HEADER",
	"log-level":       "LOG_LEVEL",
}

// New 回傳已設好預設值與環境變數的 viper
// 所有 key 都要有預設值, AutomaticEnv 才會在 Unmarshal 時生效
func New() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()
	return v
}

// RegisterFlags 在 fs 上註冊可覆寫設定的 flag
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("addr", "", "listen address (SERVER_ADDR)")
	fs.String("allowed-dn-path", "", "allowed client DN file (ALLOWED_CLIENT_SUBJECT_DN_PATH)")
	fs.String("dn-header", "", "header carrying the client subject DN (SSL_CLIENT_SUBJECT_DN_HEADER)")
	fs.String("log-level", "", "log level (LOG_LEVEL)")
}

// BindFlags 只綁定有被設定的 flag, 避免空字串蓋掉環境變數
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

/*
單純回傳錯誤  由外部決定要不要結束程式
cfgFile 為空時只讀預設值與環境變數
*/
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", cfgFile, err)
		}
	}

	cf := &Config{}
	if err := v.Unmarshal(cf); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cf.Validate(); err != nil {
		return nil, err
	}
	return cf, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.AllowedClientSubjectDNPath) == "" {
		return fmt.Errorf("%w: ALLOWED_CLIENT_SUBJECT_DN_PATH is empty", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.SSLClientSubjectDNHeader) == "" {
		return fmt.Errorf("%w: SSL_CLIENT_SUBJECT_DN_HEADER is empty", ErrInvalidConfig)
	}
	if c.ServerAddr == "" {
		return fmt.Errorf("%w: SERVER_ADDR is empty", ErrInvalidConfig)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: SHUTDOWN_TIMEOUT must be positive", ErrInvalidConfig)
	}

	switch c.LogFormat {
	case LogFormatJSON, LogFormatConsole:
	default:
		return fmt.Errorf("%w: unknown LOG_FORMAT %q", ErrInvalidConfig, c.LogFormat)
	}

	switch c.RateLimitType {
	case RateLimitNone:
	case RateLimitFixedWindow, RateLimitTokenBucket:
		if err := c.validateRateLimit(); err != nil {
			return err
		}
	case RateLimitRedisBucket:
		if err := c.validateRateLimit(); err != nil {
			return err
		}
		if c.RedisAddr == "" {
			return fmt.Errorf("%w: REDIS_ADDR is required for %s", ErrInvalidConfig, c.RateLimitType)
		}
	default:
		return fmt.Errorf("%w: unknown RATE_LIMIT_TYPE %q", ErrInvalidConfig, c.RateLimitType)
	}
	return nil
}

func (c *Config) validateRateLimit() error {
	if c.RateLimitCapacity <= 0 || c.RateLimitRatePS <= 0 || c.RateLimitRefill <= 0 {
		return fmt.Errorf("%w: rate limit capacity, rate and refill must be positive", ErrInvalidConfig)
	}
	return nil
}

// KafkaBrokerList 以逗號分隔, 忽略空白項目
func (c *Config) KafkaBrokerList() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
