package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/Dhoini/kleenpride-booking-service/internal/gateway"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config представляет структуру конфигурации для приложения.
type Config struct {
	App      AppConfig                   `mapstructure:"app"`
	Log      LogConfig                   `mapstructure:"log"`
	Database DatabaseConfig              `mapstructure:"database"`
	Redis    RedisConfig                 `mapstructure:"redis"`
	Kafka    KafkaConfig                 `mapstructure:"kafka"`
	Gateway  GatewayConfig               `mapstructure:"gateway"`
	GRPC     GRPCConfig                  `mapstructure:"grpc"`
	Auth     AuthConfig                  `mapstructure:"auth"`
	Pricing  map[string]map[string]int64 `mapstructure:"pricing"`
}

// AppConfig параметры HTTP сервера
type AppConfig struct {
	Port            string        `mapstructure:"port"`
	Env             string        `mapstructure:"env"`
	Timezone        string        `mapstructure:"timezone"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
}

// LogConfig конфигурация логгера
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// DatabaseConfig конфигурация базы данных; пустой DSN - хранилище в памяти
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"maxConns"`
	MinConns        int32         `mapstructure:"minConns"`
	MaxConnLifetime time.Duration `mapstructure:"maxConnLifetime"`
	Migrate         bool          `mapstructure:"migrate"`
}

// RedisConfig конфигурация кеша бронирований
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// KafkaConfig конфигурация событий и входящих уведомлений
type KafkaConfig struct {
	Enabled            bool     `mapstructure:"enabled"`
	Brokers            []string `mapstructure:"brokers"`
	EventsTopic        string   `mapstructure:"eventsTopic"`
	NotificationsTopic string   `mapstructure:"notificationsTopic"`
	DeadLetterTopic    string   `mapstructure:"deadLetterTopic"`
	GroupID            string   `mapstructure:"groupId"`
	EnsureTopics       bool     `mapstructure:"ensureTopics"`
}

// GatewayConfig параметры платежного шлюза
type GatewayConfig struct {
	MerchantID         string        `mapstructure:"merchantId"`
	MerchantKey        string        `mapstructure:"merchantKey"`
	Passphrase         string        `mapstructure:"passphrase"`
	SignatureAlgorithm string        `mapstructure:"signatureAlgorithm"`
	ProcessURL         string        `mapstructure:"processUrl"`
	APIURL             string        `mapstructure:"apiUrl"`
	ReturnURL          string        `mapstructure:"returnUrl"`
	CancelURL          string        `mapstructure:"cancelUrl"`
	NotifyURL          string        `mapstructure:"notifyUrl"`
	EmailConfirmation  bool          `mapstructure:"emailConfirmation"`
	Sandbox            bool          `mapstructure:"sandbox"`
	SandboxDelay       time.Duration `mapstructure:"sandboxDelay"`
	Timeout            time.Duration `mapstructure:"timeout"`
}

// GRPCConfig конфигурация gRPC сервера
type GRPCConfig struct {
	Port string `mapstructure:"port"`
}

// AuthConfig конфигурация аутентификации
type AuthConfig struct {
	JWTSecret    string        `mapstructure:"jwtSecret"`
	ReauthWindow time.Duration `mapstructure:"reauthWindow"`
}

// Merchant возвращает учетные данные мерчанта для запросов к шлюзу
func (g GatewayConfig) Merchant() gateway.Merchant {
	return gateway.Merchant{
		MerchantID:        g.MerchantID,
		MerchantKey:       g.MerchantKey,
		ReturnURL:         g.ReturnURL,
		CancelURL:         g.CancelURL,
		NotifyURL:         g.NotifyURL,
		ProcessURL:        g.ProcessURL,
		EmailConfirmation: g.EmailConfirmation,
	}
}

// Location возвращает часовой пояс для расписания бронирований
func (a AppConfig) Location() (*time.Location, error) {
	if a.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(a.Timezone)
}

// LoadConfig загружает конфигурацию из config.yml в текущем каталоге и переменных окружения.
func LoadConfig(envPath string) (*Config, error) {
	return LoadConfigFrom(".", envPath)
}

// LoadConfigFrom загружает конфигурацию из каталога dir.
// Любой ключ можно переопределить переменной окружения: gateway.passphrase -> GATEWAY_PASSPHRASE.
func LoadConfigFrom(dir, envPath string) (*Config, error) {
	if os.Getenv("APP_ENV") != "production" && envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", envPath, err)
		}
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv() // Чтение переменных окружения

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.timezone", "Africa/Johannesburg")
	v.SetDefault("app.shutdownTimeout", 15*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.maxConns", 10)
	v.SetDefault("database.minConns", 2)
	v.SetDefault("database.maxConnLifetime", time.Hour)
	v.SetDefault("database.migrate", true)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 15*time.Minute)
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.eventsTopic", "booking.events")
	v.SetDefault("kafka.notificationsTopic", "gateway.notifications")
	v.SetDefault("kafka.deadLetterTopic", "gateway.notifications.dlq")
	v.SetDefault("kafka.groupId", "booking-service")
	v.SetDefault("kafka.ensureTopics", true)
	v.SetDefault("gateway.merchantId", "")
	v.SetDefault("gateway.merchantKey", "")
	v.SetDefault("gateway.passphrase", "")
	v.SetDefault("gateway.signatureAlgorithm", string(gateway.AlgorithmMD5))
	v.SetDefault("gateway.processUrl", "")
	v.SetDefault("gateway.apiUrl", "")
	v.SetDefault("gateway.returnUrl", "")
	v.SetDefault("gateway.cancelUrl", "")
	v.SetDefault("gateway.notifyUrl", "")
	v.SetDefault("gateway.emailConfirmation", true)
	v.SetDefault("gateway.sandbox", true)
	v.SetDefault("gateway.sandboxDelay", 2*time.Second)
	v.SetDefault("gateway.timeout", 15*time.Second)
	v.SetDefault("grpc.port", "9090")
	v.SetDefault("auth.jwtSecret", "")
	v.SetDefault("auth.reauthWindow", 5*time.Minute)
}

// Validate проверяет обязательные параметры
func (c *Config) Validate() error {
	var errs []error
	if c.App.Port == "" {
		errs = append(errs, errors.New("app.port is required"))
	}
	if _, err := c.App.Location(); err != nil {
		errs = append(errs, fmt.Errorf("app.timezone: %w", err))
	}
	if c.Gateway.MerchantID == "" || c.Gateway.MerchantKey == "" {
		errs = append(errs, errors.New("gateway.merchantId and gateway.merchantKey are required"))
	}
	if c.Gateway.Passphrase == "" {
		errs = append(errs, errors.New("gateway.passphrase is required (set GATEWAY_PASSPHRASE)"))
	}
	if _, err := gateway.ParseAlgorithm(c.Gateway.SignatureAlgorithm); err != nil {
		errs = append(errs, fmt.Errorf("gateway.signatureAlgorithm: %w", err))
	}
	if !c.Gateway.Sandbox && c.Gateway.APIURL == "" {
		errs = append(errs, errors.New("gateway.apiUrl is required outside sandbox mode"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwtSecret is required"))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers is required when kafka is enabled"))
	}
	if len(c.Pricing) == 0 {
		errs = append(errs, errors.New("pricing table is empty"))
	}
	return errors.Join(errs...)
}
