package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	AppPort           string `mapstructure:"APP_PORT"`
	DatabaseURL       string `mapstructure:"DATABASE_URL"`
	DatabaseName      string `mapstructure:"DATABASE_NAME"`
	StoreDriver       string `mapstructure:"STORE_DRIVER"`
	Env               string `mapstructure:"ENV"`
	JWTSecret         string `mapstructure:"JWT_SECRET"`
	LogLevel          string `mapstructure:"LOG_LEVEL"`
	MaxRequestsPerMin int    `mapstructure:"MAX_REQUESTS_PER_MIN"`
	InternalAPIKey    string `mapstructure:"INTERNAL_API_KEY"`

	// Redis configuration.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisCacheDB  int    `mapstructure:"REDIS_CACHE_DB"`
	RedisQueueDB  int    `mapstructure:"REDIS_QUEUE_DB"`

	// Push dispatch.
	PushSendTimeout time.Duration `mapstructure:"PUSH_SEND_TIMEOUT"`
	PushRatePerSec  float64       `mapstructure:"PUSH_RATE_PER_SEC"`
	PushMaxRetries  int           `mapstructure:"PUSH_MAX_RETRIES"`

	// Providers. A provider with missing credentials is simply not wired.
	FirebaseCredentialsFile string `mapstructure:"FIREBASE_CREDENTIALS_FILE"`
	APNsKeyFile             string `mapstructure:"APNS_KEY_FILE"`
	APNsKeyID               string `mapstructure:"APNS_KEY_ID"`
	APNsTeamID              string `mapstructure:"APNS_TEAM_ID"`
	APNsTopic               string `mapstructure:"APNS_TOPIC"`
	APNsProduction          bool   `mapstructure:"APNS_PRODUCTION"`
	VAPIDPublicKey          string `mapstructure:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey         string `mapstructure:"VAPID_PRIVATE_KEY"`
	VAPIDSubject            string `mapstructure:"VAPID_SUBJECT"`
	WebPushIcon             string `mapstructure:"WEBPUSH_ICON"`

	// Real-time connections.
	RTIdleTimeout      time.Duration `mapstructure:"RT_IDLE_TIMEOUT"`
	RTHandshakeTimeout time.Duration `mapstructure:"RT_HANDSHAKE_TIMEOUT"`
	RTSendBuffer       int           `mapstructure:"RT_SEND_BUFFER"`
}

var AppConfig Config

func LoadConfig() {
	// Look for a config file named "config.yaml" in the current and "config" directory.
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	// Automatically use environment variables where available.
	viper.AutomaticEnv()

	// Set default values.
	viper.SetDefault("APP_PORT", "8080")
	viper.SetDefault("ENV", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("MAX_REQUESTS_PER_MIN", 100)
	viper.SetDefault("JWT_SECRET", "")
	viper.SetDefault("INTERNAL_API_KEY", "")
	viper.SetDefault("DATABASE_URL", "mongodb://localhost:27017")
	viper.SetDefault("DATABASE_NAME", "wayfinder")
	viper.SetDefault("STORE_DRIVER", "mongo")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_CACHE_DB", 0)
	viper.SetDefault("REDIS_QUEUE_DB", 1)
	viper.SetDefault("PUSH_SEND_TIMEOUT", "10s")
	viper.SetDefault("PUSH_RATE_PER_SEC", 500)
	viper.SetDefault("PUSH_MAX_RETRIES", 3)
	viper.SetDefault("FIREBASE_CREDENTIALS_FILE", "")
	viper.SetDefault("APNS_KEY_FILE", "")
	viper.SetDefault("APNS_KEY_ID", "")
	viper.SetDefault("APNS_TEAM_ID", "")
	viper.SetDefault("APNS_TOPIC", "")
	viper.SetDefault("APNS_PRODUCTION", false)
	viper.SetDefault("VAPID_PUBLIC_KEY", "")
	viper.SetDefault("VAPID_PRIVATE_KEY", "")
	viper.SetDefault("VAPID_SUBJECT", "mailto:ops@wayfinder.app")
	viper.SetDefault("WEBPUSH_ICON", "/static/icon-192.png")
	viper.SetDefault("RT_IDLE_TIMEOUT", "60s")
	viper.SetDefault("RT_HANDSHAKE_TIMEOUT", "10s")
	viper.SetDefault("RT_SEND_BUFFER", 64)

	if err := viper.ReadInConfig(); err != nil {
		log.Println("No config file found, using environment variables only")
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
}

func GetEnv() string {
	return AppConfig.Env
}

func IsProduction() bool {
	return GetEnv() == "production"
}

// UseMemoryStore reports whether repositories should live in process memory
// instead of MongoDB. Handy for local runs without a database.
func UseMemoryStore() bool {
	return AppConfig.StoreDriver == "memory"
}
