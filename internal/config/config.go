package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage drivers
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverLocal    = "local"
	DriverRedis    = "redis"
	DriverDisk     = "disk"
	DriverS3       = "s3"
)

type ServerConf struct {
	Port        string
	Environment string
	CORSOrigins string
	BaseURL     string
}

type StoreConf struct {
	Driver      string
	DatabaseURL string
}

type BrokerConf struct {
	Driver string
}

type RedisConf struct {
	Addr     string
	Password string
	DB       int
}

type BlobConf struct {
	Driver    string
	UploadDir string
	Bucket    string
	Region    string
	Endpoint  string
}

type KafkaConf struct {
	Brokers []string
	Topic   string
}

type Config struct {
	Server    ServerConf
	Store     StoreConf
	Broker    BrokerConf
	Redis     RedisConf
	Blob      BlobConf
	Kafka     KafkaConf
	JWTSecret string
	LogLevel  string

	OTELEndpoint      string
	RefreshDelay      time.Duration
	DirectoryCacheTTL time.Duration
}

// Development reports whether the server runs outside production
func (c *Config) Development() bool {
	return c.Server.Environment != "production"
}

func defaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("STORE_DRIVER", DriverMemory)
	v.SetDefault("BROKER_DRIVER", DriverLocal)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("BLOB_DRIVER", DriverDisk)
	v.SetDefault("UPLOAD_DIR", "./uploads")
	v.SetDefault("KAFKA_TOPIC", "chat-events")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CONVERSATION_REFRESH_DELAY", time.Second)
	v.SetDefault("DIRECTORY_CACHE_TTL", 10*time.Minute)
}

// Load reads an optional .env file and then the process environment
func Load() (*Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	defaults(v)
	return parse(v)
}

func parse(v *viper.Viper) (*Config, error) {
	c := &Config{
		Server: ServerConf{
			Port:        v.GetString("PORT"),
			Environment: v.GetString("APP_ENV"),
			CORSOrigins: v.GetString("CORS_ORIGINS"),
			BaseURL:     v.GetString("PUBLIC_BASE_URL"),
		},
		Store: StoreConf{
			Driver:      strings.ToLower(v.GetString("STORE_DRIVER")),
			DatabaseURL: v.GetString("DATABASE_URL"),
		},
		Broker: BrokerConf{
			Driver: strings.ToLower(v.GetString("BROKER_DRIVER")),
		},
		Redis: RedisConf{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Blob: BlobConf{
			Driver:    strings.ToLower(v.GetString("BLOB_DRIVER")),
			UploadDir: v.GetString("UPLOAD_DIR"),
			Bucket:    v.GetString("S3_BUCKET"),
			Region:    v.GetString("S3_REGION"),
			Endpoint:  v.GetString("S3_ENDPOINT"),
		},
		Kafka: KafkaConf{
			Brokers: splitList(v.GetString("KAFKA_BROKERS")),
			Topic:   v.GetString("KAFKA_TOPIC"),
		},
		JWTSecret:         v.GetString("JWT_SECRET"),
		LogLevel:          v.GetString("LOG_LEVEL"),
		OTELEndpoint:      v.GetString("OTEL_ENDPOINT"),
		RefreshDelay:      v.GetDuration("CONVERSATION_REFRESH_DELAY"),
		DirectoryCacheTTL: v.GetDuration("DIRECTORY_CACHE_TTL"),
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = "http://localhost:" + c.Server.Port
	}
	return c, c.validate()
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}
	switch c.Broker.Driver {
	case DriverLocal:
	case DriverRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis broker")
		}
	default:
		return fmt.Errorf("unknown BROKER_DRIVER %q", c.Broker.Driver)
	}
	switch c.Blob.Driver {
	case DriverDisk, DriverMemory:
	case DriverS3:
		if c.Blob.Bucket == "" || c.Blob.Region == "" {
			return fmt.Errorf("S3_BUCKET and S3_REGION are required for the s3 blob store")
		}
	default:
		return fmt.Errorf("unknown BLOB_DRIVER %q", c.Blob.Driver)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
