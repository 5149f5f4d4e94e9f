package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config 全局配置结构体
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	JWT         JWTConfig         `mapstructure:"jwt"`
	Transaction TransactionConfig `mapstructure:"transaction"`
	Log         LogConfig         `mapstructure:"log"`
	RateLimit   RateLimitConfig   `mapstructure:"ratelimit"`
	App         AppConfig         `mapstructure:"app"`
	COS         COSConfig         `mapstructure:"cos"`
	Admin       AdminConfig       `mapstructure:"admin"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	DBName       string `mapstructure:"dbname"`
	Port         string `mapstructure:"port"`
	SSLMode      string `mapstructure:"sslmode"`
	TimeZone     string `mapstructure:"timezone"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// DSN gorm/pgx 连接串
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		c.Host, c.User, c.Password, c.DBName, c.Port, c.SSLMode, c.TimeZone)
}

// URL golang-migrate 使用的连接地址
func (c DatabaseConfig) URL() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + c.Port + "/" + c.DBName + "?sslmode=" + c.SSLMode
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWTConfig struct {
	Secret     string `mapstructure:"secret"`     // base64
	Expiration int64  `mapstructure:"expiration"` // 毫秒
}

// TransactionConfig 写路径事务预算
type TransactionConfig struct {
	TimeoutMS  int64 `mapstructure:"timeout_ms"`
	MaxRetries int   `mapstructure:"max_retries"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type RateLimitConfig struct {
	QPS   float64 `mapstructure:"qps"`
	Burst int     `mapstructure:"burst"`
}

type AppConfig struct {
	Env   string `mapstructure:"env"`
	Debug bool   `mapstructure:"debug"`
}

// AdminConfig 启动时初始化的管理员账号，用户名为空时跳过
type AdminConfig struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// COSConfig 图片上传临时凭证配置
type COSConfig struct {
	SecretID        string `mapstructure:"secretId"`
	SecretKey       string `mapstructure:"secretKey"`
	Region          string `mapstructure:"region"`
	BucketName      string `mapstructure:"bucketName"`
	DurationSeconds int    `mapstructure:"durationSeconds"`
	RoleArn         string `mapstructure:"roleArn"`
	Endpoint        string `mapstructure:"endpoint"`
}

// Enabled 是否配置了对象存储
func (c COSConfig) Enabled() bool {
	return c.SecretID != "" && c.SecretKey != "" && c.BucketName != ""
}

var GlobalConfig Config

// Validate 验证配置
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret is required")
	}
	key, err := base64.StdEncoding.DecodeString(c.JWT.Secret)
	if err != nil {
		return errors.New("jwt.secret must be base64 encoded")
	}
	if len(key) < 32 {
		return errors.New("jwt.secret should decode to at least 32 bytes")
	}

	if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
		return errors.New("database configuration is incomplete")
	}

	if c.Redis.Addr == "" {
		return errors.New("redis address is required")
	}

	if c.Transaction.TimeoutMS <= 0 {
		c.Transaction.TimeoutMS = 3000
	}
	if c.Transaction.MaxRetries < 0 {
		c.Transaction.MaxRetries = 0
	}
	if c.Transaction.MaxRetries > 3 {
		c.Transaction.MaxRetries = 3
	}

	return nil
}

// LoadConfig 加载配置
func LoadConfig() {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}

	configName := "config"
	if env != "dev" {
		configName = "config." + env
	}

	viper.SetConfigName(configName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("database.port", "5432")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.timezone", "Asia/Shanghai")
	viper.SetDefault("database.max_open_conns", 100)
	viper.SetDefault("database.max_idle_conns", 10)
	viper.SetDefault("jwt.expiration", 86400000)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("transaction.timeout_ms", 3000)
	viper.SetDefault("transaction.max_retries", 3)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("ratelimit.qps", 200)
	viper.SetDefault("ratelimit.burst", 400)
	viper.SetDefault("cos.durationSeconds", 1800)
	viper.SetDefault("app.env", env)
	viper.SetDefault("app.debug", env == "dev")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Warning: Config file not found, using defaults or env vars: %v", err)
	}

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.Unmarshal(&GlobalConfig); err != nil {
		log.Fatalf("Unable to decode into struct: %v", err)
	}

	// 手动覆盖常用环境变量
	if host := os.Getenv("DB_HOST"); host != "" {
		GlobalConfig.Database.Host = host
	}
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		GlobalConfig.Redis.Addr = redisAddr
	}
	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		GlobalConfig.JWT.Secret = jwtSecret
	}
	if adminPassword := os.Getenv("ADMIN_PASSWORD"); adminPassword != "" {
		GlobalConfig.Admin.Password = adminPassword
	}

	if err := GlobalConfig.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	log.Printf("Configuration loaded and validated successfully. Environment: %s", GlobalConfig.App.Env)
}
