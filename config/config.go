package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig          `mapstructure:"server"`
	Database DatabaseConfig        `mapstructure:"database"`
	Redis    RedisConfig           `mapstructure:"redis"`
	JWT      JWTConfig             `mapstructure:"jwt"`
	Bot      BotConfig             `mapstructure:"bot"`
	Quota    QuotaConfig           `mapstructure:"quota"`
	Plans    map[string]PlanConfig `mapstructure:"plans"`
	Payment  PaymentConfig         `mapstructure:"payment"`
	Queue    QueueConfig           `mapstructure:"queue"`
	Log      LogConfig             `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	Database     string        `mapstructure:"database"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
}

type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

// BotConfig 机器人与管理员身份
type BotConfig struct {
	AdminUserID   int64  `mapstructure:"admin_user_id"`
	AdminUsername string `mapstructure:"admin_username"`
	BotUsername   string `mapstructure:"bot_username"`
}

// QuotaConfig 免费额度配置，日期边界按 Timezone 计算
type QuotaConfig struct {
	DailyLimit   int    `mapstructure:"daily_limit"`
	NewUserLimit int    `mapstructure:"new_user_limit"`
	Timezone     string `mapstructure:"timezone"`
}

// PlanConfig 可购买的套餐，key 为回调中使用的套餐标识（week / month）
type PlanConfig struct {
	Name         string `mapstructure:"name"`
	Price        int64  `mapstructure:"price"`
	DurationDays int    `mapstructure:"duration_days"`
}

type PaymentConfig struct {
	RequestTTL          time.Duration `mapstructure:"request_ttl"`
	ExpireCheckInterval string        `mapstructure:"expire_check_interval"` // cron 表达式
}

type QueueConfig struct {
	EventQueue    string `mapstructure:"event_queue"`
	NoticeChannel string `mapstructure:"notice_channel"`
	MaxWorkers    int    `mapstructure:"max_workers"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json / console
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.query_timeout", 3*time.Second)
	v.SetDefault("redis.read_timeout", 2*time.Second)
	v.SetDefault("redis.write_timeout", 2*time.Second)
	v.SetDefault("jwt.expire_hours", 24)
	v.SetDefault("quota.daily_limit", 1)
	v.SetDefault("quota.new_user_limit", 5)
	v.SetDefault("quota.timezone", "Asia/Kolkata")
	v.SetDefault("payment.request_ttl", 72*time.Hour)
	v.SetDefault("payment.expire_check_interval", "*/5 * * * *")
	v.SetDefault("queue.event_queue", "relay:events")
	v.SetDefault("queue.notice_channel", "relay:notices")
	v.SetDefault("queue.max_workers", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// DefaultPlans 配置文件未声明套餐时使用
func DefaultPlans() map[string]PlanConfig {
	return map[string]PlanConfig{
		"week":  {Name: "Weekly", Price: 300, DurationDays: 7},
		"month": {Name: "Monthly", Price: 500, DurationDays: 30},
	}
}

func Load(configPath string) (*Config, error) {
	// 优先读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	// .env 只补充未设置的环境变量，文件可以不存在
	envPath := filepath.Join(dir, ".env")
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envPath, err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// 环境变量覆盖
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if len(cfg.Plans) == 0 {
		cfg.Plans = DefaultPlans()
	}

	return &cfg, nil
}
