package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/apk-analysis/apk-intake-go/internal/device"
	"github.com/apk-analysis/apk-intake-go/internal/domain"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	RabbitMQ  RabbitMQConfig  `mapstructure:"rabbitmq"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Log       LogConfig       `mapstructure:"log"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Device    DeviceConfig    `mapstructure:"device"`
	ADB       ADBConfig       `mapstructure:"adb"`
	Installed InstalledConfig `mapstructure:"installed"`
	Watcher   WatcherConfig   `mapstructure:"watcher"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release
	// UploadDir 通过接口上传的安装包保存目录
	UploadDir string `mapstructure:"upload_dir"`
	APIToken  string `mapstructure:"api_token"` // 为空时不校验
}

type DatabaseConfig struct {
	Type     string `mapstructure:"type"` // mysql, sqlite
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"db_name"`
	Path     string `mapstructure:"path"` // sqlite 文件路径
}

type RabbitMQConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	VHost    string `mapstructure:"vhost"`
	Queue    string `mapstructure:"queue"`
}

type WorkerConfig struct {
	Concurrency int `mapstructure:"concurrency"` // Worker 数量
	QueueSize   int `mapstructure:"queue_size"`  // 任务队列大小
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
	Output string `mapstructure:"output"` // stdout, stderr 或文件路径
}

// AnalysisConfig 分析流水线配置
type AnalysisConfig struct {
	CacheDir           string `mapstructure:"cache_dir"`
	Concurrency        int    `mapstructure:"concurrency"` // 同时分析的来源数
	SplitChooseAll     bool   `mapstructure:"split_choose_all"`
	ModuleFlashEnabled bool   `mapstructure:"module_flash_enabled"`
	Authorizer         string `mapstructure:"authorizer"`
}

// DeviceConfig 目标设备能力来源
type DeviceConfig struct {
	Source     string   `mapstructure:"source"` // static, adb
	ABIs       []string `mapstructure:"abis"`
	Densities  []string `mapstructure:"densities"`
	DensityDPI int      `mapstructure:"density_dpi"`
	Locales    []string `mapstructure:"locales"`
}

type ADBConfig struct {
	Target  string `mapstructure:"target"`
	Timeout int    `mapstructure:"timeout"` // seconds
}

// InstalledConfig 已安装版本信息来源
type InstalledConfig struct {
	Provider string `mapstructure:"provider"` // adb, database, none
}

// WatcherConfig 收件目录监听
type WatcherConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
	Pattern string `mapstructure:"pattern"`
}

type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.upload_dir", filepath.Join(os.TempDir(), "apk-intake", "uploads"))
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.path", "./data/apk-intake.db")
	v.SetDefault("rabbitmq.port", 5672)
	v.SetDefault("rabbitmq.vhost", "/")
	v.SetDefault("rabbitmq.queue", "apk_intake_requests")
	v.SetDefault("worker.concurrency", 2)
	v.SetDefault("worker.queue_size", 64)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("analysis.cache_dir", filepath.Join(os.TempDir(), "apk-intake"))
	v.SetDefault("analysis.concurrency", 4)
	v.SetDefault("analysis.split_choose_all", false)
	v.SetDefault("analysis.module_flash_enabled", true)
	v.SetDefault("analysis.authorizer", string(domain.AuthorizerGlobal))
	v.SetDefault("device.source", "static")
	v.SetDefault("device.density_dpi", 420)
	v.SetDefault("adb.timeout", 30)
	v.SetDefault("installed.provider", "none")
	v.SetDefault("watcher.pattern", "*.{apk,apks,apkm,xapk,zip}")
	v.SetDefault("metrics.namespace", "apk_intake")
}

// Load 读取 YAML 配置，环境变量可覆盖
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// 环境变量覆盖（支持嵌套配置）
	v.AutomaticEnv()

	// RabbitMQ
	v.BindEnv("rabbitmq.host", "RABBITMQ_HOST")
	v.BindEnv("rabbitmq.port", "RABBITMQ_PORT")
	v.BindEnv("rabbitmq.user", "RABBITMQ_USER")
	v.BindEnv("rabbitmq.password", "RABBITMQ_PASS")

	// Database
	v.BindEnv("database.host", "MYSQL_HOST")
	v.BindEnv("database.port", "MYSQL_PORT")
	v.BindEnv("database.user", "MYSQL_USER")
	v.BindEnv("database.password", "MYSQL_PASS")
	v.BindEnv("database.db_name", "MYSQL_DB")

	// 设备
	v.BindEnv("adb.target", "APKINTAKE_ADB_TARGET")
	v.BindEnv("analysis.cache_dir", "APKINTAKE_CACHE_DIR")
	v.BindEnv("server.api_token", "APKINTAKE_API_TOKEN")

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Defaults 没有配置文件时使用的默认配置
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	// 默认值都是基本类型，不会解码失败
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// AnalysisDefaults 转换为流水线使用的默认分析配置
func (c *Config) AnalysisDefaults() domain.AnalysisConfig {
	cfg := domain.DefaultAnalysisConfig()
	if c == nil {
		return cfg
	}
	if c.Analysis.Authorizer != "" {
		cfg.Authorizer = domain.Authorizer(c.Analysis.Authorizer)
	}
	cfg.SplitChooseAll = c.Analysis.SplitChooseAll
	cfg.ModuleFlashEnabled = c.Analysis.ModuleFlashEnabled
	return cfg
}

// StaticProfile 配置文件中声明的设备能力
func (c *Config) StaticProfile() device.Profile {
	return device.FromConfig(device.StaticConfig{
		ABIs:       c.Device.ABIs,
		Densities:  c.Device.Densities,
		DensityDPI: c.Device.DensityDPI,
		Locales:    c.Device.Locales,
	})
}
