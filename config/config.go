package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PlatformLimits 单一平台的输出限制
type PlatformLimits struct {
	MaxContentLength int `mapstructure:"max_content_length"`
	MaxResponses     int `mapstructure:"max_responses"`
	MaxContentLines  int `mapstructure:"max_content_lines"`
}

type ExecodeConfig struct {
	Length int           `mapstructure:"length"`
	Expiry time.Duration `mapstructure:"expiry"`
}

type RemoteConfig struct {
	Idle time.Duration `mapstructure:"idle"`
}

type ExtraConfig struct {
	Expiry  time.Duration `mapstructure:"expiry"`
	BaseURL string        `mapstructure:"base_url"`
}

type AutoReplyConfig struct {
	ShortEditWindow   time.Duration `mapstructure:"short_edit_window"`
	PinInheritWindow  time.Duration `mapstructure:"pin_inherit_window"`
	MaxResponses      int           `mapstructure:"max_responses"`
	MaxKeywordLength  int           `mapstructure:"max_keyword_length"`
	MaxResponseLength int           `mapstructure:"max_response_length"`
	OnlineCheck       bool          `mapstructure:"online_check"`
}

type PipelineConfig struct {
	NoTokenNotify time.Duration `mapstructure:"no_token_notify"`
	Workers       int           `mapstructure:"workers"`
}

type LimitsConfig struct {
	Line    PlatformLimits `mapstructure:"line"`
	Discord PlatformLimits `mapstructure:"discord"`
}

type DiscordConfig struct {
	Token string `mapstructure:"token"`
}

type LineConfig struct {
	Secret string `mapstructure:"secret"`
	Token  string `mapstructure:"token"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type ReportConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	Dev   bool   `mapstructure:"dev"`
}

// Config 全部运行参数
type Config struct {
	Secret    string          `mapstructure:"secret"`
	Execode   ExecodeConfig   `mapstructure:"execode"`
	Remote    RemoteConfig    `mapstructure:"remote"`
	Extra     ExtraConfig     `mapstructure:"extra"`
	AutoReply AutoReplyConfig `mapstructure:"autoreply"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Limits    LimitsConfig    `mapstructure:"limits"`
	Discord   DiscordConfig   `mapstructure:"discord"`
	Line      LineConfig      `mapstructure:"line"`
	Database  DatabaseConfig  `mapstructure:"database"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Report    ReportConfig    `mapstructure:"report"`
	Log       LogConfig       `mapstructure:"log"`
}

// ErrMissingSecret secret 未设置
var ErrMissingSecret = errors.New("secret is not set")

func setDefaults(v *viper.Viper) {
	v.SetDefault("execode.length", 10)
	v.SetDefault("execode.expiry", 600*time.Second)
	v.SetDefault("remote.idle", 300*time.Second)
	v.SetDefault("extra.expiry", 168*time.Hour)
	v.SetDefault("extra.base_url", "http://localhost:8080")
	v.SetDefault("autoreply.short_edit_window", 60*time.Second)
	v.SetDefault("autoreply.pin_inherit_window", 168*time.Hour)
	v.SetDefault("autoreply.max_responses", 10)
	v.SetDefault("autoreply.max_keyword_length", 500)
	v.SetDefault("autoreply.max_response_length", 2000)
	v.SetDefault("autoreply.online_check", false)
	v.SetDefault("pipeline.no_token_notify", 60*time.Second)
	v.SetDefault("pipeline.workers", 8)
	v.SetDefault("limits.line.max_content_length", 2000)
	v.SetDefault("limits.line.max_responses", 4)
	v.SetDefault("limits.line.max_content_lines", 20)
	v.SetDefault("limits.discord.max_content_length", 1900)
	v.SetDefault("limits.discord.max_responses", 5)
	v.SetDefault("limits.discord.max_content_lines", 30)
	v.SetDefault("database.path", "data/jellybot.db")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.dev", false)
	// 没有默认值的键也要登记，否则 Unmarshal 读不到对应的环境变量
	for _, key := range []string{"secret", "discord.token", "line.secret", "line.token", "report.webhook_url"} {
		v.SetDefault(key, "")
	}
}

// Load 读取 .env、config.yaml（可选）与 JELLYBOT_ 前缀的环境变量。
// configFile 为空时在工作目录与 ./data 下查找 config.yaml。
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		zap.L().Info(".env file not found, relying on environment variables")
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("JELLYBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("data")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		zap.L().Info("config file not found, using defaults and environment")
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// Defaults 只含默认值的配置，不读取文件与环境变量
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		panic(fmt.Sprintf("invalid config defaults: %v", err))
	}
	return cfg
}

// Validate 检查 serve 启动所需的参数。缺少平台凭证只会停用对应的适配器。
func (c *Config) Validate() error {
	if c.Secret == "" {
		return ErrMissingSecret
	}
	if c.Execode.Length <= 0 {
		return fmt.Errorf("execode.length must be positive, got %d", c.Execode.Length)
	}
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline.workers must be positive, got %d", c.Pipeline.Workers)
	}
	if c.Discord.Token == "" {
		zap.L().Warn("discord token not set, discord adapter disabled")
	}
	if c.Line.Secret == "" || c.Line.Token == "" {
		zap.L().Warn("line credentials not set, line adapter disabled")
	}
	return nil
}

// DiscordEnabled Discord 凭证齐全
func (c *Config) DiscordEnabled() bool { return c.Discord.Token != "" }

// LineEnabled LINE 凭证齐全
func (c *Config) LineEnabled() bool { return c.Line.Secret != "" && c.Line.Token != "" }
