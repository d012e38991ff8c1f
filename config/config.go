// Package config 读取插件配置：YAML 文件打底，环境变量覆盖，最后补默认值
package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultImitateInterval       = 10
	DefaultConfirmTimeout        = 30
	DefaultAvatarTimeout         = 15
	DefaultMutationRatePerMinute = 30
	DefaultDataPath              = "data/qqoperator.db"
)

type OB11Config struct {
	WSReverseURL  string `yaml:"ws_reverse"   env:"WS_REVERSE"`
	WSForwardAddr string `yaml:"ws_forward"   env:"WS_FORWARD"`
	AccessToken   string `yaml:"access_token" env:"ACCESS_TOKEN"`
	Secret        string `yaml:"secret"       env:"SECRET"`
}

type LogConfig struct {
	Level      string `yaml:"level"        env:"LEVEL"`
	File       string `yaml:"file"         env:"FILE"` // 为空时只输出到控制台
	MaxSizeMB  int    `yaml:"max_size_mb"  env:"MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max_backups"  env:"MAX_BACKUPS"`
}

type Config struct {
	// Imitate 自动模仿目标，格式 "群号,QQ号"
	Imitate string `yaml:"imitate" env:"IMITATE"`
	// ImitateInterval 轮询间隔，单位分钟
	ImitateInterval int `yaml:"imitate_interval" env:"IMITATE_INTERVAL"`
	// ConfirmTimeout 替换目标、上传头像等对话的等待时间，单位秒
	ConfirmTimeout int `yaml:"confirm_timeout" env:"CONFIRM_TIMEOUT"`
	// AvatarTimeout 下载头像的超时，单位秒
	AvatarTimeout         int      `yaml:"avatar_timeout"           env:"AVATAR_TIMEOUT"`
	MutationRatePerMinute int      `yaml:"mutation_rate_per_minute" env:"MUTATION_RATE_PER_MINUTE"`
	CommandPrefix         []string `yaml:"command_prefix"           env:"COMMAND_PREFIX" envSeparator:","`
	DataPath              string   `yaml:"data_path"                env:"DATA_PATH"`

	Log  LogConfig  `yaml:"log"  envPrefix:"LOG_"`
	OB11 OB11Config `yaml:"ob11" envPrefix:"OB11_"`
}

// EnvPrefix 环境变量统一前缀，例如 QQOP_IMITATE、QQOP_OB11_WS_REVERSE
const EnvPrefix = "QQOP_"

// Load 读取配置文件。path 为空或文件不存在时只使用环境变量和默认值。
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, errors.Wrapf(err, "parse config %s", path)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, errors.Wrap(err, "parse env")
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ImitateInterval <= 0 {
		c.ImitateInterval = DefaultImitateInterval
	}
	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = DefaultConfirmTimeout
	}
	if c.AvatarTimeout <= 0 {
		c.AvatarTimeout = DefaultAvatarTimeout
	}
	if c.MutationRatePerMinute <= 0 {
		c.MutationRatePerMinute = DefaultMutationRatePerMinute
	}
	if len(c.CommandPrefix) == 0 {
		c.CommandPrefix = []string{"/", "."}
	}
	if c.DataPath == "" {
		c.DataPath = DefaultDataPath
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB <= 0 {
		c.Log.MaxSizeMB = 20
	}
	if c.Log.MaxBackups <= 0 {
		c.Log.MaxBackups = 5
	}
	if c.OB11.WSReverseURL == "" && c.OB11.WSForwardAddr == "" {
		c.OB11.WSReverseURL = "ws://127.0.0.1:8100/onebot/v11/ws"
	}
}

// 以下几个方法在字段未设置时返回默认值

func (c *Config) Interval() time.Duration {
	return time.Duration(positiveOr(c.ImitateInterval, DefaultImitateInterval)) * time.Minute
}

func (c *Config) ConfirmWait() time.Duration {
	return time.Duration(positiveOr(c.ConfirmTimeout, DefaultConfirmTimeout)) * time.Second
}

func (c *Config) AvatarWait() time.Duration {
	return time.Duration(positiveOr(c.AvatarTimeout, DefaultAvatarTimeout)) * time.Second
}

func positiveOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
