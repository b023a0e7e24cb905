package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v8"
	"gopkg.in/yaml.v3"

	"github.com/admi-n/txguard/src/internal"
)

// DefaultSettingsPath 默认配置文件位置，不存在时只使用默认值和环境变量
const DefaultSettingsPath = "config/settings.yaml"

// RPCConfig 各链的 RPC 地址
type RPCConfig struct {
	Ethereum string `yaml:"ethereum" env:"ETH"`
	BSC      string `yaml:"bsc" env:"BSC"`
	Arbitrum string `yaml:"arbitrum" env:"ARB"`
}

// Settings 全局配置
type Settings struct {
	RPC RPCConfig `yaml:"rpc" envPrefix:"RPC_"`

	Proxy string `yaml:"proxy" env:"PROXY"`

	Database struct {
		MySQL    string `yaml:"mysql" env:"MYSQL_DSN"`
		Postgres string `yaml:"postgres" env:"POSTGRES_DSN"`
	} `yaml:"database"`

	Cache struct {
		Size int `yaml:"size" env:"CACHE_SIZE"`
	} `yaml:"cache"`

	Analysis struct {
		Timeout      time.Duration `yaml:"timeout" env:"TIMEOUT"`
		FetchTimeout time.Duration `yaml:"fetch_timeout" env:"FETCH_TIMEOUT"`
		Concurrency  int           `yaml:"concurrency" env:"CONCURRENCY"`
	} `yaml:"analysis"`

	Server struct {
		Addr string `yaml:"addr" env:"ADDR"`
	} `yaml:"server"`

	Log struct {
		Level  string `yaml:"level" env:"LOG_LEVEL"`
		Format string `yaml:"format" env:"LOG_FORMAT"`
	} `yaml:"log"`
}

// LoadSettings 读取 YAML 配置后用 TXGUARD_ 前缀的环境变量覆盖，并补齐默认值。
// path 为空时使用 DefaultSettingsPath，默认文件不存在不算错误。
func LoadSettings(path string) (*Settings, error) {
	var s Settings

	explicit := path != ""
	if !explicit {
		path = DefaultSettingsPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := env.ParseWithOptions(&s, env.Options{Prefix: "TXGUARD_"}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate 检查取值并填充默认值
func (s *Settings) Validate() error {
	if s.RPC.Ethereum == "" {
		s.RPC.Ethereum = "https://eth.llamarpc.com"
	}
	if s.RPC.BSC == "" {
		s.RPC.BSC = "https://bsc-dataseed.binance.org"
	}
	if s.RPC.Arbitrum == "" {
		s.RPC.Arbitrum = "https://arb1.arbitrum.io/rpc"
	}
	if s.Cache.Size <= 0 {
		s.Cache.Size = 512
	}
	if s.Analysis.Timeout <= 0 {
		s.Analysis.Timeout = 30 * time.Second
	}
	if s.Analysis.FetchTimeout <= 0 {
		s.Analysis.FetchTimeout = 15 * time.Second
	}
	if s.Analysis.Concurrency <= 0 {
		s.Analysis.Concurrency = 4
	}
	if s.Analysis.Concurrency > 100 {
		return fmt.Errorf("concurrency too high (max 100)")
	}
	if s.Server.Addr == "" {
		s.Server.Addr = ":8080"
	}
	if s.Log.Level == "" {
		s.Log.Level = "info"
	}
	if _, err := ParseLevel(s.Log.Level); err != nil {
		return err
	}
	switch s.Log.Format = strings.ToLower(s.Log.Format); s.Log.Format {
	case "":
		s.Log.Format = "terminal"
	case "terminal", "json":
	default:
		return fmt.Errorf("invalid log format: %s (must be 'terminal' or 'json')", s.Log.Format)
	}
	return internal.ValidateProxyURL(s.Proxy)
}

// Endpoints 返回链名到 RPC 地址的映射
func (s *Settings) Endpoints() map[string]string {
	return map[string]string{
		"eth": s.RPC.Ethereum,
		"bsc": s.RPC.BSC,
		"arb": s.RPC.Arbitrum,
	}
}
