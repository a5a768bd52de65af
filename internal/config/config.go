package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid 配置校验失败
var ErrInvalid = errors.New("invalid config")

// Override 远程路径到本地构建目录的映射，启动后只读
type Override struct {
	RemotePrefix     string `yaml:"remotePrefix"`
	EntryRouteSuffix string `yaml:"entryRouteSuffix"`
	LocalRoot        string `yaml:"localRoot"`
	AllowTraversal   bool   `yaml:"allowTraversal"`
}

// Config 配置文件结构体
type Config struct {
	Version string `yaml:"version"`

	Override Override `yaml:"override"`

	Browser struct {
		DevToolsURL string `yaml:"devToolsURL"`
		Target      string `yaml:"target"`
		StartURL    string `yaml:"startURL"`
	} `yaml:"browser"`

	Intercept struct {
		Concurrency      int `yaml:"concurrency"`
		PendingCapacity  int `yaml:"pendingCapacity"`
		ProcessTimeoutMS int `yaml:"processTimeoutMS"`
	} `yaml:"intercept"`

	Sqlite struct {
		Dsn    string `yaml:"dsn"`
		Prefix string `yaml:"prefix"`
	} `yaml:"sqlite"`

	Log struct {
		Level  string   `yaml:"level"`
		Writer []string `yaml:"writer"`
		File   string   `yaml:"file"`
	} `yaml:"log"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	c := &Config{Version: "1.0.0"}
	c.Browser.DevToolsURL = "http://127.0.0.1:9222"
	c.Intercept.Concurrency = 8
	c.Intercept.PendingCapacity = 256
	c.Intercept.ProcessTimeoutMS = 3000
	c.Sqlite.Dsn = "file::memory:?cache=shared"
	c.Sqlite.Prefix = "cdpoverride_"
	c.Log.Level = "debug"
	c.Log.Writer = []string{"console"}
	c.Log.File = "cdpoverride.log"
	return c
}

// SubmitTimeout 单次提交处置的超时，未配置时为 3 秒
func (c *Config) SubmitTimeout() time.Duration {
	if c.Intercept.ProcessTimeoutMS <= 0 {
		return 3 * time.Second
	}
	return time.Duration(c.Intercept.ProcessTimeoutMS) * time.Millisecond
}

// Load 读取 YAML 配置文件并覆盖默认值
func Load(path string) (*Config, error) {
	c := NewConfig()
	if path == "" {
		return c, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return c, nil
}

// Validate 校验启动所需的配置项
func (c *Config) Validate() error {
	o := c.Override
	if o.RemotePrefix == "" {
		return fmt.Errorf("%w: override.remotePrefix is required", ErrInvalid)
	}
	if !strings.HasPrefix(o.RemotePrefix, "/") {
		return fmt.Errorf("%w: override.remotePrefix must start with /, got %q", ErrInvalid, o.RemotePrefix)
	}
	if o.EntryRouteSuffix == "" {
		return fmt.Errorf("%w: override.entryRouteSuffix is required", ErrInvalid)
	}
	if o.LocalRoot == "" {
		return fmt.Errorf("%w: override.localRoot is required", ErrInvalid)
	}
	fi, err := os.Stat(o.LocalRoot)
	if err != nil {
		return fmt.Errorf("%w: override.localRoot: %v", ErrInvalid, err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("%w: override.localRoot %s is not a directory", ErrInvalid, o.LocalRoot)
	}
	if c.Browser.DevToolsURL == "" {
		return fmt.Errorf("%w: browser.devToolsURL is required", ErrInvalid)
	}
	if c.Intercept.Concurrency < 0 || c.Intercept.PendingCapacity < 0 {
		return fmt.Errorf("%w: intercept.concurrency and intercept.pendingCapacity must not be negative", ErrInvalid)
	}
	return nil
}
