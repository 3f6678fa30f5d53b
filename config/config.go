package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fansqz/trace-debugger/constants"
	"gopkg.in/yaml.v3"
)

const (
	DefaultAddress       = "127.0.0.1"
	DefaultPort          = 15470
	DefaultWebsocketPath = "/debug"
)

// LogConfig 日志配置
type LogConfig struct {
	// Level 默认的日志级别
	Level string `yaml:"level"`
	// Domains 开启debug级别的日志领域，每个字母表示一个领域，如"nbx"
	Domains string `yaml:"domains"`
	// File 日志文件，为空时输出到stderr
	File string `yaml:"file"`
	JSON bool   `yaml:"json"`
}

// Config 调试服务的配置
type Config struct {
	Address          string                 `yaml:"address"`
	Port             int                    `yaml:"port"`
	Protocol         constants.ProtocolType `yaml:"protocol"`
	Websocket        bool                   `yaml:"websocket"`
	WebsocketPath    string                 `yaml:"websocketPath"`
	Welcome          bool                   `yaml:"welcome"`
	StopAtEntry      bool                   `yaml:"stopAtEntry"`
	WorkingDirectory string                 `yaml:"workingDirectory"`
	ReceiveChunkSize int                    `yaml:"receiveChunkSize"`
	// MaxMessageSize 一条消息的最大长度，超过时断开连接
	MaxMessageSize int           `yaml:"maxMessageSize"`
	EvalTimeout    time.Duration `yaml:"evalTimeout"`
	MaxReprLength  int           `yaml:"maxReprLength"`
	Log            LogConfig     `yaml:"log"`
}

// Default 默认配置
func Default() *Config {
	return &Config{
		Address:          DefaultAddress,
		Port:             DefaultPort,
		Protocol:         constants.ProtocolNative,
		WebsocketPath:    DefaultWebsocketPath,
		Welcome:          true,
		ReceiveChunkSize: 4096,
		MaxMessageSize:   16 << 20,
		EvalTimeout:      5 * time.Second,
		MaxReprLength:    512,
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load 读取配置文件，path为空时返回默认配置
// 文件中没有出现的字段保持默认值
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err = cfg.decode(data); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate 检查配置是否合法
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	switch c.Protocol {
	case constants.ProtocolNative, constants.ProtocolDAP:
	default:
		return fmt.Errorf("unknown protocol %q", c.Protocol)
	}
	if c.Websocket && c.Protocol != constants.ProtocolNative {
		return errors.New("websocket is only supported for the native protocol")
	}
	if c.ReceiveChunkSize <= 0 {
		return fmt.Errorf("invalid receiveChunkSize %d", c.ReceiveChunkSize)
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("invalid maxMessageSize %d", c.MaxMessageSize)
	}
	if c.EvalTimeout < 0 {
		return fmt.Errorf("invalid evalTimeout %s", c.EvalTimeout)
	}
	return nil
}

// Listen 监听地址
func (c *Config) Listen() string {
	return fmt.Sprintf("%s:%d", c.Address, c.Port)
}
