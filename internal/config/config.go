package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Widget modes.
const (
	ModeInput  = "input"
	ModeOutput = "output"
)

// Config структура конфигурации.
type Config struct {
	Logger  LogConf      `toml:"logger" yaml:"logger"`   // Logger - конфигурация регистратора.
	MQTT    MQTTConf     `toml:"mqtt" yaml:"mqtt"`       // MQTT - конфигурация MQTT клиента.
	ArtNet  ArtNetConf   `toml:"artnet" yaml:"artnet"`   // ArtNet - конфигурация Art-Net.
	Metrics MetricsConf  `toml:"metrics" yaml:"metrics"` // Metrics - конфигурация Prometheus.
	Widgets []WidgetConf `toml:"widget" yaml:"widgets"`  // Widgets - подключенные виджеты.
}

// LogConf структура конфигурации.
type LogConf struct {
	Level  string `toml:"log-level" yaml:"log-level"` // Level - уровень логирования.
	Format string `toml:"format" yaml:"format"`       // Format - text или json.
}

// MQTTConf структура конфигурации.
type MQTTConf struct {
	Enabled  bool   `toml:"enabled" yaml:"enabled"`
	ClientID string `toml:"clientID" yaml:"clientID"` // ClientID - имя клиента.
	Host     string `toml:"server" yaml:"server"`     // Host - адрес MQTT сервера.
	Port     string `toml:"port" yaml:"port"`         // Port - порт MQTT сервера.
	User     string `toml:"user" yaml:"user"`         // User - логин для подключения к MQTT серверу.
	Password string `toml:"password" yaml:"password"` // Password - пароль для подключения к MQTT серверу.
	Qos      byte   `toml:"qos" yaml:"qos"`           // Qos - качество обслуживания.
	Prefix   string `toml:"prefix" yaml:"prefix"`     // Prefix - корень топиков.
}

// ArtNetConf структура конфигурации.
type ArtNetConf struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Network string `toml:"network" yaml:"network"` // Network - подсеть Art-Net в формате CIDR.
	MaxFPS  int    `toml:"max-fps" yaml:"max-fps"`
}

// MetricsConf структура конфигурации.
type MetricsConf struct {
	Listen string `toml:"listen" yaml:"listen"` // Listen - адрес HTTP, пусто - выключено.
}

// WidgetConf describes one USB Pro widget.
type WidgetConf struct {
	Name          string      `toml:"name" yaml:"name"`
	Device        string      `toml:"device" yaml:"device"`
	Baud          int         `toml:"baud" yaml:"baud"`
	Mode          string      `toml:"mode" yaml:"mode"`               // Mode - input или output.
	ChangeOnly    bool        `toml:"change-only" yaml:"change-only"` // ChangeOnly - получать только изменения.
	Universe      uint16      `toml:"universe" yaml:"universe"`       // Universe - адрес Art-Net для входящих данных.
	ParamsTimeout Duration    `toml:"params-timeout" yaml:"params-timeout"`
	Params        *ParamsConf `toml:"params" yaml:"params"` // Params - записать параметры при старте.
}

// ParamsConf are widget timing parameters written at start.
type ParamsConf struct {
	BreakTime uint8 `toml:"break-time" yaml:"break-time"`
	MABTime   uint8 `toml:"mab-time" yaml:"mab-time"`
	Rate      uint8 `toml:"rate" yaml:"rate"`
}

// Duration is a time.Duration read from strings like "2s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used for missing keys.
func Default() Config {
	return Config{
		Logger: LogConf{Level: "info", Format: "text"},
		MQTT: MQTTConf{
			ClientID: "usbprobridge",
			Host:     "localhost",
			Port:     "1883",
			Prefix:   "usbpro",
		},
		ArtNet: ArtNetConf{
			Network: "192.168.6.0/24",
			MaxFPS:  40,
		},
	}
}

// DefaultParamsTimeout applies to widgets without params-timeout.
const DefaultParamsTimeout = 2 * time.Second

// NewConfig конструктор. The format is chosen by file extension: .yaml and
// .yml are YAML, anything else TOML.
func NewConfig(path string) (*Config, error) {
	// default values
	cfg := Default()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return &cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return &cfg, err
		}
	default:
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return &cfg, err
		}
	}

	cfg.applyWidgetDefaults()
	if err := cfg.Validate(); err != nil {
		return &cfg, err
	}
	return &cfg, nil
}

func (c *Config) applyWidgetDefaults() {
	for i := range c.Widgets {
		w := &c.Widgets[i]
		if w.Mode == "" {
			w.Mode = ModeInput
		}
		if w.ParamsTimeout.Duration == 0 {
			w.ParamsTimeout.Duration = DefaultParamsTimeout
		}
		if w.Name == "" {
			w.Name = filepath.Base(w.Device)
		}
	}
}

// Validate checks the widget list.
func (c *Config) Validate() error {
	var errs []error
	names := map[string]bool{}
	for i, w := range c.Widgets {
		if w.Device == "" {
			errs = append(errs, fmt.Errorf("widget %d: device is empty", i))
		}
		if names[w.Name] {
			errs = append(errs, fmt.Errorf("widget %d: duplicate name %q", i, w.Name))
		}
		names[w.Name] = true
		if w.Mode != ModeInput && w.Mode != ModeOutput {
			errs = append(errs, fmt.Errorf("widget %q: unknown mode %q", w.Name, w.Mode))
		}
		if w.ParamsTimeout.Duration < 0 {
			errs = append(errs, fmt.Errorf("widget %q: negative params-timeout", w.Name))
		}
	}
	return errors.Join(errs...)
}
