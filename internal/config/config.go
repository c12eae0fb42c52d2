package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации сервиса рельефа.
// Пустые поля заполняются значениями по умолчанию в Load.
type Config struct {
	MapGen   MapGenConfig   `yaml:"mapgen"`
	Storage  StorageConfig  `yaml:"storage"`
	Server   ServerConfig   `yaml:"server"`
	EventBus EventBusConfig `yaml:"eventbus"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

// MapGenConfig: параметры генератора карт
type MapGenConfig struct {
	Size        int     `yaml:"size"`
	Height      int     `yaml:"height"`
	WaterLevel  int     `yaml:"water_level"`
	Surface     string  `yaml:"surface"` // "" или "random": случайный стиль
	Edge        string  `yaml:"edge"`
	Seed        int64   `yaml:"seed"`
	Frequency   float64 `yaml:"frequency"`
	Octaves     int     `yaml:"octaves"`
	Low         int     `yaml:"low"`
	High        int     `yaml:"high"`
	Smooth      bool    `yaml:"smooth"`
	SmoothTiles bool    `yaml:"smooth_tiles"`
	Strength    int     `yaml:"strength"`
	Normalize   bool    `yaml:"normalize"`
	Beaches     bool    `yaml:"beaches"`
	MaxPasses   int     `yaml:"max_passes"`
}

// StorageConfig: выбор и параметры хранилища снимков
type StorageConfig struct {
	Backend    string `yaml:"backend"` // memory | badger | redis | sqlite
	BadgerDir  string `yaml:"badger_dir"`
	SQLitePath string `yaml:"sqlite_path"`
	RedisAddr  string `yaml:"redis_addr"`
	RedisDB    int    `yaml:"redis_db"`
	RedisTTL   int    `yaml:"redis_ttl_seconds"`
}

type ServerConfig struct {
	RESTPort    int `yaml:"rest_port"`
	MetricsPort int `yaml:"metrics_port"`
}

type EventBusConfig struct {
	Backend   string `yaml:"backend"` // memory | nats
	URL       string `yaml:"url"`
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
}

type LoggingConfig struct {
	Level     string `yaml:"level"`
	FileLevel string `yaml:"file_level"`
	Dir       string `yaml:"dir"`
}

type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Service  string `yaml:"service"`
}

// ErrInvalidConfig: базовая ошибка валидации конфигурации
var ErrInvalidConfig = errors.New("config: некорректная конфигурация")

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	m := &c.MapGen
	if m.Size == 0 {
		m.Size = 128
	}
	if m.Height == 0 {
		m.Height = 12
	}
	if m.WaterLevel == 0 {
		m.WaterLevel = 16
	}
	if m.Frequency == 0 {
		m.Frequency = 0.6
	}
	if m.Octaves == 0 {
		m.Octaves = 4
	}
	if m.High == 0 {
		m.High = 10
	}
	if m.Low == 0 {
		m.Low = 6
	}
	if m.Strength == 0 {
		m.Strength = 2
	}
	if m.MaxPasses == 0 {
		m.MaxPasses = 1000
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = "memory"
	}
	if c.Storage.BadgerDir == "" {
		c.Storage.BadgerDir = "data/terrain"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "data/terrain.db"
	}
	if c.Storage.RedisAddr == "" {
		c.Storage.RedisAddr = "localhost:6379"
	}

	if c.EventBus.Backend == "" {
		c.EventBus.Backend = "memory"
	}
	if c.EventBus.Stream == "" {
		c.EventBus.Stream = "TERRAIN"
	}
	if c.EventBus.Retention == 0 {
		c.EventBus.Retention = 24
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "INFO"
	}
	if c.Tracing.Service == "" {
		c.Tracing.Service = "terrain-service"
	}
}

// Validate проверяет согласованность значений
func (c *Config) Validate() error {
	m := c.MapGen
	if m.Size < 3 || m.Size > 256 {
		return fmt.Errorf("%w: mapgen.size=%d вне диапазона 3..256", ErrInvalidConfig, m.Size)
	}
	if m.Low < 0 || m.High > 255 || m.Low >= m.High {
		return fmt.Errorf("%w: mapgen.low=%d high=%d", ErrInvalidConfig, m.Low, m.High)
	}
	if m.Height < 0 || m.Height > 255 {
		return fmt.Errorf("%w: mapgen.height=%d", ErrInvalidConfig, m.Height)
	}
	switch c.Storage.Backend {
	case "memory", "badger", "redis", "sqlite":
	default:
		return fmt.Errorf("%w: неизвестное хранилище %q", ErrInvalidConfig, c.Storage.Backend)
	}
	switch c.EventBus.Backend {
	case "memory", "nats":
	default:
		return fmt.Errorf("%w: неизвестная шина событий %q", ErrInvalidConfig, c.EventBus.Backend)
	}
	return nil
}

// GetRESTPort возвращает REST API порт с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getPortWithEnvFallback(s.RESTPort, "TERRAIN_REST_PORT", 8088)
}

// GetMetricsPort возвращает Prometheus метрики порт с поддержкой fallback значений
func (s *ServerConfig) GetMetricsPort() int {
	return getPortWithEnvFallback(s.MetricsPort, "TERRAIN_METRICS_PORT", 2112)
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if configPort > 0 {
		return configPort
	}

	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	return defaultPort
}

// Load читает YAML файл конфигурации.
// Если path == "", пытается прочитать путь из ENV TERRAIN_CONFIG,
// а без него возвращает конфигурацию по умолчанию.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("TERRAIN_CONFIG")
		if path == "" {
			return Default(), nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("чтение конфигурации %s: %w", path, err)
	}

	if err := ValidateYAML(data); err != nil {
		return nil, fmt.Errorf("конфигурация %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("разбор конфигурации %s: %w", path, err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
