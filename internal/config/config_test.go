package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "terrain.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_DefaultsWithoutPath(t *testing.T) {
	t.Setenv("TERRAIN_CONFIG", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 128, cfg.MapGen.Size)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, "TERRAIN", cfg.EventBus.Stream)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfig(t, `
mapgen:
  size: 64
  water_level: 10
  smooth: true
storage:
  backend: badger
  badger_dir: /tmp/terrain
eventbus:
  backend: nats
  url: nats://127.0.0.1:4222
logging:
  level: DEBUG
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.MapGen.Size)
	assert.Equal(t, 10, cfg.MapGen.WaterLevel)
	assert.True(t, cfg.MapGen.Smooth)
	assert.Equal(t, 4, cfg.MapGen.Octaves, "незаданные поля получают значения по умолчанию")
	assert.Equal(t, "badger", cfg.Storage.Backend)
	assert.Equal(t, "nats", cfg.EventBus.Backend)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
}

func TestLoad_FromEnv(t *testing.T) {
	path := writeConfig(t, "mapgen:\n  size: 32\n")
	t.Setenv("TERRAIN_CONFIG", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.MapGen.Size)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "mapgen: [1, 2"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "storage:\n  backend: floppy\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Load(writeConfig(t, "mapgen:\n  low: 80\n  high: 40\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestServerConfig_PortFallback(t *testing.T) {
	s := ServerConfig{}

	t.Setenv("TERRAIN_REST_PORT", "")
	assert.Equal(t, 8088, s.GetRESTPort())

	t.Setenv("TERRAIN_REST_PORT", "9000")
	assert.Equal(t, 9000, s.GetRESTPort())

	t.Setenv("TERRAIN_METRICS_PORT", "oops")
	assert.Equal(t, 2112, s.GetMetricsPort())

	s.RESTPort = 7000
	assert.Equal(t, 7000, s.GetRESTPort(), "значение из конфига приоритетнее env")
}

func TestValidateYAML(t *testing.T) {
	assert.NoError(t, ValidateYAML([]byte("")), "пустой файл допустим")
	assert.NoError(t, ValidateYAML([]byte("mapgen:\n  size: 64\n  frequency: 0.5\n")))

	err := ValidateYAML([]byte("mapgen:\n  sise: 64\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig, "опечатка в ключе")

	err = ValidateYAML([]byte("mapgen:\n  size: 1000\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig, "размер вне диапазона")

	err = ValidateYAML([]byte("server:\n  rest_port: \"eighty\"\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig, "неверный тип")

	_, err = Load(writeConfig(t, "tracing:\n  enabled: true\n  sampler: always\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
