package main

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSQLiteConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	body := fmt.Sprintf(`
mapgen:
  size: 24
  seed: 7
storage:
  backend: sqlite
  sqlite_path: %s
logging:
  level: ERROR
`, filepath.Join(dir, "maps.db"))
	path := filepath.Join(dir, "terrain.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRun_Usage(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, run(context.Background(), nil, &out))
	assert.Contains(t, out.String(), "Commands:")

	out.Reset()
	assert.Error(t, run(context.Background(), []string{"erode"}, &out))
	assert.NoError(t, run(context.Background(), []string{"help"}, &out))
}

func TestRun_GenerateAndCheck(t *testing.T) {
	cfg := writeSQLiteConfig(t)
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, run(ctx, []string{"generate", "-config", cfg, "-blank", "-out", "flat"}, &out))
	assert.Contains(t, out.String(), "Map 24x24")
	assert.Contains(t, out.String(), `Saved as "flat"`)

	out.Reset()
	require.NoError(t, run(ctx, []string{"check", "-config", cfg, "-name", "flat"}, &out))
	assert.Contains(t, out.String(), "slopes consistent")

	assert.Error(t, run(ctx, []string{"check", "-config", cfg, "-name", "missing"}, &out))
	assert.Error(t, run(ctx, []string{"check", "-config", cfg}, &out))
}

func TestRun_GenerateNoise(t *testing.T) {
	cfg := writeSQLiteConfig(t)

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"generate", "-config", cfg, "-size", "32", "-seed", "99"}, &out))
	assert.Contains(t, out.String(), "Map 32x32 seed=99")
}

func TestRun_Heightmap(t *testing.T) {
	cfg := writeSQLiteConfig(t)

	img := image.NewGray(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(x * 16)})
		}
	}
	pngPath := filepath.Join(t.TempDir(), "ramp.png")
	f, err := os.Create(pngPath)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"heightmap", "-config", cfg, "-in", pngPath}, &out))
	assert.Contains(t, out.String(), "Map ")

	assert.Error(t, run(context.Background(), []string{"heightmap", "-config", cfg}, &out))
}
