package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"trace":   TRACE,
		"DEBUG":   DEBUG,
		"":        INFO,
		"warning": WARN,
		" error ": ERROR,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, "уровень %q должен разбираться", in)
		assert.Equal(t, want, got)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err, "неизвестный уровень должен давать ошибку")
}

func TestWriterLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger("terrain", &buf, INFO)

	logger.Debug("скрытое сообщение")
	logger.Info("проход %d", 3)
	logger.Error("ошибка")

	out := buf.String()
	assert.NotContains(t, out, "скрытое")
	assert.Contains(t, out, "[terrain] [INFO] проход 3")
	assert.Contains(t, out, "[ERROR] ошибка")
	assert.False(t, logger.Enabled(DEBUG))
	assert.True(t, logger.Enabled(WARN))
}

func TestNewLogger_WritesFile(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer
	Configure(Options{Dir: dir, ConsoleLevel: WARN, FileLevel: DEBUG, Console: &console})
	defer Configure(Options{ConsoleLevel: INFO, FileLevel: DEBUG})

	logger, err := NewLogger("mapgen")
	require.NoError(t, err)

	logger.Debug("только в файл")
	require.NoError(t, logger.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "mapgen_"))

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(data), "только в файл")
	assert.Empty(t, console.String(), "DEBUG не должен попадать в консоль при уровне WARN")
}

func TestLoggerManager_ReusesComponentLoggers(t *testing.T) {
	Configure(Options{ConsoleLevel: INFO, FileLevel: DEBUG, Console: &bytes.Buffer{}})
	defer Configure(Options{ConsoleLevel: INFO, FileLevel: DEBUG})

	lm := &LoggerManager{loggers: make(map[string]*Logger)}
	a, err := lm.GetLogger("storage")
	require.NoError(t, err)
	b, err := lm.GetLogger("storage")
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, []string{"storage"}, lm.ListComponents())

	require.NoError(t, lm.SetLogLevel("storage", ERROR, ERROR))
	assert.False(t, a.Enabled(WARN))
	assert.Error(t, lm.SetLogLevel("missing", INFO, INFO))

	require.NoError(t, lm.CloseAll())
	assert.Empty(t, lm.ListComponents())
}
