package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitTelemetry_Disabled(t *testing.T) {
	shutdown, err := InitTelemetry(context.Background(), Options{Enabled: false})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	_, span := Tracer().Start(context.Background(), "noop")
	span.End()
}

func TestInitTelemetry_Enabled(t *testing.T) {
	// Экспортер создаётся лениво, сеть при инициализации не нужна
	shutdown, err := InitTelemetry(context.Background(), Options{
		Enabled:  true,
		Endpoint: "127.0.0.1:1",
		Service:  "terrain-test",
		Insecure: true,
	})
	require.NoError(t, err)

	_, span := Tracer().Start(context.Background(), "smoke")
	span.End()

	// Отправка в недоступный коллектор может завершиться ошибкой: важно, что не зависает
	_ = shutdown(context.Background())
}

func TestEndpointOrDefault(t *testing.T) {
	assert.Equal(t, "localhost:4318", endpointOrDefault(""))
	assert.Equal(t, "otel:4318", endpointOrDefault("otel:4318"))
}
