package observability

import (
	"context"
	"time"

	"github.com/annel0/mmo-terrain/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// TracerName: имя трассировщика для спанов сервиса рельефа
const TracerName = "github.com/annel0/mmo-terrain"

// Options управляют инициализацией телеметрии
type Options struct {
	Enabled  bool
	Endpoint string // host:port OTLP HTTP, пусто: localhost:4318
	Service  string
	Insecure bool
}

// InitTelemetry настраивает OTLP экспортер и устанавливает глобальный TracerProvider.
// Возвращает функцию shutdown, которую нужно вызвать при завершении приложения.
// При выключенной телеметрии глобальный провайдер остаётся no-op.
func InitTelemetry(ctx context.Context, opts Options) (func(context.Context) error, error) {
	if !opts.Enabled {
		logging.Debug("OpenTelemetry выключен")
		return func(context.Context) error { return nil }, nil
	}

	var expOpts []otlptracehttp.Option
	if opts.Endpoint != "" {
		expOpts = append(expOpts, otlptracehttp.WithEndpoint(opts.Endpoint))
	}
	if opts.Insecure {
		expOpts = append(expOpts, otlptracehttp.WithInsecure())
	}

	exp, err := otlptracehttp.New(ctx, expOpts...)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(opts.Service)),
	)
	if err != nil {
		return nil, err
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exp),
		trace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	logging.Info("📡 OpenTelemetry инициализирован (endpoint=%s, service=%s)", endpointOrDefault(opts.Endpoint), opts.Service)

	shutdown := func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	}
	return shutdown, nil
}

// Tracer возвращает трассировщик сервиса из глобального провайдера
func Tracer() oteltrace.Tracer {
	return otel.Tracer(TracerName)
}

func endpointOrDefault(ep string) string {
	if ep == "" {
		return "localhost:4318"
	}
	return ep
}
