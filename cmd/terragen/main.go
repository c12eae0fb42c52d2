package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/annel0/mmo-terrain/internal/api"
	"github.com/annel0/mmo-terrain/internal/config"
	"github.com/annel0/mmo-terrain/internal/eventbus"
	"github.com/annel0/mmo-terrain/internal/logging"
	"github.com/annel0/mmo-terrain/internal/mapgen"
	"github.com/annel0/mmo-terrain/internal/metrics"
	"github.com/annel0/mmo-terrain/internal/observability"
	"github.com/annel0/mmo-terrain/internal/storage"
	"github.com/annel0/mmo-terrain/internal/terrain"
)

const usage = `Usage: terragen <command> [flags]

Commands:
  generate   generate a map from noise (or a blank one) and optionally store it
  heightmap  generate a map from a grayscale PNG heightmap
  check      validate slopes of a stored map
  serve      run the REST API
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		log.Fatalf("❌ %v", err)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return errors.New("command required")
	}

	switch args[0] {
	case "generate":
		return runGenerate(ctx, args[1:], out)
	case "heightmap":
		return runHeightmap(ctx, args[1:], out)
	case "check":
		return runCheck(ctx, args[1:], out)
	case "serve":
		return runServe(ctx, args[1:])
	case "help", "-h", "--help":
		fmt.Fprint(out, usage)
		return nil
	default:
		fmt.Fprint(out, usage)
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

// loadConfig читает конфигурацию и настраивает логирование по её секции logging
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	consoleLevel, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	fileLevel := logging.DEBUG
	if cfg.Logging.FileLevel != "" {
		if fileLevel, err = logging.ParseLevel(cfg.Logging.FileLevel); err != nil {
			return nil, err
		}
	}
	logging.Configure(logging.Options{Dir: cfg.Logging.Dir, ConsoleLevel: consoleLevel, FileLevel: fileLevel})
	return cfg, nil
}

type mapFlags struct {
	configPath string
	size       int
	seed       int64
	out        string
}

func (m *mapFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&m.configPath, "config", "", "Path to YAML config (default: $TERRAIN_CONFIG)")
	fs.IntVar(&m.size, "size", 0, "Map size override")
	fs.Int64Var(&m.seed, "seed", 0, "Seed override (0 = random)")
	fs.StringVar(&m.out, "out", "", "Store the map under this name")
}

func (m *mapFlags) settings(cfg *config.Config) (mapgen.Settings, error) {
	s, err := mapgen.SettingsFromConfig(cfg.MapGen)
	if err != nil {
		return s, err
	}
	if m.size != 0 {
		s.MapSize = m.size
	}
	if m.seed != 0 {
		s.Seed = m.seed
	}
	return s, s.Validate()
}

func runGenerate(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	var mf mapFlags
	mf.register(fs)
	blank := fs.Bool("blank", false, "Generate a flat map without noise")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(mf.configPath)
	if err != nil {
		return err
	}
	s, err := mf.settings(cfg)
	if err != nil {
		return err
	}

	gen := mapgen.NewGenerator(mapgen.WithLogger(logging.GetMapgenLogger()))
	var res *mapgen.Result
	if *blank {
		res, err = gen.GenerateBlank(s)
	} else {
		res, err = gen.Generate(ctx, s)
	}
	if err != nil {
		return err
	}

	printResult(out, res)
	return storeResult(ctx, cfg, mf.out, res, out)
}

func runHeightmap(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("heightmap", flag.ContinueOnError)
	var mf mapFlags
	mf.register(fs)
	in := fs.String("in", "", "Grayscale PNG heightmap (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return errors.New("heightmap: -in is required")
	}

	cfg, err := loadConfig(mf.configPath)
	if err != nil {
		return err
	}
	s, err := mf.settings(cfg)
	if err != nil {
		return err
	}

	f, err := os.Open(*in)
	if err != nil {
		return err
	}
	defer f.Close()

	hm, err := mapgen.LoadHeightmap(f)
	if err != nil {
		return err
	}

	res, err := mapgen.NewGenerator(mapgen.WithLogger(logging.GetMapgenLogger())).GenerateFromHeightmap(ctx, hm, s)
	if err != nil {
		return err
	}

	printResult(out, res)
	return storeResult(ctx, cfg, mf.out, res, out)
}

func printResult(out io.Writer, res *mapgen.Result) {
	fmt.Fprintf(out, "🗺️  Map %dx%d seed=%d surface=%s edge=%s trees=%d smooth_passes=%d\n",
		res.Grid.Width(), res.Grid.Height(), res.Seed, res.Surface, res.Edge, len(res.Trees), res.SmoothPasses)
}

func storeResult(ctx context.Context, cfg *config.Config, name string, res *mapgen.Result, out io.Writer) error {
	if name == "" {
		return nil
	}
	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Save(ctx, name, res.Grid); err != nil {
		return err
	}
	fmt.Fprintf(out, "💾 Saved as %q (%s)\n", name, cfg.Storage.Backend)
	return nil
}

func runCheck(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to YAML config (default: $TERRAIN_CONFIG)")
	name := fs.String("name", "", "Stored map name (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return errors.New("check: -name is required")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	g, err := store.Load(ctx, *name)
	if err != nil {
		return err
	}

	violations := terrain.Validate(g, 0, 0, g.Width(), g.Height())
	for _, v := range violations {
		fmt.Fprintf(out, "  %s\n", v)
	}
	if len(violations) > 0 {
		return fmt.Errorf("%s: %d slope violations", *name, len(violations))
	}
	fmt.Fprintf(out, "✅ %s: %dx%d, slopes consistent\n", *name, g.Width(), g.Height())
	return nil
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to YAML config (default: $TERRAIN_CONFIG)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if err := logging.InitDefaultLogger("server"); err != nil {
		return err
	}
	defer logging.CloseDefaultLogger()
	defer func() { _ = logging.GetLoggerManager().CloseAll() }()

	logging.Info("🗻 Запуск сервиса рельефа...")

	shutdownTracing, err := observability.InitTelemetry(ctx, observability.Options{
		Enabled:  cfg.Tracing.Enabled,
		Endpoint: cfg.Tracing.Endpoint,
		Service:  cfg.Tracing.Service,
		Insecure: true,
	})
	if err != nil {
		return fmt.Errorf("телеметрия: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logging.Warn("Остановка телеметрии: %v", err)
		}
	}()

	settings, err := mapgen.SettingsFromConfig(cfg.MapGen)
	if err != nil {
		return err
	}

	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	bus, err := eventbus.New(cfg.EventBus)
	if err != nil {
		return err
	}
	defer bus.Close()
	eventbus.Init(bus)

	sub, err := eventbus.StartLoggingListener(bus)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	server, err := api.NewRestServer(api.Config{
		Store:     store,
		Bus:       bus,
		Registry:  reg,
		Settings:  &settings,
		MaxPasses: cfg.MapGen.MaxPasses,
	})
	if err != nil {
		return err
	}

	restAddr := fmt.Sprintf(":%d", cfg.Server.GetRESTPort())
	if err := server.Start(restAddr); err != nil {
		return err
	}

	// Отдельный порт для Prometheus, как у игрового сервера
	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.GetMetricsPort()),
		Handler:           metrics.Handler(reg),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("❌ Ошибка сервера метрик: %v", err)
		}
	}()

	logging.Info("✅ Сервис запущен: REST %s, метрики %s, хранилище %s, шина %s",
		restAddr, metricsSrv.Addr, cfg.Storage.Backend, cfg.EventBus.Backend)

	<-ctx.Done()
	logging.Info("📡 Получен сигнал завершения, остановка...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logging.Error("❌ Ошибка остановки сервера метрик: %v", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Error("❌ Ошибка остановки REST API: %v", err)
	}

	logging.Info("👋 Сервис остановлен")
	return nil
}
