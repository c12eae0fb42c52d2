package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/annel0/mmo-terrain/internal/api/replay"
	"github.com/annel0/mmo-terrain/internal/eventbus"
	"github.com/annel0/mmo-terrain/internal/logging"
	"github.com/annel0/mmo-terrain/internal/mapgen"
	"github.com/annel0/mmo-terrain/internal/metrics"
	"github.com/annel0/mmo-terrain/internal/middleware"
	"github.com/annel0/mmo-terrain/internal/storage"
	"github.com/annel0/mmo-terrain/internal/terrain"
)

// RestServer: HTTP-сервис редактирования и сглаживания одной карты.
//
// Карта и сглаживатель защищены мьютексом: пакет terrain не синхронизирует
// доступ сам, поэтому все операции над картой выполняются под rs.mu.
type RestServer struct {
	router     *gin.Engine
	httpServer *http.Server
	upgrader   websocket.Upgrader

	mu       sync.Mutex
	grid     *terrain.MemoryGrid
	smoother *terrain.Smoother

	smoothMetrics *metrics.SmoothingMetrics
	store         storage.TerrainStore
	bus           eventbus.EventBus
	ownsBus       bool
	busMetrics    *eventbus.MetricsExporter
	events        *replay.MemoryEventStore
	webhooks      *OutboundWebhookManager
	metrics       *ServerMetrics
	logger        *logging.Logger
	settings      mapgen.Settings
	maxPasses     int
}

// Config содержит зависимости REST сервера. Пустые поля заменяются значениями по умолчанию.
type Config struct {
	Grid      *terrain.MemoryGrid  // карта; nil: пустая карта из настроек генератора
	Store     storage.TerrainStore // nil: хранилище в памяти
	Bus       eventbus.EventBus    // nil: собственная шина в памяти
	Registry  *prometheus.Registry // nil: отдельный реестр
	Logger    *logging.Logger
	Settings  *mapgen.Settings // параметры для /api/generate
	MaxPasses int              // ограничение сглаживания до сходимости
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// NewRestServer создает новый REST API сервер
func NewRestServer(cfg Config) (*RestServer, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetAPILogger()
	}

	settings := mapgen.DefaultSettings()
	if cfg.Settings != nil {
		settings = *cfg.Settings
	}

	grid := cfg.Grid
	if grid == nil {
		res, err := mapgen.GenerateBlank(settings)
		if err != nil {
			return nil, err
		}
		grid = res.Grid
	}

	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	store := cfg.Store
	if store == nil {
		store = storage.NewMemoryStore()
	}

	bus := cfg.Bus
	ownsBus := false
	if bus == nil {
		bus = eventbus.NewMemoryBus(1024)
		ownsBus = true
	}

	smoothMetrics, err := metrics.NewSmoothingMetrics(reg)
	if err != nil {
		return nil, err
	}
	busMetrics, err := eventbus.NewMetricsExporter(bus, reg)
	if err != nil {
		return nil, err
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	// === Observability middleware ===
	router.Use(otelgin.Middleware("terrain_api"))
	router.Use(middleware.NewRequestLogger(logger).Handler())

	promMw, err := middleware.NewPrometheusMiddleware("terrain_api", reg, reg)
	if err != nil {
		return nil, err
	}
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router)

	maxPasses := cfg.MaxPasses
	if maxPasses <= 0 {
		maxPasses = settings.MaxPasses
	}

	rs := &RestServer{
		router:        router,
		upgrader:      newUpgrader(),
		grid:          grid,
		smoothMetrics: smoothMetrics,
		store:         store,
		bus:           bus,
		ownsBus:       ownsBus,
		busMetrics:    busMetrics,
		events:        replay.NewMemoryEventStore(512),
		webhooks:      NewOutboundWebhookManager(logger),
		metrics:       NewServerMetrics(),
		logger:        logger,
		settings:      settings,
		maxPasses:     maxPasses,
	}
	rs.smoother = rs.newSmoother(grid)

	if err := rs.events.Attach(context.Background(), bus); err != nil {
		return nil, err
	}
	if err := rs.webhooks.Attach(context.Background(), bus); err != nil {
		return nil, err
	}
	busMetrics.Start()

	rs.setupRoutes()
	return rs, nil
}

func (rs *RestServer) newSmoother(g *terrain.MemoryGrid) *terrain.Smoother {
	return terrain.NewSmoother(g, terrain.WithObserver(rs.smoothMetrics), terrain.WithLogger(logging.GetTerrainLogger()))
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	// Middleware для CORS
	rs.router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	api := rs.router.Group("/api")
	{
		api.GET("/stats", rs.handleStats)
		api.GET("/map", rs.handleMapInfo)

		api.GET("/tiles/:x/:y", rs.handleGetTile)
		api.PUT("/tiles/:x/:y", rs.handlePutTile)

		api.POST("/smooth", rs.handleSmooth)
		api.GET("/validate", rs.handleValidate)
		api.POST("/generate", rs.handleGenerate)

		maps := api.Group("/maps")
		maps.GET("", rs.handleListMaps)
		maps.POST("/:name/save", rs.handleSaveMap)
		maps.POST("/:name/load", rs.handleLoadMap)
		maps.DELETE("/:name", rs.handleDeleteMap)

		api.GET("/events", rs.handleRecentEvents)

		webhooks := api.Group("/webhooks")
		webhooks.GET("", rs.handleGetOutboundWebhooks)
		webhooks.POST("", rs.handleCreateOutboundWebhook)
		webhooks.DELETE("/:id", rs.handleDeleteOutboundWebhook)
		webhooks.GET("/events", rs.handleGetWebhookEventTypes)
	}

	rs.router.GET("/ws/events", rs.handleEventStream)

	// Health check
	rs.router.GET("/health", rs.handleHealth)
}

// Handler возвращает http.Handler сервера (для тестов и встраивания)
func (rs *RestServer) Handler() http.Handler {
	return rs.router
}

// Grid возвращает текущую карту. Вызывающий не должен изменять её без блокировки сервера.
func (rs *RestServer) Grid() *terrain.MemoryGrid {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.grid
}

// handleHealth проверка состояния сервера
func (rs *RestServer) handleHealth(c *gin.Context) {
	snap := rs.metrics.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"time":        time.Now().Unix(),
		"uptime":      snap.Uptime,
		"memory_mb":   snap.MemoryMB,
		"cpu_percent": snap.CPUPercent,
	})
}

// Start запускает HTTP сервер в отдельной горутине
func (rs *RestServer) Start(addr string) error {
	rs.httpServer = &http.Server{
		Addr:              addr,
		Handler:           rs.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := rs.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rs.logger.Error("❌ Ошибка REST API сервера: %v", err)
			errCh <- err
		}
	}()

	// Ошибка привязки порта проявляется сразу
	select {
	case err := <-errCh:
		return err
	case <-time.After(100 * time.Millisecond):
	}

	rs.logger.Info("✅ REST API сервер запущен на %s", addr)
	return nil
}

// Shutdown останавливает HTTP сервер и фоновые подписки
func (rs *RestServer) Shutdown(ctx context.Context) error {
	rs.logger.Info("🛑 Остановка REST API сервера...")

	var firstErr error
	if rs.httpServer != nil {
		if err := rs.httpServer.Shutdown(ctx); err != nil {
			rs.logger.Error("❌ Ошибка при остановке HTTP сервера: %v", err)
			firstErr = err
		}
	}

	rs.webhooks.Close()
	_ = rs.events.Close()
	rs.busMetrics.Stop()

	if rs.ownsBus {
		if err := rs.bus.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	rs.logger.Info("✅ REST API сервер остановлен")
	return firstErr
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, GenericResponse{Success: false, Message: message})
}

// publish отправляет событие в шину; ошибки шины не влияют на ответ клиенту.
// Контекст запроса не используется: событие должно уйти и после отключения клиента.
func (rs *RestServer) publish(ev *eventbus.Envelope, err error) {
	if err != nil {
		rs.logger.Warn("Не удалось создать событие: %v", err)
		return
	}
	if err := rs.bus.Publish(context.Background(), ev); err != nil {
		rs.logger.Warn("Не удалось опубликовать %s: %v", ev.EventType, err)
	}
}
