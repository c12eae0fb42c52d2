package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"

	"github.com/annel0/mmo-terrain/internal/api/replay"
	"github.com/annel0/mmo-terrain/internal/eventbus"
	"github.com/annel0/mmo-terrain/internal/mapgen"
	"github.com/annel0/mmo-terrain/internal/observability"
	"github.com/annel0/mmo-terrain/internal/storage"
	"github.com/annel0/mmo-terrain/internal/terrain"
)

// TileResponse: тайл вместе с координатами и читаемой маской уклона
type TileResponse struct {
	X         int    `json:"x"`
	Y         int    `json:"y"`
	SlopeName string `json:"slope_name"`
	terrain.Tile
}

func tileResponse(c terrain.TileCoord, t terrain.Tile) TileResponse {
	return TileResponse{X: c.X, Y: c.Y, SlopeName: t.Slope.String(), Tile: t}
}

// EditTileRequest: правка высоты тайла
type EditTileRequest struct {
	BaseHeight *int    `json:"base_height" binding:"required,min=0,max=255"`
	Surface    *string `json:"surface,omitempty"`
	Edge       *string `json:"edge,omitempty"`
}

// SmoothRequest: сглаживание области. Пустая область означает всю карту.
type SmoothRequest struct {
	Left        int    `json:"left"`
	Top         int    `json:"top"`
	Right       int    `json:"right"`
	Bottom      int    `json:"bottom"`
	UntilStable bool   `json:"until_stable"`
	Mode        string `json:"mode"` // region (по умолчанию) или tiles
}

// SmoothResponse: итог сглаживания
type SmoothResponse struct {
	Region       eventbus.Region `json:"region"`
	Mode         string          `json:"mode"`
	Changed      bool            `json:"changed"`
	Passes       int             `json:"passes"`
	TilesChanged int             `json:"tiles_changed,omitempty"`
	Converged    bool            `json:"converged"`
}

// GenerateRequest: генерация новой карты поверх текущих настроек
type GenerateRequest struct {
	Size       int   `json:"size"`
	Seed       int64 `json:"seed"`
	Height     int   `json:"height"`
	WaterLevel *int  `json:"water_level"`
	Blank      bool  `json:"blank"`
}

func parseCoord(c *gin.Context) (terrain.TileCoord, bool) {
	x, errX := strconv.Atoi(c.Param("x"))
	y, errY := strconv.Atoi(c.Param("y"))
	if errX != nil || errY != nil {
		respondError(c, http.StatusBadRequest, "Координаты тайла должны быть целыми числами")
		return terrain.TileCoord{}, false
	}
	return terrain.TileCoord{X: x, Y: y}, true
}

// resolveRegion подставляет всю карту вместо пустой области и проверяет границы
func resolveRegion(g *terrain.MemoryGrid, r eventbus.Region) (eventbus.Region, error) {
	if r == (eventbus.Region{}) {
		return eventbus.Region{Right: g.Width(), Bottom: g.Height()}, nil
	}
	if r.Left < 0 || r.Top < 0 || r.Right > g.Width() || r.Bottom > g.Height() || r.Left > r.Right || r.Top > r.Bottom {
		return r, fmt.Errorf("область [%d,%d)-[%d,%d) вне карты %dx%d", r.Left, r.Top, r.Right, r.Bottom, g.Width(), g.Height())
	}
	return r, nil
}

func storageStatus(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrInvalidName):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotReady):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// handleMapInfo возвращает размеры текущей карты
func (rs *RestServer) handleMapInfo(c *gin.Context) {
	rs.mu.Lock()
	info := gin.H{
		"width":  rs.grid.Width(),
		"height": rs.grid.Height(),
		"tiles":  rs.grid.Len(),
	}
	rs.mu.Unlock()

	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Карта", Data: info})
}

// handleGetTile возвращает тайл
func (rs *RestServer) handleGetTile(c *gin.Context) {
	coord, ok := parseCoord(c)
	if !ok {
		return
	}

	rs.mu.Lock()
	t := rs.grid.TileAt(coord)
	var tile terrain.Tile
	if t != nil {
		tile = *t
	}
	rs.mu.Unlock()

	if t == nil {
		respondError(c, http.StatusNotFound, "Тайл не найден")
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Тайл", Data: tileResponse(coord, tile)})
}

// handlePutTile выставляет высоту тайла, выравнивает его и сглаживает окрестность
func (rs *RestServer) handlePutTile(c *gin.Context) {
	coord, ok := parseCoord(c)
	if !ok {
		return
	}

	var req EditTileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Неверный формат запроса: "+err.Error())
		return
	}

	var (
		surface *terrain.SurfaceStyle
		edge    *terrain.EdgeStyle
	)
	if req.Surface != nil {
		s, err := terrain.ParseSurfaceStyle(*req.Surface)
		if err != nil {
			respondError(c, http.StatusBadRequest, err.Error())
			return
		}
		surface = &s
	}
	if req.Edge != nil {
		e, err := terrain.ParseEdgeStyle(*req.Edge)
		if err != nil {
			respondError(c, http.StatusBadRequest, err.Error())
			return
		}
		edge = &e
	}

	rs.mu.Lock()
	t := rs.grid.TileAt(coord)
	if t == nil {
		rs.mu.Unlock()
		respondError(c, http.StatusNotFound, "Тайл не найден")
		return
	}
	t.SetHeight(*req.BaseHeight)
	t.Slope = terrain.SlopeFlat
	if surface != nil {
		t.Surface = *surface
	}
	if edge != nil {
		t.Edge = *edge
	}
	changed := rs.smoother.SmoothAround(coord)
	tile := *t
	rs.mu.Unlock()

	rs.publish(eventbus.NewTerrainChanged(eventbus.TerrainChangedPayload{
		Kind:         "edit",
		Region:       eventbus.Region{Left: coord.X - 1, Top: coord.Y - 1, Right: coord.X + 2, Bottom: coord.Y + 2},
		Changed:      true,
		TilesChanged: changed,
	}))

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Тайл изменён",
		Data: gin.H{
			"tile":          tileResponse(coord, tile),
			"tiles_changed": changed,
		},
	})
}

// handleSmooth сглаживает область карты
func (rs *RestServer) handleSmooth(c *gin.Context) {
	var req SmoothRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "Неверный формат запроса: "+err.Error())
			return
		}
	}
	if req.Mode == "" {
		req.Mode = "region"
	}
	if req.Mode != "region" && req.Mode != "tiles" {
		respondError(c, http.StatusBadRequest, "mode должен быть region или tiles")
		return
	}

	ctx, span := observability.Tracer().Start(c.Request.Context(), "terrain.smooth")
	defer span.End()

	rs.mu.Lock()
	region, err := resolveRegion(rs.grid, eventbus.Region{Left: req.Left, Top: req.Top, Right: req.Right, Bottom: req.Bottom})
	if err != nil {
		rs.mu.Unlock()
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := rs.smoothLocked(ctx, region, req)
	rs.mu.Unlock()

	span.SetAttributes(
		attribute.String("terrain.mode", resp.Mode),
		attribute.Int("terrain.passes", resp.Passes),
		attribute.Bool("terrain.changed", resp.Changed),
	)

	interrupted := err != nil && !errors.Is(err, terrain.ErrNotConverged)
	// Прерванный цикл уже изменил карту: подписчики должны узнать о частичном результате
	if !interrupted || resp.Changed {
		rs.publish(eventbus.NewTerrainChanged(eventbus.TerrainChangedPayload{
			Kind:         resp.Mode,
			Region:       resp.Region,
			Changed:      resp.Changed,
			Passes:       resp.Passes,
			TilesChanged: resp.TilesChanged,
			Interrupted:  interrupted,
		}))
	}

	if interrupted {
		span.RecordError(err)
		c.JSON(http.StatusServiceUnavailable, GenericResponse{Success: false, Message: "Сглаживание прервано: " + err.Error(), Data: resp})
		return
	}

	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Сглаживание выполнено", Data: resp})
}

// smoothLocked выполняет сглаживание; вызывается под rs.mu
func (rs *RestServer) smoothLocked(ctx context.Context, r eventbus.Region, req SmoothRequest) (SmoothResponse, error) {
	resp := SmoothResponse{Region: r, Mode: req.Mode, Converged: true}

	switch {
	case req.Mode == "region" && req.UntilStable:
		passes, err := rs.smoother.SmoothUntilStable(ctx, r.Left, r.Top, r.Right, r.Bottom, rs.maxPasses)
		resp.Passes = passes
		// при ошибке каждый выполненный проход поднимал рельеф
		resp.Changed = passes > 1 || (err != nil && passes > 0)
		resp.Converged = err == nil
		return resp, err

	case req.Mode == "region":
		resp.Passes = 1
		resp.Changed = rs.smoother.RegionSmooth(r.Left, r.Top, r.Right, r.Bottom)
		resp.Converged = !resp.Changed
		return resp, nil

	case req.UntilStable:
		passes, changed, err := rs.smoother.SmoothTilesUntilStable(ctx, r.Left, r.Top, r.Right, r.Bottom, rs.maxPasses)
		resp.Passes = passes
		resp.TilesChanged = changed
		resp.Changed = changed > 0
		resp.Converged = err == nil
		return resp, err

	default:
		resp.Passes = 1
		for y := r.Top; y < r.Bottom; y++ {
			for x := r.Left; x < r.Right; x++ {
				if rs.smoother.SingleTileSmooth(terrain.TileCoord{X: x, Y: y}) {
					resp.TilesChanged++
				}
			}
		}
		resp.Changed = resp.TilesChanged > 0
		resp.Converged = !resp.Changed
		return resp, nil
	}
}

// handleValidate проверяет согласованность наклонов в области (query: left, top, right, bottom)
func (rs *RestServer) handleValidate(c *gin.Context) {
	var q struct {
		Left   int `form:"left"`
		Top    int `form:"top"`
		Right  int `form:"right"`
		Bottom int `form:"bottom"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "Неверные параметры области")
		return
	}

	rs.mu.Lock()
	region, err := resolveRegion(rs.grid, eventbus.Region{Left: q.Left, Top: q.Top, Right: q.Right, Bottom: q.Bottom})
	var violations []terrain.Violation
	if err == nil {
		violations = terrain.Validate(rs.grid, region.Left, region.Top, region.Right, region.Bottom)
	}
	rs.mu.Unlock()

	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	out := make([]string, 0, len(violations))
	for _, v := range violations {
		out = append(out, v.String())
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Проверка выполнена",
		Data:    gin.H{"region": region, "valid": len(out) == 0, "violations": out},
	})
}

// handleGenerate заменяет текущую карту сгенерированной
func (rs *RestServer) handleGenerate(c *gin.Context) {
	var req GenerateRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "Неверный формат запроса: "+err.Error())
			return
		}
	}

	s := rs.settings
	if req.Size != 0 {
		s.MapSize = req.Size
	}
	if req.Seed != 0 {
		s.Seed = req.Seed
	}
	if req.Height != 0 {
		s.Height = req.Height
	}
	if req.WaterLevel != nil {
		s.WaterLevel = *req.WaterLevel
	}
	if err := s.Validate(); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	gen := mapgen.NewGenerator(mapgen.WithSmootherOptions(terrain.WithObserver(rs.smoothMetrics)))
	var (
		res *mapgen.Result
		err error
	)
	if req.Blank {
		res, err = gen.GenerateBlank(s)
	} else {
		res, err = gen.Generate(c.Request.Context(), s)
	}
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, mapgen.ErrInvalidSettings) {
			status = http.StatusBadRequest
		}
		respondError(c, status, "Ошибка генерации: "+err.Error())
		return
	}

	rs.replaceGrid(res.Grid)

	rs.publish(eventbus.NewEnvelope(eventbus.TypeMapGenerated, eventbus.PriorityNormal, eventbus.MapPayload{
		Width: res.Grid.Width(), Height: res.Grid.Height(), Seed: res.Seed,
	}))

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Карта сгенерирована",
		Data: gin.H{
			"seed":          res.Seed,
			"width":         res.Grid.Width(),
			"height":        res.Grid.Height(),
			"surface":       res.Surface.String(),
			"edge":          res.Edge.String(),
			"trees":         len(res.Trees),
			"smooth_passes": res.SmoothPasses,
		},
	})
}

func (rs *RestServer) replaceGrid(g *terrain.MemoryGrid) {
	rs.mu.Lock()
	rs.grid = g
	rs.smoother = rs.newSmoother(g)
	rs.mu.Unlock()
}

// handleListMaps перечисляет сохранённые снимки
func (rs *RestServer) handleListMaps(c *gin.Context) {
	names, err := rs.store.List(c.Request.Context())
	if err != nil {
		respondError(c, storageStatus(err), err.Error())
		return
	}
	if names == nil {
		names = []string{}
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Снимки", Data: gin.H{"maps": names, "total": len(names)}})
}

// handleSaveMap сохраняет текущую карту
func (rs *RestServer) handleSaveMap(c *gin.Context) {
	name := c.Param("name")

	rs.mu.Lock()
	snapshot := rs.grid.Clone()
	rs.mu.Unlock()

	if err := rs.store.Save(c.Request.Context(), name, snapshot); err != nil {
		respondError(c, storageStatus(err), err.Error())
		return
	}

	rs.publish(eventbus.NewEnvelope(eventbus.TypeMapSaved, eventbus.PriorityNormal, eventbus.MapPayload{
		Name: name, Width: snapshot.Width(), Height: snapshot.Height(),
	}))
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Карта сохранена", Data: gin.H{"name": name}})
}

// handleLoadMap заменяет текущую карту сохранённой
func (rs *RestServer) handleLoadMap(c *gin.Context) {
	name := c.Param("name")

	g, err := rs.store.Load(c.Request.Context(), name)
	if err != nil {
		respondError(c, storageStatus(err), err.Error())
		return
	}
	rs.replaceGrid(g)

	rs.publish(eventbus.NewEnvelope(eventbus.TypeMapLoaded, eventbus.PriorityNormal, eventbus.MapPayload{
		Name: name, Width: g.Width(), Height: g.Height(),
	}))
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Карта загружена",
		Data:    gin.H{"name": name, "width": g.Width(), "height": g.Height()},
	})
}

// handleDeleteMap удаляет снимок
func (rs *RestServer) handleDeleteMap(c *gin.Context) {
	if err := rs.store.Delete(c.Request.Context(), c.Param("name")); err != nil {
		respondError(c, storageStatus(err), err.Error())
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Снимок удалён"})
}

// handleRecentEvents возвращает последние события (query: types, limit)
func (rs *RestServer) handleRecentEvents(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	events, err := rs.events.QueryEvents(c.Request.Context(), replay.EventFilter{
		EventTypes: parseTypes(c.Query("types")),
		Limit:      limit,
	})
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]EventMessage, 0, len(events))
	for _, ev := range events {
		out = append(out, toEventMessage(ev))
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "События", Data: gin.H{"events": out, "total": len(out)}})
}

// handleStats возвращает статистику сервера
func (rs *RestServer) handleStats(c *gin.Context) {
	rs.mu.Lock()
	smoothStats := rs.smoother.Stats()
	mapInfo := gin.H{"width": rs.grid.Width(), "height": rs.grid.Height(), "tiles": rs.grid.Len()}
	rs.mu.Unlock()

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Статистика получена",
		Data: gin.H{
			"server":   rs.metrics.Snapshot(),
			"map":      mapInfo,
			"smoother": smoothStats,
			"eventbus": rs.bus.Metrics(),
			"events":   rs.events.GetEventStats(),
		},
	})
}

// === ОБРАБОТЧИКИ ИСХОДЯЩИХ WEBHOOK'ОВ ===

// handleGetOutboundWebhooks возвращает список исходящих webhook'ов
func (rs *RestServer) handleGetOutboundWebhooks(c *gin.Context) {
	webhooks := rs.webhooks.GetWebhooks()
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Список webhook'ов получен",
		Data:    gin.H{"webhooks": webhooks, "total": len(webhooks)},
	})
}

// handleCreateOutboundWebhook создает новый исходящий webhook
func (rs *RestServer) handleCreateOutboundWebhook(c *gin.Context) {
	var webhook OutboundWebhook
	if err := c.ShouldBindJSON(&webhook); err != nil {
		respondError(c, http.StatusBadRequest, "Неверный формат webhook'а: "+err.Error())
		return
	}

	created := rs.webhooks.AddWebhook(webhook)
	c.JSON(http.StatusCreated, GenericResponse{Success: true, Message: "Webhook создан успешно", Data: created})
}

// handleDeleteOutboundWebhook удаляет исходящий webhook
func (rs *RestServer) handleDeleteOutboundWebhook(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, http.StatusBadRequest, "Неверный ID webhook'а")
		return
	}
	if !rs.webhooks.DeleteWebhook(id) {
		respondError(c, http.StatusNotFound, "Webhook не найден")
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Webhook удален"})
}

// handleGetWebhookEventTypes возвращает типы событий для подписки
func (rs *RestServer) handleGetWebhookEventTypes(c *gin.Context) {
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Типы событий",
		Data:    gin.H{"events": rs.webhooks.GetEventTypes()},
	})
}
