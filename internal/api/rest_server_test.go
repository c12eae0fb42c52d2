package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/mmo-terrain/internal/eventbus"
	"github.com/annel0/mmo-terrain/internal/logging"
	"github.com/annel0/mmo-terrain/internal/terrain"
)

type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) *RestServer {
	t.Helper()
	bus := eventbus.NewMemoryBus(64)
	srv, err := NewRestServer(Config{
		Grid:   terrain.NewFlatGrid(8, 8, 10),
		Bus:    bus,
		Logger: logging.NewWriterLogger("api", io.Discard, logging.ERROR),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		_ = bus.Close()
	})
	return srv
}

func doRequest(t *testing.T, srv *RestServer, method, path string, body interface{}) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var resp apiResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec, resp
}

func decodeData(t *testing.T, resp apiResponse, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

func getTile(t *testing.T, srv *RestServer, path string) TileResponse {
	t.Helper()
	rec, resp := doRequest(t, srv, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var tile TileResponse
	decodeData(t, resp, &tile)
	return tile
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	rec, _ := doRequest(t, srv, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Trace-Id"))
}

func TestTiles_GetAndEdit(t *testing.T) {
	srv := newTestServer(t)

	tile := getTile(t, srv, "/api/tiles/3/3")
	assert.Equal(t, uint8(10), tile.BaseHeight)
	assert.Equal(t, 3, tile.X)

	rec, _ := doRequest(t, srv, http.MethodGet, "/api/tiles/99/0", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = doRequest(t, srv, http.MethodGet, "/api/tiles/a/0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp := doRequest(t, srv, http.MethodPut, "/api/tiles/3/3", map[string]interface{}{"base_height": 12, "surface": "sand"})
	require.Equal(t, http.StatusOK, rec.Code, resp.Message)
	var edit struct {
		Tile         TileResponse `json:"tile"`
		TilesChanged int          `json:"tiles_changed"`
	}
	decodeData(t, resp, &edit)
	assert.Equal(t, uint8(12), edit.Tile.BaseHeight)
	assert.Equal(t, terrain.SurfaceSand, edit.Tile.Surface)
	assert.Equal(t, 8, edit.TilesChanged, "все 8 соседей получают наклон к поднятому тайлу")

	assert.Equal(t, terrain.SlopeNCornerUp, getTile(t, srv, "/api/tiles/2/2").Slope)
	assert.Equal(t, terrain.SlopeNESideUp, getTile(t, srv, "/api/tiles/2/3").Slope)

	rec, resp = doRequest(t, srv, http.MethodGet, "/api/validate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var check struct {
		Valid bool `json:"valid"`
	}
	decodeData(t, resp, &check)
	assert.True(t, check.Valid)
}

func TestTiles_EditValidation(t *testing.T) {
	srv := newTestServer(t)

	cases := []struct {
		name string
		path string
		body interface{}
		code int
	}{
		{"нет высоты", "/api/tiles/1/1", map[string]interface{}{}, http.StatusBadRequest},
		{"высота вне диапазона", "/api/tiles/1/1", map[string]interface{}{"base_height": 300}, http.StatusBadRequest},
		{"неизвестное покрытие", "/api/tiles/1/1", map[string]interface{}{"base_height": 4, "surface": "lava"}, http.StatusBadRequest},
		{"нет тайла", "/api/tiles/20/20", map[string]interface{}{"base_height": 4}, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, _ := doRequest(t, srv, http.MethodPut, tc.path, tc.body)
			assert.Equal(t, tc.code, rec.Code)
		})
	}
}

func TestSmooth(t *testing.T) {
	srv := newTestServer(t)

	rec, resp := doRequest(t, srv, http.MethodPost, "/api/smooth", nil)
	require.Equal(t, http.StatusOK, rec.Code, resp.Message)
	var out SmoothResponse
	decodeData(t, resp, &out)
	assert.Equal(t, "region", out.Mode)
	assert.Equal(t, eventbus.Region{Right: 8, Bottom: 8}, out.Region, "пустая область: вся карта")
	assert.False(t, out.Changed)
	assert.True(t, out.Converged)

	srv.Grid().TileAt(terrain.TileCoord{X: 4, Y: 4}).SetHeight(18)

	rec, resp = doRequest(t, srv, http.MethodPost, "/api/smooth", SmoothRequest{Left: 1, Top: 1, Right: 7, Bottom: 7, UntilStable: true})
	require.Equal(t, http.StatusOK, rec.Code, resp.Message)
	decodeData(t, resp, &out)
	assert.True(t, out.Converged)
	assert.GreaterOrEqual(t, out.Passes, 1)

	rec, resp = doRequest(t, srv, http.MethodPost, "/api/smooth", SmoothRequest{Mode: "tiles", UntilStable: true})
	require.Equal(t, http.StatusOK, rec.Code, resp.Message)
	decodeData(t, resp, &out)
	assert.Equal(t, "tiles", out.Mode)
	assert.True(t, out.Converged)

	rec, _ = doRequest(t, srv, http.MethodPost, "/api/smooth", SmoothRequest{Left: 2, Right: 50, Bottom: 3})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = doRequest(t, srv, http.MethodPost, "/api/smooth", SmoothRequest{Mode: "erode"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// cancelOnChange отменяется, как только карта перестала быть плоской
type cancelOnChange struct {
	context.Context
	changed func() bool
}

func (c cancelOnChange) Err() error {
	if c.changed() {
		return context.Canceled
	}
	return nil
}

func TestSmooth_InterruptedPublishesPartialResult(t *testing.T) {
	srv := newTestServer(t)
	events := make(chan eventbus.TerrainChangedPayload, 4)
	_, err := srv.bus.Subscribe(context.Background(), eventbus.Filter{Types: []string{eventbus.TypeTerrainChanged}}, func(ctx context.Context, ev *eventbus.Envelope) {
		var p eventbus.TerrainChangedPayload
		if eventbus.DecodePayload(ev, &p) == nil {
			events <- p
		}
	})
	require.NoError(t, err)

	grid := srv.Grid()
	grid.TileAt(terrain.TileCoord{X: 4, Y: 4}).SetHeight(18)
	ctx := cancelOnChange{Context: context.Background(), changed: func() bool {
		for y := 0; y < 8; y++ {
			for x := 0; x < 8; x++ {
				if x == 4 && y == 4 {
					continue
				}
				tile := grid.TileAt(terrain.TileCoord{X: x, Y: y})
				if tile.BaseHeight != 10 || tile.Slope != terrain.SlopeFlat {
					return true
				}
			}
		}
		return false
	}}

	body, err := json.Marshal(SmoothRequest{UntilStable: true})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/smooth", bytes.NewReader(body)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp apiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	var out SmoothResponse
	decodeData(t, resp, &out)
	assert.Equal(t, 1, out.Passes)
	assert.True(t, out.Changed)
	assert.False(t, out.Converged)

	select {
	case p := <-events:
		assert.True(t, p.Changed)
		assert.True(t, p.Interrupted)
		assert.Equal(t, 1, p.Passes)
	case <-time.After(2 * time.Second):
		t.Fatal("прерванное сглаживание не опубликовало TerrainChanged")
	}
}

func TestSmooth_PassLimitReportsChange(t *testing.T) {
	bus := eventbus.NewMemoryBus(8)
	defer bus.Close()
	srv, err := NewRestServer(Config{
		Grid:      terrain.NewFlatGrid(8, 8, 10),
		Bus:       bus,
		Logger:    logging.NewWriterLogger("api", io.Discard, logging.ERROR),
		MaxPasses: 1,
	})
	require.NoError(t, err)

	srv.Grid().TileAt(terrain.TileCoord{X: 4, Y: 4}).SetHeight(18)

	rec, resp := doRequest(t, srv, http.MethodPost, "/api/smooth", SmoothRequest{UntilStable: true})
	require.Equal(t, http.StatusOK, rec.Code, resp.Message)
	var out SmoothResponse
	decodeData(t, resp, &out)
	assert.Equal(t, 1, out.Passes)
	assert.True(t, out.Changed, "единственный проход поднял рельеф")
	assert.False(t, out.Converged)
}

func TestMaps_SaveLoadDelete(t *testing.T) {
	srv := newTestServer(t)

	rec, resp := doRequest(t, srv, http.MethodPost, "/api/maps/park/save", nil)
	require.Equal(t, http.StatusOK, rec.Code, resp.Message)

	rec, _ = doRequest(t, srv, http.MethodPut, "/api/tiles/3/3", map[string]interface{}{"base_height": 30})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, resp = doRequest(t, srv, http.MethodGet, "/api/maps", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Maps []string `json:"maps"`
	}
	decodeData(t, resp, &list)
	assert.Equal(t, []string{"park"}, list.Maps)

	rec, resp = doRequest(t, srv, http.MethodPost, "/api/maps/park/load", nil)
	require.Equal(t, http.StatusOK, rec.Code, resp.Message)
	assert.Equal(t, uint8(10), getTile(t, srv, "/api/tiles/3/3").BaseHeight, "загрузка возвращает сохранённую высоту")

	rec, _ = doRequest(t, srv, http.MethodPost, "/api/maps/missing/load", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = doRequest(t, srv, http.MethodPost, "/api/maps/bad!name/save", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doRequest(t, srv, http.MethodDelete, "/api/maps/park", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = doRequest(t, srv, http.MethodPost, "/api/maps/park/load", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGenerate(t *testing.T) {
	srv := newTestServer(t)

	rec, resp := doRequest(t, srv, http.MethodPost, "/api/generate", GenerateRequest{Size: 16, Blank: true})
	require.Equal(t, http.StatusOK, rec.Code, resp.Message)
	assert.Equal(t, 16, srv.Grid().Width())

	rec, resp = doRequest(t, srv, http.MethodPost, "/api/generate", GenerateRequest{Size: 24, Seed: 42})
	require.Equal(t, http.StatusOK, rec.Code, resp.Message)
	var out struct {
		Seed  int64 `json:"seed"`
		Width int   `json:"width"`
	}
	decodeData(t, resp, &out)
	assert.Equal(t, int64(42), out.Seed)
	assert.Equal(t, 24, out.Width)
	assert.Empty(t, terrain.Validate(srv.Grid(), 1, 1, 23, 23), "сгенерированная карта согласована")

	rec, _ = doRequest(t, srv, http.MethodPost, "/api/generate", GenerateRequest{Size: 2})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecentEvents(t *testing.T) {
	srv := newTestServer(t)

	rec, _ := doRequest(t, srv, http.MethodPost, "/api/maps/snap/save", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = doRequest(t, srv, http.MethodPut, "/api/tiles/2/2", map[string]interface{}{"base_height": 12})
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Events []EventMessage `json:"events"`
	}
	require.Eventually(t, func() bool {
		_, resp := doRequest(t, srv, http.MethodGet, "/api/events?types=TerrainChanged", nil)
		decodeData(t, resp, &out)
		return len(out.Events) == 1
	}, 2*time.Second, 10*time.Millisecond)

	ev := out.Events[0]
	assert.Equal(t, eventbus.TypeTerrainChanged, ev.Type)
	var payload eventbus.TerrainChangedPayload
	require.NoError(t, json.Unmarshal(ev.Payload, &payload))
	assert.Equal(t, "edit", payload.Kind)
	assert.Equal(t, eventbus.Region{Left: 1, Top: 1, Right: 4, Bottom: 4}, payload.Region)
}

func TestOutboundWebhooks(t *testing.T) {
	srv := newTestServer(t)

	var (
		mu        sync.Mutex
		bodies    [][]byte
		signature string
	)
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, b)
		signature = r.Header.Get("X-Webhook-Signature")
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer target.Close()

	rec, resp := doRequest(t, srv, http.MethodPost, "/api/webhooks", map[string]interface{}{
		"name": "audit", "url": target.URL, "secret": "s3cret", "events": []string{eventbus.TypeMapSaved},
	})
	require.Equal(t, http.StatusCreated, rec.Code, resp.Message)

	rec, _ = doRequest(t, srv, http.MethodPost, "/api/webhooks", map[string]interface{}{"name": "broken"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	doRequest(t, srv, http.MethodPut, "/api/tiles/2/2", map[string]interface{}{"base_height": 12})
	doRequest(t, srv, http.MethodPost, "/api/maps/hooked/save", nil)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(bodies) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	var msg EventMessage
	require.NoError(t, json.Unmarshal(bodies[0], &msg))
	assert.Equal(t, eventbus.TypeMapSaved, msg.Type, "webhook получает только подписанные типы")
	assert.Equal(t, generateSignature(bodies[0], "s3cret"), signature)
	mu.Unlock()

	rec, resp = doRequest(t, srv, http.MethodGet, "/api/webhooks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Webhooks []OutboundWebhook `json:"webhooks"`
	}
	decodeData(t, resp, &list)
	require.Len(t, list.Webhooks, 1)
	assert.Equal(t, "audit", list.Webhooks[0].Name)

	rec, _ = doRequest(t, srv, http.MethodDelete, "/api/webhooks/1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = doRequest(t, srv, http.MethodDelete, "/api/webhooks/1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEventStream_Backlog(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	rec, _ := doRequest(t, srv, http.MethodPut, "/api/tiles/5/5", map[string]interface{}{"base_height": 16})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Eventually(t, func() bool {
		return srv.events.GetEventStats().Stored == 1
	}, 2*time.Second, 10*time.Millisecond)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/events?types=TerrainChanged&backlog=5"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg EventMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, eventbus.TypeTerrainChanged, msg.Type)

	var payload eventbus.TerrainChangedPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, "edit", payload.Kind)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	doRequest(t, srv, http.MethodPost, "/api/smooth", nil)

	rec, _ := doRequest(t, srv, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "terrain_region_passes_total 1")
	assert.Contains(t, body, "terrain_api_http_request_duration_seconds")
	assert.Contains(t, body, "eventbus_messages_published_total")
}
