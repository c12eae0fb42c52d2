package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/annel0/mmo-terrain/internal/api/replay"
	"github.com/annel0/mmo-terrain/internal/eventbus"
)

const (
	wsWriteWait  = 5 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsQueueSize  = 256
)

// EventMessage: событие в виде, пригодном для JSON-клиентов
type EventMessage struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Source    string            `json:"source"`
	Timestamp time.Time         `json:"timestamp"`
	Priority  int               `json:"priority"`
	Payload   json.RawMessage   `json:"payload,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func toEventMessage(ev *eventbus.Envelope) EventMessage {
	msg := EventMessage{
		ID:        ev.ID,
		Type:      ev.EventType,
		Source:    ev.Source,
		Timestamp: ev.Timestamp,
		Priority:  ev.Priority,
		Metadata:  ev.Metadata,
	}
	if json.Valid(ev.Payload) {
		msg.Payload = json.RawMessage(ev.Payload)
	}
	return msg
}

func parseTypes(raw string) []string {
	if raw == "" {
		return nil
	}
	var types []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, t)
		}
	}
	return types
}

// handleEventStream транслирует события шины в WebSocket.
// Параметры: types=TerrainChanged,MapSaved и backlog=N (последние N событий сразу после подключения).
func (rs *RestServer) handleEventStream(c *gin.Context) {
	filter := eventbus.Filter{Types: parseTypes(c.Query("types"))}
	backlog, _ := strconv.Atoi(c.Query("backlog"))

	conn, err := rs.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		rs.logger.Warn("WebSocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan []byte, wsQueueSize)
	enqueue := func(ev *eventbus.Envelope) {
		b, err := json.Marshal(toEventMessage(ev))
		if err != nil {
			return
		}
		select {
		case out <- b:
		default:
			// Медленный клиент теряет события, шина не ждёт
			rs.logger.Debug("WebSocket: очередь клиента переполнена, событие %s пропущено", ev.ID)
		}
	}

	if backlog > 0 && rs.events != nil {
		recent, err := rs.events.QueryEvents(ctx, replay.EventFilter{EventTypes: filter.Types, Limit: backlog})
		if err == nil {
			for _, ev := range recent {
				enqueue(ev)
			}
		}
	}

	sub, err := rs.bus.Subscribe(ctx, filter, func(_ context.Context, ev *eventbus.Envelope) {
		enqueue(ev)
	})
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "event bus unavailable"), time.Now().Add(time.Second))
		return
	}
	defer sub.Unsubscribe()

	rs.logger.Debug("WebSocket подписчик подключён: %s types=%v", c.ClientIP(), filter.Types)

	// Writer
	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case b := <-out:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					cancel()
					return
				}
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	// Reader: входящие сообщения игнорируются, цикл нужен для pong и закрытия
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	cancel()
	<-writeDone
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
}

// newUpgrader создаёт Upgrader; проверка Origin отключена, как у остального API с CORS "*"
func newUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  4 * 1024,
		WriteBufferSize: 16 * 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
}
