package eventbus

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrBusClosed возвращается при работе с закрытой шиной
var ErrBusClosed = errors.New("eventbus: шина закрыта")

// Типы событий сервиса рельефа
const (
	TypeTerrainChanged = "TerrainChanged"
	TypeMapSaved       = "MapSaved"
	TypeMapLoaded      = "MapLoaded"
	TypeMapGenerated   = "MapGenerated"
)

// DefaultSource: источник событий по умолчанию
const DefaultSource = "terrain-service"

// Приоритеты событий
const (
	PriorityLow    = 1
	PriorityNormal = 5
	PriorityHigh   = 8
)

// Region: прямоугольник тайлов [Left,Right) x [Top,Bottom)
type Region struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

// TerrainChangedPayload описывает результат правки или сглаживания
type TerrainChangedPayload struct {
	Kind         string `json:"kind"` // region, tile, edit
	Region       Region `json:"region"`
	Changed      bool   `json:"changed"`
	Passes       int    `json:"passes,omitempty"`
	TilesChanged int    `json:"tiles_changed,omitempty"`
	Interrupted  bool   `json:"interrupted,omitempty"` // цикл сглаживания отменён до стабилизации
}

// MapPayload описывает операцию над целой картой
type MapPayload struct {
	Name   string `json:"name,omitempty"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Seed   int64  `json:"seed,omitempty"`
}

// NewEnvelope упаковывает payload в JSON и заполняет служебные поля
func NewEnvelope(eventType string, priority int, payload interface{}) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("eventbus: сериализация %s: %w", eventType, err)
	}
	return &Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    DefaultSource,
		EventType: eventType,
		Version:   1,
		Priority:  priority,
		Payload:   data,
	}, nil
}

// NewTerrainChanged создаёт событие TerrainChanged
func NewTerrainChanged(p TerrainChangedPayload) (*Envelope, error) {
	prio := PriorityLow
	if p.Changed {
		prio = PriorityNormal
	}
	return NewEnvelope(TypeTerrainChanged, prio, p)
}

// DecodePayload разбирает JSON полезной нагрузки в v
func DecodePayload(ev *Envelope, v interface{}) error {
	if ev == nil {
		return errors.New("eventbus: пустой конверт")
	}
	return json.Unmarshal(ev.Payload, v)
}
