package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/annel0/mmo-terrain/internal/eventbus"
	"github.com/annel0/mmo-terrain/internal/logging"
)

// OutboundWebhook: внешний получатель событий рельефа
type OutboundWebhook struct {
	ID           uint64     `json:"id"`
	Name         string     `json:"name" binding:"required"`
	URL          string     `json:"url" binding:"required,url"`
	Secret       string     `json:"secret,omitempty"`
	Events       []string   `json:"events" binding:"required,min=1"` // типы событий или "*"
	Active       bool       `json:"active"`
	Timeout      int        `json:"timeout"` // секунды
	RetryCount   int        `json:"retry_count"`
	CreatedAt    time.Time  `json:"created_at"`
	LastUsed     *time.Time `json:"last_used,omitempty"`
	FailureCount int        `json:"failure_count"`
}

// OutboundWebhookManager пересылает события шины во внешние webhook'и
type OutboundWebhookManager struct {
	mu         sync.RWMutex
	webhooks   map[uint64]*OutboundWebhook
	nextID     uint64
	httpClient *http.Client
	logger     *logging.Logger
	sub        eventbus.Subscription
	wg         sync.WaitGroup
	retryDelay time.Duration
}

// NewOutboundWebhookManager создает новый менеджер исходящих webhook'ов
func NewOutboundWebhookManager(logger *logging.Logger) *OutboundWebhookManager {
	if logger == nil {
		logger = logging.GetAPILogger()
	}
	return &OutboundWebhookManager{
		webhooks:   make(map[uint64]*OutboundWebhook),
		nextID:     1,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
		retryDelay: time.Second,
	}
}

// Attach подписывает менеджер на события шины
func (owm *OutboundWebhookManager) Attach(ctx context.Context, bus eventbus.EventBus) error {
	sub, err := bus.Subscribe(ctx, eventbus.Filter{}, func(ctx context.Context, ev *eventbus.Envelope) {
		owm.Dispatch(ev)
	})
	if err != nil {
		return err
	}
	owm.mu.Lock()
	owm.sub = sub
	owm.mu.Unlock()
	return nil
}

// AddWebhook добавляет новый webhook
func (owm *OutboundWebhookManager) AddWebhook(webhook OutboundWebhook) *OutboundWebhook {
	owm.mu.Lock()
	defer owm.mu.Unlock()

	webhook.ID = owm.nextID
	owm.nextID++
	webhook.CreatedAt = time.Now().UTC()
	webhook.Active = true

	if webhook.Timeout <= 0 {
		webhook.Timeout = 10
	}
	if webhook.RetryCount < 0 {
		webhook.RetryCount = 0
	}

	owm.webhooks[webhook.ID] = &webhook
	copied := webhook
	return &copied
}

// GetWebhooks возвращает копии webhook'ов, отсортированные по ID
func (owm *OutboundWebhookManager) GetWebhooks() []OutboundWebhook {
	owm.mu.RLock()
	defer owm.mu.RUnlock()

	webhooks := make([]OutboundWebhook, 0, len(owm.webhooks))
	for _, webhook := range owm.webhooks {
		webhooks = append(webhooks, *webhook)
	}
	sort.Slice(webhooks, func(i, j int) bool { return webhooks[i].ID < webhooks[j].ID })
	return webhooks
}

// DeleteWebhook удаляет webhook
func (owm *OutboundWebhookManager) DeleteWebhook(id uint64) bool {
	owm.mu.Lock()
	defer owm.mu.Unlock()

	if _, exists := owm.webhooks[id]; !exists {
		return false
	}
	delete(owm.webhooks, id)
	return true
}

// Dispatch рассылает событие подписанным webhook'ам в фоне
func (owm *OutboundWebhookManager) Dispatch(ev *eventbus.Envelope) {
	owm.mu.RLock()
	targets := make([]OutboundWebhook, 0)
	for _, webhook := range owm.webhooks {
		if webhook.Active && isSubscribedToEvent(webhook, ev.EventType) {
			targets = append(targets, *webhook)
		}
	}
	owm.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	body, err := json.Marshal(toEventMessage(ev))
	if err != nil {
		owm.logger.Error("❌ Ошибка маршалинга события %s: %v", ev.EventType, err)
		return
	}

	for _, webhook := range targets {
		owm.wg.Add(1)
		go func(w OutboundWebhook) {
			defer owm.wg.Done()
			owm.sendToWebhook(w, ev, body)
		}(webhook)
	}
}

func isSubscribedToEvent(webhook *OutboundWebhook, eventType string) bool {
	for _, subscribedEvent := range webhook.Events {
		if subscribedEvent == eventType || subscribedEvent == "*" {
			return true
		}
	}
	return false
}

// sendToWebhook отправляет событие с повторами; запрос пересоздаётся на каждую попытку
func (owm *OutboundWebhookManager) sendToWebhook(webhook OutboundWebhook, ev *eventbus.Envelope, body []byte) {
	success := false
	for attempt := 0; attempt <= webhook.RetryCount; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * owm.retryDelay)
		}

		status, err := owm.post(webhook, ev, body)
		if err != nil {
			owm.logger.Warn("⚠️  Попытка %d/%d для webhook %s: %v", attempt+1, webhook.RetryCount+1, webhook.Name, err)
			continue
		}
		if status >= 200 && status < 300 {
			success = true
			owm.logger.Debug("✅ Событие %s отправлено в webhook %s", ev.EventType, webhook.Name)
			break
		}
		owm.logger.Warn("⚠️  Webhook %s вернул статус %d на попытке %d", webhook.Name, status, attempt+1)
	}

	owm.mu.Lock()
	if stored, ok := owm.webhooks[webhook.ID]; ok {
		now := time.Now().UTC()
		stored.LastUsed = &now
		if !success {
			stored.FailureCount++
		}
	}
	owm.mu.Unlock()
}

func (owm *OutboundWebhookManager) post(webhook OutboundWebhook, ev *eventbus.Envelope, body []byte) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(webhook.Timeout)*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook.URL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "terrain-service/1.0")
	req.Header.Set("X-Event-Type", ev.EventType)
	req.Header.Set("X-Event-ID", ev.ID)
	if webhook.Secret != "" {
		req.Header.Set("X-Webhook-Signature", generateSignature(body, webhook.Secret))
	}

	resp, err := owm.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

// generateSignature генерирует HMAC подпись
func generateSignature(data []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(data)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Close отписывается от шины и дожидается незавершённых отправок
func (owm *OutboundWebhookManager) Close() {
	owm.mu.Lock()
	sub := owm.sub
	owm.sub = nil
	owm.mu.Unlock()
	if sub != nil {
		sub.Unsubscribe()
	}
	owm.wg.Wait()
}

// GetEventTypes возвращает доступные типы событий
func (owm *OutboundWebhookManager) GetEventTypes() []string {
	return []string{
		eventbus.TypeTerrainChanged,
		eventbus.TypeMapGenerated,
		eventbus.TypeMapLoaded,
		eventbus.TypeMapSaved,
	}
}
