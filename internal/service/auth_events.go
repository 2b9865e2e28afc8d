package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/classroom-portal/internal/dto"
	"github.com/noah-isme/classroom-portal/internal/observability"
)

const authEventBufferSize = 8

// AuthEventHub fans auth events out to the connected clients of an account.
// With Redis configured, events also reach clients connected to other nodes.
type AuthEventHub interface {
	Publish(ctx context.Context, event dto.AuthEvent)
	Subscribe(accountID string) (<-chan dto.AuthEvent, func())
	Start(ctx context.Context)
}

type authEventHub struct {
	redis   *redis.Client
	channel string
	logger  zerolog.Logger
	nodeID  string

	mu          sync.RWMutex
	subscribers map[string]map[chan dto.AuthEvent]struct{}
}

type authEventEnvelope struct {
	Source string        `json:"source"`
	Event  dto.AuthEvent `json:"event"`
}

// NewAuthEventHub constructs the hub; redisClient may be nil.
func NewAuthEventHub(redisClient *redis.Client, channel string, logger zerolog.Logger) AuthEventHub {
	if channel == "" {
		channel = "portal:auth:events"
	}
	return &authEventHub{
		redis:       redisClient,
		channel:     channel,
		logger:      logger.With().Str("component", "auth_event_hub").Logger(),
		nodeID:      uuid.NewString(),
		subscribers: make(map[string]map[chan dto.AuthEvent]struct{}),
	}
}

func (h *authEventHub) Start(ctx context.Context) {
	if h.redis != nil {
		go h.consumeRedis(ctx)
	}
}

func (h *authEventHub) Publish(ctx context.Context, event dto.AuthEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	h.broadcast(event)

	if h.redis == nil {
		return
	}
	payload, err := json.Marshal(authEventEnvelope{Source: h.nodeID, Event: event})
	if err != nil {
		return
	}
	if err := h.redis.Publish(ctx, h.channel, payload).Err(); err != nil {
		h.logger.Warn().Err(err).Str("type", event.Type).Msg("failed to publish auth event")
	}
}

func (h *authEventHub) Subscribe(accountID string) (<-chan dto.AuthEvent, func()) {
	ch := make(chan dto.AuthEvent, authEventBufferSize)

	h.mu.Lock()
	if _, ok := h.subscribers[accountID]; !ok {
		h.subscribers[accountID] = make(map[chan dto.AuthEvent]struct{})
	}
	h.subscribers[accountID][ch] = struct{}{}
	h.mu.Unlock()
	observability.AuthEventClients().Inc()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			h.mu.Lock()
			if subscribers, ok := h.subscribers[accountID]; ok {
				delete(subscribers, ch)
				close(ch)
				if len(subscribers) == 0 {
					delete(h.subscribers, accountID)
				}
			}
			h.mu.Unlock()
			observability.AuthEventClients().Dec()
		})
	}
	return ch, cleanup
}

func (h *authEventHub) broadcast(event dto.AuthEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subscribers[event.AccountID] {
		select {
		case ch <- event:
		default:
		}
	}
}

func (h *authEventHub) consumeRedis(ctx context.Context) {
	pubsub := h.redis.Subscribe(ctx, h.channel)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			h.logger.Error().Err(err).Msg("auth event subscription closed")
			return
		}

		var envelope authEventEnvelope
		if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil {
			h.logger.Warn().Err(err).Msg("invalid auth event payload")
			continue
		}
		if envelope.Source == h.nodeID {
			continue
		}
		h.broadcast(envelope.Event)
	}
}
