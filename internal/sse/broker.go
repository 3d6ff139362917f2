package sse

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	redisclient "github.com/cobra-poc/messaging-bridge/internal/redis"
)

const (
	HeartbeatInterval = 30 * time.Second
)

const (
	EventTypeMessage = "message"
	EventTypeMapping = "mapping"
)

type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func NewEvent(eventType string, data json.RawMessage) Event {
	return Event{Type: eventType, Data: data}
}

type Client struct {
	EventID string
	Events  chan Event
	Done    chan struct{}
}

type Broker struct {
	redis   *redisclient.Client
	clients map[string]map[*Client]bool
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewBroker(redisClient *redisclient.Client) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		redis:   redisClient,
		clients: make(map[string]map[*Client]bool),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (b *Broker) Subscribe(eventID string) *Client {
	client := &Client{
		EventID: eventID,
		Events:  make(chan Event, 100),
		Done:    make(chan struct{}),
	}

	b.mu.Lock()
	if b.clients[eventID] == nil {
		b.clients[eventID] = make(map[*Client]bool)
		go b.subscribeToRedis(eventID)
	}
	b.clients[eventID][client] = true
	clientCount := len(b.clients[eventID])
	b.mu.Unlock()

	log.Info().
		Str("eventId", eventID).
		Int("clientCount", clientCount).
		Msg("sse client subscribed")

	return client
}

func (b *Broker) Unsubscribe(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if clients, ok := b.clients[client.EventID]; ok {
		delete(clients, client)
		close(client.Done)

		if len(clients) == 0 {
			delete(b.clients, client.EventID)
		}

		log.Info().
			Str("eventId", client.EventID).
			Int("clientCount", len(clients)).
			Msg("sse client unsubscribed")
	}
}

// Publish fans event out to subscribers of eventID on every replica.
func (b *Broker) Publish(ctx context.Context, eventID string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	channel := redisclient.EventChannel(eventID)
	return b.redis.Publish(ctx, channel, data).Err()
}

func (b *Broker) subscribeToRedis(eventID string) {
	channel := redisclient.EventChannel(eventID)
	pubsub := b.redis.Subscribe(b.ctx, channel)
	defer pubsub.Close()

	log.Debug().
		Str("eventId", eventID).
		Str("channel", channel).
		Msg("redis pubsub subscribed")

	ch := pubsub.Channel()

	for {
		select {
		case <-b.ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Error().Err(err).Msg("failed to unmarshal event")
				continue
			}

			b.broadcast(eventID, event)
		}
	}
}

func (b *Broker) broadcast(eventID string, event Event) {
	b.mu.RLock()
	clients := b.clients[eventID]
	b.mu.RUnlock()

	for client := range clients {
		select {
		case client.Events <- event:
		default:
			log.Warn().
				Str("eventId", eventID).
				Msg("client event buffer full, dropping event")
		}
	}
}

func (b *Broker) Close() {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, clients := range b.clients {
		for client := range clients {
			close(client.Done)
		}
	}
	b.clients = make(map[string]map[*Client]bool)
}

func (b *Broker) ClientCount(eventID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients[eventID])
}

func (b *Broker) TotalClients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := 0
	for _, clients := range b.clients {
		total += len(clients)
	}
	return total
}
