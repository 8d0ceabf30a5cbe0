package ws

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/opsdeck/opsdeck/internal/metrics"
)

// Message types exchanged with subscribers.
const (
	MessageTypeMetrics = "metrics"
	MessageTypePing    = "ping"
	MessageTypePong    = "pong"
)

// Message is the wire envelope for subscriber traffic.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Sampler produces metric snapshots. Satisfied by *metrics.Source.
type Sampler interface {
	Sample(ctx context.Context) *metrics.Snapshot
	Latest(ctx context.Context) *metrics.Snapshot
}

// Hub maintains the live subscriber set and fans one snapshot per tick
// out to every subscriber. The sample is taken once per tick and
// shared; a subscriber that cannot keep up is dropped rather than
// allowed to stall the tick.
type Hub struct {
	source    Sampler
	collector *metrics.Collector
	interval  time.Duration

	mu          sync.Mutex
	subscribers map[*Subscriber]struct{}
}

func NewHub(source Sampler, collector *metrics.Collector, interval time.Duration) *Hub {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Hub{
		source:      source,
		collector:   collector,
		interval:    interval,
		subscribers: make(map[*Subscriber]struct{}),
	}
}

// Run drives the broadcast ticker until ctx is canceled, then drains
// and closes every subscriber.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	slog.Info("subscription hub started", "tick", h.interval.String())

	for {
		select {
		case <-ctx.Done():
			closed := h.closeAll()
			slog.Info("subscription hub stopped", "subscribers_closed", closed)
			return
		case <-ticker.C:
			snap := h.source.Sample(ctx)
			h.Broadcast(Message{Type: MessageTypeMetrics, Data: snap})
		}
	}
}

// Register adds a subscriber and immediately delivers the latest
// snapshot so a fresh dashboard renders without waiting a full tick.
func (h *Hub) Register(ctx context.Context, sub *Subscriber) {
	initial := Message{Type: MessageTypeMetrics, Data: h.source.Latest(ctx)}

	// The send happens under the lock: Drop and closeAll close the
	// channel while holding it, so delivering here cannot race a close.
	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	total := len(h.subscribers)
	select {
	case sub.send <- initial:
	default:
	}
	h.mu.Unlock()

	if h.collector != nil {
		h.collector.SubscriberConnected()
	}
	slog.Info("subscriber connected", "subscriber_id", sub.ID(), "subject", sub.Subject(), "total", total)
}

// Drop removes a subscriber and closes its send channel. Idempotent:
// callers on the read path, the write path and the broadcast path may
// all race to drop the same subscriber.
func (h *Hub) Drop(sub *Subscriber, reason string) {
	h.mu.Lock()
	_, ok := h.subscribers[sub]
	if ok {
		delete(h.subscribers, sub)
		close(sub.send)
	}
	total := len(h.subscribers)
	h.mu.Unlock()

	if !ok {
		return
	}
	if h.collector != nil {
		h.collector.SubscriberDisconnected()
	}
	slog.Info("subscriber disconnected", "subscriber_id", sub.ID(), "reason", reason, "total", total)
}

// Broadcast pushes msg to every registered subscriber. Sends are
// non-blocking: a full send buffer means the subscriber has stalled
// past its bounded wait, and it is removed.
func (h *Hub) Broadcast(msg Message) {
	h.mu.Lock()

	var stalled []*Subscriber
	for sub := range h.subscribers {
		select {
		case sub.send <- msg:
			sub.markDelivery()
		default:
			stalled = append(stalled, sub)
		}
	}
	for _, sub := range stalled {
		delete(h.subscribers, sub)
		close(sub.send)
	}
	h.mu.Unlock()

	if h.collector != nil {
		h.collector.RecordBroadcast()
		for range stalled {
			h.collector.RecordDrop()
		}
	}
	for _, sub := range stalled {
		slog.Warn("subscriber dropped: send buffer full", "subscriber_id", sub.ID())
	}
}

// Count returns the current subscriber total.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

func (h *Hub) closeAll() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := len(h.subscribers)
	for sub := range h.subscribers {
		delete(h.subscribers, sub)
		close(sub.send)
	}
	return n
}
