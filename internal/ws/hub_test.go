package ws

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdeck/opsdeck/internal/metrics"
)

// countingSampler hands out distinct snapshots and counts Sample calls.
type countingSampler struct {
	samples atomic.Int64
}

func (s *countingSampler) Sample(_ context.Context) *metrics.Snapshot {
	s.samples.Add(1)
	return &metrics.Snapshot{Timestamp: time.Now()}
}

func (s *countingSampler) Latest(ctx context.Context) *metrics.Snapshot {
	return s.Sample(ctx)
}

func newIdleSubscriber() *Subscriber {
	// Pumps are never started in hub tests; only the send channel and
	// hub bookkeeping are exercised.
	return NewSubscriber(nil, "test@x.com")
}

func drain(t *testing.T, sub *Subscriber) Message {
	t.Helper()
	select {
	case msg := <-sub.send:
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
		return Message{}
	}
}

func TestRegisterDeliversInitialSnapshot(t *testing.T) {
	sampler := &countingSampler{}
	hub := NewHub(sampler, nil, time.Hour)
	sub := newIdleSubscriber()

	hub.Register(context.Background(), sub)

	msg := drain(t, sub)
	assert.Equal(t, MessageTypeMetrics, msg.Type)
	assert.NotNil(t, msg.Data)
	assert.Equal(t, 1, hub.Count())
}

func TestBroadcastSharesOneMessage(t *testing.T) {
	hub := NewHub(&countingSampler{}, nil, time.Hour)
	a, b := newIdleSubscriber(), newIdleSubscriber()
	hub.Register(context.Background(), a)
	hub.Register(context.Background(), b)
	drain(t, a)
	drain(t, b)

	snap := &metrics.Snapshot{Timestamp: time.Now()}
	hub.Broadcast(Message{Type: MessageTypeMetrics, Data: snap})

	msgA, msgB := drain(t, a), drain(t, b)
	assert.Same(t, snap, msgA.Data)
	assert.Same(t, snap, msgB.Data)
}

func TestRunSamplesOncePerTick(t *testing.T) {
	sampler := &countingSampler{}
	hub := NewHub(sampler, nil, 10*time.Millisecond)

	// Two subscribers, but Sample must be called once per tick, not
	// once per subscriber.
	a, b := newIdleSubscriber(), newIdleSubscriber()
	hub.Register(context.Background(), a)
	hub.Register(context.Background(), b)
	drain(t, a)
	drain(t, b)
	registered := sampler.samples.Load()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	// Both subscribers receive the tick's snapshot, and it is the same
	// object: one Sample call served both.
	msgA := drain(t, a)
	msgB := drain(t, b)
	assert.Same(t, msgA.Data, msgB.Data)

	cancel()
	<-done
	assert.Greater(t, sampler.samples.Load(), registered)
}

func TestBroadcastDropsStalledSubscriber(t *testing.T) {
	hub := NewHub(&countingSampler{}, nil, time.Hour)
	healthy, stalled := newIdleSubscriber(), newIdleSubscriber()
	hub.Register(context.Background(), healthy)
	hub.Register(context.Background(), stalled)
	drain(t, healthy)
	drain(t, stalled)

	// Fill the stalled subscriber's buffer so the next broadcast
	// cannot enqueue.
	for i := 0; i < sendBuffer; i++ {
		stalled.send <- Message{Type: MessageTypePong}
	}

	hub.Broadcast(Message{Type: MessageTypeMetrics})

	assert.Equal(t, 1, hub.Count())
	drain(t, healthy)

	// The stalled subscriber's channel was closed after its backlog.
	for i := 0; i < sendBuffer; i++ {
		<-stalled.send
	}
	_, open := <-stalled.send
	assert.False(t, open)
}

func TestDropIsIdempotent(t *testing.T) {
	hub := NewHub(&countingSampler{}, nil, time.Hour)
	sub := newIdleSubscriber()
	hub.Register(context.Background(), sub)

	hub.Drop(sub, "test")
	require.Equal(t, 0, hub.Count())

	// A second drop must not close the channel again.
	assert.NotPanics(t, func() { hub.Drop(sub, "test again") })
}

func TestRegisterRacingShutdownNeverSendsOnClosed(t *testing.T) {
	// Register's initial delivery and closeAll contend for the same
	// subscriber; the registry lock must serialize them so the send
	// never lands on a closed channel.
	hub := NewHub(&countingSampler{}, nil, time.Hour)

	for i := 0; i < 2000; i++ {
		sub := newIdleSubscriber()
		done := make(chan struct{})
		go func() {
			hub.Register(context.Background(), sub)
			close(done)
		}()
		hub.closeAll()
		<-done
		hub.Drop(sub, "test")
	}
	assert.Equal(t, 0, hub.Count())
}

func TestRunClosesSubscribersOnShutdown(t *testing.T) {
	hub := NewHub(&countingSampler{}, nil, time.Hour)
	sub := newIdleSubscriber()
	hub.Register(context.Background(), sub)
	drain(t, sub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	_, open := <-sub.send
	assert.False(t, open)
	assert.Equal(t, 0, hub.Count())
}
