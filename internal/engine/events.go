package engine

import (
	"context"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/redis"

	cachekeys "investsim-api/internal/cache"
)

// priceStreamMaxLen caps the Redis mirror of the event stream.
const priceStreamMaxLen = 1000

// PriceUpdate is emitted whenever a provider quote is accepted.
type PriceUpdate struct {
	Code            string    `msgpack:"code"`
	Class           string    `msgpack:"class"`
	Price           float64   `msgpack:"price"`
	PercentChange24 *float64  `msgpack:"pct_24h,omitempty"`
	Volume24h       *float64  `msgpack:"vol_24h,omitempty"`
	Source          string    `msgpack:"source"`
	UpdatedAt       time.Time `msgpack:"updated_at"`
}

// EventBus fans price updates out to in-process subscribers and mirrors
// them onto a capped Redis list for external consumers. Publishing never
// blocks: a subscriber with a full buffer misses the event.
type EventBus struct {
	mu     sync.Mutex
	subs   map[int]chan PriceUpdate
	nextID int
	rds    *redis.Redis
}

// NewEventBus returns a bus. rds may be nil, in which case only in-process
// delivery happens.
func NewEventBus(rds *redis.Redis) *EventBus {
	return &EventBus{
		subs: make(map[int]chan PriceUpdate),
		rds:  rds,
	}
}

// Subscribe registers a buffered subscriber channel. The returned cancel
// func unregisters it and closes the channel.
func (b *EventBus) Subscribe(buffer int) (<-chan PriceUpdate, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan PriceUpdate, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers the update to every subscriber that has buffer space and
// mirrors it to Redis.
func (b *EventBus) Publish(ctx context.Context, update PriceUpdate) {
	b.mu.Lock()
	for _, sub := range b.subs {
		select {
		case sub <- update:
		default:
		}
	}
	b.mu.Unlock()

	b.mirror(ctx, update)
}

func (b *EventBus) mirror(ctx context.Context, update PriceUpdate) {
	if b.rds == nil {
		return
	}
	payload, err := msgpack.Marshal(update)
	if err != nil {
		logx.WithContext(ctx).Errorf("event bus: encode update for %s: %v", update.Code, err)
		return
	}
	key := cachekeys.PriceStreamKey()
	if _, err := b.rds.LpushCtx(ctx, key, string(payload)); err != nil {
		logx.WithContext(ctx).Errorf("event bus: mirror update for %s: %v", update.Code, err)
		return
	}
	if err := b.rds.LtrimCtx(ctx, key, 0, priceStreamMaxLen-1); err != nil {
		logx.WithContext(ctx).Errorf("event bus: trim stream: %v", err)
	}
}
