package feed

import (
	"context"
	"sync"

	"github.com/bobmcallan/fintrack/internal/common"
)

type hubKey struct {
	userID     string
	collection string
}

// Hub fans change notifications out to the subscriptions watching a
// (user, collection) pair inside this process.
type Hub struct {
	mu   sync.RWMutex
	subs map[hubKey]map[*Subscription]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[hubKey]map[*Subscription]struct{})}
}

// Register attaches sub to the pair and detaches it when sub closes.
func (h *Hub) Register(userID, collection string, sub *Subscription) {
	key := hubKey{userID, collection}
	h.mu.Lock()
	if h.subs[key] == nil {
		h.subs[key] = make(map[*Subscription]struct{})
	}
	h.subs[key][sub] = struct{}{}
	h.mu.Unlock()

	sub.OnClose(func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs[key], sub)
		if len(h.subs[key]) == 0 {
			delete(h.subs, key)
		}
	})
}

// Subscribe creates a subscription for the pair and registers it before
// the first list runs. A Notify during that list triggers a second one.
func (h *Hub) Subscribe(ctx context.Context, userID, collection string, list Lister, logger *common.Logger) *Subscription {
	sub, runCtx := newSubscription(ctx, list, logger)
	h.Register(userID, collection, sub)
	go sub.run(runCtx)
	return sub
}

// Notify triggers a re-list on every subscription for the pair.
func (h *Hub) Notify(userID, collection string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[hubKey{userID, collection}] {
		sub.Trigger()
	}
}

// Count returns the number of live subscriptions for the pair.
func (h *Hub) Count(userID, collection string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[hubKey{userID, collection}])
}
