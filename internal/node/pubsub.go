package node

import (
	"sync"

	"github.com/rs/zerolog"

	"solana-escrow-lab/internal/observability"
	"solana-escrow-lab/internal/solana"
)

// subscriberBuffer bounds the notifications queued for one subscriber.
const subscriberBuffer = 1024

// Subscription receives the logs of committed transactions.
type Subscription struct {
	ID int64
	C  <-chan solana.LogNotification

	ch       chan solana.LogNotification
	mentions map[solana.PublicKey]struct{} // nil matches everything
}

func (s *Subscription) matches(keys []solana.PublicKey) bool {
	if s.mentions == nil {
		return true
	}
	for _, k := range keys {
		if _, ok := s.mentions[k]; ok {
			return true
		}
	}
	return false
}

// PubSub fans committed transaction logs out to subscribers.
// Publishing never blocks: a subscriber whose buffer is full misses the notification.
type PubSub struct {
	mu      sync.Mutex
	nextID  int64
	subs    map[int64]*Subscription
	metrics *observability.Metrics
	logger  zerolog.Logger
}

// NewPubSub creates an empty PubSub.
func NewPubSub(metrics *observability.Metrics, logger zerolog.Logger) *PubSub {
	return &PubSub{
		subs:    make(map[int64]*Subscription),
		metrics: metrics,
		logger:  logger,
	}
}

// Subscribe registers a subscriber. Empty mentions receives every transaction.
// IDs start at 1.
func (p *PubSub) Subscribe(mentions []solana.PublicKey) *Subscription {
	ch := make(chan solana.LogNotification, subscriberBuffer)
	sub := &Subscription{C: ch, ch: ch}
	if len(mentions) > 0 {
		sub.mentions = make(map[solana.PublicKey]struct{}, len(mentions))
		for _, m := range mentions {
			sub.mentions[m] = struct{}{}
		}
	}

	p.mu.Lock()
	p.nextID++
	sub.ID = p.nextID
	p.subs[sub.ID] = sub
	p.mu.Unlock()

	p.metrics.AddSubscribers(1)
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (p *PubSub) Unsubscribe(id int64) bool {
	p.mu.Lock()
	sub, ok := p.subs[id]
	if ok {
		delete(p.subs, id)
		close(sub.ch)
	}
	p.mu.Unlock()

	if ok {
		p.metrics.AddSubscribers(-1)
	}
	return ok
}

// Publish delivers n to every subscriber mentioning one of keys.
func (p *PubSub) Publish(n solana.LogNotification, keys []solana.PublicKey) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, sub := range p.subs {
		if !sub.matches(keys) {
			continue
		}
		select {
		case sub.ch <- n:
			p.metrics.RecordNotification()
		default:
			p.logger.Warn().Int64("subscription", id).Str("signature", n.Signature).Msg("subscriber lagging, notification dropped")
		}
	}
}

// Len returns the number of active subscriptions.
func (p *PubSub) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}
