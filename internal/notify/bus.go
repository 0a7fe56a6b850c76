package notify

import (
	"sync"
	"time"

	"github.com/cuemby/itemstored/internal/log"
	"github.com/cuemby/itemstored/internal/metrics"
	"github.com/cuemby/itemstored/internal/model"
	"github.com/sourcegraph/conc/pool"
)

// subscriberQueueDepth bounds how many undelivered batches a slow
// subscriber may accumulate before the bus disconnects it. The client's
// own internal/recorder change log is what lets it catch up afterwards.
const subscriberQueueDepth = 64

// coalesceWindow is how long the bus waits after the first notification in
// a publish burst before flushing, so a storm of single-item modifies
// (e.g. a bulk flag change) reaches subscribers as one batch.
const coalesceWindow = 50 * time.Millisecond

// link is the bus's private handle on one live subscriber: its filter plus
// the channel notifications are queued on before a pool worker drains it.
type link struct {
	sub   *Subscription
	queue chan []model.Notification
	done  chan struct{}
}

// Bus fans out compressed notification batches to subscriptions, with
// per-subscriber filtering, coalescing, and bounded queues.
type Bus struct {
	mu      sync.RWMutex
	links   map[string]*link
	publish chan []model.Notification
	stop    chan struct{}
	wg      sync.WaitGroup

	pool *pool.Pool
}

// NewBus returns a Bus with workers bounded to maxWorkers concurrent
// deliveries (0 lets the pool pick a default based on GOMAXPROCS).
func NewBus(maxWorkers int) *Bus {
	p := pool.New()
	if maxWorkers > 0 {
		p = p.WithMaxGoroutines(maxWorkers)
	}
	return &Bus{
		links:   make(map[string]*link),
		publish: make(chan []model.Notification, 256),
		stop:    make(chan struct{}),
		pool:    p,
	}
}

// Start launches the bus's coalescing/dispatch loop.
func (b *Bus) Start() {
	b.wg.Add(1)
	go b.run()
}

// Stop drains pending work, disconnects every subscriber, and waits for
// in-flight deliveries to finish.
func (b *Bus) Stop() {
	close(b.stop)
	b.wg.Wait()

	b.mu.Lock()
	for id, l := range b.links {
		close(l.done)
		delete(b.links, id)
	}
	b.mu.Unlock()
	b.pool.Wait()
}

// Subscribe registers sub and returns it; delivery begins immediately.
func (b *Bus) Subscribe(sub *Subscription) {
	l := &link{
		sub:   sub,
		queue: make(chan []model.Notification, subscriberQueueDepth),
		done:  make(chan struct{}),
	}

	b.mu.Lock()
	b.links[sub.ID] = l
	b.mu.Unlock()
	metrics.SubscribersTotal.Inc()

	b.pool.Go(func() { b.drain(l) })
}

// Unsubscribe removes a subscription; its delivery goroutine stops, and
// batches still queued for it may not be delivered.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	l, ok := b.links[id]
	delete(b.links, id)
	b.mu.Unlock()
	if ok {
		metrics.SubscribersTotal.Dec()
		close(l.done)
	}
}

// Publish enqueues a compressed batch for fan-out. It never blocks on
// subscriber delivery: the batch goes on the bus's internal channel and
// per-subscriber filtering/queueing happens in the dispatch loop.
func (b *Bus) Publish(batch []model.Notification) {
	if len(batch) == 0 {
		return
	}
	select {
	case b.publish <- batch:
	case <-b.stop:
	}
}

func (b *Bus) run() {
	defer b.wg.Done()

	var pending []model.Notification
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if len(pending) == 0 {
			return
		}
		b.dispatch(Compress(pending))
		pending = nil
		timerC = nil
	}

	for {
		select {
		case batch := <-b.publish:
			pending = append(pending, batch...)
			if timerC == nil {
				timer = time.NewTimer(coalesceWindow)
				timerC = timer.C
			}
		case <-timerC:
			flush()
		case <-b.stop:
			if timer != nil {
				timer.Stop()
			}
			flush()
			return
		}
	}
}

func (b *Bus) dispatch(batch []model.Notification) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	matched := make(map[string][]model.Notification, len(b.links))
	deliveredTo := make([][]string, len(batch))
	for id, l := range b.links {
		for i, n := range batch {
			if l.sub.Matches(n) {
				matched[id] = append(matched[id], n)
				deliveredTo[i] = append(deliveredTo[i], id)
			}
		}
	}

	// Debug wraps report where each notification went;
	// they reach only the subscribers that opted into the stream.
	var debug []model.Notification
	for id, l := range b.links {
		if !l.sub.WantDebug() {
			continue
		}
		if debug == nil {
			debug = debugWraps(batch, deliveredTo)
		}
		matched[id] = append(matched[id], debug...)
	}

	for id, l := range b.links {
		out := matched[id]
		if len(out) == 0 {
			continue
		}
		select {
		case l.queue <- out:
		default:
			log.Warn("notify: subscriber queue full, disconnecting " + id)
			metrics.SubscribersDroppedTotal.Inc()
			go b.Unsubscribe(id)
		}
	}
}

func debugWraps(batch []model.Notification, deliveredTo [][]string) []model.Notification {
	now := time.Now().UnixNano()
	wraps := make([]model.Notification, len(batch))
	for i := range batch {
		inner := batch[i]
		wraps[i] = model.Notification{
			Type:           model.NotifyDebug,
			Operation:      inner.Operation,
			SessionID:      inner.SessionID,
			Wrapped:        &inner,
			DeliveredTo:    deliveredTo[i],
			ServerUnixNano: now,
		}
	}
	return wraps
}

func (b *Bus) drain(l *link) {
	for {
		select {
		case batch := <-l.queue:
			select {
			case l.sub.out <- batch:
			case <-l.done:
				return
			}
		case <-l.done:
			return
		}
	}
}
