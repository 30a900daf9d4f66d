package agent

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Bus routes messages between named participants. Each registered
// participant owns one bounded FIFO queue; a dispatcher goroutine drains the
// queue and fans each message out to the participant's matching
// subscriptions. Delivery order follows send order per recipient; no
// ordering holds across recipients.
//
// Backpressure policy: a point-to-point Publish into a full queue blocks the
// sender up to the configured publish timeout, then fails with
// ErrBusSaturated. The dispatcher blocks on slow subscribers, so a
// subscriber that stops draining eventually fills the recipient queue and
// surfaces to senders as saturation. Broadcast never blocks: a recipient
// whose queue is full misses that broadcast, counted as dropped. A message
// addressed to a name that was never registered fails with
// ErrRecipientUnknown; a name that has deregistered swallows the message
// silently and counts it as dropped.
type Bus struct {
	mu           sync.RWMutex
	participants map[string]*participant
	departed     map[string]bool
	closed       bool

	statsMu        sync.Mutex
	totalSent      uint64
	totalDelivered uint64
	totalDropped   uint64

	queueSize      int
	publishTimeout time.Duration
}

// BusConfig holds the bus's recognized options. Zero values select the
// defaults noted on each field.
type BusConfig struct {
	// QueueSize bounds each recipient's queue. Default 1000.
	QueueSize int
	// PublishTimeout bounds how long a point-to-point Publish blocks on a
	// full queue before failing with ErrBusSaturated. Default 2s.
	PublishTimeout time.Duration
}

// BusStats is a read-only snapshot of delivery counters. Sent counts
// messages accepted into a recipient queue (a broadcast counts once per
// accepted recipient), Delivered counts hand-offs to matching
// subscriptions, and Dropped counts undeliverable messages: departed
// recipients, full broadcast queues, deliveries abandoned mid-flight by
// Unsubscribe or Deregister, and messages consumed with no matching
// subscription.
type BusStats struct {
	TotalSent      uint64         `json:"total_sent"`
	TotalDelivered uint64         `json:"total_delivered"`
	TotalDropped   uint64         `json:"total_dropped"`
	QueueDepth     map[string]int `json:"queue_depth"`
}

type participant struct {
	name  string
	queue chan *Message
	quit  chan struct{}

	mu   sync.Mutex
	subs []*Subscription
}

// Subscription is a handle to one predicate-filtered message stream.
// Receive from C until Unsubscribe closes it.
type Subscription struct {
	id        string
	recipient string
	match     func(kind, sender string) bool
	ch        chan *Message
	done      chan struct{}
	once      sync.Once
	closed    bool
}

// C returns the channel the bus delivers matching messages on.
func (s *Subscription) C() <-chan *Message { return s.ch }

// Recipient returns the participant name this subscription belongs to.
func (s *Subscription) Recipient() string { return s.recipient }

func (s *Subscription) matches(m *Message) bool {
	if s.match == nil {
		return true
	}
	return s.match(m.Kind, m.Sender)
}

// NewBus creates a bus with the given options.
func NewBus(cfg BusConfig) *Bus {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 2 * time.Second
	}
	return &Bus{
		participants:   make(map[string]*participant),
		departed:       make(map[string]bool),
		queueSize:      cfg.QueueSize,
		publishTimeout: cfg.PublishTimeout,
	}
}

// Register adds a named participant and starts its dispatcher. Registering
// an already-registered name is an error.
func (b *Bus) Register(name string) error {
	if name == "" || name == Broadcast {
		return fmt.Errorf("invalid participant name %q", name)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("bus is closed")
	}
	if _, exists := b.participants[name]; exists {
		return fmt.Errorf("participant %s already registered", name)
	}
	p := &participant{
		name:  name,
		queue: make(chan *Message, b.queueSize),
		quit:  make(chan struct{}),
	}
	b.participants[name] = p
	delete(b.departed, name)
	go b.dispatch(p)
	return nil
}

// Deregister removes a participant, stops its dispatcher, and closes its
// subscriptions. Future point-to-point messages to the name are dropped
// silently and counted, not errored.
func (b *Bus) Deregister(name string) {
	b.mu.Lock()
	p, ok := b.participants[name]
	if ok {
		delete(b.participants, name)
		b.departed[name] = true
	}
	b.mu.Unlock()
	if !ok {
		return
	}
	close(p.quit)
	p.mu.Lock()
	for _, sub := range p.subs {
		sub.once.Do(func() { close(sub.done) })
		if !sub.closed {
			sub.closed = true
			close(sub.ch)
		}
	}
	p.subs = nil
	p.mu.Unlock()
}

// Publish routes a message. Point-to-point delivery applies the blocking
// backpressure policy; see the Bus documentation. The context can abort a
// blocked publish early.
func (b *Bus) Publish(ctx context.Context, msg *Message) error {
	if msg == nil {
		return fmt.Errorf("nil message")
	}
	if msg.Recipient == Broadcast {
		b.broadcast(msg)
		return nil
	}

	b.mu.RLock()
	p, ok := b.participants[msg.Recipient]
	wasKnown := b.departed[msg.Recipient]
	b.mu.RUnlock()

	if !ok {
		if wasKnown {
			b.addDropped(1)
			return nil
		}
		return fmt.Errorf("publish %s: %w: %s", msg.Kind, ErrRecipientUnknown, msg.Recipient)
	}

	select {
	case p.queue <- msg:
		b.addSent(1)
		return nil
	default:
	}

	// Queue full: block up to the publish timeout.
	timer := time.NewTimer(b.publishTimeout)
	defer timer.Stop()
	select {
	case p.queue <- msg:
		b.addSent(1)
		return nil
	case <-p.quit:
		b.addDropped(1)
		return nil
	case <-timer.C:
		return fmt.Errorf("publish %s to %s: %w", msg.Kind, msg.Recipient, ErrBusSaturated)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// broadcast enqueues a clone for every registered participant without
// blocking. Full queues miss the broadcast.
func (b *Bus) broadcast(msg *Message) {
	b.mu.RLock()
	targets := make([]*participant, 0, len(b.participants))
	for _, p := range b.participants {
		targets = append(targets, p)
	}
	b.mu.RUnlock()

	for _, p := range targets {
		select {
		case p.queue <- msg.Clone():
			b.addSent(1)
		default:
			b.addDropped(1)
			log.Printf("[Bus] Broadcast %s dropped for %s: queue full", msg.Kind, p.name)
		}
	}
}

// Subscribe attaches a predicate-filtered stream to a registered
// participant. A nil predicate matches every message. A participant may
// hold any number of subscriptions; each matching subscription receives its
// own delivery.
func (b *Bus) Subscribe(name string, predicate func(kind, sender string) bool) (*Subscription, error) {
	b.mu.RLock()
	p, ok := b.participants[name]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("subscribe: %w: %s", ErrRecipientUnknown, name)
	}
	sub := &Subscription{
		id:        uuid.New().String(),
		recipient: name,
		match:     predicate,
		ch:        make(chan *Message, b.queueSize),
		done:      make(chan struct{}),
	}
	p.mu.Lock()
	p.subs = append(p.subs, sub)
	p.mu.Unlock()
	return sub, nil
}

// SubscribeKind is a convenience wrapper filtering on exact message kinds.
func (b *Bus) SubscribeKind(name string, kinds ...string) (*Subscription, error) {
	want := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}
	return b.Subscribe(name, func(kind, _ string) bool { return want[kind] })
}

// Unsubscribe detaches the subscription and closes its channel. Safe to
// call once per handle; messages already in flight to other subscriptions
// are unaffected.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	// Signal first so a dispatcher blocked on this subscription lets go of
	// the participant lock before we take it to close the channel.
	sub.once.Do(func() { close(sub.done) })
	b.mu.RLock()
	p, ok := b.participants[sub.recipient]
	b.mu.RUnlock()
	if !ok {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, s := range p.subs {
		if s.id == sub.id {
			p.subs = append(p.subs[:i], p.subs[i+1:]...)
			break
		}
	}
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
}

// dispatch drains one participant's queue, fanning each message out to the
// matching subscriptions. Runs until Deregister or Close.
func (b *Bus) dispatch(p *participant) {
	for {
		select {
		case msg := <-p.queue:
			b.deliver(p, msg)
		case <-p.quit:
			return
		}
	}
}

// deliver fans one message out to the participant's matching subscriptions.
// Sends block until the subscriber drains, unsubscribes, or the participant
// departs, so a stalled subscriber backs pressure up through the recipient
// queue to publishers.
func (b *Bus) deliver(p *participant, msg *Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	matched := 0
	for _, sub := range p.subs {
		if sub.closed || !sub.matches(msg) {
			continue
		}
		matched++
		select {
		case sub.ch <- msg:
			b.addDelivered(1)
		case <-sub.done:
			b.addDropped(1)
		case <-p.quit:
			b.addDropped(1)
			return
		}
	}
	if matched == 0 {
		b.addDropped(1)
	}
}

// Stats returns a snapshot of the delivery counters and per-recipient queue
// depths. Read-only diagnostic; cheap enough for a monitor loop.
func (b *Bus) Stats() BusStats {
	b.mu.RLock()
	depths := make(map[string]int, len(b.participants))
	for name, p := range b.participants {
		depths[name] = len(p.queue)
	}
	b.mu.RUnlock()

	b.statsMu.Lock()
	defer b.statsMu.Unlock()
	return BusStats{
		TotalSent:      b.totalSent,
		TotalDelivered: b.totalDelivered,
		TotalDropped:   b.totalDropped,
		QueueDepth:     depths,
	}
}

// Close deregisters every participant and stops the bus.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	names := make([]string, 0, len(b.participants))
	for name := range b.participants {
		names = append(names, name)
	}
	b.mu.Unlock()
	for _, name := range names {
		b.Deregister(name)
	}
}

func (b *Bus) addSent(n uint64) {
	b.statsMu.Lock()
	b.totalSent += n
	b.statsMu.Unlock()
}

func (b *Bus) addDelivered(n uint64) {
	b.statsMu.Lock()
	b.totalDelivered += n
	b.statsMu.Unlock()
}

func (b *Bus) addDropped(n uint64) {
	b.statsMu.Lock()
	b.totalDropped += n
	b.statsMu.Unlock()
}
