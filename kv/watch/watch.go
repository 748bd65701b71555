package watch

import (
	"strings"
	"sync"

	"github.com/ngaut/log"
	"go.uber.org/atomic"
	"golang.org/x/time/rate"

	"github.com/cplane-io/tinyxs/kv/metrics"
	"github.com/cplane-io/tinyxs/kv/transaction"
)

// Subscription receives the watch events recorded under one path prefix by
// committed transactions. Events for a flooding subscriber are dropped rather
// than allowed to stall delivery to everyone else.
type Subscription struct {
	id      uint64
	prefix  string
	ch      chan transaction.WatchEvent
	limiter *rate.Limiter
}

// Events returns the channel delivering this subscription's events. The
// channel is closed on Unsubscribe and on dispatcher shutdown.
func (s *Subscription) Events() <-chan transaction.WatchEvent {
	return s.ch
}

// Prefix returns the path prefix the subscription covers.
func (s *Subscription) Prefix() string {
	return s.prefix
}

type taskType int

const (
	taskStop taskType = iota
	taskSubscribe
	taskUnsubscribe
	taskDeliver
)

type task struct {
	tp     taskType
	sub    *Subscription
	events []transaction.WatchEvent
}

const defaultTaskCapacity = 128

// Dispatcher fans committed watch events out to subscribers. A single loop
// goroutine owns the subscriber table, so registration and delivery never
// race. Only events from committed transactions may be handed to Deliver;
// conflicted transactions must discard theirs.
type Dispatcher struct {
	tasks   chan task
	stopped chan struct{}
	wg      sync.WaitGroup
	nextID  *atomic.Uint64
}

// NewDispatcher returns a stopped dispatcher; call Start before use.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		tasks:   make(chan task, defaultTaskCapacity),
		stopped: make(chan struct{}),
		nextID:  atomic.NewUint64(0),
	}
}

// Start launches the delivery loop.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.loop()
}

// Stop drains the loop and closes every subscription channel. Calls arriving
// after Stop return immediately instead of queueing behind a dead loop.
func (d *Dispatcher) Stop() {
	if !d.send(task{tp: taskStop}) {
		return
	}
	d.wg.Wait()
}

// send queues a task for the loop, reporting false once the loop is gone.
// The stopped check comes first so a task can never be queued behind a loop
// that has already exited.
func (d *Dispatcher) send(t task) bool {
	select {
	case <-d.stopped:
		return false
	default:
	}
	select {
	case d.tasks <- t:
		return true
	case <-d.stopped:
		return false
	}
}

// Subscribe registers interest in events at prefix and everything below it.
// buf bounds the subscriber's delivery queue; limit and burst bound its event
// rate, with excess events dropped. After Stop the returned subscription is
// already closed.
func (d *Dispatcher) Subscribe(prefix string, buf int, limit rate.Limit, burst int) *Subscription {
	sub := &Subscription{
		id:      d.nextID.Add(1),
		prefix:  prefix,
		ch:      make(chan transaction.WatchEvent, buf),
		limiter: rate.NewLimiter(limit, burst),
	}
	if !d.send(task{tp: taskSubscribe, sub: sub}) {
		close(sub.ch)
	}
	return sub
}

// Unsubscribe removes the subscription and closes its channel.
func (d *Dispatcher) Unsubscribe(sub *Subscription) {
	d.send(task{tp: taskUnsubscribe, sub: sub})
}

// Deliver queues the watch events of one committed transaction for fan-out.
// Events handed over after Stop are dropped.
func (d *Dispatcher) Deliver(events []transaction.WatchEvent) {
	if len(events) == 0 {
		return
	}
	d.send(task{tp: taskDeliver, events: events})
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()
	subs := make(map[uint64]*Subscription)
	for {
		t := <-d.tasks
		switch t.tp {
		case taskStop:
			close(d.stopped)
			for _, sub := range subs {
				close(sub.ch)
			}
			// Tasks that won the race against the stop close their
			// subscriptions too; everything else is dropped.
			for {
				select {
				case t := <-d.tasks:
					if t.tp == taskSubscribe {
						close(t.sub.ch)
					}
				default:
					return
				}
			}
		case taskSubscribe:
			subs[t.sub.id] = t.sub
		case taskUnsubscribe:
			if _, ok := subs[t.sub.id]; ok {
				delete(subs, t.sub.id)
				close(t.sub.ch)
			}
		case taskDeliver:
			for _, ev := range t.events {
				for _, sub := range subs {
					if !matches(sub.prefix, ev.Path) {
						continue
					}
					deliver(sub, ev)
				}
			}
		}
	}
}

func deliver(sub *Subscription, ev transaction.WatchEvent) {
	if !sub.limiter.Allow() {
		metrics.WatchDroppedCounter.Inc()
		log.Warnf("dropping %s watch event for %q: subscriber over event rate", ev.Op, ev.Path)
		return
	}
	select {
	case sub.ch <- ev:
		metrics.WatchEventCounter.Inc()
	default:
		metrics.WatchDroppedCounter.Inc()
		log.Warnf("dropping %s watch event for %q: subscriber queue full", ev.Op, ev.Path)
	}
}

func matches(prefix, path string) bool {
	if prefix == "/" || prefix == path {
		return true
	}
	return strings.HasPrefix(path, prefix+"/")
}
