package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// OnDrop, if set, runs synchronously for every event dropped on a full buffer.
	OnDrop func(Event)
	// OnSinkPanic, if set, receives the recovered value when the sink panics on an
	// event. The dispatcher keeps running either way.
	OnSinkPanic func(Event, any)
}

// Dispatcher forwards audit events to a sink from a single goroutine, so the sink
// sees events in emission order and never blocks a login. Every emitted event ends up
// delivered, dropped or lost to a sink panic.
type Dispatcher struct {
	cfg  Config
	sink Sink
	ch   chan Event
	stop chan struct{}
	done chan struct{}

	// mu orders sender registration against Shutdown; ch is closed only once
	// every registered sender has returned.
	mu      sync.RWMutex
	closed  bool
	senders sync.WaitGroup

	dropped   atomic.Uint64
	delivered atomic.Uint64
	panics    atomic.Uint64
	stopOnce  sync.Once
}

// NewDispatcher starts a dispatcher goroutine. It returns nil when cfg is disabled;
// a nil *Dispatcher accepts and discards events.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		cfg:  cfg,
		sink: sink,
		ch:   make(chan Event, cfg.BufferSize),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for event := range d.ch {
		d.deliver(event)
	}
}

func (d *Dispatcher) deliver(event Event) {
	defer func() {
		if r := recover(); r != nil {
			d.panics.Add(1)
			if d.cfg.OnSinkPanic != nil {
				d.cfg.OnSinkPanic(event, r)
			}
		}
	}()
	d.sink.Emit(context.Background(), event)
	d.delivered.Add(1)
}

// Emit queues event for delivery. With DropIfFull it never blocks; otherwise it waits
// for buffer space until ctx is done. Events emitted during or after Shutdown are
// counted as dropped.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		d.drop(event)
		return
	}
	d.senders.Add(1)
	d.mu.RUnlock()
	defer d.senders.Done()

	if d.cfg.DropIfFull {
		select {
		case d.ch <- event:
		case <-d.stop:
			d.drop(event)
		default:
			d.drop(event)
		}
		return
	}

	select {
	case d.ch <- event:
	case <-ctx.Done():
	case <-d.stop:
		d.drop(event)
	}
}

func (d *Dispatcher) drop(event Event) {
	d.dropped.Add(1)
	if d.cfg.OnDrop != nil {
		d.cfg.OnDrop(event)
	}
}

// Shutdown stops accepting events and drains the buffer into the sink. It returns
// ctx.Err() if ctx ends first; the drain then continues in the background.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	if d == nil {
		return nil
	}
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		close(d.stop)
		go func() {
			d.senders.Wait()
			close(d.ch)
		}()
	})
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close is Shutdown without a deadline.
func (d *Dispatcher) Close() {
	_ = d.Shutdown(context.Background())
}

// Dropped returns how many events were discarded on a full buffer or during shutdown.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Delivered returns how many events the sink accepted without panicking.
func (d *Dispatcher) Delivered() uint64 {
	if d == nil {
		return 0
	}
	return d.delivered.Load()
}

// SinkPanics returns how many events were lost to a panicking sink.
func (d *Dispatcher) SinkPanics() uint64 {
	if d == nil {
		return 0
	}
	return d.panics.Load()
}
