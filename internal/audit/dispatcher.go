package audit

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// SinkTimeout bounds each Sink.Emit call. Zero means no deadline.
	SinkTimeout time.Duration
}

// Dispatcher hands events to a sink from one background worker. Request
// paths only pay for a channel send.
type Dispatcher struct {
	sink        Sink
	queue       chan Event
	stop        chan struct{}
	stopped     chan struct{}
	dropIfFull  bool
	sinkTimeout time.Duration

	dropped   atomic.Uint64
	delivered atomic.Uint64
	closing   atomic.Bool

	closeOnce sync.Once
	closeErr  error
}

// NewDispatcher starts the worker. It returns nil when cfg.Enabled is false;
// every method is safe on a nil Dispatcher.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		sink:        sink,
		queue:       make(chan Event, max(cfg.BufferSize, 1)),
		stop:        make(chan struct{}),
		stopped:     make(chan struct{}),
		dropIfFull:  cfg.DropIfFull,
		sinkTimeout: cfg.SinkTimeout,
	}
	go d.worker()
	return d
}

func (d *Dispatcher) worker() {
	defer close(d.stopped)

	for {
		select {
		case ev := <-d.queue:
			d.send(ev)
		case <-d.stop:
			d.drain()
			return
		}
	}
}

// drain delivers whatever is still queued once stop is signalled.
func (d *Dispatcher) drain() {
	for {
		select {
		case ev := <-d.queue:
			d.send(ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) send(ev Event) {
	ctx := context.Background()
	if d.sinkTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.sinkTimeout)
		defer cancel()
	}
	d.sink.Emit(ctx, ev)
	d.delivered.Add(1)
}

// Emit queues ev, stamping Timestamp when unset. With DropIfFull a full
// queue drops ev; otherwise Emit blocks until there is room or ctx ends,
// and an abandoned event also counts as dropped.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
	if d == nil || d.closing.Load() {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	if d.dropIfFull {
		select {
		case d.queue <- ev:
		case <-d.stop:
		default:
			d.dropped.Add(1)
		}
		return
	}

	var cancelled <-chan struct{}
	if ctx != nil {
		cancelled = ctx.Done()
	}
	select {
	case d.queue <- ev:
	case <-cancelled:
		d.dropped.Add(1)
	case <-d.stop:
	}
}

// Close stops accepting events, flushes the queue and then closes the sink
// when it implements io.Closer. Repeated calls return the first result.
func (d *Dispatcher) Close() error {
	if d == nil {
		return nil
	}
	d.closeOnce.Do(func() {
		d.closing.Store(true)
		close(d.stop)
		<-d.stopped
		if c, ok := d.sink.(io.Closer); ok {
			d.closeErr = c.Close()
		}
	})
	return d.closeErr
}

func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

func (d *Dispatcher) Delivered() uint64 {
	if d == nil {
		return 0
	}
	return d.delivered.Load()
}
