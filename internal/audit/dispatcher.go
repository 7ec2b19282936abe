package audit

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
)

// DefaultRedactedKeys are metadata keys that never leave the dispatcher.
var DefaultRedactedKeys = []string{"code", "login_code", "secret"}

// Config controls dispatcher buffering and redaction.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events when the buffer is full instead of blocking Emit.
	DropIfFull bool
	// RedactKeys replaces DefaultRedactedKeys. Matching is case-insensitive.
	RedactKeys []string
	// OnDrop is called with the running drop count every time an event is
	// dropped. It runs on the emitting goroutine and must not block.
	OnDrop func(event Event, dropped uint64)
}

// Dispatcher relays lifecycle events to a Sink from one background goroutine,
// so a slow sink never stalls issuing or redeeming codes.
type Dispatcher struct {
	sink   Sink
	queue  chan Event
	stop   chan struct{}
	relay  sync.WaitGroup
	redact map[string]struct{}

	dropIfFull bool
	onDrop     func(Event, uint64)

	dropped  atomic.Uint64
	closed   atomic.Bool
	stopOnce sync.Once
}

// NewDispatcher starts the relay goroutine. It returns nil when cfg.Enabled is
// false; a nil Dispatcher ignores every call.
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
	keys := cfg.RedactKeys
	if keys == nil {
		keys = DefaultRedactedKeys
	}

	d := &Dispatcher{
		sink:       sink,
		queue:      make(chan Event, cfg.BufferSize),
		stop:       make(chan struct{}),
		redact:     make(map[string]struct{}, len(keys)),
		dropIfFull: cfg.DropIfFull,
		onDrop:     cfg.OnDrop,
	}
	for _, k := range keys {
		d.redact[strings.ToLower(k)] = struct{}{}
	}

	d.relay.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.relay.Done()

	ctx := context.Background()
	for {
		select {
		case event := <-d.queue:
			d.sink.Emit(ctx, event)
		case <-d.stop:
			for {
				select {
				case event := <-d.queue:
					d.sink.Emit(ctx, event)
				default:
					return
				}
			}
		}
	}
}

// Emit queues event. Metadata keys listed in Config.RedactKeys are removed
// first; the caller's map is not modified.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	event.Metadata = d.scrub(event.Metadata)

	if d.dropIfFull {
		select {
		case d.queue <- event:
		case <-d.stop:
		default:
			n := d.dropped.Add(1)
			if d.onDrop != nil {
				d.onDrop(event, n)
			}
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
	case <-d.stop:
	}
}

func (d *Dispatcher) scrub(md map[string]string) map[string]string {
	if len(md) == 0 || len(d.redact) == 0 {
		return md
	}
	var out map[string]string
	for k := range md {
		if _, hit := d.redact[strings.ToLower(k)]; !hit {
			continue
		}
		if out == nil {
			out = make(map[string]string, len(md))
			for k2, v := range md {
				out[k2] = v
			}
		}
		delete(out, k)
	}
	if out == nil {
		return md
	}
	return out
}

// Close drains buffered events into the sink and stops the relay.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.stopOnce.Do(func() {
		d.closed.Store(true)
		close(d.stop)
		d.relay.Wait()
	})
}

// Dropped returns how many events were discarded under backpressure.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
