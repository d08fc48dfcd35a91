package state

import (
	"sync"

	"github.com/google/uuid"

	"github.com/cuemby/holo/pkg/log"
)

// Reducer computes the next value of one named slice given its
// previous value, the pre-image snapshot of every slice, and the
// wrapped action being applied. A Reducer must not block, must not
// dispatch further actions synchronously, and returns prev unchanged
// if the action has no effect on this slice. The Wrapped id is passed
// through (rather than the bare Action) so reducers that record a
// per-action outcome for observers can key that record by id.
type Reducer func(prev interface{}, full *Snapshot, w Wrapped) interface{}

// actionQueueSize is the dispatcher's action channel capacity. The
// dispatcher models an "unbounded" channel per spec by sizing this
// generously rather than implementing a custom growable queue;
// Dispatch blocks if a caller ever outruns it, which in practice means
// a reducer is stuck (a bug), not that legitimate load exhausted it.
const actionQueueSize = 65536

// Dispatcher is the single-writer reducer loop. One goroutine owns
// state mutation; every other component reads a cheap Snapshot or
// dispatches actions onto the channel.
type Dispatcher struct {
	actions chan Wrapped
	stopCh  chan struct{}
	wg      sync.WaitGroup

	mu       sync.RWMutex
	reducers map[string]Reducer
	current  *Snapshot

	subMu sync.RWMutex
	subs  map[chan *Snapshot]bool
}

// New returns a Dispatcher whose initial snapshot has the given named
// slices, each at its zero reducer input.
func New(initial map[string]interface{}) *Dispatcher {
	d := &Dispatcher{
		actions:  make(chan Wrapped, actionQueueSize),
		stopCh:   make(chan struct{}),
		reducers: make(map[string]Reducer),
		current:  newSnapshot(initial),
		subs:     make(map[chan *Snapshot]bool),
	}
	return d
}

// Register binds a Reducer to a named slice. Call before Start;
// registering after Start is not safe for concurrent use.
func (d *Dispatcher) Register(sliceName string, r Reducer) {
	d.reducers[sliceName] = r
}

// Start launches the dispatcher's single reducer goroutine.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop signals the reducer goroutine to exit and waits for it.
func (d *Dispatcher) Stop() {
	close(d.stopCh)
	d.wg.Wait()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case w := <-d.actions:
			d.reduce(w)
		case <-d.stopCh:
			return
		}
	}
}

// Dispatch enqueues an action, wrapping it with a fresh id, and returns
// that id so callers can correlate a later result (e.g. a zome call's
// in-flight map entry, a network query's result slot).
func (d *Dispatcher) Dispatch(a Action) uuid.UUID {
	w := Wrap(a)
	d.actions <- w
	return w.ID
}

func (d *Dispatcher) reduce(w Wrapped) {
	d.mu.Lock()
	preImage := d.current
	next := preImage.clone()
	for name, prev := range next {
		if r, ok := d.reducers[name]; ok {
			next[name] = r(prev, preImage, w)
		}
	}
	snap := newSnapshot(next)
	d.current = snap
	d.mu.Unlock()

	d.broadcast(snap)
}

// Snapshot returns the most recently completed reduce's state. It
// never blocks on the reducer goroutine.
func (d *Dispatcher) Snapshot() *Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.current
}

// Subscribe returns a channel that receives every snapshot published
// after a reduce. Delivery is best-effort: when a slow subscriber's
// buffer is full, the new snapshot is dropped for it (the older buffered
// ones are kept) rather than blocking the dispatcher, mirroring the network-to-dispatcher backpressure policy
// in spec (overflow drops the newest message and logs).
func (d *Dispatcher) Subscribe() chan *Snapshot {
	ch := make(chan *Snapshot, 8)
	d.subMu.Lock()
	d.subs[ch] = true
	d.subMu.Unlock()
	return ch
}

// Unsubscribe stops delivery to ch and closes it.
func (d *Dispatcher) Unsubscribe(ch chan *Snapshot) {
	d.subMu.Lock()
	if d.subs[ch] {
		delete(d.subs, ch)
		close(ch)
	}
	d.subMu.Unlock()
}

func (d *Dispatcher) broadcast(snap *Snapshot) {
	d.subMu.RLock()
	defer d.subMu.RUnlock()
	for ch := range d.subs {
		select {
		case ch <- snap:
		default:
			log.Logger.Debug().Msg("state: dropped snapshot for slow subscriber")
		}
	}
}
