package watcher

import (
	"sort"
	"sync"
	"time"

	"github.com/cuemby/appevent/pkg/events"
	"github.com/cuemby/appevent/pkg/log"
	"github.com/cuemby/appevent/pkg/metrics"
	"github.com/cuemby/appevent/pkg/types"
	"github.com/rs/zerolog"
)

// DefaultTimeoutUnit is the length of one Condition.Timeout step.
const DefaultTimeoutUnit = time.Second

type bufferedRow struct {
	data  string
	event *types.Event
}

// entry is the live state of one registered watcher.
type entry struct {
	spec   Spec
	worker *events.Worker
	holder *Holder
	logger zerolog.Logger

	mu        sync.Mutex
	rows      []bufferedRow
	curRow    int // rows since the last trigger
	curSize   int
	packageID int
	timer     *time.Timer
	gen       uint64 // invalidates timers that were stopped too late
	removed   bool
}

// stopTimer must be called with e.mu held.
func (e *entry) stopTimer() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.gen++
}

// reset drops buffered rows and counters. Must be called with e.mu held.
func (e *entry) reset() {
	e.rows = nil
	e.curRow = 0
	e.curSize = 0
	e.packageID = 0
	e.stopTimer()
}

func (e *entry) retire() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.removed = true
	e.reset()
}

// Registry holds the registered watchers and routes written events to them.
// Callbacks run on a per-watcher worker, never on the writer's goroutine, and
// may call back into the registry.
type Registry struct {
	mu          sync.RWMutex
	watchers    map[string]*entry
	broker      *events.Broker
	timeoutUnit time.Duration
	logger      zerolog.Logger
}

// NewRegistry creates an empty registry. A non-positive timeoutUnit means
// DefaultTimeoutUnit.
func NewRegistry(timeoutUnit time.Duration) *Registry {
	if timeoutUnit <= 0 {
		timeoutUnit = DefaultTimeoutUnit
	}
	return &Registry{
		watchers:    make(map[string]*entry),
		broker:      events.NewBroker(),
		timeoutUnit: timeoutUnit,
		logger:      log.WithComponent("watcher"),
	}
}

// Add registers a watcher and returns its holder. A watcher already
// registered under the same name is replaced and its buffer discarded.
func (r *Registry) Add(spec Spec) (*Holder, error) {
	if err := spec.Validate(); err != nil {
		r.logger.Debug().Err(err).Str("watcher", spec.Name).Msg("Rejected watcher")
		return nil, err
	}

	e := &entry{
		spec:   spec,
		logger: log.WithWatcher(spec.Name),
	}
	e.holder = newHolder(spec.Name, e)

	r.mu.Lock()
	if old, ok := r.watchers[spec.Name]; ok {
		old.retire()
	}
	e.worker = r.broker.Subscribe(spec.Name)
	r.watchers[spec.Name] = e
	count := len(r.watchers)
	r.mu.Unlock()

	metrics.WatchersTotal.Set(float64(count))
	e.logger.Info().
		Int("filters", len(spec.Filters)).
		Int("row", spec.Condition.Row).
		Int("size", spec.Condition.Size).
		Int("timeout", spec.Condition.Timeout).
		Bool("realtime", spec.OnReceive != nil).
		Msg("Watcher added")
	return e.holder, nil
}

// Remove unregisters the named watcher. Queued callbacks are dropped and the
// timeout is canceled; a callback already running completes. Unknown names
// are ignored.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	e, ok := r.watchers[name]
	if ok {
		delete(r.watchers, name)
		r.broker.Unsubscribe(name)
	}
	count := len(r.watchers)
	r.mu.Unlock()

	if !ok {
		return
	}
	e.retire()
	metrics.WatchersTotal.Set(float64(count))
	e.logger.Info().Msg("Watcher removed")
}

// Lookup returns a new holder bound to the watcher currently registered
// under name. The holder keeps its own take settings. If no such watcher
// exists the holder never returns a package.
func (r *Registry) Lookup(name string) *Holder {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return newHolder(name, r.watchers[name])
}

// Names returns the registered watcher names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.watchers))
	for name := range r.watchers {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Len returns the number of registered watchers
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.watchers)
}

// Dispatch routes events, in order, to every watcher whose filters match.
// Real-time watchers (OnReceive) get the events immediately; the others
// buffer their rows and are triggered by their Condition. Dispatch returns
// once all buffers are updated; callbacks run afterwards.
func (r *Registry) Dispatch(evs ...*types.Event) {
	if len(evs) == 0 {
		return
	}

	rows := make([]string, len(evs))
	for i, ev := range evs {
		row, err := ev.Row()
		if err != nil {
			r.logger.Error().Err(err).Str("domain", ev.Domain).Str("name", ev.Name).Msg("Failed to serialize event")
			continue
		}
		rows[i] = row
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.watchers {
		var matched []int
		for i, ev := range evs {
			if rows[i] != "" && e.spec.Match(ev) {
				matched = append(matched, i)
			}
		}
		if len(matched) == 0 {
			continue
		}
		if e.spec.OnReceive != nil {
			r.deliver(e, evs, matched)
			continue
		}
		r.buffer(e, evs, rows, matched)
	}
}

func (r *Registry) deliver(e *entry, evs []*types.Event, matched []int) {
	selected := make([]*types.Event, len(matched))
	for i, idx := range matched {
		selected[i] = evs[idx]
	}

	fn := e.spec.OnReceive
	domains, groups := groupByDomain(selected)
	for _, domain := range domains {
		domain, gs := domain, groups[domain]
		r.broker.Publish(e.worker, func() { fn(domain, gs) })
	}
}

func (r *Registry) buffer(e *entry, evs []*types.Event, rows []string, matched []int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.removed {
		return
	}
	for _, i := range matched {
		e.rows = append(e.rows, bufferedRow{data: rows[i], event: evs[i]})
		e.curRow++
		e.curSize += len(rows[i])
		if reason := e.spec.Condition.reached(e.curRow, e.curSize); reason != "" {
			r.fire(e, reason)
		}
	}
	r.armTimeout(e)
}

// fire reports the accumulated totals and starts a new accumulation. Must be
// called with e.mu held.
func (r *Registry) fire(e *entry, reason string) {
	row, size := e.curRow, e.curSize
	e.curRow, e.curSize = 0, 0
	e.stopTimer()

	metrics.WatcherTriggers.WithLabelValues(e.spec.Name, reason).Inc()
	e.logger.Debug().Str("reason", reason).Int("row", row).Int("size", size).Msg("Watcher triggered")

	if fn := e.spec.OnTrigger; fn != nil {
		holder := e.holder
		r.broker.Publish(e.worker, func() { fn(row, size, holder) })
	}
}

// armTimeout starts the timeout once undelivered rows exist. Must be called
// with e.mu held.
func (r *Registry) armTimeout(e *entry) {
	if e.spec.Condition.Timeout <= 0 || e.curRow == 0 || e.timer != nil {
		return
	}
	gen := e.gen
	d := time.Duration(e.spec.Condition.Timeout) * r.timeoutUnit
	e.timer = time.AfterFunc(d, func() { r.onTimeout(e, gen) })
}

func (r *Registry) onTimeout(e *entry, gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.removed || gen != e.gen {
		return
	}
	e.timer = nil
	if e.curRow > 0 {
		r.fire(e, "timeout")
	}
}

// Clear drops every watcher's buffered rows, resets package ids to 0 and
// cancels pending timeouts. Registrations are kept.
func (r *Registry) Clear() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.watchers {
		e.mu.Lock()
		e.reset()
		e.mu.Unlock()
	}
	r.logger.Debug().Int("watchers", len(r.watchers)).Msg("Watcher buffers cleared")
}

// Wait blocks until all callbacks queued so far have run. It must not be
// called from a callback.
func (r *Registry) Wait() {
	r.broker.Wait()
}

// Close removes every watcher and stops their workers
func (r *Registry) Close() {
	r.mu.Lock()
	retired := make([]*entry, 0, len(r.watchers))
	for name, e := range r.watchers {
		retired = append(retired, e)
		delete(r.watchers, name)
	}
	r.broker.Stop()
	r.mu.Unlock()

	for _, e := range retired {
		e.retire()
	}
	metrics.WatchersTotal.Set(0)
}
