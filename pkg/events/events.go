package events

import (
	"sync"

	"github.com/cuemby/appevent/pkg/log"
	"github.com/rs/zerolog"
)

// Task is one queued callback invocation
type Task func()

// Worker runs the tasks published to one subscriber, in publish order, on a
// goroutine of its own. Tasks may call back into whatever published them.
type Worker struct {
	name    string
	mu      sync.Mutex
	tasks   []Task
	stopped bool
	signal  chan struct{} // buffered, size 1
	stopCh  chan struct{}
	idle    *sync.Cond
	busy    bool
	logger  zerolog.Logger
}

func newWorker(name string) *Worker {
	w := &Worker{
		name:   name,
		tasks:  make([]Task, 0, 16),
		signal: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		logger: log.WithComponent("events").With().Str("subscriber", name).Logger(),
	}
	w.idle = sync.NewCond(&w.mu)
	go w.run()
	return w
}

// enqueue appends a task; it reports false once the worker is stopped.
func (w *Worker) enqueue(task Task) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return false
	}
	w.tasks = append(w.tasks, task)

	select {
	case w.signal <- struct{}{}:
	default:
	}
	return true
}

// next pops the oldest task, or returns nil when the queue is empty or the
// worker has been stopped.
func (w *Worker) next() Task {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped || len(w.tasks) == 0 {
		w.busy = false
		w.idle.Broadcast()
		return nil
	}
	task := w.tasks[0]
	w.tasks[0] = nil
	w.tasks = w.tasks[1:]
	w.busy = true
	return task
}

func (w *Worker) run() {
	for {
		select {
		case <-w.signal:
			for task := w.next(); task != nil; task = w.next() {
				w.execute(task)
			}
		case <-w.stopCh:
			w.mu.Lock()
			w.busy = false
			w.idle.Broadcast()
			w.mu.Unlock()
			return
		}
	}
}

func (w *Worker) execute(task Task) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error().Interface("panic", r).Msg("Callback panicked")
		}
	}()
	task()
}

// stop drops queued tasks. A task that is already running finishes; stop
// does not wait for it, so a task may stop its own worker.
func (w *Worker) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	w.stopped = true
	w.tasks = nil
	close(w.stopCh)
}

// Pending returns the number of queued tasks not yet started.
func (w *Worker) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.tasks)
}

// Wait blocks until the queue is drained and no task is running, or the
// worker is stopped. It must not be called from inside a task.
func (w *Worker) Wait() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for !w.stopped && (w.busy || len(w.tasks) > 0) {
		w.idle.Wait()
	}
}

// Broker manages one Worker per named subscriber
type Broker struct {
	subscribers map[string]*Worker
	mu          sync.RWMutex
}

// NewBroker creates a new broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[string]*Worker),
	}
}

// Subscribe starts a fresh worker for name, stopping any previous one.
func (b *Broker) Subscribe(name string) *Worker {
	b.mu.Lock()
	defer b.mu.Unlock()

	if old, ok := b.subscribers[name]; ok {
		old.stop()
	}
	w := newWorker(name)
	b.subscribers[name] = w
	return w
}

// Unsubscribe stops the worker for name. Unknown names are ignored.
func (b *Broker) Unsubscribe(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if w, ok := b.subscribers[name]; ok {
		w.stop()
		delete(b.subscribers, name)
	}
}

// Publish queues task on the given worker. It reports false when the worker
// has been stopped, which happens when its subscriber was removed.
func (b *Broker) Publish(w *Worker, task Task) bool {
	if w == nil {
		return false
	}
	return w.enqueue(task)
}

// Wait blocks until every current worker is idle.
func (b *Broker) Wait() {
	b.mu.RLock()
	workers := make([]*Worker, 0, len(b.subscribers))
	for _, w := range b.subscribers {
		workers = append(workers, w)
	}
	b.mu.RUnlock()

	for _, w := range workers {
		w.Wait()
	}
}

// Stop stops every worker
func (b *Broker) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for name, w := range b.subscribers {
		w.stop()
		delete(b.subscribers, name)
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
