/*
Package events runs watcher callbacks off the write path.

The Broker owns one Worker per subscriber name. Publishing a Task appends it
to the worker's unbounded FIFO queue and returns immediately; the worker's
goroutine executes tasks one at a time in publish order.

	writer ──Publish──▶ [ task task task ] ──▶ worker goroutine ──▶ callback
	                        per-subscriber FIFO

Properties the watcher engine relies on:

  - Order: tasks published by a single goroutine run in that order. The
    engine publishes while holding its dispatch lock, so callbacks observe
    writes in write order.
  - Reentrancy: no broker or worker lock is held while a task runs, so a
    callback may call back into the engine, including unsubscribing itself.
  - Cancellation: Unsubscribe drops queued tasks. A running task completes;
    nothing queued after it runs.
  - Isolation: a panicking task is recovered and logged; the worker keeps
    running.

Wait blocks until workers are idle; tests and graceful shutdown use it.
*/
package events
