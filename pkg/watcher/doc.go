/*
Package watcher implements watcher registration and the trigger engine.

A watcher is registered under a unique name with optional filters, a
trigger Condition and one of two callbacks:

  - OnReceive makes the watcher real-time. Matching events are handed to the
    callback per write, grouped by domain and then by name, and are not
    buffered.
  - Otherwise matching events are serialized into rows and appended to the
    watcher's buffer. When the rows or bytes accumulated since the last
    trigger reach Condition.Row or Condition.Size, OnTrigger is called with
    those totals. Condition.Timeout fires OnTrigger for whatever has
    accumulated once that many timeout units pass after the first
    undelivered row.

Rows are taken out of the buffer through a Holder:

	holder.SetSize(curSize)    // take exactly what this trigger reported
	pkg := holder.TakeNext()   // nil when nothing is buffered

Package ids count from 0 per watcher and restart after Clear or re-adding.

# Concurrency

Dispatch runs on the writer's goroutine and only touches buffers; callbacks
are queued to a per-watcher events.Worker and run in write order with no
registry lock held. A callback can therefore take from its holder, add
watchers, or remove its own watcher. Remove cancels the timeout and drops
queued callbacks; a callback that is already running completes.

Timer callbacks carry the generation they were armed in, so a timer that
fires after being stopped by a trigger, a clear or a removal does nothing.
*/
package watcher
