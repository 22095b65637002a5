/*
Package metrics provides Prometheus metrics and health reporting for the
event engine.

All collectors are registered on the default registry at package init and
exposed through Handler() for scraping:

	┌─────────── write path ───────────┐      ┌──── watchers ────┐
	│ appevent_events_written_total     │      │ appevent_watcher_ │
	│ appevent_write_failures_total     │      │   triggers_total  │
	│ appevent_write_duration_seconds   │      │ appevent_packages_│
	│ appevent_events_evicted_total     │      │   taken_total     │
	└───────────────────────────────────┘      └───────────────────┘
	┌────────── gauges (Collector) ─────────────────────────────────┐
	│ appevent_stored_events  appevent_watchers_total               │
	│ appevent_processors_total                                     │
	└───────────────────────────────────────────────────────────────┘

# Metric Reference

appevent_events_written_total{domain}: events accepted by Write.

appevent_write_failures_total{code}: rejected writes by structured error
code, e.g. "11101001" for an invalid domain.

appevent_write_duration_seconds: validate, append and dispatch of one write.

appevent_events_evicted_total: stored rows dropped to honor maxStorage.

appevent_watcher_triggers_total{watcher,reason}: onTrigger notifications;
reason is "row", "size" or "timeout".

appevent_packages_taken_total{watcher}: packages returned by TakeNext.

# Collector

Gauges are refreshed by a Collector polling a Source (the engine) on an
interval, 15 seconds by default. A failing Source marks the "storage"
component unhealthy.

# Health

Components report through RegisterComponent/UpdateComponent. /health is
unhealthy when any component is; /ready requires the critical components
"storage" and "dispatch" to be registered and healthy. /live always
answers 200.

# Timer

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.WriteDuration)
*/
package metrics
