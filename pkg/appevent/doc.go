/*
Package appevent is the entry point of the event engine.

A Manager owns one bolt store, the watcher registry, the processor registry
and the runtime configuration. Events go through a single write path:

	disable flag -> validation -> custom params merge -> append -> dispatch

The manager lock is held across the whole path, so ClearData and Close see
each write either completely or not at all. Watcher callbacks run later, on
their own workers, and may call back into the Manager.

Two call shapes share the path. Write and WriteParams return *errcode.Error
values carrying the structured code; WriteLegacy returns the numeric result
of the older API and writes to LegacyDomain.

Every Manager gets a random running id. It is stamped on the events it
writes and scopes the parameters set with SetEventParam.
*/
package appevent
