/*
Package types defines the event data model shared by every appevent package.

An Event is identified by a domain and a name, classified by one of four
EventTypes (FAULT, STATISTIC, SECURITY, BEHAVIOR) and carries a flat map of
parameters. Parameter values are a tagged union (Value) of a boolean, a number,
a string, or a homogeneous array of one of those. Nested objects and nulls are
not representable; ValueOf reports them as errors so the validator can map
them onto the right error code.

# Row Format

Watchers buffer events as serialized rows. A row is a flat JSON object whose
metadata keys end in an underscore:

	{"domain_":"button","name_":"click","type_":4,"time_":1700000000000,"click_time":100}

Parameter keys may not end in an underscore, so metadata and parameters never
collide. The byte length of this row is what watcher size triggers count.
*/
package types
