/*
Package processor registers reporting processors and assigns their ids.

A processor describes when buffered events should leave the device and
which user ids, user properties and events travel with them. Reporting
itself is done elsewhere; this package only keeps the registrations.

# Identity

	name + configId != 0  ->  one id; later calls refresh the attributes
	configId == 0         ->  a new id on every call

An invalid processor name is not an error. The processor is stored as
inert, still receives an id, and never reports.

# Optional fields

Optional fields are repaired rather than rejected: out of range numbers
fall back to zero, invalid user id and user property names are dropped,
event selectors naming neither a domain nor a valid event are dropped, and
customConfigs entries that fail the key or value checks are left out.

# Templates

A configName naming a bundle in the catalog supplies defaults for every
field the caller left at its zero value. AddFromConfig registers a bundle
as is under a caller chosen name.
*/
package processor
