/*
Package config holds the switches that shape the engine at run time and the
settings it starts with.

Settings come from viper (defaults, an optional YAML file, and APPEVENT_
environment variables) and are read once at startup. Manager carries what
callers change while the engine runs:

  - the disable flag consulted by every write
  - the storage quota, applied to the store immediately
  - per-event configurations (MAIN_THREAD_JANK, APP_CRASH, RESOURCE_OVERLIMIT)
  - event policy blocks, validated as a whole before any block is applied
  - user ids and user properties

Configure takes typed Options; ParseOptions reads an option bag whose keys
may be camelCase or snake_case. ConfigureLegacy keeps the older contract of
returning a bool and accepting only the "10M" / "1G" quota grammar.
*/
package config
