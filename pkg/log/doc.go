/*
Package log provides structured logging for appevent using zerolog.

The package keeps a single global zerolog.Logger that every component derives
a child logger from. Child loggers carry a "component" field, and the watcher
engine adds the watcher name so that trigger and delivery problems can be
traced to one registration.

# Configuration

	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: true,
		Output:     os.Stderr,
	})

Before Init is called the logger writes JSON to stderr at the zerolog default
level, so library users that never configure logging still get output for
errors.

# Component Loggers

	logger := log.WithComponent("storage")
	logger.Error().Err(err).Int64("event_id", id).Msg("Failed to append event")

	wlog := log.WithWatcher("crash_watcher")
	wlog.Debug().Int("row", row).Msg("Row threshold reached")

	dlog := log.WithDomain("appevent", ev.Domain)
	dlog.Debug().Err(err).Str("name", ev.Name).Msg("Rejected event")

Conventions used across the repository:

  - Debug: validation rejections and trigger decisions
  - Info: lifecycle (store opened, watcher added or removed, data cleared)
  - Warn: optional fields dropped while registering processors
  - Error: storage failures and recovered callback panics
*/
package log
