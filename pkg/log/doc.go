/*
Package log provides structured logging for kvdeck using zerolog.

The log package wraps the zerolog library to provide leveled, structured
logging with component-specific child loggers. The global logger discards
output until Init is called, so kvdeck used as a library stays silent unless
the embedding program opts in. The CLI initializes it from configuration and
writes logs to stderr, keeping stdout for command results.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - zerolog.Nop() until log.Init()           │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("session")                 │          │
	│  │  - WithClusterID(logger, 3)                 │          │
	│  │  - WithRoute(logger, "etcd-browser")        │          │
	│  └────────────────────────────────────────────┘          │
	└────────────────────────────────────────────────────────┘

Components receive a zerolog.Logger through their constructors and fall
back to WithComponent when none is given, so tests can inject a buffer-backed
logger without touching the global.

# Usage

Initializing the Logger:

	log.Init(log.Config{
		Level:      log.ParseLevel(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
		Output:     os.Stderr,
	})

Component Loggers:

	logger := log.WithComponent("keyspace")
	logger = log.WithClusterID(logger, cluster.ID)
	logger.Debug().Str("prefix", "/registry").Msg("listing keys")

# Log Output Examples

JSON Format:

	{"level":"info","component":"session","username":"admin","time":"2026-10-17T10:30:00Z","message":"session authenticated"}
	{"level":"warn","component":"navigation","route":"clusters","time":"2026-10-17T10:30:01Z","message":"redirecting to login"}

Console Format:

	2026-10-17T10:30:00Z INF session authenticated component=session username=admin
	2026-10-17T10:30:01Z WRN redirecting to login component=navigation route=clusters
*/
package log
