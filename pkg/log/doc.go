/*
Package log provides structured logging for pcsd using zerolog.

The package keeps a single process-wide zerolog.Logger that every other
package derives child loggers from. Child loggers carry the field that
identifies what they are working on, so a line from the aggregator about a
dead peer can be filtered by node, and a line from the dispatcher can be
filtered by remote command:

	agg := log.WithComponent("aggregator")
	agg.Warn().Str("node", "ace8").Str("reason", "timeout").Msg("node status unavailable")

	cmdLog := log.WithCommand("cluster_start")
	cmdLog.Info().Str("node", "cat8").Msg("relaying request")

# Output

Init selects between the zerolog console writer (human readable, used when
pcsd runs in a terminal) and plain JSON lines (used under systemd, where the
journal collects stdout):

	log.Init(log.Config{
		Level:      log.ParseLevel(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
		Output:     os.Stdout,
	})

Before Init runs the logger writes JSON to stderr, so packages used from tests
or from short CLI commands still produce readable output.

# Levels

  - debug: per-request detail (RPC URLs, tool argv)
  - info: lifecycle (server start, token issued, cluster registered)
  - warn: recoverable failures (peer unreachable, corrupt state file treated as empty)
  - error: failures that abort an operation
*/
package log
