/*
Package log provides structured logging for the control plane using zerolog.

It wraps zerolog to give every component JSON or console output, a
configurable level, and child loggers carrying component/job/container/host
context fields.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: os.Stdout})
	log.Info("orchestrator starting")

	profilerLog := log.WithComponent("profiler")
	profilerLog.Debug().Str("container_id", id).Msg("sample collected")

Init must run before any other package logs; components hold a
log.WithComponent child logger rather than referencing log.Logger directly,
so a log line always carries its origin.
*/
package log
