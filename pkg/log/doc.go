/*
Package log provides structured logging built on zerolog: a global logger
configured once via Init, plus helpers that derive child loggers carrying
common context fields (agent_id, check_id, interval_s) so call sites don't
repeat them on every line.

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	agentLog := log.WithAgentID("agent-eu-west-1")
	agentLog.Info().Msg("agent started")

	wheelLog := log.WithInterval(5)
	wheelLog.Debug().Str("check_id", checkID).Msg("dispatching job")

JSONOutput controls JSON (production) vs. console (development) rendering;
Output defaults to os.Stdout. Level below the configured threshold is
dropped at zero cost, per zerolog's usual behavior.
*/
package log
