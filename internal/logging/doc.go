// Package logging builds the zap logger used by repoindex commands.
//
// Entries go to stderr, so command output on stdout stays machine-readable,
// and optionally to OpenTelemetry through the otelzap bridge. The console
// encoder masks fields named like credentials and any value shaped like an
// OpenAI, GitHub or Google key. Entries below error level are sampled.
//
// Library packages accept a *zap.Logger; commands build a *Logger and pass
// Underlying() down:
//
//	cfg, _ := logging.FromSettings(appCfg.Logging)
//	logger, err := logging.NewLogger(cfg, nil)
//	ctx = logging.WithRepo(logging.WithRunID(ctx, logging.NewRunID()), "facebook/react")
//	logger.Info(ctx, "indexing started", zap.Int("files", n))
package logging
