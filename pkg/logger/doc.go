// Package logger provides the structured logging interface used across followsweep.
//
// It wraps zerolog with a small interface so components can carry fields
// (subject account, attempt counters, durations) without depending on zerolog
// directly, and so tests can swap in NewNopLogger or NewTestLogger.
//
// Basic usage:
//
//	err := logger.Initialize(&cfg.Logging)
//	logger.WithField("subject", "alice").Info("Collection started")
//
// When LoggingConfig.Directory is set, a debug-YYYY-MM-DD_HH-00.log file is
// written next to console output and only the newest MaxBackups files are kept.
package logger
