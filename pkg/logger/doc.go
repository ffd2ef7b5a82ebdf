// Package logger provides a structured logging interface for coursevault.
//
// It wraps the zerolog library to provide a clean, easy-to-use API with support for:
// - Multiple log levels (Debug, Info, Warn, Error, Fatal)
// - Structured logging with fields
// - Pretty console output with colors
// - Optional file output alongside the console
// - Context support for request tracing
// - Global logger instance for easy access
//
// Basic Usage:
//
//	import "coursevault/pkg/logger"
//
//	// Initialize the global logger
//	cfg := &config.LoggingConfig{
//	    Level: "info",
//	    File: "coursevault.log",
//	}
//	err := logger.Initialize(cfg)
//
//	// Use the global logger
//	logger.Info("Session started")
//	logger.WithField("course", "go-basics").Info("Course resumed")
//	logger.WithError(err).Error("Failed to download unit")
//
// Advanced Usage:
//
//	// Create a logger instance with fields
//	log := logger.GetLogger().
//	    WithField("component", "archiver").
//	    WithField("course_id", "1234")
//
//	// Use structured logging
//	log.InfoWithFields("Unit completed", map[string]interface{}{
//	    "unit":     "closures",
//	    "size":     1024000,
//	    "duration": time.Second * 5,
//	})
//
// Components receive their logger through a logger.Logger field rather than
// reaching for the global, which keeps them testable with NewNopLogger.
package logger
