// Package logger provides structured logging for rowquery using zerolog.
//
// It supports JSON and console output, level configuration, component-scoped
// loggers and context-carried ids (request id, query id).
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//	  output: "stderr"
//
// # Usage
//
//	logger.Init(&cfg.Logging)
//	log := logger.WithComponent("query")
//	log.Debug("sort stage materialized", logger.Fields("rows", 42))
package logger
