// Package logging builds the shared *zap.Logger that cmd/node and the
// default (log-only) callback implementation use.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a production zap.Logger (JSON, info level) unless debug is
// set, in which case it returns a development logger (console-encoded,
// debug level) — the same split the sibling services in this codebase's
// corpus make between local runs and deployed ones.
func New(debug bool) (*zap.Logger, error) {
	if debug {
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		return cfg.Build()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	return cfg.Build()
}
