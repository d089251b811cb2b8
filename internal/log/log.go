/**
 * Logger Construction.
 *
 * Builds the single zap.Logger threaded through the container at
 * startup. No package in this tree reaches for the global zap logger
 * or the standard library log package directly.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production-style JSON logger, or a human-readable
// console logger when debug is true.
func New(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	cfg.DisableStacktrace = true
	return cfg.Build()
}
