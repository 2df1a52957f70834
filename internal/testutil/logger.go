package testutil

import (
	"github.com/servorahq/servora/internal/logger"
	"go.uber.org/zap"
)

// NewTestLogger returns a logger that discards output; tests assert on
// behavior, not log lines.
func NewTestLogger() *logger.Logger {
	return &logger.Logger{SugaredLogger: zap.NewNop().Sugar()}
}
