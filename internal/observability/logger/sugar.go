package logger

import (
	"context"

	"go.uber.org/zap"
)

// S returns the singleton as a SugaredLogger for printf-style logging.
func S() *zap.SugaredLogger {
	return L().Sugar()
}

// SFrom extracts the context logger as a SugaredLogger.
func SFrom(ctx context.Context) *zap.SugaredLogger {
	return From(ctx).Sugar()
}
