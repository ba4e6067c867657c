package msgstream

import (
	"go.uber.org/zap"
)

var logger = zap.NewNop()

// SetLogger installs the logger used by every stream in the package.
// Passing nil restores the no-op logger.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger = l
}

// NewProductionLogger builds the stdout/stderr production logger used by the CLI.
func NewProductionLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}
