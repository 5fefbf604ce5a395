package runner

import (
	"io"
	"log/slog"

	"github.com/agent-racer/sessionizer/internal/logger"
)

func newTestLogger(w io.Writer) *slog.Logger {
	return logger.New(
		logger.WithOutput(w),
		logger.WithFormat(logger.FormatText),
		logger.WithLevel(slog.LevelDebug),
	)
}
