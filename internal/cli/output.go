package cli

import (
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// zapCore writes human-readable debug logs to w, keeping stdout free for
// command output.
func zapCore(w io.Writer) zapcore.Core {
	enc := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	return zapcore.NewCore(enc, zapcore.AddSync(w), zap.DebugLevel)
}
