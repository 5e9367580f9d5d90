package broker

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/avkit/mediabroker/pkg/broker/util"
)

const (
	logDirectory = "logs"
	logFilename  = "mediabroker-latest-run.log"

	buildTypeRelease = "release"
)

// NewLogger provides a logger instance for the whole program. Release
// builds log to a file in the logs directory, everything else logs to
// stderr in a development-friendly format
func NewLogger(buildType string) (*zap.SugaredLogger, error) {
	var loggerConfig zap.Config

	if buildType == buildTypeRelease {
		if err := util.EnsureDirExists(logDirectory); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}

		loggerConfig = zap.NewProductionConfig()
		loggerConfig.OutputPaths = []string{filepath.Join(logDirectory, logFilename)}
		loggerConfig.Encoding = "console"
	} else {
		loggerConfig = zap.NewDevelopmentConfig()
		loggerConfig.OutputPaths = []string{"stderr"}
	}

	// all build types get the same humanly-readable timestamps and fields
	loggerConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	loggerConfig.EncoderConfig.EncodeCaller = nil
	loggerConfig.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	logger, err := loggerConfig.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		return nil, fmt.Errorf("build zap logger: %w", err)
	}

	return logger.Sugar(), nil
}
