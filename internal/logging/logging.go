// Package logging builds the structured logger shrtool and its
// subcommands use, following the console-encoder-with-color-when-a-tty
// convention shared across the rest of the stack.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

// Config selects the minimum level shrtool logs at.
type Config struct {
	Level zapcore.Level
}

// Init builds a *zap.SugaredLogger writing to stderr, with colorized
// level names when stderr is an interactive terminal.
func Init(cfg Config) (*zap.SugaredLogger, error) {
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	if term.IsTerminal(int(os.Stderr.Fd())) {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	zcfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(cfg.Level),
		Encoding:         "console",
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: build: %w", err)
	}
	return logger.Sugar(), nil
}
