// Package logging builds the zap logger shared by the CLI and the terminal UI.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const FileName = "quicktask.log"

type Options struct {
	// Root is the data directory; logs go to <Root>/logs. Empty disables the file.
	Root string
	// Level is a zap level name. Empty means info.
	Level string
	// Stderr also writes to stderr. The terminal UI leaves it off because it
	// owns the terminal.
	Stderr bool
}

// Path returns the log file location under root.
func Path(root string) string {
	return filepath.Join(root, "logs", FileName)
}

// New builds a production JSON logger.
func New(opts Options) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if s := strings.TrimSpace(opts.Level); s != "" {
		parsed, err := zapcore.ParseLevel(s)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", s, err)
		}
		level = parsed
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(level)
	config.OutputPaths = nil
	config.ErrorOutputPaths = nil
	if opts.Root != "" {
		path := Path(opts.Root)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		config.OutputPaths = append(config.OutputPaths, path)
		config.ErrorOutputPaths = append(config.ErrorOutputPaths, path)
	}
	if opts.Stderr {
		config.OutputPaths = append(config.OutputPaths, "stderr")
		config.ErrorOutputPaths = append(config.ErrorOutputPaths, "stderr")
	}
	if len(config.OutputPaths) == 0 {
		return zap.NewNop(), nil
	}

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
