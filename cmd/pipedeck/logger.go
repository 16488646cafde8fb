package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/npratt/pipedeck/internal/config"
)

// FileLoggerResult contains the results of setting up file logging.
type FileLoggerResult struct {
	Logger   *slog.Logger
	LogFile  io.WriteCloser
	FilePath string
}

// Close closes the log file if it was opened.
func (r *FileLoggerResult) Close() error {
	if r.LogFile != nil {
		return r.LogFile.Close()
	}
	return nil
}

// SetupFileLogger creates a JSON logger writing to a rotating file at path.
// When tee is non-nil every record is also written there; serve passes
// stderr unless the watch view owns the terminal.
func SetupFileLogger(path string, level slog.Leveler, rotationCfg config.LogRotationConfig, tee io.Writer) (*FileLoggerResult, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	logWriter := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    rotationCfg.MaxSizeMB,
		MaxBackups: rotationCfg.MaxBackups,
		MaxAge:     rotationCfg.MaxAgeDays,
		Compress:   rotationCfg.Compress,
	}

	var out io.Writer = logWriter
	if tee != nil {
		out = io.MultiWriter(logWriter, tee)
	}

	return &FileLoggerResult{
		Logger:   NewLogger(out, level),
		LogFile:  logWriter,
		FilePath: path,
	}, nil
}

// NewLogger creates the JSON logger used by every command.
func NewLogger(w io.Writer, level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}
