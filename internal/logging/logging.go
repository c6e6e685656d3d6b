// Package logging configures the global zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileName is the rotating log file inside the log directory.
const FileName = "techrank.log"

// Options controls Init.
type Options struct {
	Verbose bool
	// Dir overrides the log directory. When empty, TECHRANK_LOG_DIR, then
	// LOGS_FOLDER, then <binary dir>/logs are used.
	Dir string
	// Console is where human-readable output goes; defaults to os.Stderr.
	Console io.Writer
}

// Init sets the global logger with two sinks: the console and a rotating
// file. It returns the log file path.
func Init(opts Options) (string, error) {
	// 1. Load .env from the binary directory; Init runs before config.Load.
	exePath, exeErr := os.Executable()
	if exeErr == nil {
		_ = godotenv.Load(filepath.Join(filepath.Dir(exePath), ".env"))
	}

	// 2. Level
	level := zerolog.InfoLevel
	if opts.Verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	// 3. Console writer, coloured only on a terminal
	console := opts.Console
	noColor := true
	if console == nil {
		console = os.Stderr
		noColor = !(isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()))
	}
	consoleWriter := zerolog.ConsoleWriter{
		Out:        console,
		TimeFormat: time.RFC3339,
		NoColor:    noColor,
	}

	// 4. Rotating file writer
	logDir := resolveDir(opts.Dir, exePath, exeErr)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create log directory %q: %w", logDir, err)
	}
	probe := filepath.Join(logDir, ".write-test")
	if err := os.WriteFile(probe, []byte("test"), 0644); err != nil {
		return "", fmt.Errorf("log directory %q is not writable: %w", logDir, err)
	}
	_ = os.Remove(probe)

	logFile := filepath.Join(logDir, FileName)
	fileWriter := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    16, // megabytes
		MaxBackups: 8,
		MaxAge:     90, // days
		Compress:   true,
	}

	// 5. Global logger
	log.Logger = zerolog.New(zerolog.MultiLevelWriter(consoleWriter, fileWriter)).
		With().
		Timestamp().
		Str("service", "techrank").
		Logger()
	return logFile, nil
}

func resolveDir(dir, exePath string, exeErr error) string {
	for _, candidate := range []string{dir, os.Getenv("TECHRANK_LOG_DIR"), os.Getenv("LOGS_FOLDER")} {
		if candidate != "" {
			return candidate
		}
	}
	if exeErr == nil {
		return filepath.Join(filepath.Dir(exePath), "logs")
	}
	return "logs"
}
