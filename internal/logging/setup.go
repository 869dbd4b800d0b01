package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Config selects the level, format and destination of the service logger.
// Empty fields fall back to info, JSON and stderr.
type Config struct {
	Level  string
	Format string
	Output string
	// Fields are attached to every entry, typically service and version.
	Fields map[string]interface{}
}

var levelNames = map[string]LogLevel{
	"debug": DebugLevel,
	"info":  InfoLevel,
	"warn":  WarnLevel,
	"error": ErrorLevel,
	"fatal": FatalLevel,
}

var formatNames = map[string]Format{
	"json":    JSONFormat,
	"text":    TextFormat,
	"console": TextFormat,
}

// ParseLevel accepts a level name in any case. The empty string is info.
func ParseLevel(name string) (LogLevel, error) {
	if name == "" {
		return InfoLevel, nil
	}
	level, ok := levelNames[strings.ToLower(name)]
	if !ok {
		return "", fmt.Errorf("unknown log level %q", name)
	}
	return level, nil
}

// ParseFormat accepts json, text or console. The empty string is json.
func ParseFormat(name string) (Format, error) {
	if name == "" {
		return JSONFormat, nil
	}
	format, ok := formatNames[strings.ToLower(name)]
	if !ok {
		return "", fmt.Errorf("unknown log format %q", name)
	}
	return format, nil
}

// NewLogger builds the service logger. A nil config yields an info level
// JSON logger on stderr.
func NewLogger(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	format, err := ParseFormat(cfg.Format)
	if err != nil {
		return nil, err
	}
	out, err := openOutput(cfg.Output)
	if err != nil {
		return nil, err
	}

	logger := New(level, out).WithFormat(format)
	if len(cfg.Fields) > 0 {
		logger = logger.WithFields(cfg.Fields)
	}
	return logger, nil
}

// openOutput resolves stdout, stderr or a file path opened for append.
func openOutput(dest string) (io.Writer, error) {
	switch dest {
	case "", "stderr":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	}
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log output: %w", err)
	}
	return f, nil
}
