package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

type options struct {
	level slog.Leveler
	file  *lumberjack.Logger
}

// Option customises Setup.
type Option func(*options)

// WithLevel sets the minimum level emitted.
func WithLevel(level slog.Leveler) Option {
	return func(o *options) { o.level = level }
}

// WithFile mirrors every log line into a size-rotated file at path. An empty
// path leaves output on stdout only.
func WithFile(path string) Option {
	return func(o *options) {
		path = strings.TrimSpace(path)
		if path == "" {
			return
		}
		o.file = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		}
	}
}

var (
	fileMu     sync.Mutex
	activeFile *lumberjack.Logger
)

// Setup configures the standard library logger to emit structured JSON and returns
// the underlying slog.Logger for richer logging within the service. All log lines
// include the service name and environment when provided.
func Setup(service, env string, opts ...Option) *slog.Logger {
	cfg := options{level: slog.LevelInfo}
	for _, opt := range opts {
		opt(&cfg)
	}
	return slog.New(newHandler(stdoutWriter(cfg), cfg.level)).With(serviceAttrs(service, env)...)
}

// newHandler builds the JSON handler with the field names expected by the
// log pipeline.
func newHandler(w io.Writer, level slog.Leveler) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		AddSource: false,
		Level:     level,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			if attr.Key == slog.TimeKey {
				return slog.Attr{Key: "timestamp", Value: attr.Value}
			}
			if attr.Key == slog.LevelKey {
				level := strings.ToUpper(attr.Value.String())
				return slog.String("severity", level)
			}
			if attr.Key == slog.MessageKey {
				return slog.Attr{Key: "message", Value: attr.Value}
			}
			return attr
		},
	})
}

func serviceAttrs(service, env string) []any {
	attrs := []any{slog.String("service", strings.TrimSpace(service))}
	if env = strings.TrimSpace(env); env != "" {
		attrs = append(attrs, slog.String("env", env))
	}
	return attrs
}

func stdoutWriter(cfg options) io.Writer {
	var out io.Writer = os.Stdout
	fileMu.Lock()
	if activeFile != nil {
		_ = activeFile.Close()
		activeFile = nil
	}
	if cfg.file != nil {
		activeFile = cfg.file
		out = io.MultiWriter(os.Stdout, cfg.file)
	}
	fileMu.Unlock()
	return out
}

// Install makes logger the process default and bridges the standard library
// logger onto it so existing packages continue to work.
func Install(logger *slog.Logger) {
	slog.SetDefault(logger)
	stdBridge := slog.NewLogLogger(logger.Handler(), slog.LevelInfo)
	stdBridge.SetFlags(0)
	log.SetOutput(stdBridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")
}

// Close flushes and closes the rotating log file, if any.
func Close() error {
	fileMu.Lock()
	defer fileMu.Unlock()
	if activeFile == nil {
		return nil
	}
	err := activeFile.Close()
	activeFile = nil
	return err
}

// ParseLevel maps a textual level onto slog; unknown values fall back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
