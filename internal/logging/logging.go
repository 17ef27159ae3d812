// Package logging builds the node's shared slog.Logger and the rotating
// per-service log sinks the LOG_ON runtime command attaches, backed by
// lumberjack for rotation and fsnotify so an external `logrotate` renaming
// or removing files in the log directory is picked up without a restart.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/webitel/actor-node/internal/config"
	"github.com/webitel/actor-node/internal/core"
)

// NewLogger builds the shared node-wide slog.Logger: JSON lines to stderr
// for operators, fanned out to an OpenTelemetry LoggerProvider so the same
// records reach whatever collector the deployment's SDK processors are
// configured to export to.
func NewLogger(cfg config.LoggingConfig) (*slog.Logger, func(context.Context) error) {
	level := parseLevel(cfg.Level)
	stderrHandler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})

	lp := sdklog.NewLoggerProvider()
	otelHandler := otelslog.NewHandler("actor-node", otelslog.WithLoggerProvider(lp))

	return slog.New(fanoutHandler{stderrHandler, otelHandler}), lp.Shutdown
}

// fanoutHandler dispatches every record to each wrapped handler in order,
// so the stderr operator stream and the OTel log pipeline never compete for
// a single handler's internal buffering.
type fanoutHandler []slog.Handler

func (f fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (f fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanoutHandler, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanoutHandler) WithGroup(name string) slog.Handler {
	out := make(fanoutHandler, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// fileSink is one open per-service log file, rotated by lumberjack.
type fileSink struct {
	lj *lumberjack.Logger
}

func (s *fileSink) Write(p []byte) (int, error) { return s.lj.Write(p) }
func (s *fileSink) Close() error                 { return s.lj.Close() }

// SinkFactory builds core.LogSinkFactory: LOG_ON's target log file, one
// per handle, living under cfg.Dir and rotated per cfg's size/backup/age
// policy. watcher may be nil, in which case only lumberjack's own
// size-triggered rotation applies.
func SinkFactory(cfg config.LoggingConfig, watcher *DirWatcher) core.LogSinkFactory {
	return func(h core.Handle) (core.LogSink, error) {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("logging: create log dir: %w", err)
		}
		path := filepath.Join(cfg.Dir, fmt.Sprintf("service-%s.log", strings.TrimPrefix(h.String(), ":")))
		lj := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		if watcher != nil {
			watcher.Register(lj)
		}
		return &fileSink{lj: lj}, nil
	}
}

// DirWatcher reopens every lumberjack sink registered with it whenever the
// log directory receives a rename or remove event (an external logrotate
// pass moving files out from under an already-open *os.File), since
// lumberjack only reopens on its own size-triggered rotation otherwise.
type DirWatcher struct {
	mu      sync.Mutex
	sinks   []*lumberjack.Logger
	watcher *fsnotify.Watcher
}

// NewDirWatcher starts watching dir for renames, returning a DirWatcher
// that Register accepts new sinks into as LOG_ON opens them.
func NewDirWatcher(dir string, log *slog.Logger) (*DirWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("logging: create watcher: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("logging: create log dir: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("logging: watch %s: %w", dir, err)
	}
	dw := &DirWatcher{watcher: w}
	go dw.run(log)
	return dw, nil
}

// Register adds lj to the set reopened on the next rename/remove event.
func (dw *DirWatcher) Register(lj *lumberjack.Logger) {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	dw.sinks = append(dw.sinks, lj)
}

func (dw *DirWatcher) run(log *slog.Logger) {
	for {
		select {
		case ev, ok := <-dw.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			dw.mu.Lock()
			for _, lj := range dw.sinks {
				if err := lj.Rotate(); err != nil {
					log.Warn("log sink reopen failed", "err", err)
				}
			}
			dw.mu.Unlock()
		case err, ok := <-dw.watcher.Errors:
			if !ok {
				return
			}
			log.Warn("log directory watch error", "err", err)
		}
	}
}

// Close stops the watcher goroutine.
func (dw *DirWatcher) Close() error { return dw.watcher.Close() }
