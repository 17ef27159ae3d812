// Package config loads the node's startup configuration the way the
// teacher repo does: viper layered over a config file, environment
// variables, and pflag command-line flags, decoded into a typed struct.
// WatchSearchPaths additionally fsnotify-watches that file so an edit to
// node.search_paths can be picked up by a running node.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the full set of recognized startup options (spec.md section
// 8's "recognized options" plus this expansion's ambient/domain additions).
type Config struct {
	Node      NodeConfig      `mapstructure:"node"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Socket    SocketConfig    `mapstructure:"socket"`
	CmdBus    CmdBusConfig    `mapstructure:"cmdbus"`
	Admin     AdminConfig     `mapstructure:"admin"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Bootstrap []BootstrapSvc  `mapstructure:"bootstrap"`

	// Path is the config file Load read from, if any — empty when the node
	// ran on defaults/flags/env alone. Kept so WatchSearchPaths knows what
	// to watch; never populated from the file itself.
	Path string `mapstructure:"-"`
}

// NodeConfig covers process-level identity and the module search path
// (the original's cservice_path).
type NodeConfig struct {
	Name          string   `mapstructure:"name"`
	SearchPaths   []string `mapstructure:"search_paths"`
	PIDFile       string   `mapstructure:"pid_file"`
	DefaultProfiling bool  `mapstructure:"default_profiling"`
}

// SchedulerConfig sizes the worker pool.
type SchedulerConfig struct {
	Workers int `mapstructure:"workers"`
}

// LoggingConfig drives internal/logging's slog + lumberjack + fsnotify
// wiring.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Dir        string `mapstructure:"dir"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// SocketConfig holds socket settings. The reactor does not read MaxSockets;
// its slot table is fixed at 65536 entries.
type SocketConfig struct {
	MaxSockets int `mapstructure:"max_sockets"`
}

// CmdBusConfig wires the AMQP external command transport.
type CmdBusConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	URL      string        `mapstructure:"url"`
	Exchange string        `mapstructure:"exchange"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// AdminConfig is the gRPC admin surface's listen address.
type AdminConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// HTTPConfig is the HTTP introspection plane's listen address.
type HTTPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// BootstrapSvc is one service this node creates automatically at startup,
// before the admin/HTTP/AMQP surfaces accept external LAUNCH requests.
type BootstrapSvc struct {
	Module string `mapstructure:"module"`
	Name   string `mapstructure:"name"`
	Args   string `mapstructure:"args"`
}

// Load builds a Config from (in ascending priority) built-in defaults, the
// file at path (if non-empty), ACTOR_-prefixed environment variables, and
// flags already parsed into fs.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("actor")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("config: bind flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.Path = path
	return &cfg, nil
}

// WatchSearchPaths watches the directory containing path (empty path is a
// no-op, returning a nil, nil Closer) and, on every write to that file,
// re-reads node.search_paths and hands the fresh list to onChange — so
// editing the config file's cservice_path entries re-resolves future
// LAUNCH/create() lookups without a node restart. The returned Closer stops
// the watcher goroutine.
func WatchSearchPaths(path string, log *slog.Logger, onChange func([]string)) (io.Closer, error) {
	if path == "" {
		return nil, nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}

	abs := filepath.Clean(path)
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				paths, err := reloadSearchPaths(path)
				if err != nil {
					log.Warn("config reload failed", "err", err)
					continue
				}
				onChange(paths)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn("config watch error", "err", err)
			}
		}
	}()
	return w, nil
}

func reloadSearchPaths(path string) ([]string, error) {
	v := viper.New()
	v.SetDefault("node.search_paths", []string{"?"})
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var paths []string
	if err := v.UnmarshalKey("node.search_paths", &paths); err != nil {
		return nil, fmt.Errorf("decode node.search_paths: %w", err)
	}
	return paths, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("node.name", "actor-node")
	v.SetDefault("node.search_paths", []string{"?"})
	v.SetDefault("node.pid_file", "")
	v.SetDefault("node.default_profiling", false)

	v.SetDefault("scheduler.workers", 8)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.dir", "./log")
	v.SetDefault("logging.max_size_mb", 64)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 14)
	v.SetDefault("logging.compress", true)

	v.SetDefault("socket.max_sockets", 65536)

	v.SetDefault("cmdbus.enabled", false)
	v.SetDefault("cmdbus.exchange", "actor.cmd")
	v.SetDefault("cmdbus.timeout", 5*time.Second)

	v.SetDefault("admin.enabled", true)
	v.SetDefault("admin.addr", ":7000")

	v.SetDefault("http.enabled", true)
	v.SetDefault("http.addr", ":7001")
}

// Flags returns the pflag set the "run" CLI command exposes, mirroring the
// viper key names so binding is direct.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("actor-node", pflag.ContinueOnError)
	fs.String("node.name", "actor-node", "node name")
	fs.Int("scheduler.workers", 8, "scheduler worker count")
	fs.String("logging.level", "info", "log level (debug|info|warn|error)")
	fs.String("logging.dir", "./log", "per-service log directory")
	fs.String("admin.addr", ":7000", "admin gRPC listen address")
	fs.String("http.addr", ":7001", "HTTP introspection listen address")
	return fs
}
