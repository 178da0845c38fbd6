// 配置文件变更监听器实现。
//
// 轮询配置文件的修改时间与大小，防抖后重新加载并回调。
package config

import (
	"context"
	"os"
	"reflect"
	"sync"
	"time"

	"go.uber.org/zap"
)

// --- 监听器类型定义 ---

// ReloadFunc 在配置成功重新加载后被调用
type ReloadFunc func(old, current *Config)

// Watcher 监听单个配置文件，变更后按 默认值 → YAML → 环境变量 重新加载。
// 加载或校验失败时保留旧配置。
type Watcher struct {
	mu sync.RWMutex

	path          string
	pollInterval  time.Duration
	debounceDelay time.Duration

	current   *Config
	callbacks []ReloadFunc

	lastMod  time.Time
	lastSize int64

	logger *zap.Logger
}

// WatcherOption configures the Watcher
type WatcherOption func(*Watcher)

// WithPollInterval sets how often the file is stat'ed
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// WithDebounceDelay sets how long the file must stay unchanged before reloading
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d >= 0 {
			w.debounceDelay = d
		}
	}
}

// NewWatcher creates a watcher for path; initial is the configuration
// currently in effect.
func NewWatcher(path string, initial *Config, logger *zap.Logger, opts ...WatcherOption) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Watcher{
		path:          path,
		pollInterval:  time.Second,
		debounceDelay: 200 * time.Millisecond,
		current:       initial,
		logger:        logger.With(zap.String("component", "config_watcher")),
	}
	for _, opt := range opts {
		opt(w)
	}
	if info, err := os.Stat(path); err == nil {
		w.lastMod, w.lastSize = info.ModTime(), info.Size()
	}
	return w
}

// OnReload registers a callback for successful reloads
func (w *Watcher) OnReload(fn ReloadFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// Current returns the configuration currently in effect
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Run polls until ctx is done. It always returns ctx.Err().
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.logger.Info("config watcher started",
		zap.String("path", w.path),
		zap.Duration("poll_interval", w.pollInterval))

	var pendingSince time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if w.changed() {
				pendingSince = now
				continue
			}
			if !pendingSince.IsZero() && now.Sub(pendingSince) >= w.debounceDelay {
				pendingSince = time.Time{}
				if err := w.Reload(); err != nil {
					w.logger.Warn("config reload failed, keeping previous config", zap.Error(err))
				}
			}
		}
	}
}

// changed reports whether the file differs from the last observation.
func (w *Watcher) changed() bool {
	info, err := os.Stat(w.path)
	if err != nil {
		return false
	}
	if info.ModTime().Equal(w.lastMod) && info.Size() == w.lastSize {
		return false
	}
	w.lastMod, w.lastSize = info.ModTime(), info.Size()
	return true
}

// Reload loads and validates the file immediately and notifies callbacks.
func (w *Watcher) Reload() error {
	cfg, err := NewLoader().WithConfigPath(w.path).Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	w.mu.Lock()
	old := w.current
	w.current = cfg
	callbacks := make([]ReloadFunc, len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	w.logger.Info("config reloaded",
		zap.String("path", w.path),
		zap.Strings("restart_required", RestartRequired(old, cfg)))

	for _, fn := range callbacks {
		fn(old, cfg)
	}
	return nil
}

// RestartRequired lists the sections that differ between old and current
// and only take effect after a restart. Only log.level is applied live.
func RestartRequired(old, current *Config) []string {
	if old == nil || current == nil {
		return nil
	}
	var out []string
	sections := []struct {
		name     string
		old, cur any
	}{
		{"server", old.Server, current.Server},
		{"providers", old.Providers, current.Providers},
		{"generation", old.Generation, current.Generation},
		{"telemetry", old.Telemetry, current.Telemetry},
	}
	for _, s := range sections {
		if !reflect.DeepEqual(s.old, s.cur) {
			out = append(out, s.name)
		}
	}
	oldLog, curLog := old.Log, current.Log
	oldLog.Level, curLog.Level = "", ""
	if !reflect.DeepEqual(oldLog, curLog) {
		out = append(out, "log")
	}
	return out
}
