package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// --- Constructor ---

func TestNewWatcher_Defaults(t *testing.T) {
	f := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, f, "log:\n  level: info\n")

	initial := DefaultConfig()
	w := NewWatcher(f, initial, nil)

	assert.Same(t, initial, w.Current())
	assert.Equal(t, time.Second, w.pollInterval)
	assert.Equal(t, 200*time.Millisecond, w.debounceDelay)
	assert.False(t, w.lastMod.IsZero())
}

func TestNewWatcher_MissingFile(t *testing.T) {
	w := NewWatcher(filepath.Join(t.TempDir(), "absent.yaml"), DefaultConfig(), zap.NewNop(),
		WithPollInterval(10*time.Millisecond),
		WithDebounceDelay(0),
	)
	assert.True(t, w.lastMod.IsZero())
	assert.Equal(t, 10*time.Millisecond, w.pollInterval)
	assert.Zero(t, w.debounceDelay)
}

// --- Reload ---

func TestWatcher_Reload(t *testing.T) {
	f := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, f, "log:\n  level: info\n")

	w := NewWatcher(f, DefaultConfig(), zap.NewNop())

	var gotOld, gotNew *Config
	w.OnReload(func(old, current *Config) {
		gotOld, gotNew = old, current
	})

	writeConfig(t, f, "log:\n  level: debug\ngeneration:\n  default_engine: gemini\n")
	require.NoError(t, w.Reload())

	require.NotNil(t, gotNew)
	assert.Equal(t, "info", gotOld.Log.Level)
	assert.Equal(t, "debug", gotNew.Log.Level)
	assert.Equal(t, "gemini", w.Current().Generation.DefaultEngine)
}

func TestWatcher_ReloadInvalidKeepsPrevious(t *testing.T) {
	f := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, f, "log:\n  level: info\n")

	initial := DefaultConfig()
	w := NewWatcher(f, initial, zap.NewNop())
	called := false
	w.OnReload(func(_, _ *Config) { called = true })

	writeConfig(t, f, "log:\n  level: verbose\n")
	assert.Error(t, w.Reload())

	writeConfig(t, f, "server: [not, a, map")
	assert.Error(t, w.Reload())

	assert.False(t, called)
	assert.Same(t, initial, w.Current())
}

// --- Run ---

func TestWatcher_RunDetectsChange(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, f, "log:\n  level: info\n")

	w := NewWatcher(f, DefaultConfig(), zap.NewNop(),
		WithPollInterval(10*time.Millisecond),
		WithDebounceDelay(0),
	)

	var (
		mu     sync.Mutex
		levels []string
	)
	w.OnReload(func(_, current *Config) {
		mu.Lock()
		defer mu.Unlock()
		levels = append(levels, current.Log.Level)
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// 不同长度保证即使 mtime 精度较粗也能检测到变更
	writeConfig(t, f, "log:\n  level: warn\n  format: json\n")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(levels) > 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.True(t, errors.Is(<-done, context.Canceled))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "warn", levels[0])
	assert.Equal(t, "warn", w.Current().Log.Level)
}

// --- RestartRequired ---

func TestRestartRequired(t *testing.T) {
	base := DefaultConfig()

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   []string
	}{
		{name: "unchanged", mutate: func(c *Config) {}, want: nil},
		{name: "log level only", mutate: func(c *Config) { c.Log.Level = "debug" }, want: nil},
		{name: "log format", mutate: func(c *Config) { c.Log.Format = "console" }, want: []string{"log"}},
		{name: "provider key", mutate: func(c *Config) { c.Providers.Flux.APIKey = "k" }, want: []string{"providers"}},
		{
			name: "server and poll",
			mutate: func(c *Config) {
				c.Server.HTTPPort = 9000
				c.Generation.Poll.MaxAttempts = 3
			},
			want: []string{"server", "generation"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := DefaultConfig()
			tt.mutate(next)
			assert.Equal(t, tt.want, RestartRequired(base, next))
		})
	}

	assert.Nil(t, RestartRequired(nil, base))
}
