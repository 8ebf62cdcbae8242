package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadOptions 热更新配置
type ReloadOptions struct {
	Enabled  bool          // 是否启用热更新
	Cooldown time.Duration // 冷却时间，避免频繁更新
}

// DefaultReloadOptions 默认热更新配置
func DefaultReloadOptions() ReloadOptions {
	return ReloadOptions{
		Enabled:  true,
		Cooldown: 5 * time.Second,
	}
}

// Reloader 监听配置文件变化，校验通过后交给回调应用。
type Reloader struct {
	opts       ReloadOptions
	configPath string
	watcher    *fsnotify.Watcher
	onReload   func(AppConfig) error
	lastReload time.Time
	mu         sync.Mutex
	stopChan   chan struct{}
	doneChan   chan struct{}
}

// NewReloader 创建热更新器；onReload 收到的配置已通过 Validate。
func NewReloader(configPath string, opts ReloadOptions, onReload func(AppConfig) error) (*Reloader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	return &Reloader{
		opts:       opts,
		configPath: configPath,
		watcher:    watcher,
		onReload:   onReload,
		stopChan:   make(chan struct{}),
		doneChan:   make(chan struct{}),
	}, nil
}

// Start 启动监听
func (r *Reloader) Start(ctx context.Context) error {
	if !r.opts.Enabled {
		return nil
	}
	if err := r.watcher.Add(r.configPath); err != nil {
		return fmt.Errorf("failed to watch config file: %w", err)
	}
	go r.watch(ctx)
	return nil
}

// Stop 停止监听
func (r *Reloader) Stop() error {
	if !r.opts.Enabled {
		if r.watcher != nil {
			return r.watcher.Close()
		}
		return nil
	}
	select {
	case <-r.stopChan:
	default:
		close(r.stopChan)
	}
	select {
	case <-r.doneChan:
	case <-time.After(1 * time.Second):
		// watch goroutine 可能尚未启动
	}
	if r.watcher != nil {
		return r.watcher.Close()
	}
	return nil
}

// LastReloadTime 返回最近一次成功重载的时间。
func (r *Reloader) LastReloadTime() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastReload
}

func (r *Reloader) watch(ctx context.Context) {
	defer close(r.doneChan)
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopChan:
			return
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Write == fsnotify.Write ||
				event.Op&fsnotify.Create == fsnotify.Create {
				r.handleChange()
			}
		case _, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			// 记录错误但继续监听
		}
	}
}

func (r *Reloader) handleChange() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if time.Since(r.lastReload) < r.opts.Cooldown {
		return
	}
	cfg, err := LoadWithEnvOverrides(r.configPath)
	if err != nil {
		return
	}
	if r.onReload != nil {
		if err := r.onReload(cfg); err != nil {
			return
		}
	}
	r.lastReload = time.Now()
}
