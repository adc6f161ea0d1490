package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/alejandrodnm/updownbot/internal/metrics"
)

const defaultDebounce = 200 * time.Millisecond

// Watcher recarga el archivo de configuración cuando cambia en disco y entrega
// la nueva versión al callback. Una configuración inválida se descarta y se
// mantiene la anterior.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onReload func(*Config)
	debounce time.Duration
}

// NewWatcher crea el watcher. Se vigila el directorio para no perder los
// cambios de editores que reemplazan el archivo con un rename.
func NewWatcher(path string, onReload func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config.NewWatcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("config.NewWatcher: watch %q: %w", path, err)
	}
	return &Watcher{
		path:     filepath.Clean(path),
		watcher:  fw,
		onReload: onReload,
		debounce: defaultDebounce,
	}, nil
}

// Run procesa eventos hasta que ctx se cancela. Varias escrituras seguidas
// producen una sola recarga.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(w.debounce)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("config: watcher error", "err", err)

		case <-timer.C:
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		metrics.ConfigReloads.WithLabelValues("error").Inc()
		slog.Warn("config: reload rejected, keeping previous config", "path", w.path, "err", err)
		return
	}
	metrics.ConfigReloads.WithLabelValues("ok").Inc()
	slog.Info("config: reloaded", "path", w.path,
		"cost_per_pair_max", cfg.Trading.CostPerPairMax,
		"cooldown_seconds", cfg.Trading.CooldownSeconds,
	)
	if w.onReload != nil {
		w.onReload(cfg)
	}
}
