package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/iudanet/meetsync/internal/event"
)

// reloadDebounce пауза после последнего события файла перед перечитыванием
const reloadDebounce = 100 * time.Millisecond

// Loader читает конфигурацию и перечитывает ее при изменении файла
type Loader struct {
	watcher  *fsnotify.Watcher
	config   *Config
	changes  *event.Subject[*Config]
	logger   *slog.Logger
	done     chan struct{}
	path     string
	wg       sync.WaitGroup
	mu       sync.RWMutex
	debounce time.Duration
}

// NewLoader создает загрузчик для файла path
func NewLoader(path string, logger *slog.Logger) *Loader {
	return &Loader{
		path:     path,
		logger:   logger,
		changes:  event.NewSubject[*Config](),
		done:     make(chan struct{}),
		debounce: reloadDebounce,
	}
}

// Load читает и проверяет конфигурацию
func (l *Loader) Load() (*Config, error) {
	cfg, err := Load(l.path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	l.mu.Lock()
	l.config = cfg
	l.mu.Unlock()
	return cfg, nil
}

// Config возвращает последнюю успешно загруженную конфигурацию
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config
}

// OnChange подписывает fn на успешные перезагрузки
func (l *Loader) OnChange(fn func(*Config)) event.Unsubscribe {
	return l.changes.Subscribe(fn)
}

// Watch следит за каталогом файла конфигурации. Некорректный файл
// логируется и не заменяет текущую конфигурацию.
func (l *Loader) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	// следим за каталогом: редакторы часто заменяют файл целиком
	if err := watcher.Add(filepath.Dir(l.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch directory: %w", err)
	}
	l.watcher = watcher

	l.wg.Add(1)
	go l.watchLoop()
	return nil
}

func (l *Loader) watchLoop() {
	defer l.wg.Done()

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-l.done:
			return

		case ev, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != filepath.Base(l.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(l.debounce, l.reload)

		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.Warn("Config watcher error", "error", err)
		}
	}
}

func (l *Loader) reload() {
	cfg, err := l.Load()
	if err != nil {
		l.logger.Error("Failed to reload config", "path", l.path, "error", err)
		return
	}
	l.logger.Info("Config reloaded", "path", l.path, "log_level", cfg.Logging.Level)
	l.changes.Publish(cfg)
}

// Close останавливает наблюдение
func (l *Loader) Close() error {
	select {
	case <-l.done:
		return nil
	default:
		close(l.done)
	}
	var err error
	if l.watcher != nil {
		err = l.watcher.Close()
	}
	l.wg.Wait()
	return err
}
