package watch

import (
	"crypto/sha256"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/resumely/cvsync/internal/debounce"
	"github.com/resumely/cvsync/internal/types"
)

// Target receives documents read from the watched file.
type Target interface {
	ReplaceDocument(doc types.Document)
}

// Config holds mirror configuration.
type Config struct {
	// Debounce collapses bursts of writes from a single save.
	Debounce time.Duration

	// LoadInitial applies the file once on Start if it exists.
	LoadInitial bool

	// Clock drives the debounce timer. Nil means the wall clock.
	Clock clock.Clock

	// Logger for mirror activity. Nil discards output.
	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{Debounce: 300 * time.Millisecond, LoadInitial: true}
}

// Mirror applies a JSON or YAML document file to a Target whenever the file
// changes. Unparseable saves are logged and skipped so a half-written file
// never clobbers the session. Saves that do not change the file content are
// ignored.
type Mirror struct {
	target   Target
	watcher  *FileWatcher
	debounce *debounce.Debouncer
	logger   *zap.Logger
	initial  bool

	mu       sync.Mutex
	path     string
	lastHash [sha256.Size]byte
	applied  int
	lastErr  error

	wg sync.WaitGroup
}

// NewMirror creates a mirror. A nil config means DefaultConfig().
func NewMirror(target Target, config *Config) (*Mirror, error) {
	if config == nil {
		config = DefaultConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	fw, err := NewFileWatcher()
	if err != nil {
		return nil, err
	}
	return &Mirror{
		target:   target,
		watcher:  fw,
		debounce: debounce.New(config.Clock, config.Debounce),
		logger:   logger.Named("watch"),
		initial:  config.LoadInitial,
	}, nil
}

// Start watches path and, if configured, applies its current content.
func (m *Mirror) Start(path string) error {
	if !types.IsDocumentFile(path) {
		return fmt.Errorf("unsupported document file %s: want .json, .yaml or .yml", path)
	}
	if err := m.watcher.Start(path); err != nil {
		return err
	}
	m.mu.Lock()
	m.path = m.watcher.Path()
	m.mu.Unlock()

	if m.initial {
		if _, err := os.Stat(m.path); err == nil {
			m.apply()
		}
	}

	m.wg.Add(1)
	go m.loop()
	m.logger.Info("watching document file", zap.String("path", m.path))
	return nil
}

// Stop stops watching. A pending debounced apply is dropped.
func (m *Mirror) Stop() error {
	m.debounce.Stop()
	err := m.watcher.Stop()
	m.wg.Wait()
	return err
}

// Applied returns how many times the file was applied and the last read or
// parse error, if any.
func (m *Mirror) Applied() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applied, m.lastErr
}

func (m *Mirror) loop() {
	defer m.wg.Done()

	events, errs := m.watcher.Events(), m.watcher.Errors()
	for events != nil || errs != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Op == OpDelete {
				m.logger.Debug("document file removed, keeping session state", zap.String("path", ev.Path))
				continue
			}
			m.debounce.Schedule(m.apply)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			m.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (m *Mirror) apply() {
	m.mu.Lock()
	path := m.path
	m.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		m.fail(fmt.Errorf("failed to read document file %s: %w", path, err))
		return
	}
	sum := sha256.Sum256(data)

	m.mu.Lock()
	unchanged := m.applied > 0 && sum == m.lastHash
	m.mu.Unlock()
	if unchanged {
		return
	}

	doc, err := types.DecodeDocument(path, data)
	if err != nil {
		m.fail(fmt.Errorf("failed to parse document file %s: %w", path, err))
		return
	}

	m.target.ReplaceDocument(*doc)

	m.mu.Lock()
	m.lastHash = sum
	m.applied++
	m.lastErr = nil
	m.mu.Unlock()
	m.logger.Info("applied document file", zap.String("path", path))
}

func (m *Mirror) fail(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
	m.logger.Warn("skipping document file change", zap.Error(err))
}
