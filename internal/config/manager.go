package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ChangeEvent represents a configuration change event.
type ChangeEvent struct {
	File      string                 `json:"file"`
	Action    string                 `json:"action"` // create, modify, delete
	Config    map[string]interface{} `json:"config"`
	Timestamp time.Time              `json:"timestamp"`
}

// ChangeHandler is called when a watched configuration file changes.
type ChangeHandler func(event ChangeEvent) error

// Manager watches a configuration directory and hot-reloads yaml/json files.
// Rego policy files trigger registered policy reload hooks instead of the
// generic handlers.
type Manager struct {
	configDir      string
	configs        map[string]map[string]interface{}
	handlers       map[string][]ChangeHandler
	validators     map[string]func(map[string]interface{}) error
	policyHandlers []func() error
	watcher        *fsnotify.Watcher
	started        bool
	stopCh         chan struct{}
	logger         *zap.Logger
	mu             sync.RWMutex
}

// NewManager creates a configuration manager for the given directory.
func NewManager(configDir string, logger *zap.Logger) (*Manager, error) {
	if configDir == "" {
		return nil, fmt.Errorf("config directory cannot be empty")
	}
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, fmt.Errorf("create config directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	return &Manager{
		configDir:  configDir,
		configs:    make(map[string]map[string]interface{}),
		handlers:   make(map[string][]ChangeHandler),
		validators: make(map[string]func(map[string]interface{}) error),
		watcher:    watcher,
		stopCh:     make(chan struct{}),
		logger:     logger,
	}, nil
}

// Start loads the directory and begins watching for changes. The context is
// reserved for future cancellation of the initial load.
func (m *Manager) Start(_ context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	if err := m.watcher.Add(m.configDir); err != nil {
		return fmt.Errorf("watch config directory: %w", err)
	}
	if err := m.loadAll(); err != nil {
		return fmt.Errorf("load initial configs: %w", err)
	}

	m.mu.Lock()
	m.started = true
	loaded := len(m.configs)
	m.mu.Unlock()

	go m.watchLoop()

	m.logger.Info("Configuration manager started",
		zap.String("config_dir", m.configDir),
		zap.Int("loaded_configs", loaded),
	)
	return nil
}

// Stop stops watching for configuration changes.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return nil
	}
	close(m.stopCh)
	m.started = false
	return m.watcher.Close()
}

// RegisterHandler registers a change handler for a configuration file name.
func (m *Manager) RegisterHandler(filename string, handler ChangeHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[filename] = append(m.handlers[filename], handler)
}

// RegisterValidator registers a validator run before a change is applied.
// A validation failure keeps the previous configuration in place.
func (m *Manager) RegisterValidator(filename string, validator func(map[string]interface{}) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validators[filename] = validator
}

// RegisterPolicyHandler registers a hook invoked when any .rego file under
// the config directory changes.
func (m *Manager) RegisterPolicyHandler(handler func() error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policyHandlers = append(m.policyHandlers, handler)
}

// GetConfig returns the current parsed content of a configuration file.
func (m *Manager) GetConfig(filename string) (map[string]interface{}, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.configs[filename]
	if !ok {
		return nil, false
	}
	out := make(map[string]interface{}, len(cfg))
	for k, v := range cfg {
		out[k] = v
	}
	return out, true
}

// Reload re-reads one configuration file from disk.
func (m *Manager) Reload(filename string) error {
	return m.loadFile(filepath.Join(m.configDir, filename), "modify")
}

func (m *Manager) watchLoop() {
	for {
		select {
		case <-m.stopCh:
			return
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			m.handleWatchEvent(event)
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Error("Config watcher error", zap.Error(err))
		}
	}
}

func (m *Manager) handleWatchEvent(event fsnotify.Event) {
	filename := filepath.Base(event.Name)

	if isPolicyFile(filename) {
		if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove) != 0 {
			m.firePolicyHandlers(filename)
		}
		return
	}
	if !isConfigFile(filename) {
		return
	}

	switch {
	case event.Op&fsnotify.Create != 0:
		// Editors often fire Create before the content is flushed.
		time.Sleep(100 * time.Millisecond)
		if err := m.loadFile(event.Name, "create"); err != nil {
			m.logger.Error("Failed to load created config",
				zap.String("file", filename), zap.Error(err))
		}
	case event.Op&fsnotify.Write != 0:
		time.Sleep(100 * time.Millisecond)
		if err := m.loadFile(event.Name, "modify"); err != nil {
			m.logger.Error("Failed to reload config",
				zap.String("file", filename), zap.Error(err))
		}
	case event.Op&fsnotify.Remove != 0:
		m.handleRemoval(filename)
	}
}

func (m *Manager) loadAll() error {
	entries, err := os.ReadDir(m.configDir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || !isConfigFile(entry.Name()) {
			continue
		}
		path := filepath.Join(m.configDir, entry.Name())
		if err := m.loadFile(path, "create"); err != nil {
			m.logger.Warn("Skipping unreadable config file",
				zap.String("file", entry.Name()), zap.Error(err))
		}
	}
	return nil
}

func (m *Manager) loadFile(path, action string) error {
	filename := filepath.Base(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", filename, err)
	}

	var cfg map[string]interface{}
	switch {
	case strings.HasSuffix(filename, ".json"):
		err = json.Unmarshal(data, &cfg)
	default:
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return fmt.Errorf("parse %s: %w", filename, err)
	}

	m.mu.RLock()
	validator := m.validators[filename]
	m.mu.RUnlock()
	if validator != nil {
		if err := validator(cfg); err != nil {
			m.logger.Warn("Config change rejected by validator",
				zap.String("file", filename), zap.Error(err))
			return fmt.Errorf("validate %s: %w", filename, err)
		}
	}

	m.mu.Lock()
	m.configs[filename] = cfg
	handlers := append([]ChangeHandler(nil), m.handlers[filename]...)
	m.mu.Unlock()

	event := ChangeEvent{
		File:      filename,
		Action:    action,
		Config:    cfg,
		Timestamp: time.Now(),
	}
	for _, handler := range handlers {
		if err := handler(event); err != nil {
			m.logger.Error("Config change handler failed",
				zap.String("file", filename), zap.Error(err))
		}
	}

	m.logger.Info("Configuration loaded",
		zap.String("file", filename), zap.String("action", action))
	return nil
}

func (m *Manager) handleRemoval(filename string) {
	m.mu.Lock()
	_, existed := m.configs[filename]
	delete(m.configs, filename)
	handlers := append([]ChangeHandler(nil), m.handlers[filename]...)
	m.mu.Unlock()

	if !existed {
		return
	}
	event := ChangeEvent{File: filename, Action: "delete", Timestamp: time.Now()}
	for _, handler := range handlers {
		if err := handler(event); err != nil {
			m.logger.Error("Config removal handler failed",
				zap.String("file", filename), zap.Error(err))
		}
	}
	m.logger.Info("Configuration removed", zap.String("file", filename))
}

func (m *Manager) firePolicyHandlers(filename string) {
	m.mu.RLock()
	handlers := append([]func() error(nil), m.policyHandlers...)
	m.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(); err != nil {
			m.logger.Error("Policy reload failed",
				zap.String("file", filename), zap.Error(err))
		}
	}
	if len(handlers) > 0 {
		m.logger.Info("Policies reloaded", zap.String("trigger", filename))
	}
}

func isConfigFile(filename string) bool {
	switch filepath.Ext(filename) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

func isPolicyFile(filename string) bool {
	return filepath.Ext(filename) == ".rego"
}
