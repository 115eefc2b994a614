package moderation

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"chatcore-backend/pkg/audit"
	"chatcore-backend/pkg/logger"
)

// blocklistFile is the YAML layout:
//
//	blocklist:
//	  - badword1
//	  - offensive
type blocklistFile struct {
	Blocklist []string `yaml:"blocklist"`
}

// LoadFile reads a blocklist from a YAML file
func LoadFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read blocklist file: %w", err)
	}
	var f blocklistFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse blocklist file: %w", err)
	}
	return Normalize(f.Blocklist), nil
}

// Watcher reloads the gate whenever the blocklist file changes on disk.
type Watcher struct {
	gate     *Gate
	path     string
	interval time.Duration
	audit    *audit.Logger
	modTime  time.Time
}

// NewWatcher creates a watcher for path, polling every interval
func NewWatcher(gate *Gate, path string, interval time.Duration, auditLogger *audit.Logger) *Watcher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Watcher{gate: gate, path: path, interval: interval, audit: auditLogger}
}

// Reload loads the file into the gate if it changed since the last load.
// It reports whether the gate was swapped.
func (w *Watcher) Reload(ctx context.Context) (bool, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return false, fmt.Errorf("failed to stat blocklist file: %w", err)
	}
	if !info.ModTime().After(w.modTime) {
		return false, nil
	}

	words, err := LoadFile(w.path)
	if err != nil {
		return false, err
	}
	w.gate.Swap(words)
	w.modTime = info.ModTime()

	logger.Info("Blocklist reloaded",
		zap.String("path", w.path),
		zap.Int("entries", len(words)),
	)
	w.audit.LogBlocklistUpdated(ctx, uuid.Nil, "file:"+w.path)
	return true, nil
}

// Run polls until ctx is done. A broken file keeps the previous list active.
func (w *Watcher) Run(ctx context.Context) {
	if _, err := w.Reload(ctx); err != nil {
		logger.Warn("Initial blocklist load failed, keeping configured list", zap.Error(err))
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Reload(ctx); err != nil {
				logger.Warn("Blocklist reload failed", zap.Error(err))
			}
		}
	}
}
