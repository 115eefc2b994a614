package database

import (
	"fmt"
	"os"

	"github.com/cockroachdb/pebble"

	"chatcore-backend/pkg/config"
)

// PebbleDB is the embedded single-node key-value store
type PebbleDB struct {
	DB *pebble.DB
}

// NewPebbleDB opens (creating if needed) the store at cfg.Path
func NewPebbleDB(cfg *config.PebbleConfig) (*PebbleDB, error) {
	if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create pebble dir: %w", err)
	}

	db, err := pebble.Open(cfg.Path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", cfg.Path, err)
	}
	return &PebbleDB{DB: db}, nil
}

// Close flushes and closes the store
func (p *PebbleDB) Close() error {
	return p.DB.Close()
}
