package storage

import (
	"fmt"
	"strings"

	"tg-eventbot/internal/config"
	"tg-eventbot/internal/models"
)

// Store is the durable home of the bot state document. Load runs once at
// startup; Save rewrites the whole document after every mutation. Drivers
// must serialize concurrent saves — two interleaved writes corrupting the
// document is an observed failure mode, not a theoretical one.
type Store interface {
	Load() (*models.State, error)
	Save(state *models.State) error
	Close() error
}

// OpenStore initializes the configured state store.
func OpenStore(cfg *config.Config) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	switch driver {
	case "", "file":
		return openFileStore(cfg.Storage.Path)
	case "database", "mysql":
		if DB == nil {
			return nil, fmt.Errorf("storage driver %q requires database.enabled", driver)
		}
		return openDBStore(DB)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
}
