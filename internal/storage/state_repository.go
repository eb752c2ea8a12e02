package storage

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"tg-eventbot/internal/models"

	"gorm.io/gorm"
)

// BotState is the database row holding the serialized state document. The
// document model stays identical to the file driver; the database only adds
// durability and lets several deployments share one MySQL server.
type BotState struct {
	ID        uint `gorm:"primarykey"`
	UpdatedAt time.Time

	Document string `gorm:"type:longtext"`
}

// dbStore persists the state document as a single row, fully overwritten on
// each save. Writers are serialized by the mutex, same contract as the file
// driver.
type dbStore struct {
	mu sync.Mutex
	db *gorm.DB
}

func openDBStore(db *gorm.DB) (Store, error) {
	if err := db.AutoMigrate(&BotState{}); err != nil {
		return nil, fmt.Errorf("failed to migrate BotState table: %w", err)
	}
	return &dbStore{db: db}, nil
}

func (s *dbStore) Load() (*models.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var row BotState
	result := s.db.First(&row, 1)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return models.NewState(), nil
		}
		return nil, result.Error
	}
	state := models.NewState()
	if err := json.Unmarshal([]byte(row.Document), state); err != nil {
		return nil, fmt.Errorf("failed to decode state document: %w", err)
	}
	state.Normalize()
	return state, nil
}

func (s *dbStore) Save(state *models.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row := BotState{ID: 1, Document: string(data), UpdatedAt: time.Now()}
	return s.db.Save(&row).Error
}

func (s *dbStore) Close() error {
	return nil
}
