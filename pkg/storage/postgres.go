package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StateSlot is one persisted slot row.
type StateSlot struct {
	Name      string         `gorm:"primaryKey" json:"name"`
	Payload   datatypes.JSON `gorm:"type:jsonb;not null" json:"payload"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// PostgresBackend keeps slots in a jsonb table through gorm.
type PostgresBackend struct {
	db *gorm.DB
}

// OpenPostgres connects and migrates the slot table.
func OpenPostgres(dsn string) (*PostgresBackend, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.AutoMigrate(&StateSlot{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &PostgresBackend{db: db}, nil
}

func (b *PostgresBackend) Slot(name string) Slot {
	return &postgresSlot{db: b.db, name: name}
}

func (b *PostgresBackend) Close() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type postgresSlot struct {
	db   *gorm.DB
	name string
}

func (s *postgresSlot) Load(ctx context.Context) ([]byte, error) {
	var row StateSlot
	err := s.db.WithContext(ctx).First(&row, "name = ?", s.name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSlotEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("load slot %q: %w", s.name, err)
	}
	return []byte(row.Payload), nil
}

func (s *postgresSlot) Save(ctx context.Context, data []byte) error {
	row := &StateSlot{
		Name:      s.name,
		Payload:   datatypes.JSON(data),
		UpdatedAt: time.Now(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("save slot %q: %w", s.name, err)
	}
	return nil
}
