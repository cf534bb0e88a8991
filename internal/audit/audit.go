// Package audit is an optional, file-local SQLite sink for intents,
// fills, and safety-state transitions, kept purely for operator
// inspection after the fact. It is never read back into the decision
// loop (the WAL is the sole source of truth for recovery) — recording
// failures here are logged, not propagated, so an audit-sink outage can
// never stall trading. Grounded on the teacher's internal/database
// package's gorm-model-plus-thin-CRUD shape; dropped the teacher's
// postgres.Open branch since no SPEC_FULL.md component needs a network
// database (see DESIGN.md).
package audit

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/nvquant/tradecore/internal/types"
)

// IntentRecord is the audit row for one durably-enqueued order intent.
type IntentRecord struct {
	ID                  uint   `gorm:"primaryKey;autoIncrement"`
	ClientOrderID       string `gorm:"uniqueIndex"`
	ParentOrderID       string `gorm:"index"`
	Symbol              string `gorm:"index"`
	Purpose             int8
	ReduceOnly          bool
	Direction           int8
	Qty                 decimal.Decimal `gorm:"type:decimal(20,8)"`
	Price               decimal.Decimal `gorm:"type:decimal(20,8)"`
	LiquidityPreference int8
	CreatedAt           time.Time
}

// FillRecord is the audit row for one applied fill.
type FillRecord struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	FillID        string `gorm:"uniqueIndex"`
	ClientOrderID string `gorm:"index"`
	Symbol        string `gorm:"index"`
	Direction     int8
	Qty           decimal.Decimal `gorm:"type:decimal(20,8)"`
	Price         decimal.Decimal `gorm:"type:decimal(20,8)"`
	Fee           decimal.Decimal `gorm:"type:decimal(20,8)"`
	Liquidity     int8
	ExecTimeMs    int64
	CreatedAt     time.Time
}

// SafetyEventRecord is the audit row for a safety-state transition
// (reduce-only enter/exit, halt, evolution rollback).
type SafetyEventRecord struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Kind      string `gorm:"index"`
	Detail    string
	Tick      int64
	CreatedAt time.Time
}

// Store wraps a sqlite-backed gorm.DB holding the three tables above.
type Store struct {
	db  *gorm.DB
	log zerolog.Logger
}

// New opens (creating if necessary) a sqlite database at dbPath and
// migrates its schema.
func New(dbPath string, log zerolog.Logger) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&IntentRecord{}, &FillRecord{}, &SafetyEventRecord{}); err != nil {
		return nil, err
	}
	return &Store{db: db, log: log}, nil
}

// RecordIntent persists one durably-enqueued intent. Failures are logged
// and swallowed: the audit trail is best-effort, never load-bearing.
func (s *Store) RecordIntent(intent types.OrderIntent) {
	if s == nil {
		return
	}
	row := IntentRecord{
		ClientOrderID:       intent.ClientOrderID,
		ParentOrderID:       intent.ParentOrderID,
		Symbol:              intent.Symbol,
		Purpose:             int8(intent.Purpose),
		ReduceOnly:          intent.ReduceOnly,
		Direction:           int8(intent.Direction),
		Qty:                 intent.Qty,
		Price:               intent.Price,
		LiquidityPreference: int8(intent.LiquidityPreference),
	}
	if err := s.db.Create(&row).Error; err != nil {
		s.log.Warn().Err(err).Str("client_order_id", intent.ClientOrderID).Msg("audit: record intent failed")
	}
}

// RecordFill persists one applied fill.
func (s *Store) RecordFill(fill types.FillEvent) {
	if s == nil {
		return
	}
	row := FillRecord{
		FillID:        fill.FillID,
		ClientOrderID: fill.ClientOrderID,
		Symbol:        fill.Symbol,
		Direction:     int8(fill.Direction),
		Qty:           fill.Qty,
		Price:         fill.Price,
		Fee:           fill.Fee,
		Liquidity:     int8(fill.Liquidity),
		ExecTimeMs:    fill.ExecTimeMs,
	}
	if err := s.db.Create(&row).Error; err != nil {
		s.log.Warn().Err(err).Str("fill_id", fill.FillID).Msg("audit: record fill failed")
	}
}

// RecordSafetyEvent persists one safety-state transition.
func (s *Store) RecordSafetyEvent(kind, detail string, tick int64) {
	if s == nil {
		return
	}
	row := SafetyEventRecord{Kind: kind, Detail: detail, Tick: tick}
	if err := s.db.Create(&row).Error; err != nil {
		s.log.Warn().Err(err).Str("kind", kind).Msg("audit: record safety event failed")
	}
}

// RecentFills returns the most recently recorded fills, newest first.
func (s *Store) RecentFills(limit int) ([]FillRecord, error) {
	var rows []FillRecord
	err := s.db.Order("created_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
