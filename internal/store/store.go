package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"tapeflow/internal/types"
)

// BarModel persists one completed footprint bar; the level ladder is a
// JSON column so the full per-price detail survives.
type BarModel struct {
	ID        uint           `gorm:"primaryKey"`
	Symbol    string         `gorm:"index:idx_bars_symbol_start"`
	Start     time.Time      `gorm:"index:idx_bars_symbol_start"`
	End       time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
	Delta     int64
	TickCount int
	Levels    datatypes.JSON
	CreatedAt time.Time
}

func (BarModel) TableName() string { return "footprint_bars" }

// TickModel persists a raw tick for later replay.
type TickModel struct {
	ID        uint      `gorm:"primaryKey"`
	Symbol    string    `gorm:"index:idx_ticks_symbol_ts"`
	Timestamp time.Time `gorm:"index:idx_ticks_symbol_ts"`
	Price     float64
	Volume    int64
	Side      string
	CreatedAt time.Time
}

func (TickModel) TableName() string { return "ticks" }

// Store keeps bars and ticks in SQLite via gorm.
type Store struct {
	db *gorm.DB
}

func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("store: path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	if err := db.AutoMigrate(&BarModel{}, &TickModel{}); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: keep the pool tiny so the single writer never fights
	// dashboard reads for locks.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

// SaveBar persists one completed bar.
func (s *Store) SaveBar(ctx context.Context, bar *types.FootprintBar) error {
	levels, err := json.Marshal(bar.SortedLevels())
	if err != nil {
		return fmt.Errorf("store: marshal levels: %w", err)
	}
	model := BarModel{
		Symbol:    bar.Symbol,
		Start:     bar.Start,
		End:       bar.End,
		Open:      bar.Open,
		High:      bar.High,
		Low:       bar.Low,
		Close:     bar.Close,
		Volume:    bar.Volume,
		Delta:     bar.Delta,
		TickCount: bar.TickCount,
		Levels:    datatypes.JSON(levels),
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("store: save bar: %w", err)
	}
	return nil
}

// SaveTicks persists a batch of raw ticks.
func (s *Store) SaveTicks(ctx context.Context, ticks []types.Tick) error {
	if len(ticks) == 0 {
		return nil
	}
	models := make([]TickModel, len(ticks))
	for i, t := range ticks {
		models[i] = TickModel{
			Symbol:    t.Symbol,
			Timestamp: t.Timestamp,
			Price:     t.Price,
			Volume:    t.Volume,
			Side:      string(t.Side),
		}
	}
	if err := s.db.WithContext(ctx).CreateInBatches(models, 500).Error; err != nil {
		return fmt.Errorf("store: save ticks: %w", err)
	}
	return nil
}

// RecentBars returns up to limit bars for symbol, newest first.
func (s *Store) RecentBars(ctx context.Context, symbol string, limit int) ([]*types.FootprintBar, error) {
	if limit <= 0 {
		limit = 100
	}
	var models []BarModel
	err := s.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("start DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("store: load bars: %w", err)
	}
	bars := make([]*types.FootprintBar, 0, len(models))
	for _, m := range models {
		bar, err := m.toBar()
		if err != nil {
			return nil, err
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// TicksBetween loads raw ticks in [from, to) ordered by time, feeding
// the replay source.
func (s *Store) TicksBetween(ctx context.Context, symbol string, from, to time.Time) ([]types.Tick, error) {
	var models []TickModel
	q := s.db.WithContext(ctx).Where("symbol = ?", symbol).Order("timestamp ASC")
	if !from.IsZero() {
		q = q.Where("timestamp >= ?", from)
	}
	if !to.IsZero() {
		q = q.Where("timestamp < ?", to)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("store: load ticks: %w", err)
	}
	ticks := make([]types.Tick, len(models))
	for i, m := range models {
		ticks[i] = types.Tick{
			Timestamp: m.Timestamp,
			Symbol:    m.Symbol,
			Price:     m.Price,
			Volume:    m.Volume,
			Side:      types.Side(m.Side),
		}
	}
	return ticks, nil
}

func (m BarModel) toBar() (*types.FootprintBar, error) {
	var levels []*types.PriceLevel
	if len(m.Levels) > 0 {
		if err := json.Unmarshal(m.Levels, &levels); err != nil {
			return nil, fmt.Errorf("store: unmarshal levels: %w", err)
		}
	}
	bar := &types.FootprintBar{
		Symbol:    m.Symbol,
		Start:     m.Start,
		End:       m.End,
		Open:      m.Open,
		High:      m.High,
		Low:       m.Low,
		Close:     m.Close,
		Volume:    m.Volume,
		Delta:     m.Delta,
		TickCount: m.TickCount,
		Levels:    make(map[float64]*types.PriceLevel, len(levels)),
	}
	for _, lvl := range levels {
		bar.Levels[lvl.Price] = lvl
	}
	return bar, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
