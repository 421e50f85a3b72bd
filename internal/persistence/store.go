// Package persistence implements the fills store: asynchronous append
// plus lookup by date or instrument, backed by gorm with sqlite or
// postgres selected by DSN prefix.
package persistence

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/web3guy0/quantoms/internal/instrument"
	"github.com/web3guy0/quantoms/internal/router"
)

// FillRecord is the gorm model a router.Fill is persisted as. Prices
// and quantities are stored as decimal.Decimal — the storage boundary
// is exactly where tick-scaled integers convert to human units, same
// as every other boundary in the OMS.
type FillRecord struct {
	ID              uint   `gorm:"primaryKey;autoIncrement"`
	InstrumentID    int32  `gorm:"index"`
	BookName        string
	Seq             uint64
	ExchangeOrderID string
	ExecID          string `gorm:"index"`
	Side            string
	Price           decimal.Decimal `gorm:"type:decimal(24,8)"`
	Quantity        decimal.Decimal `gorm:"type:decimal(24,8)"`
	TimestampUs     int64
	CreatedAt       time.Time `gorm:"index"`
}

// FillStore appends router.Fill events asynchronously and answers
// lookups by date/instrument for the control protocol's GET_FILLS
// command.
type FillStore struct {
	db *gorm.DB

	queue chan router.Fill
	wg    sync.WaitGroup
}

// Open dials dsn: a postgres://... DSN selects the Postgres driver,
// anything else is treated as a SQLite file path.
func Open(dsn string) (*FillStore, error) {
	var db *gorm.DB
	var err error

	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dsn), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("persistence: open postgres: %w", err)
		}
		log.Info().Msg("persistence: connected (postgres)")
	} else {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("persistence: mkdir %s: %w", dir, err)
			}
		}
		db, err = gorm.Open(sqlite.Open(dsn), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("persistence: open sqlite: %w", err)
		}
		log.Info().Str("path", dsn).Msg("persistence: connected (sqlite)")
	}

	if err := db.AutoMigrate(&FillRecord{}); err != nil {
		return nil, fmt.Errorf("persistence: automigrate: %w", err)
	}

	s := &FillStore{db: db, queue: make(chan router.Fill, 4096)}
	s.wg.Add(1)
	go s.writeLoop()
	return s, nil
}

// Append enqueues fill for persistence and returns immediately — the
// hot path (router.RouteReport) must never block on disk I/O.
func (s *FillStore) Append(fill router.Fill) {
	select {
	case s.queue <- fill:
	default:
		log.Warn().
			Int("instrument_id", int(fill.InstrumentID)).
			Str("exec_id", fill.ExecID).
			Msg("persistence: fill queue full, dropping")
	}
}

func (s *FillStore) writeLoop() {
	defer s.wg.Done()
	for fill := range s.queue {
		rec := FillRecord{
			InstrumentID:    int32(fill.InstrumentID),
			BookName:        fill.BookName,
			Seq:             fill.Seq,
			ExchangeOrderID: fill.ExchangeOrderID,
			ExecID:          fill.ExecID,
			Side:            fill.Side.String(),
			Price:           fill.Price.ToDecimal(),
			Quantity:        fill.Quantity.ToDecimal(),
			TimestampUs:     fill.TimestampUs,
		}
		if err := s.db.Create(&rec).Error; err != nil {
			log.Error().Err(err).Msg("persistence: fill insert failed")
		}
	}
}

// Close stops accepting new fills and waits for the write loop to drain
// the queue and exit.
func (s *FillStore) Close() {
	close(s.queue)
	s.wg.Wait()
}

// ByInstrument returns the most recent fills for id, newest first,
// limited to limit rows.
func (s *FillStore) ByInstrument(id instrument.ID, limit int) ([]FillRecord, error) {
	var out []FillRecord
	err := s.db.Where("instrument_id = ?", int32(id)).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ByDate returns every fill recorded on the UTC calendar day containing
// day, across all instruments.
func (s *FillStore) ByDate(day time.Time) ([]FillRecord, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	var out []FillRecord
	err := s.db.Where("created_at >= ? AND created_at < ?", start, end).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}
