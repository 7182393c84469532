package explorer

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"felixpad/core/events"
	"felixpad/core/types"
)

// Record is one indexed engine event. Attributes are stored as a JSON blob so
// the schema survives new event fields without migrations.
type Record struct {
	ID         uint   `gorm:"primaryKey"`
	Type       string `gorm:"index"`
	OfferID    string `gorm:"index"`
	Attributes string
	CreatedAt  time.Time
}

// Indexer persists every emitted engine event into a sqlite table so
// purchase and settlement history can be queried after the fact. It
// implements events.Emitter and is wired behind the engine's fanout.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open creates or opens the sqlite database at dsn and migrates the schema.
func Open(dsn string, logger *slog.Logger) (*Indexer, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("explorer: open %s: %w", dsn, err)
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("explorer: migrate: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{db: db, logger: logger}, nil
}

type eventCarrier interface {
	Event() *types.Event
}

// Emit implements events.Emitter. Indexing failures are logged, never
// propagated: the ledger is the source of truth, the index is a convenience.
func (ix *Indexer) Emit(evt events.Event) {
	if ix == nil || ix.db == nil || evt == nil {
		return
	}
	carrier, ok := evt.(eventCarrier)
	if !ok || carrier.Event() == nil {
		return
	}
	payload := carrier.Event()
	attrs, err := json.Marshal(payload.Attributes)
	if err != nil {
		ix.logger.Error("explorer: encode attributes", slog.Any("error", err))
		return
	}
	record := &Record{
		Type:       payload.Type,
		OfferID:    payload.Attributes["id"],
		Attributes: string(attrs),
		CreatedAt:  time.Now().UTC(),
	}
	if err := ix.db.Create(record).Error; err != nil {
		ix.logger.Error("explorer: insert record", slog.String("type", payload.Type), slog.Any("error", err))
	}
}

// Recent returns the newest records, most recent first.
func (ix *Indexer) Recent(limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []Record
	err := ix.db.Order("id desc").Limit(limit).Find(&records).Error
	return records, err
}

// ByOffer returns every indexed event for one offer in insertion order.
func (ix *Indexer) ByOffer(offerID uint64) ([]Record, error) {
	var records []Record
	err := ix.db.Where("offer_id = ?", strconv.FormatUint(offerID, 10)).
		Order("id asc").Find(&records).Error
	return records, err
}

// Close releases the underlying database handle.
func (ix *Indexer) Close() error {
	sqlDB, err := ix.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
