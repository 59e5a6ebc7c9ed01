package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/layer-3/planmint/core"
	"github.com/layer-3/planmint/ports"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

type eventRecord struct {
	Seq       uint64    `gorm:"primaryKey;autoIncrement"`
	ID        string    `gorm:"uniqueIndex;size:36;not null"`
	Type      string    `gorm:"uniqueIndex:idx_planmint_events_type_tx,priority:1;size:32;not null"`
	TxKey     *string   `gorm:"uniqueIndex:idx_planmint_events_type_tx,priority:2;size:128"`
	Wallet    string    `gorm:"index;size:64;not null"`
	PlanID    string    `gorm:"size:32"`
	Mint      string    `gorm:"size:64;not null"`
	Quantity  int
	TxIDs     string    `gorm:"type:text;not null"`
	Timestamp time.Time `gorm:"not null"`
}

func (eventRecord) TableName() string {
	return "planmint_events"
}

// SQLLog stores entries in a relational table ordered by an autoincrement sequence
type SQLLog struct {
	db *gorm.DB
}

// OpenDB connects to postgres or to a sqlite file
func OpenDB(driver, dsn string, logger logrus.FieldLogger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres", "sql":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported event log database %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.New(logger, gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open event log database: %w", err)
	}
	if driver == "sqlite" {
		// sqlite allows one writer at a time
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get event log database handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// NewSQLLog migrates the events table
func NewSQLLog(db *gorm.DB) (ports.EventLog, error) {
	if err := db.AutoMigrate(&eventRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate event log: %w", err)
	}
	return &SQLLog{db: db}, nil
}

// Append inserts entry unless an entry of the same type already names its
// first transaction
func (l *SQLLog) Append(ctx context.Context, entry core.EventLogEntry) error {
	txids, err := json.Marshal(entry.TransactionIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction ids: %w", err)
	}
	rec := eventRecord{
		ID:        entry.ID,
		Type:      string(entry.Type),
		Wallet:    entry.Wallet,
		PlanID:    entry.PlanID,
		Mint:      entry.Mint,
		Quantity:  entry.Quantity,
		TxIDs:     string(txids),
		Timestamp: entry.Timestamp.UTC(),
	}
	if len(entry.TransactionIDs) > 0 && entry.TransactionIDs[0] != "" {
		rec.TxKey = &entry.TransactionIDs[0]
	}

	res := l.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
	if res.Error != nil {
		return fmt.Errorf("failed to append event: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return core.ErrEventRecorded
	}
	return nil
}

func (l *SQLLog) Recorded(ctx context.Context, typ core.EventType, txID string) (bool, error) {
	var n int64
	err := l.db.WithContext(ctx).Model(&eventRecord{}).
		Where("type = ? AND tx_key = ?", string(typ), txID).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("failed to look up event: %w", err)
	}
	return n > 0, nil
}

func (l *SQLLog) Entries(ctx context.Context, typ core.EventType) ([]core.EventLogEntry, error) {
	q := l.db.WithContext(ctx).Order("seq asc")
	if typ != "" {
		q = q.Where("type = ?", string(typ))
	}

	var recs []eventRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to read event log: %w", err)
	}

	out := make([]core.EventLogEntry, 0, len(recs))
	for _, r := range recs {
		var txids []string
		if err := json.Unmarshal([]byte(r.TxIDs), &txids); err != nil {
			return nil, fmt.Errorf("event %s has corrupt transaction ids: %w", r.ID, err)
		}
		out = append(out, core.EventLogEntry{
			ID:             r.ID,
			Type:           core.EventType(r.Type),
			Wallet:         r.Wallet,
			PlanID:         r.PlanID,
			Mint:           r.Mint,
			Quantity:       r.Quantity,
			TransactionIDs: txids,
			Timestamp:      r.Timestamp,
		})
	}
	return out, nil
}
