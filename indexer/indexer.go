package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"ecorelease/core/events"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	defaultListLimit = 100
	maxListLimit     = 1000
)

var ErrUnsupportedDriver = errors.New("indexer: unsupported driver")

// EventRecord is one committed contract event as stored in the index.
type EventRecord struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Height     int64     `gorm:"index;not null" json:"height"`
	Receipt    string    `gorm:"size:66;index;not null" json:"receipt"`
	Type       string    `gorm:"size:128;not null" json:"type"`
	Action     string    `gorm:"size:64;index;not null" json:"action"`
	Signer     string    `gorm:"size:128" json:"signer"`
	Attributes string    `gorm:"type:text" json:"attributes"`
	CreatedAt  time.Time `json:"created_at"`
}

func (EventRecord) TableName() string { return "contract_events" }

// Attrs decodes the stored attribute list.
func (r EventRecord) Attrs() ([]events.Attribute, error) {
	if r.Attributes == "" {
		return nil, nil
	}
	var attrs []events.Attribute
	if err := json.Unmarshal([]byte(r.Attributes), &attrs); err != nil {
		return nil, fmt.Errorf("indexer: decode attributes of %s: %w", r.Receipt, err)
	}
	return attrs, nil
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Action string
	Limit  int
}

// Open connects to the index database for driver.
func Open(driver, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverSQLite:
		if dsn == "" {
			dsn = "file::memory:?cache=shared"
		}
		return gorm.Open(sqlite.Open(dsn), cfg)
	case DriverPostgres:
		return gorm.Open(postgres.Open(dsn), cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
}

// Indexer persists committed contract events and serves them back in
// reverse commit order.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

// New migrates the schema and returns an indexer backed by db.
func New(db *gorm.DB, logger *slog.Logger) (*Indexer, error) {
	if db == nil {
		return nil, errors.New("indexer: database required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := db.AutoMigrate(&EventRecord{}); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	return &Indexer{db: db, logger: logger, now: time.Now}, nil
}

// Emit implements events.Emitter. Failures are logged since the contract
// state has already been committed.
func (i *Indexer) Emit(evt events.Event) {
	contractEvt, ok := evt.(events.ContractEvent)
	if !ok {
		return
	}
	if err := i.Record(context.Background(), contractEvt); err != nil {
		i.logger.Error("indexer: record event failed",
			slog.String("receipt", contractEvt.Receipt),
			slog.String("type", contractEvt.Type),
			slog.String("error", err.Error()))
	}
}

// Record stores evt.
func (i *Indexer) Record(ctx context.Context, evt events.ContractEvent) error {
	attrs, err := json.Marshal(evt.Attributes)
	if err != nil {
		return err
	}
	row := &EventRecord{
		Height:     evt.Height,
		Receipt:    evt.Receipt,
		Type:       evt.Type,
		Action:     strings.TrimPrefix(evt.Type, events.TypePrefix),
		Signer:     evt.Signer,
		Attributes: string(attrs),
		CreatedAt:  i.now().UTC(),
	}
	return i.db.WithContext(ctx).Create(row).Error
}

// List returns the most recent events matching filter, newest first.
func (i *Indexer) List(ctx context.Context, filter Filter) ([]EventRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	query := i.db.WithContext(ctx).Model(&EventRecord{})
	if action := strings.TrimSpace(filter.Action); action != "" {
		query = query.Where("action = ?", action)
	}
	var rows []EventRecord
	if err := query.Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Close releases the underlying connection pool.
func (i *Indexer) Close() error {
	sqlDB, err := i.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
