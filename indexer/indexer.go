// Package indexer persists the record store change feed in SQLite so record
// history can be queried without replaying L2 blocks.
package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"l2resolver/events"
	"l2resolver/observability"
)

// Change is one indexed record store event.
type Change struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	Block      uint64 `gorm:"index"`
	Type       string `gorm:"size:64;index"`
	Context    string `gorm:"size:42;index:idx_changes_subject"`
	Node       string `gorm:"size:66;index:idx_changes_subject"`
	Domain     string `gorm:"size:255"`
	Version    uint64
	Attributes string `gorm:"type:text"`
	CreatedAt  time.Time
}

// Attrs decodes the event attributes.
func (c Change) Attrs() (map[string]string, error) {
	attrs := make(map[string]string)
	if c.Attributes == "" {
		return attrs, nil
	}
	if err := json.Unmarshal([]byte(c.Attributes), &attrs); err != nil {
		return nil, fmt.Errorf("decode attributes of change %d: %w", c.ID, err)
	}
	return attrs, nil
}

// AutoMigrate creates the indexer tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Change{})
}

// Indexer is an events.Emitter writing every change to the database.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open opens the SQLite database at path. An empty path opens a private
// in-memory database.
func Open(path string, log *slog.Logger) (*Indexer, error) {
	dsn := path
	if dsn == "" {
		dsn = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open index %s: %w", path, err)
	}
	return New(db, log)
}

// New migrates db and returns an indexer writing to it.
func New(db *gorm.DB, log *slog.Logger) (*Indexer, error) {
	if db == nil {
		return nil, fmt.Errorf("database required")
	}
	if log == nil {
		log = slog.Default()
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate index: %w", err)
	}
	return &Indexer{db: db, logger: log}, nil
}

// Emit implements events.Emitter. Events without a generic form are skipped;
// write failures are logged since emitters cannot fail.
func (i *Indexer) Emit(evt events.Event) {
	change, ok := changeOf(evt)
	if !ok {
		return
	}
	if err := i.db.Create(&change).Error; err != nil {
		i.logger.Error("index change", "type", change.Type, "node", change.Node, "error", err)
		return
	}
	observability.Events().RecordChange(change.Type)
}

func changeOf(evt events.Event) (Change, bool) {
	entry, ok := events.EntryOf(evt)
	if !ok {
		return Change{}, false
	}
	change := Change{
		Type:    entry.Type,
		Context: entry.Attributes["context"],
		Node:    entry.Attributes["node"],
		Domain:  entry.Attributes["domain"],
	}
	if stamped, isStamped := evt.(events.Stamped); isStamped {
		change.Block = stamped.Block
	}
	if v, err := strconv.ParseUint(entry.Attributes["version"], 10, 64); err == nil {
		change.Version = v
	}
	encoded, err := json.Marshal(entry.Attributes)
	if err != nil {
		return Change{}, false
	}
	change.Attributes = string(encoded)
	return change, true
}

// History returns every change to (context, node) in emission order.
func (i *Indexer) History(ctx context.Context, context common.Address, node common.Hash) ([]Change, error) {
	var changes []Change
	err := i.db.WithContext(ctx).
		Where("context = ? AND node = ?", context.Hex(), node.Hex()).
		Order("id ASC").
		Find(&changes).Error
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	return changes, nil
}

// Since returns changes indexed after id, oldest first, at most limit rows.
func (i *Indexer) Since(ctx context.Context, id uint64, limit int) ([]Change, error) {
	if limit <= 0 {
		limit = 100
	}
	var changes []Change
	err := i.db.WithContext(ctx).Where("id > ?", id).Order("id ASC").Limit(limit).Find(&changes).Error
	if err != nil {
		return nil, fmt.Errorf("query changes: %w", err)
	}
	return changes, nil
}

// Close releases the database.
func (i *Indexer) Close() error {
	sqlDB, err := i.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
