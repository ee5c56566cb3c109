package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"dscengine/core/events"
	"dscengine/observability"
)

const (
	defaultQueueSize = 256
	defaultLimit     = 50
	maxLimit         = 500
)

// Open connects to the indexer database. DSNs starting with postgres:// or
// postgresql:// use the Postgres driver; anything else is a SQLite path.
func Open(dsn string) (*gorm.DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("indexer: empty dsn")
	}
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return gorm.Open(postgres.Open(dsn), cfg)
	}
	return gorm.Open(sqlite.Open(dsn), cfg)
}

type Option func(*Indexer)

func WithQueueSize(n int) Option {
	return func(i *Indexer) {
		if n > 0 {
			i.queueSize = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(i *Indexer) {
		if l != nil {
			i.logger = l
		}
	}
}

func WithMetrics(m *observability.IndexerMetrics) Option {
	return func(i *Indexer) { i.metrics = m }
}

func withClock(now func() time.Time) Option {
	return func(i *Indexer) { i.now = now }
}

// Indexer persists engine events. Emit never blocks the engine: events are
// queued and written by Run, and dropped when the queue is full.
type Indexer struct {
	db        *gorm.DB
	queue     chan events.Event
	queueSize int
	logger    *slog.Logger
	metrics   *observability.IndexerMetrics
	now       func() time.Time
}

// New migrates the schema and returns an indexer over db.
func New(db *gorm.DB, opts ...Option) (*Indexer, error) {
	if db == nil {
		return nil, fmt.Errorf("indexer: nil database")
	}
	idx := &Indexer{
		db:        db,
		queueSize: defaultQueueSize,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(idx)
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	idx.queue = make(chan events.Event, idx.queueSize)
	return idx, nil
}

// Emit implements events.Emitter.
func (i *Indexer) Emit(evt events.Event) {
	if i == nil || evt == nil {
		return
	}
	select {
	case i.queue <- evt:
		i.metrics.SetQueueDepth(len(i.queue))
	default:
		i.metrics.RecordDropped()
		i.logger.Warn("indexer queue full, dropping event", "type", evt.EventType())
	}
}

// Run drains the queue until ctx is cancelled, then flushes what is left.
func (i *Indexer) Run(ctx context.Context) error {
	writeCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			i.flush()
			return nil
		case evt := <-i.queue:
			i.metrics.SetQueueDepth(len(i.queue))
			i.write(writeCtx, evt)
		}
	}
}

func (i *Indexer) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case evt := <-i.queue:
			i.write(ctx, evt)
		default:
			i.metrics.SetQueueDepth(0)
			return
		}
	}
}

func (i *Indexer) write(ctx context.Context, evt events.Event) {
	if err := i.Store(ctx, evt); err != nil {
		i.metrics.RecordFailure()
		i.logger.Error("indexer write failed", "type", evt.EventType(), "error", err)
		return
	}
	i.metrics.RecordWritten()
}

// Store writes evt synchronously.
func (i *Indexer) Store(ctx context.Context, evt events.Event) error {
	record, err := i.record(evt)
	if err != nil {
		return err
	}
	return i.db.WithContext(ctx).Create(record).Error
}

func (i *Indexer) record(evt events.Event) (*Record, error) {
	renderer, ok := evt.(events.Renderer)
	if !ok {
		return nil, fmt.Errorf("indexer: event %s cannot be rendered", evt.EventType())
	}
	rendered := renderer.Event()
	attrs, err := json.Marshal(rendered.Attributes)
	if err != nil {
		return nil, fmt.Errorf("indexer: encode attributes: %w", err)
	}
	record := &Record{
		ID:          uuid.New(),
		Type:        rendered.Type,
		Fingerprint: events.Fingerprint(rendered),
		Attributes:  string(attrs),
		CreatedAt:   i.now().UTC(),
	}
	if account := events.PrimaryAccount(evt); account != (common.Address{}) {
		record.Account = account.Hex()
	}
	return record, nil
}

// Recent returns the newest records first.
func (i *Indexer) Recent(ctx context.Context, limit int) ([]Record, error) {
	var out []Record
	err := i.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(clampLimit(limit)).
		Find(&out).Error
	return out, err
}

// ByAccount returns account's records, newest first.
func (i *Indexer) ByAccount(ctx context.Context, account common.Address, limit int) ([]Record, error) {
	var out []Record
	err := i.db.WithContext(ctx).
		Where("account = ?", account.Hex()).
		Order("created_at DESC").
		Limit(clampLimit(limit)).
		Find(&out).Error
	return out, err
}

// DecodeAttributes unpacks a record's attribute JSON.
func (r Record) DecodeAttributes() (map[string]string, error) {
	out := map[string]string{}
	if r.Attributes == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(r.Attributes), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
