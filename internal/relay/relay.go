package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"course-marketplace/internal/domain/outbox"
	"course-marketplace/internal/infra/kafka"
	"course-marketplace/internal/metrics"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Publisher interface {
	Publish(ctx context.Context, msgs ...kafka.Message) error
}

type Config struct {
	PollInterval time.Duration
	BatchSize    int
}

// Relay moves committed outbox rows to the broker. A row is marked processed
// in the same transaction that locked it, after the publish succeeded, so a
// crash between the two republishes the batch.
type Relay struct {
	db  *gorm.DB
	pub Publisher
	cfg Config
	log *slog.Logger
}

func New(db *gorm.DB, pub Publisher, cfg Config, log *slog.Logger) *Relay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Relay{db: db, pub: pub, cfg: cfg, log: log}
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	r.log.Info("outbox relay started", slog.Duration("interval", r.cfg.PollInterval), slog.Int("batch", r.cfg.BatchSize))
	for {
		select {
		case <-ctx.Done():
			r.log.Info("outbox relay stopped")
			return
		case <-ticker.C:
			for {
				n, err := r.ProcessBatch(ctx)
				if err != nil {
					metrics.OutboxFailures.Inc()
					r.log.Error("outbox batch failed", slog.Any("error", err))
					break
				}
				// a full batch means more rows are probably waiting
				if n < r.cfg.BatchSize || ctx.Err() != nil {
					break
				}
			}
		}
	}
}

// ProcessBatch publishes up to BatchSize unprocessed messages and returns how
// many were handled.
func (r *Relay) ProcessBatch(ctx context.Context) (int, error) {
	var handled int

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("processed_at IS NULL").Order("created_at").Limit(r.cfg.BatchSize)
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}

		var batch []outbox.Message
		if err := q.Find(&batch).Error; err != nil {
			return fmt.Errorf("select outbox: %w", err)
		}
		if len(batch) == 0 {
			return nil
		}

		msgs := make([]kafka.Message, 0, len(batch))
		ids := make([]string, 0, len(batch))
		for _, m := range batch {
			msgs = append(msgs, kafka.Message{Key: m.Key, Type: m.Type, Value: m.Payload})
			ids = append(ids, m.ID)
		}

		if err := r.pub.Publish(ctx, msgs...); err != nil {
			return fmt.Errorf("publish: %w", err)
		}

		if err := tx.Model(&outbox.Message{}).
			Where("id IN ?", ids).
			Update("processed_at", time.Now().UTC()).Error; err != nil {
			return fmt.Errorf("mark processed: %w", err)
		}

		handled = len(batch)
		return nil
	})
	if err != nil {
		return 0, err
	}

	if handled > 0 {
		metrics.OutboxPublished.Add(float64(handled))
		r.log.Debug("outbox published", slog.Int("count", handled))
	}
	return handled, nil
}
