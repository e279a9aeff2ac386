// Package outbox drains the transactional outbox into Kafka. Payment status
// events are written to the outbox table in the same transaction as the
// status change; this processor is the only component that publishes them.
package outbox

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	kafka_infra "checkout/internal/infrastructure/kafka"
	"checkout/internal/repository/outbox_repo"
)

const batchSize = 10

type Processor struct {
	db           *sql.DB
	outboxRepo   outbox_repo.OutboxRepository
	producer     kafka_infra.Producer
	pollInterval time.Duration
	pollTimeout  time.Duration
	logger       *zap.Logger

	stopOnce sync.Once
	stopped  chan struct{}
	done     chan struct{}
}

func NewProcessor(
	db *sql.DB,
	outboxRepo outbox_repo.OutboxRepository,
	producer kafka_infra.Producer,
	pollInterval time.Duration,
	pollTimeout time.Duration,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		db:           db,
		outboxRepo:   outboxRepo,
		producer:     producer,
		pollInterval: pollInterval,
		pollTimeout:  pollTimeout,
		logger:       logger.With(zap.String("component", "OutboxProcessor")),
		stopped:      make(chan struct{}),
		done:         make(chan struct{}),
	}
}

func (p *Processor) Start(ctx context.Context) {
	p.logger.Info("Starting outbox processor", zap.Duration("poll_interval", p.pollInterval))
	go func() {
		defer close(p.done)
		ticker := time.NewTicker(p.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopped:
				return
			case <-ticker.C:
				p.drain(ctx)
			}
		}
	}()
}

// Stop signals the poll loop and waits for the in-flight batch to finish.
func (p *Processor) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopped)
	})
	<-p.done
	p.logger.Info("Outbox processor stopped")
}

// drain publishes one batch. Pending rows are locked with SKIP LOCKED, so
// the transaction stays open across the produce calls; a message that fails
// to produce stays PENDING and is retried on a later tick.
func (p *Processor) drain(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.pollTimeout)
	defer cancel()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		p.logger.Error("Failed to begin outbox transaction", zap.Error(err))
		return
	}
	defer tx.Rollback()

	messages, err := p.outboxRepo.GetPendingMessages(ctx, tx, batchSize)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			p.logger.Error("Failed to get pending outbox messages", zap.Error(err))
		}
		return
	}
	if len(messages) == 0 {
		return
	}
	p.logger.Debug("Found pending outbox messages", zap.Int("count", len(messages)))

	sent := make([]string, 0, len(messages))
	for _, msg := range messages {
		if err := p.producer.Produce(ctx, []byte(msg.PaymentID), msg.Payload); err != nil {
			p.logger.Error("Failed to publish outbox message",
				zap.String("message_id", msg.ID),
				zap.String("payment_id", msg.PaymentID),
				zap.Error(err))
			continue
		}
		sent = append(sent, msg.ID)
	}
	if len(sent) == 0 {
		return
	}

	if err := p.outboxRepo.MarkMessagesAsSent(ctx, tx, sent); err != nil {
		p.logger.Error("Failed to mark outbox messages as sent", zap.Error(err))
		return
	}
	if err := tx.Commit(); err != nil {
		p.logger.Error("Failed to commit outbox transaction", zap.Error(err))
		return
	}
	p.logger.Info("Published outbox messages", zap.Int("count", len(sent)))
}
