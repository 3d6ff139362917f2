package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cobra-poc/messaging-bridge/internal/config"
	"github.com/cobra-poc/messaging-bridge/internal/model"
	"github.com/cobra-poc/messaging-bridge/internal/repository"
	"github.com/cobra-poc/messaging-bridge/internal/worker"
)

type Redeliverer interface {
	Redeliver(ctx context.Context, delivery model.ExternalDelivery) error
}

type Enqueuer interface {
	Enqueue(job worker.Job) error
}

// RedeliveryJob periodically re-queues failed outbound deliveries that still
// have attempts left.
type RedeliveryJob struct {
	deliveries  repository.ExternalDeliveryRepository
	redeliverer Redeliverer
	queue       Enqueuer
	interval    time.Duration
	maxAttempts int
	done        chan struct{}
}

func NewRedeliveryJob(
	deliveries repository.ExternalDeliveryRepository,
	redeliverer Redeliverer,
	queue Enqueuer,
	interval time.Duration,
	maxAttempts int,
) *RedeliveryJob {
	return &RedeliveryJob{
		deliveries:  deliveries,
		redeliverer: redeliverer,
		queue:       queue,
		interval:    interval,
		maxAttempts: maxAttempts,
		done:        make(chan struct{}),
	}
}

func (j *RedeliveryJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Int("maxAttempts", j.maxAttempts).Msg("redelivery job started")
}

func (j *RedeliveryJob) Stop() {
	close(j.done)
	log.Info().Msg("redelivery job stopped")
}

func (j *RedeliveryJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *RedeliveryJob) sweep() int {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	claimed, err := j.deliveries.ClaimRetryable(ctx, j.maxAttempts, config.RedeliveryMinAge, config.RedeliveryClaimTimeout, config.RedeliveryBatchSize)
	if err != nil {
		log.Error().Err(err).Msg("failed to claim retryable deliveries")
		return 0
	}

	queued := 0
	for i, d := range claimed {
		delivery := d
		err := j.queue.Enqueue(worker.Job{
			Name: "redeliver:" + delivery.ID,
			Run: func(ctx context.Context) error {
				return j.redeliverer.Redeliver(ctx, delivery)
			},
		})
		if errors.Is(err, worker.ErrQueueFull) || errors.Is(err, worker.ErrStopped) {
			log.Warn().Err(err).Int("remaining", len(claimed)-i).Msg("outbound queue unavailable, deferring redelivery")
			for _, rest := range claimed[i:] {
				j.release(ctx, rest.ID)
			}
			break
		}
		if err != nil {
			log.Error().Err(err).Str("deliveryId", delivery.ID).Msg("failed to queue redelivery")
			j.release(ctx, delivery.ID)
			continue
		}
		queued++
	}

	if queued > 0 {
		log.Info().Int("count", queued).Msg("queued failed deliveries for redelivery")
	}
	return queued
}

func (j *RedeliveryJob) release(ctx context.Context, id string) {
	if err := j.deliveries.ReleaseClaim(ctx, id); err != nil {
		log.Warn().Err(err).Str("deliveryId", id).Msg("failed to release redelivery claim")
	}
}
