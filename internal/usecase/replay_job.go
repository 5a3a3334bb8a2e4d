package usecase

import (
	"context"
	"encoding/json"

	"PriceFlow/internal/domain/models"
	drepo "PriceFlow/internal/domain/repository"
	applogger "PriceFlow/pkg/logger"
	"PriceFlow/pkg/queue"
)

// ReplayJob republishes price events that were parked on the replay
// queue after a failed broker delivery. The publisher handed to it must
// not enqueue on failure itself, the queue's own retry schedule drives
// further attempts.
type ReplayJob struct {
	msgType string
	pub     drepo.Publisher
	metrics drepo.Metrics
	log     *applogger.Logger
}

// NewReplayJob creates a replay job for the given message type.
func NewReplayJob(msgType string, pub drepo.Publisher, metrics drepo.Metrics, log *applogger.Logger) *ReplayJob {
	return &ReplayJob{msgType: msgType, pub: pub, metrics: metrics, log: log}
}

func (j *ReplayJob) Type() string {
	return j.msgType
}

func (j *ReplayJob) Handle(ctx context.Context, payload json.RawMessage) error {
	e, err := queue.Decode[models.PriceEvent](payload)
	if err != nil {
		j.metrics.RecordError("replay_decode")
		return err
	}

	if err := j.pub.Publish(ctx, e); err != nil {
		return err
	}

	j.log.Info("replayed price event",
		applogger.String("symbol", e.Symbol),
		applogger.String("raw_response_id", e.RawResponseID),
	)
	j.metrics.RecordMessageSent("replay", e.Symbol)
	return nil
}

var _ queue.Job = (*ReplayJob)(nil)
