package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-timetable-api/internal/models"
)

// TimetableEvent announces that a batch committed placements or finished.
type TimetableEvent struct {
	Type       string               `json:"type"`
	BatchID    string               `json:"batch_id"`
	SemesterID string               `json:"semester_id"`
	Kind       models.TimetableKind `json:"kind"`
	Status     models.BatchStatus   `json:"status"`
	Placements int                  `json:"placements"`
	Failures   int                  `json:"failures"`
	OccurredAt time.Time            `json:"occurred_at"`
}

const eventTimetableChanged = "timetable.changed"

// TimetableNotifier receives committed timetable changes. Delivery is best effort.
type TimetableNotifier interface {
	TimetableChanged(ctx context.Context, event TimetableEvent) error
}

// NewTimetableNotifier publishes on Redis when a client is configured and discards events otherwise.
func NewTimetableNotifier(client *redis.Client, channel string, logger *zap.Logger) TimetableNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if client == nil || channel == "" {
		return nopNotifier{}
	}
	return &RedisNotifier{client: client, channel: channel, logger: logger}
}

// RedisNotifier publishes events as JSON on a pub/sub channel.
type RedisNotifier struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// TimetableChanged publishes the event.
func (n *RedisNotifier) TimetableChanged(ctx context.Context, event TimetableEvent) error {
	if event.Type == "" {
		event.Type = eventTimetableChanged
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal timetable event: %w", err)
	}
	receivers, err := n.client.Publish(ctx, n.channel, payload).Result()
	if err != nil {
		return fmt.Errorf("publish timetable event: %w", err)
	}
	n.logger.Debug("timetable event published", zap.String("batch_id", event.BatchID), zap.Int64("receivers", receivers))
	return nil
}

type nopNotifier struct{}

func (nopNotifier) TimetableChanged(context.Context, TimetableEvent) error { return nil }
