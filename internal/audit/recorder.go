package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"insights-service/internal/bucketing"
	"insights-service/internal/client"
	"insights-service/internal/model"
)

const indexPrefix = "auth-events-"

// Recorder writes auth events to Elasticsearch and publishes them to
// Kafka. Both sinks are best-effort: losing an audit record must never
// fail a login, so errors are logged and swallowed. Either client may
// be nil when the dependency is unavailable.
type Recorder struct {
	es      *client.ESClient
	kafka   *client.KafkaProducer
	buckets *bucketing.Manager
	logger  *zap.Logger
}

func NewRecorder(es *client.ESClient, kafka *client.KafkaProducer, buckets *bucketing.Manager, logger *zap.Logger) *Recorder {
	return &Recorder{
		es:      es,
		kafka:   kafka,
		buckets: buckets,
		logger:  logger,
	}
}

// Record fills in the bucket/date fields and ships the event. The
// caller's context deadline is honored but a short floor is applied so
// a stalled sink cannot hold a request hostage.
func (r *Recorder) Record(ctx context.Context, event model.AuthEvent) {
	event.EventBucket = r.buckets.EventBucket(event.EmailKey)
	event.EventDate = r.buckets.DateBucket()
	if event.EventTime.IsZero() {
		event.EventTime = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if r.es != nil {
		if err := r.es.Index(ctx, indexPrefix+event.EventDate, event); err != nil {
			r.logger.Warn("Failed to index auth event",
				zap.String("event_type", event.EventType),
				zap.Error(err))
		}
	}

	if r.kafka != nil {
		if err := r.kafka.Publish(ctx, event.EmailKey, event); err != nil {
			r.logger.Warn("Failed to publish auth event",
				zap.String("event_type", event.EventType),
				zap.Error(err))
		}
	}
}
