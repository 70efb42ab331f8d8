package repository

import (
	"context"

	"OVIP/internal/domain/models"
	domrepo "OVIP/internal/domain/repository"
	pkgkafka "OVIP/pkg/kafka"
)

// KafkaFeaturePublisher publishes pipeline summaries keyed by run id.
type KafkaFeaturePublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaFeaturePublisher(producer *pkgkafka.Producer, topic string) *KafkaFeaturePublisher {
	return &KafkaFeaturePublisher{producer: producer, topic: topic}
}

func (p *KafkaFeaturePublisher) PublishSnapshot(ctx context.Context, s *models.PipelineSummary) error {
	return p.producer.Publish(ctx, p.topic, []byte(s.RunID), s)
}

func (p *KafkaFeaturePublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

var _ domrepo.FeaturePublisher = (*KafkaFeaturePublisher)(nil)
