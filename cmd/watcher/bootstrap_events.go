package main

import (
	"context"

	config "github.com/NordCoder/Feedwatch/internal/config/watcher"
	"github.com/NordCoder/Feedwatch/internal/domain/events"
	"github.com/NordCoder/Feedwatch/internal/obs/retry"
	"github.com/NordCoder/Feedwatch/internal/outbox"
	kafkaRepo "github.com/NordCoder/Feedwatch/internal/repository/kafka"
	pg "github.com/NordCoder/Feedwatch/internal/repository/postgres"
	"go.uber.org/zap"
)

// eventSink is where watch events go. With the outbox enabled the scheduler
// writes to postgres and the runner relays rows to kafka.
type eventSink struct {
	pub    events.Publisher
	runner *outbox.Runner
	close  func()
}

func initEvents(ctx context.Context, cfg *config.Config, db *pg.DB, l *zap.Logger) *eventSink {
	if !cfg.Kafka.Enable {
		l.Info("watch events disabled")
		return &eventSink{pub: events.Nop{}, close: func() {}}
	}

	_ = kafkaRepo.EnsureTopic(ctx, cfg.Kafka.Brokers, kafkaRepo.TopicSpec{Name: cfg.Kafka.EventsTopic}, l)
	prod := kafkaRepo.NewProducer(kafkaRepo.ProducerConfig{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.EventsTopic,
	}).WithLogger(l)
	direct := kafkaRepo.NewWatchEvents(prod)
	sink := &eventSink{pub: direct, close: func() { _ = prod.Close() }}

	if cfg.Outbox.Enable && db != nil {
		repo := pg.NewOutboxRepo(db)
		sink.pub = outbox.NewPublisher(repo)
		sink.runner = outbox.NewOutboxRunner(l, repo,
			outbox.MakeGlobalOutboxHandler(direct, retry.DefaultKafkaPolicy(l)),
			outbox.Config{
				Workers:       cfg.Outbox.Workers,
				BatchSize:     cfg.Outbox.BatchSize,
				WaitTime:      cfg.Outbox.WaitTime,
				InProgressTTL: cfg.Outbox.InProgressTTL,
				Retention:     cfg.Outbox.Retention,
			})
		l.Info("watch events via outbox", zap.String("topic", cfg.Kafka.EventsTopic))
	} else {
		l.Info("watch events via kafka", zap.String("topic", cfg.Kafka.EventsTopic))
	}
	return sink
}

func initControlConsumer(ctx context.Context, cfg *config.Config, l *zap.Logger) *kafkaRepo.Consumer {
	if !cfg.Kafka.Enable || cfg.Kafka.ControlTopic == "" {
		return nil
	}
	return kafkaRepo.BootstrapConsumer(ctx, &kafkaRepo.ConsumerConfig{
		Brokers: cfg.Kafka.Brokers,
		GroupID: cfg.Kafka.GroupID,
		Topic:   cfg.Kafka.ControlTopic,
		Logger:  l,
	}, kafkaRepo.TopicSpec{}, l)
}
