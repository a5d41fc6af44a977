package kafka

import (
	"context"

	"go.uber.org/zap"
)

// BootstrapConsumer makes sure the topic exists before building a reader
// for it. Topic creation failures are logged, not fatal.
func BootstrapConsumer(ctx context.Context, cfg *ConsumerConfig, spec TopicSpec, logger *zap.Logger) *Consumer {
	spec.Name = cfg.Topic
	_ = EnsureTopic(ctx, cfg.Brokers, spec, logger)
	return NewConsumer(cfg)
}
