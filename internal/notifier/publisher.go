package notifier

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/rickgao/replication-worker/internal/config"
)

// NewPublisher builds the message publisher for the configured backend.
// The gochannel publisher is also a message.Subscriber and delivers in
// publish order.
func NewPublisher(cfg config.NotifierConfig, logger *slog.Logger) (message.Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	wmLogger := watermill.NewSlogLogger(logger)

	switch cfg.Backend {
	case config.NotifierGoChannel:
		return gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            256,
			BlockPublishUntilSubscriberAck: true,
		}, wmLogger), nil

	case config.NotifierAMQP:
		pub, err := amqp.NewPublisher(amqp.NewDurablePubSubConfig(cfg.AMQPURL, nil), wmLogger)
		if err != nil {
			return nil, fmt.Errorf("create amqp publisher: %w", err)
		}
		return pub, nil
	}

	return nil, fmt.Errorf("unknown notifier backend %q", cfg.Backend)
}
