package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// SubscribeOptions selects which events a subscription receives.
type SubscribeOptions struct {
	Network string // empty matches all networks
	RunID   string // empty matches all runs

	// Durable names a consumer that survives restarts. Empty creates an ephemeral one.
	Durable string

	// DeliverAll replays retained events instead of only new ones.
	DeliverAll bool
}

// Subscribe streams transfer events to handler until ctx is done.
// Messages that fail to decode are logged, acked and skipped.
func Subscribe(ctx context.Context, natsURL string, opts SubscribeOptions, logger *slog.Logger, handler func(*TransferEvent) error) error {
	nc, err := nats.Connect(natsURL, nats.Name("tronsend-subscriber"))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	consumerConfig := jetstream.ConsumerConfig{
		FilterSubject: FilterSubject(opts.Network, opts.RunID),
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	}
	if opts.DeliverAll {
		consumerConfig.DeliverPolicy = jetstream.DeliverAllPolicy
	}
	if opts.Durable != "" {
		consumerConfig.Durable = opts.Durable
		consumerConfig.Name = opts.Durable
	}

	cons, err := js.CreateOrUpdateConsumer(ctx, StreamName, consumerConfig)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	msgChan := make(chan jetstream.Msg, 10)
	cc, err := cons.Consume(func(msg jetstream.Msg) {
		select {
		case msgChan <- msg:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	defer cc.Stop()

	for {
		select {
		case msg := <-msgChan:
			var event TransferEvent
			if err := json.Unmarshal(msg.Data(), &event); err != nil {
				logger.WarnContext(ctx, "skipping malformed transfer event", "subject", msg.Subject(), "error", err)
				_ = msg.Ack()
				continue
			}
			if err := handler(&event); err != nil {
				return err
			}
			_ = msg.Ack()

		case <-ctx.Done():
			return nil
		}
	}
}
