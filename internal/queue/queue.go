package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"joke-bot/internal/config"
	"joke-bot/pkg/logger"

	"github.com/nats-io/nats.go"
)

const (
	SubmissionSubject = "jokes.submitted"
	OutboundSubject   = "telegram.send"
	ConsumerGroup     = "joke-bot"
)

type NATS struct {
	conn      *nats.Conn
	jetstream nats.JetStream
	cfg       config.NATSConfig
}

func New(cfg config.NATSConfig) (*NATS, error) {
	conn, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to get JetStream: %w", err)
	}

	n := &NATS{
		conn:      conn,
		jetstream: js,
		cfg:       cfg,
	}

	return n, nil
}

func (n *NATS) Close() {
	if n.conn != nil {
		n.conn.Close()
	}
}

// JokeSubmission is a joke entering the store from outside the add-joke
// conversation, e.g. the bulk importer. Tags arrive as names and are
// resolved (or created) by the consumer.
type JokeSubmission struct {
	Content  string   `json:"content"`
	Language string   `json:"language"`
	Tags     []string `json:"tags"`
	AuthorID int64    `json:"author_id,omitempty"`
}

func (n *NATS) PublishSubmission(ctx context.Context, sub *JokeSubmission) error {
	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("failed to marshal submission: %w", err)
	}

	_, err = n.jetstream.Publish(SubmissionSubject, data, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("failed to publish submission: %w", err)
	}

	logger.Debug("Joke submission published to queue",
		logger.String("language", sub.Language),
		logger.Int("length", len(sub.Content)),
	)

	return nil
}

// OutboundMessage is a fire-and-forget text notice to a chat. Joke
// deliveries do not go through here: they need the resulting message id
// for bookkeeping and are sent directly.
type OutboundMessage struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

func (n *NATS) PublishOutbound(ctx context.Context, msg *OutboundMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal outbound message: %w", err)
	}

	_, err = n.jetstream.Publish(OutboundSubject, data, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("failed to publish outbound message: %w", err)
	}

	logger.Debug("Outbound message published to queue",
		logger.Int64("chat_id", msg.ChatID),
	)

	return nil
}

func (n *NATS) ConsumeSubmissions(ctx context.Context, handler func(*JokeSubmission) error) error {
	sub, err := n.jetstream.PullSubscribe(
		SubmissionSubject,
		ConsumerGroup,
		nats.BindStream(n.cfg.StreamName),
	)
	if err != nil {
		return fmt.Errorf("failed to subscribe to submissions: %w", err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			msgs, err := sub.Fetch(10, nats.MaxWait(500*time.Millisecond))
			if err != nil {
				if err == nats.ErrTimeout {
					continue
				}
				return fmt.Errorf("failed to fetch messages: %w", err)
			}

			for _, msg := range msgs {
				var submission JokeSubmission
				if err := json.Unmarshal(msg.Data, &submission); err != nil {
					logger.Error("Failed to unmarshal submission",
						logger.Err(err),
					)
					msg.Nak()
					continue
				}

				if err := handler(&submission); err != nil {
					logger.Error("Failed to process submission",
						logger.Err(err),
					)
					msg.Nak()
					continue
				}

				msg.Ack()
			}
		}
	}
}

func (n *NATS) ConsumeOutbound(ctx context.Context, handler func(*OutboundMessage) error) error {
	sub, err := n.jetstream.PullSubscribe(
		OutboundSubject,
		ConsumerGroup,
		nats.BindStream(n.cfg.StreamName),
	)
	if err != nil {
		return fmt.Errorf("failed to subscribe to outbound messages: %w", err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			msgs, err := sub.Fetch(10, nats.MaxWait(500*time.Millisecond))
			if err != nil {
				if err == nats.ErrTimeout {
					continue
				}
				return fmt.Errorf("failed to fetch messages: %w", err)
			}

			for _, msg := range msgs {
				var outbound OutboundMessage
				if err := json.Unmarshal(msg.Data, &outbound); err != nil {
					logger.Error("Failed to unmarshal outbound message",
						logger.Err(err),
					)
					msg.Nak()
					continue
				}

				if err := handler(&outbound); err != nil {
					logger.Error("Failed to send outbound message",
						logger.Err(err),
					)
					msg.Nak()
					continue
				}

				msg.Ack()
			}
		}
	}
}
