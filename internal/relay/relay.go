// Package relay carries the block and pending-transaction feeds over NATS so
// the watchers and the classifier can run as separate processes.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"dexwatch/internal/broadcast"
)

const (
	DefaultSubjectPrefix = "eth"

	msgBuffer = 1024
)

// TxSubject and BlockSubject name the feeds under a prefix.
func TxSubject(prefix string) string    { return subject(prefix, "txs") }
func BlockSubject(prefix string) string { return subject(prefix, "blocks") }

func subject(prefix, feed string) string {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return prefix + "." + feed
}

// Connect dials NATS and keeps reconnecting for the life of the process.
func Connect(url, name string, logger *zap.Logger) (*nats.Conn, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.Timeout(10*time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return conn, nil
}

// Publisher is the publishing side of a NATS connection.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Forward publishes every message from rx as JSON on subject. It returns nil
// when the channel is closed and drained.
func Forward[T any](ctx context.Context, rx *broadcast.Receiver[T], pub Publisher, subject string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	for {
		v, err := rx.Recv(ctx)
		if err != nil {
			var lagged *broadcast.LaggedError
			switch {
			case errors.As(err, &lagged):
				logger.Warn("relay lagged", zap.String("subject", subject), zap.Uint64("skipped", lagged.Skipped))
				continue
			case errors.Is(err, broadcast.ErrClosed):
				return nil
			default:
				return err
			}
		}

		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal %s message: %w", subject, err)
		}
		if err := pub.Publish(subject, data); err != nil {
			return fmt.Errorf("publish %s: %w", subject, err)
		}
	}
}

// Subscriber republishes decoded messages of one subject on a local channel.
type Subscriber[T any] struct {
	subject string
	queue   string
	out     *broadcast.Channel[T]
	logger  *zap.Logger
}

// NewSubscriber builds a subscriber. A non-empty queue joins a queue group so
// several processors can share the feed.
func NewSubscriber[T any](subject, queue string, out *broadcast.Channel[T], logger *zap.Logger) *Subscriber[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Subscriber[T]{
		subject: subject,
		queue:   queue,
		out:     out,
		logger:  logger.With(zap.String("subject", subject)),
	}
}

// Run subscribes on conn and forwards messages until ctx is done or the local
// channel is closed.
func (s *Subscriber[T]) Run(ctx context.Context, conn *nats.Conn) error {
	msgs := make(chan *nats.Msg, msgBuffer)
	var (
		sub *nats.Subscription
		err error
	)
	if s.queue != "" {
		sub, err = conn.ChanQueueSubscribe(s.subject, s.queue, msgs)
	} else {
		sub, err = conn.ChanSubscribe(s.subject, msgs)
	}
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", s.subject, err)
	}
	defer sub.Unsubscribe()

	s.logger.Info("relay subscribed", zap.String("queue", s.queue))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-msgs:
			if err := s.handle(msg); err != nil {
				return err
			}
		}
	}
}

// handle decodes one message. Malformed payloads are skipped.
func (s *Subscriber[T]) handle(msg *nats.Msg) error {
	var v T
	if err := json.Unmarshal(msg.Data, &v); err != nil {
		s.logger.Debug("skipping malformed relay message", zap.Int("bytes", len(msg.Data)), zap.Error(err))
		return nil
	}
	if _, err := s.out.Send(v); err != nil {
		return fmt.Errorf("relay %s: %w", s.subject, err)
	}
	return nil
}
