// Package poller consumes checkout-completed events and drops the session
// whose cart was checked out.
package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fjod/commerce-engine/pkg/logger"
	"github.com/segmentio/kafka-go"
)

const (
	Topic   = "checkout-outbox"
	GroupID = "cart-service-consumer"
)

// SessionDeleter removes a session once its cart has been checked out.
type SessionDeleter interface {
	DeleteSession(ctx context.Context, sessionID string) error
}

// MessageReader is the part of *kafka.Reader the poller uses.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type checkoutCompleted struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

// defaultRetryDelay is how long Run waits after a failed read.
const defaultRetryDelay = time.Second

type Poller struct {
	sessions   SessionDeleter
	reader     MessageReader
	log        *logger.Logger
	retryDelay time.Duration
}

func NewPoller(sessions SessionDeleter, log *logger.Logger, brokers ...string) *Poller {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    Topic,
		GroupID:  GroupID,
		MaxBytes: 10e6, // 10MB
	})
	return NewPollerWithReader(sessions, reader, log)
}

func NewPollerWithReader(sessions SessionDeleter, reader MessageReader, log *logger.Logger) *Poller {
	return &Poller{
		sessions:   sessions,
		reader:     reader,
		log:        log.With("component", "poller", "topic", Topic),
		retryDelay: defaultRetryDelay,
	}
}

// Run consumes until ctx is done or the reader is closed. A failed read is
// retried after a delay.
func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		err := p.consumeOne(ctx)
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			p.log.Info("reader closed, stopping consumer")
			return
		}
		p.log.Error("error reading message", "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.retryDelay):
		}
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.log.Error("error closing reader", "error", err)
	}
}

// consumeOne handles one message. It returns only read errors; a message
// that cannot be handled is logged and skipped.
func (p *Poller) consumeOne(ctx context.Context) error {
	m, err := p.reader.ReadMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return err
	}

	sessionID, err := parseSessionID(m.Value)
	if err != nil {
		p.log.Warn("skipping checkout event", "offset", m.Offset, "error", err)
		return nil
	}

	if err := p.sessions.DeleteSession(ctx, sessionID); err != nil {
		p.log.Error("failed to delete session", "session_id", sessionID, "error", err)
		return nil
	}
	p.log.Debug("session cleared after checkout", "session_id", sessionID)
	return nil
}

// parseSessionID prefers session_id and falls back to user_id for events
// written before sessions were keyed separately.
func parseSessionID(value []byte) (string, error) {
	var event checkoutCompleted
	if err := json.Unmarshal(value, &event); err != nil {
		return "", fmt.Errorf("error parsing message: %w", err)
	}
	switch {
	case event.SessionID != "":
		return event.SessionID, nil
	case event.UserID != "":
		return event.UserID, nil
	default:
		return "", errors.New("missing or invalid session_id")
	}
}
