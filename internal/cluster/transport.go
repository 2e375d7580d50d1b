package cluster

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Transport is the pub/sub surface the node needs. NatsTransport is the
// production implementation.
type Transport interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, handler func(data []byte)) (func(), error)
	Close()
}

// NatsTransport is a client connection to an external NATS server.
type NatsTransport struct {
	conn *nats.Conn
	log  *zap.Logger
}

// Dial connects to url. Reconnects are unlimited; drops are logged.
func Dial(url, name string, log *zap.Logger) (*NatsTransport, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	log.Info("nats connected", zap.String("url", conn.ConnectedUrl()))
	return &NatsTransport{conn: conn, log: log}, nil
}

// Publish sends a message to the given subject.
func (t *NatsTransport) Publish(subject string, data []byte) error {
	return t.conn.Publish(subject, data)
}

// Subscribe creates a subscription on the given subject.
// Returns an unsubscribe function to remove the subscription.
func (t *NatsTransport) Subscribe(subject string, handler func(data []byte)) (func(), error) {
	sub, err := t.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return func() {
		if err := sub.Unsubscribe(); err != nil {
			t.log.Debug("nats unsubscribe", zap.String("subject", subject), zap.Error(err))
		}
	}, nil
}

// Close flushes pending publishes and closes the connection.
func (t *NatsTransport) Close() {
	if err := t.conn.Drain(); err != nil {
		t.log.Debug("nats drain", zap.Error(err))
		t.conn.Close()
	}
}
