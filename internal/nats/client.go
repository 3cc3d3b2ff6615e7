// Package nats wraps the JetStream connection that carries SWIM FNS
// NOTAM documents. The gateway publishes each AIXM document as one
// message; consumers read them through a durable consumer so that a
// restart resumes where the previous run stopped.
package nats

import (
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/openaero/airstate/internal/logging"
)

const (
	// SubjectNotices carries raw AIXM NOTAM documents from the SWIM gateway.
	SubjectNotices = "swim.fns.notam"

	// StreamNotices is the JetStream stream backing SubjectNotices.
	StreamNotices = "SWIM_FNS"

	// DefaultDurable names the durable consumer used by the notice feed.
	DefaultDurable = "airstate-notices"
)

// Client represents a NATS client bound to the NOTAM stream.
type Client struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// New connects to NATS and ensures the NOTAM stream exists. Extra
// options are passed straight to nats.Connect, which lets callers
// disable the library's internal reconnect loop when they supervise
// the connection themselves.
func New(url string, opts ...nats.Option) (*Client, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	// Create stream if it doesn't exist
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     StreamNotices,
		Subjects: []string{SubjectNotices},
		Storage:  nats.FileStorage,
		MaxAge:   24 * time.Hour,
	})
	if err != nil && !strings.Contains(err.Error(), "stream name already in use") {
		nc.Close()
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	return &Client{
		conn: nc,
		js:   js,
	}, nil
}

// PublishNotice publishes a raw AIXM document to the NOTAM stream.
func (c *Client) PublishNotice(doc []byte) error {
	_, err := c.js.Publish(SubjectNotices, doc)
	if err != nil {
		return fmt.Errorf("failed to publish notice: %w", err)
	}

	return nil
}

// SubscribeNotices delivers raw AIXM documents to handler through a
// durable push consumer. Every message is acknowledged after the
// handler returns, including documents the handler cannot decode, so
// a poison document is never redelivered.
//
// The subscription is never drained or unsubscribed: either would
// delete the durable consumer on the server. Shut down by closing the
// connection; unacked in-flight documents are redelivered on restart.
func (c *Client) SubscribeNotices(durable string, handler func(data []byte)) error {
	if durable == "" {
		durable = DefaultDurable
	}

	_, err := c.js.Subscribe(SubjectNotices, func(msg *nats.Msg) {
		handler(msg.Data)
		if err := msg.Ack(); err != nil {
			logging.Warn().Err(err).Msg("Failed to ack notice message")
		}
	}, nats.Durable(durable), nats.ManualAck())
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	return nil
}

// Closed reports whether the underlying connection has been closed.
func (c *Client) Closed() bool {
	return c.conn == nil || c.conn.IsClosed()
}

// Close closes the NATS connection.
func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}
