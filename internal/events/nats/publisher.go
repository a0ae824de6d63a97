// Package nats publishes saga lifecycle events to a NATS broker. Each event
// goes out on a subject equal to its event type, so consumers can subscribe
// to "saga.*" or to a single transition.
package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/mvaldes/food-ordering-sagas/internal/saga"
)

type Publisher struct {
	conn *nats.Conn
}

var _ saga.EventPublisher = (*Publisher)(nil)

// NewPublisher connects to the broker at url. An empty url falls back to
// nats.DefaultURL.
func NewPublisher(url string) (*Publisher, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	conn, err := nats.Connect(url, nats.Name("food-ordering-sagas"))
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", url, err)
	}
	return &Publisher{conn: conn}, nil
}

// NewPublisherWithConn wraps an existing connection; the caller keeps
// ownership of it.
func NewPublisherWithConn(conn *nats.Conn) *Publisher {
	return &Publisher{conn: conn}
}

func (p *Publisher) Publish(_ context.Context, event saga.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling %s event: %w", event.Type, err)
	}
	if err := p.conn.Publish(string(event.Type), payload); err != nil {
		return fmt.Errorf("publishing %s event: %w", event.Type, err)
	}
	return nil
}

func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Drain()
	}
}
