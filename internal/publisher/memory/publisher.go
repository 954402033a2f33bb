// Package memory provides an in-process publisher used for local runs and tests.
// Payloads are JSON-encoded exactly as the Pub/Sub publisher sends them.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("publisher closed")

// Message is one recorded publish.
type Message struct {
	ID    string
	Topic string
	Data  []byte
}

// Decode unmarshals the message body into v.
func (m Message) Decode(v any) error {
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("decode message %s: %w", m.ID, err)
	}
	return nil
}

// Publisher records encoded messages per topic.
type Publisher struct {
	mu      sync.RWMutex
	log     []Message
	byTopic map[string]int
	closed  bool
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{byTopic: make(map[string]int)}
}

// Publish encodes payload and returns a sequential message ID.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", ErrClosed
	}
	p.byTopic[topic]++
	msg := Message{ID: fmt.Sprintf("%s-%d", topic, p.byTopic[topic]), Topic: topic, Data: data}
	p.log = append(p.log, msg)
	return msg.ID, nil
}

// Messages returns the recorded messages of topic in publish order.
func (p *Publisher) Messages(topic string) []Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Message, 0, p.byTopic[topic])
	for _, m := range p.log {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

// Len reports how many messages were published across all topics.
func (p *Publisher) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.log)
}

// Close rejects later publishes.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
