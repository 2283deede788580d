package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Memory is an in-process Cache and Publisher for the CLI and tests.
type Memory struct {
	mu        sync.Mutex
	items     map[string][]byte
	published []Message
}

type Message struct {
	Channel string
	Payload []byte
}

func NewMemory() *Memory {
	return &Memory{items: map[string][]byte{}}
}

func (m *Memory) GetJSON(_ context.Context, key string, dst any) (bool, error) {
	m.mu.Lock()
	b, ok := m.items[key]
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (m *Memory) SetJSON(_ context.Context, key string, val any, _ time.Duration) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.items[key] = b
	m.mu.Unlock()
	return nil
}

func (m *Memory) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.items, k)
	}
	return nil
}

func (m *Memory) PublishJSON(_ context.Context, channel string, val any) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.published = append(m.published, Message{Channel: channel, Payload: b})
	m.mu.Unlock()
	return nil
}

// Messages returns a copy of everything published on channel.
func (m *Memory) Messages(channel string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Message
	for _, msg := range m.published {
		if msg.Channel == channel {
			out = append(out, msg)
		}
	}
	return out
}
