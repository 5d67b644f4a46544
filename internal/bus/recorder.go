package bus

import (
	"context"
	"sync"
)

// Published is one message captured by a Recorder.
type Published struct {
	Topic   string
	Key     string
	Message Message
}

// Recorder is a Publisher test double capturing messages in publish order.
type Recorder struct {
	mu        sync.Mutex
	published []Published
}

// NewRecorder builds an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Publish captures the message.
func (r *Recorder) Publish(_ context.Context, topic, key string, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, Published{Topic: topic, Key: key, Message: msg})
	return nil
}

// All returns every captured message in publish order.
func (r *Recorder) All() []Published {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]Published, len(r.published))
	copy(cp, r.published)
	return cp
}

// Messages returns the messages published to one topic, in order.
func (r *Recorder) Messages(topic string) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Message
	for _, p := range r.published {
		if p.Topic == topic {
			out = append(out, p.Message)
		}
	}
	return out
}

// ByKey returns the messages published to one topic under one key, in order.
func (r *Recorder) ByKey(topic, key string) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Message
	for _, p := range r.published {
		if p.Topic == topic && p.Key == key {
			out = append(out, p.Message)
		}
	}
	return out
}

// Count returns how many messages were published to a topic.
func (r *Recorder) Count(topic string) int {
	return len(r.Messages(topic))
}

// Reset discards everything captured so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = nil
}
