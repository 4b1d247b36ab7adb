package voidbots

import (
	"log"
	"sync"
	"time"

	"github.com/fractalmind-ai/voidbots/pkg/protocol"
)

// Vote is one authenticated vote notification.
type Vote struct {
	Payload    protocol.Payload `json:"payload"`
	ReceivedAt time.Time        `json:"received_at"`
}

// User returns the voter's id from the payload, or "".
func (v Vote) User() string {
	return v.Payload.Get("user").String()
}

// Bot returns the voted bot's id from the payload, or "".
func (v Vote) Bot() string {
	return v.Payload.Get("bot").String()
}

type emitter struct {
	mu          sync.RWMutex
	posted      []func()
	failed      []func(error)
	voted       []func(Vote)
	subscribers []func(protocol.Message)
	logger      *log.Logger
}

func newEmitter() *emitter {
	return &emitter{logger: log.Default()}
}

// OnPosted registers fn for every successful autopost.
func (c *Client) OnPosted(fn func()) {
	c.events.mu.Lock()
	c.events.posted = append(c.events.posted, fn)
	c.events.mu.Unlock()
}

// OnError registers fn for autopost and webhook failures.
func (c *Client) OnError(fn func(error)) {
	c.events.mu.Lock()
	c.events.failed = append(c.events.failed, fn)
	c.events.mu.Unlock()
}

// OnVoted registers fn for every authenticated vote.
func (c *Client) OnVoted(fn func(Vote)) {
	c.events.mu.Lock()
	c.events.voted = append(c.events.voted, fn)
	c.events.mu.Unlock()
}

// Subscribe registers fn for every event, as a protocol message.
func (c *Client) Subscribe(fn func(protocol.Message)) {
	c.events.mu.Lock()
	c.events.subscribers = append(c.events.subscribers, fn)
	c.events.mu.Unlock()
}

func (e *emitter) emitPosted() {
	e.mu.RLock()
	handlers := append([]func(){}, e.posted...)
	subs := append([]func(protocol.Message){}, e.subscribers...)
	e.mu.RUnlock()

	for _, fn := range handlers {
		fn()
	}
	e.publish(subs, protocol.Message{Kind: protocol.MessageKindEvent, Action: protocol.ActionPosted})
}

func (e *emitter) emitError(err error) {
	e.mu.RLock()
	handlers := append([]func(error){}, e.failed...)
	subs := append([]func(protocol.Message){}, e.subscribers...)
	e.mu.RUnlock()

	if len(handlers) == 0 {
		e.logger.Printf("voidbots error: %v", err)
	}
	for _, fn := range handlers {
		fn(err)
	}
	e.publish(subs, protocol.Message{Kind: protocol.MessageKindEvent, Action: protocol.ActionError, Error: err.Error()})
}

func (e *emitter) emitVoted(vote Vote) {
	e.mu.RLock()
	handlers := append([]func(Vote){}, e.voted...)
	subs := append([]func(protocol.Message){}, e.subscribers...)
	e.mu.RUnlock()

	for _, fn := range handlers {
		fn(vote)
	}
	e.publish(subs, protocol.Message{Kind: protocol.MessageKindEvent, Action: protocol.ActionVoted, Data: vote})
}

func (e *emitter) publish(subs []func(protocol.Message), msg protocol.Message) {
	for _, fn := range subs {
		fn(msg)
	}
}
