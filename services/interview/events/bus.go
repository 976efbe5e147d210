// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package events implements the in-process publish/subscribe bus used to
// decouple session lifecycle notifications from the turn pipeline.
//
// Delivery is best-effort synchronous. Callbacks run outside the bus lock,
// so a subscriber may call Subscribe/Unsubscribe from inside its callback
// without deadlocking. A panicking subscriber is logged and does not abort
// delivery to the remaining subscribers.
package events

import (
	"log/slog"
	"sync"
	"time"
)

// EventType names a category of session event.
type EventType string

const (
	SessionStart      EventType = "SESSION_START"
	SessionEnd        EventType = "SESSION_END"
	SessionReset      EventType = "SESSION_RESET"
	AgentLoad         EventType = "AGENT_LOAD"
	UserMessage       EventType = "USER_MESSAGE"
	AssistantResponse EventType = "ASSISTANT_RESPONSE"
	ErrorEvent        EventType = "ERROR"

	// Wildcard subscribes a callback to every event type.
	Wildcard EventType = "*"
)

// Event is one published occurrence. Data is owned by the publisher and must
// not be mutated by subscribers.
type Event struct {
	Type      EventType
	SessionID string
	Data      map[string]any
	Timestamp time.Time
}

// Callback receives published events. Callbacks must be safe for concurrent
// invocation; the bus makes no ordering promise across sessions.
type Callback func(Event)

// historyLimit bounds the retained event ring.
const historyLimit = 1000

type subscriber struct {
	id int
	cb Callback
}

// Bus is a thread-safe in-process pub/sub bus with bounded history.
type Bus struct {
	mu      sync.Mutex
	nextID  int
	subs    map[EventType][]subscriber
	history []Event
}

// NewBus returns an empty bus ready for use.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]subscriber)}
}

// Subscribe registers cb for events of type t and returns a subscription id
// for Unsubscribe. Use Wildcard to receive all events.
func (b *Bus) Subscribe(t EventType, cb Callback) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.subs[t] = append(b.subs[t], subscriber{id: b.nextID, cb: cb})
	return b.nextID
}

// Unsubscribe removes the subscription with the given id from type t.
// Unknown ids are ignored.
func (b *Bus) Unsubscribe(t EventType, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[t]
	for i, s := range subs {
		if s.id == id {
			b.subs[t] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Publish appends the event to history and delivers it synchronously to the
// subscribers of its type plus wildcard subscribers. The subscriber list is
// snapshotted under the lock; callbacks execute outside it.
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	b.mu.Lock()
	b.history = append(b.history, ev)
	if len(b.history) > historyLimit {
		b.history = b.history[len(b.history)-historyLimit:]
	}
	targets := make([]subscriber, 0, len(b.subs[ev.Type])+len(b.subs[Wildcard]))
	targets = append(targets, b.subs[ev.Type]...)
	if ev.Type != Wildcard {
		targets = append(targets, b.subs[Wildcard]...)
	}
	b.mu.Unlock()

	for _, s := range targets {
		b.deliver(s, ev)
	}
}

func (b *Bus) deliver(s subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event subscriber panicked",
				"event_type", string(ev.Type),
				"session_id", ev.SessionID,
				"panic", r)
		}
	}()
	s.cb(ev)
}

// History returns a copy of the retained events, oldest first.
func (b *Bus) History() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.history))
	copy(out, b.history)
	return out
}

// SubscriberCount returns the number of subscriptions for type t.
func (b *Bus) SubscriberCount(t EventType) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[t])
}
