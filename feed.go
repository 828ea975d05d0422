/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

const (
	TableRooms       = "rooms"
	TableRoomPlayers = "room_players"
)

type ChangeEvent string

const (
	EventInsert ChangeEvent = "INSERT"
	EventUpdate ChangeEvent = "UPDATE"
	EventDelete ChangeEvent = "DELETE"
)

// Change is one row-level event. Room is set for the rooms table and
// Player for room_players. For deletes they carry the old row, which may be
// partial.
type Change struct {
	Topic  string      `json:"topic"`
	Table  string      `json:"table"`
	Event  ChangeEvent `json:"event"`
	Room   *Room       `json:"room,omitempty"`
	Player *RoomPlayer `json:"player,omitempty"`
}

func roomTopic(code string) string {
	return "room-" + code
}

// Feed delivers Changes published on a topic to every current subscriber of
// that topic. Delivery is at most once and may drop changes for subscribers
// that fall behind, in which case their channel is closed.
type Feed interface {
	Publish(ctx context.Context, c Change) error
	// Subscribe returns a channel of changes and a function that ends the
	// subscription. The channel is closed once the subscription ends, when
	// ctx is done, or when the subscriber falls too far behind.
	Subscribe(ctx context.Context, topic string) (<-chan Change, func(), error)
	Close() error
}

func openFeed(ctx context.Context, cfg *Config) (Feed, error) {
	switch strings.ToLower(cfg.feed) {
	case "memory":
		return newMemoryFeed(), nil
	case "redis":
		return openRedisFeed(ctx, cfg.redisURL)
	default:
		return nil, fmt.Errorf("unknown feed %q", cfg.feed)
	}
}

const subscriberBuffer = 64

var errFeedClosed = errors.New("feed closed")

type memorySubscriber struct {
	ch chan Change
}

type memoryFeed struct {
	mu     sync.Mutex
	topics map[string]map[*memorySubscriber]struct{}
	closed bool
}

func newMemoryFeed() *memoryFeed {
	return &memoryFeed{
		topics: make(map[string]map[*memorySubscriber]struct{}),
	}
}

func (f *memoryFeed) Publish(_ context.Context, c Change) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return errFeedClosed
	}

	for sub := range f.topics[c.Topic] {
		select {
		case sub.ch <- c:
		default:
			// Subscriber is slow/full - drop them.
			f.removeLocked(c.Topic, sub)
		}
	}

	return nil
}

func (f *memoryFeed) Subscribe(ctx context.Context, topic string) (<-chan Change, func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, nil, errFeedClosed
	}

	sub := &memorySubscriber{ch: make(chan Change, subscriberBuffer)}

	subs := f.topics[topic]
	if subs == nil {
		subs = make(map[*memorySubscriber]struct{})
		f.topics[topic] = subs
	}
	subs[sub] = struct{}{}

	done := make(chan struct{})
	var once sync.Once

	cancel := func() {
		once.Do(func() {
			close(done)

			f.mu.Lock()
			f.removeLocked(topic, sub)
			f.mu.Unlock()
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()

	return sub.ch, cancel, nil
}

// removeLocked closes sub's channel if it is still registered.
func (f *memoryFeed) removeLocked(topic string, sub *memorySubscriber) {
	subs, ok := f.topics[topic]
	if !ok {
		return
	}

	if _, ok := subs[sub]; !ok {
		return
	}

	delete(subs, sub)
	close(sub.ch)

	if len(subs) == 0 {
		delete(f.topics, topic)
	}
}

func (f *memoryFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true

	for topic, subs := range f.topics {
		for sub := range subs {
			f.removeLocked(topic, sub)
		}
	}

	return nil
}
